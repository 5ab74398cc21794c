package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"landslidewatch/internal/service/pipeline"

	"github.com/joho/godotenv"
)

// Frame sources.
const (
	SourceVideo     = "video"
	SourceSatellite = "satellite"
)

// Notifiers.
const (
	NotifierLog    = "log"
	NotifierTwilio = "twilio"
	NotifierNATS   = "nats"
)

type Config struct {
	Port                  int
	LogDirectory          string
	DBPath                string
	SnapshotDirectory     string
	SnapshotBufferLimit   int
	SnapshotFlushInterval int // seconds

	Source      string
	VideoPath   string
	DetectEvery time.Duration // video time between detection ticks
	FrameDelay  time.Duration

	SentinelURL        string
	SentinelInstanceID string
	SentinelLayer      string
	AreaBBox           string
	Resolution         int
	RefreshInterval    time.Duration

	LandslideModel   string
	LandslideClasses string
	VehicleModel     string
	VehicleClasses   string
	Confidence       float64
	NMSThreshold     float64
	InputSize        int
	PositiveClass    int

	WindowSize  int
	HistorySize int

	Notifier          string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFrom        string
	TwilioTo          string
	NATSURL           string
	NATSSubject       string
	NotifyTimeout     time.Duration
	DisplayMaxWidth   int
	DisplayMaxHeight  int
	ViewerStaticFiles string
	ViewerToken       string
}

// Load reads the environment, after merging ENV_FILE (default .env) when it
// exists. Variables already set in the environment win.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	return &Config{
		Port:                  getEnvAsInt("PORT", 8080),
		LogDirectory:          getEnv("LOG_DIR", filepath.Join(".", "logs")),
		DBPath:                getEnv("DB_PATH", filepath.Join(".", "data", "landslide.db")),
		SnapshotDirectory:     getEnv("SNAPSHOT_DIR", filepath.Join(".", "snapshots")),
		SnapshotBufferLimit:   getEnvAsInt("SNAPSHOT_BUFFER_LIMIT", 7),
		SnapshotFlushInterval: getEnvAsInt("SNAPSHOT_FLUSH_INTERVAL", 30),

		Source:      getEnv("SOURCE", SourceVideo),
		VideoPath:   getEnv("VIDEO_PATH", "input.mp4"),
		DetectEvery: getEnvAsDuration("DETECT_EVERY", 3*time.Second),
		FrameDelay:  getEnvAsDuration("FRAME_DELAY", 30*time.Millisecond),

		SentinelURL:        getEnv("SENTINEL_URL", "https://services.sentinel-hub.com/ogc/wms/"),
		SentinelInstanceID: getEnv("SENTINEL_INSTANCE_ID", ""),
		SentinelLayer:      getEnv("SENTINEL_LAYER", "FALSE-COLOR-URBAN"),
		AreaBBox:           getEnv("AREA_BBOX", ""),
		Resolution:         getEnvAsInt("RESOLUTION", 1024),
		RefreshInterval:    getEnvAsDuration("REFRESH_INTERVAL", 5*time.Minute),

		LandslideModel:   getEnv("LANDSLIDE_MODEL", filepath.Join(".", "models", "landslide.onnx")),
		LandslideClasses: getEnv("LANDSLIDE_CLASSES", filepath.Join(".", "models", "landslide_data.yaml")),
		VehicleModel:     getEnv("VEHICLE_MODEL", filepath.Join(".", "models", "vehicle.onnx")),
		VehicleClasses:   getEnv("VEHICLE_CLASSES", filepath.Join(".", "models", "vehicle_data.yaml")),
		Confidence:       getEnvAsFloat("CONFIDENCE", 0.5),
		NMSThreshold:     getEnvAsFloat("NMS_THRESHOLD", 0.45),
		InputSize:        getEnvAsInt("INPUT_SIZE", 640),
		PositiveClass:    getEnvAsInt("LANDSLIDE_POSITIVE_CLASS", pipeline.DefaultPositiveClass),

		WindowSize:  getEnvAsInt("WINDOW_SIZE", pipeline.DefaultWindowSize),
		HistorySize: getEnvAsInt("HISTORY_SIZE", pipeline.DefaultHistorySize),

		Notifier:          getEnv("NOTIFIER", NotifierLog),
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:        getEnv("TWILIO_FROM", ""),
		TwilioTo:          getEnv("TWILIO_TO", ""),
		NATSURL:           getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		NATSSubject:       getEnv("NATS_SUBJECT", "landslide.alert"),
		NotifyTimeout:     getEnvAsDuration("NOTIFY_TIMEOUT", 15*time.Second),
		DisplayMaxWidth:   getEnvAsInt("DISPLAY_MAX_WIDTH", 960),
		DisplayMaxHeight:  getEnvAsInt("DISPLAY_MAX_HEIGHT", 540),
		ViewerStaticFiles: getEnv("STATIC_DIR", filepath.Join(".", "web")),
		ViewerToken:       getEnv("VIEWER_TOKEN", ""),
	}, nil
}

// Validate reports every invalid setting. Each failure is a *pipeline.ConfigError.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(field, reason string) {
		errs = append(errs, &pipeline.ConfigError{Field: field, Reason: reason})
	}

	if c.Port < 1 || c.Port > 65535 {
		invalid("PORT", "must be between 1 and 65535")
	}
	if c.SnapshotFlushInterval < 1 {
		invalid("SNAPSHOT_FLUSH_INTERVAL", "must be >= 1")
	}
	if c.SnapshotBufferLimit < 1 {
		invalid("SNAPSHOT_BUFFER_LIMIT", "must be >= 1")
	}
	if c.WindowSize < 1 {
		invalid("WINDOW_SIZE", "must be >= 1")
	}
	if c.HistorySize < 1 {
		invalid("HISTORY_SIZE", "must be >= 1")
	}
	if c.PositiveClass < 0 {
		invalid("LANDSLIDE_POSITIVE_CLASS", "must not be negative")
	}
	if c.Confidence <= 0 || c.Confidence > 1 {
		invalid("CONFIDENCE", "must be in (0, 1]")
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		invalid("NMS_THRESHOLD", "must be in (0, 1]")
	}
	if c.InputSize < 32 || c.InputSize%32 != 0 {
		invalid("INPUT_SIZE", "must be a positive multiple of 32")
	}

	if c.AreaBBox != "" {
		if _, err := ParseBBox(c.AreaBBox); err != nil {
			invalid("AREA_BBOX", err.Error())
		}
	}

	switch c.Source {
	case SourceVideo:
		if c.VideoPath == "" {
			invalid("VIDEO_PATH", "is required for the video source")
		}
		if c.DetectEvery <= 0 {
			invalid("DETECT_EVERY", "must be positive")
		}
		if c.FrameDelay < 0 {
			invalid("FRAME_DELAY", "must not be negative")
		}
	case SourceSatellite:
		if c.SentinelInstanceID == "" {
			invalid("SENTINEL_INSTANCE_ID", "is required for the satellite source")
		}
		if c.AreaBBox == "" {
			invalid("AREA_BBOX", "is required for the satellite source")
		}
		if c.Resolution < 1 {
			invalid("RESOLUTION", "must be >= 1")
		}
		if c.RefreshInterval <= 0 {
			invalid("REFRESH_INTERVAL", "must be positive")
		}
	default:
		invalid("SOURCE", fmt.Sprintf("must be %q or %q, got %q", SourceVideo, SourceSatellite, c.Source))
	}

	switch c.Notifier {
	case NotifierLog:
	case NotifierTwilio:
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" {
			invalid("TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN", "are required for the twilio notifier")
		}
		if c.TwilioFrom == "" || c.TwilioTo == "" {
			invalid("TWILIO_FROM/TWILIO_TO", "are required for the twilio notifier")
		}
	case NotifierNATS:
		if c.NATSURL == "" || c.NATSSubject == "" {
			invalid("NATS_URL/NATS_SUBJECT", "are required for the nats notifier")
		}
	default:
		invalid("NOTIFIER", fmt.Sprintf("must be %q, %q or %q, got %q", NotifierLog, NotifierTwilio, NotifierNATS, c.Notifier))
	}

	return errors.Join(errs...)
}

// Location is the alert location text, empty when no area is configured.
func (c *Config) Location() string {
	if c.AreaBBox == "" {
		return ""
	}
	b, err := ParseBBox(c.AreaBBox)
	if err != nil {
		return ""
	}
	return b.String()
}

// BBox is a WGS84 area: min longitude, min latitude, max longitude, max latitude.
type BBox [4]float64

// ParseBBox parses "minLon,minLat,maxLon,maxLat". Brackets and spaces are allowed.
func ParseBBox(s string) (BBox, error) {
	var b BBox
	s = strings.Trim(strings.TrimSpace(s), "[]")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return b, fmt.Errorf("expected 4 comma separated values, got %d", len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return b, fmt.Errorf("invalid coordinate %q", strings.TrimSpace(p))
		}
		b[i] = v
	}
	if b[0] < -180 || b[2] > 180 || b[1] < -90 || b[3] > 90 {
		return b, fmt.Errorf("coordinates out of range")
	}
	if b[0] >= b[2] || b[1] >= b[3] {
		return b, fmt.Errorf("min must be below max")
	}
	return b, nil
}

func (b BBox) String() string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("30ms", "5m") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

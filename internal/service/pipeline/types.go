package pipeline

import (
	"context"
	"time"
)

// Category tells which detector produced a record.
type Category int

const (
	Landslide Category = iota
	Vehicle
)

func (c Category) String() string {
	switch c {
	case Landslide:
		return "landslide"
	case Vehicle:
		return "vehicle"
	default:
		return "unknown"
	}
}

// BoundingBox is a box in pixel coordinates of the source frame.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// DetectionRecord is one labelled detection produced on a detection tick.
type DetectionRecord struct {
	Box      BoundingBox `json:"box"`
	Label    string      `json:"label"`
	Category Category    `json:"category"`
	Tick     int         `json:"tick"`
}

// Batch holds the records of one detection tick in detector emission order:
// landslide records first, then vehicle records.
type Batch []DetectionRecord

// RawDetection is what a Detector returns before label resolution.
type RawDetection struct {
	Box        BoundingBox
	ClassIndex int
	Confidence float64
}

// Frame is a single encoded (JPEG) image pulled from a FrameSource.
type Frame struct {
	Image      []byte
	Width      int
	Height     int
	CapturedAt time.Time
	Source     string
}

// Detector runs one model over a frame.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]RawDetection, error)
}

// FrameSource supplies frames. Next returns ErrSourceExhausted once no more
// frames will ever be produced; any other error is a failure of this pull only.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// Notifier delivers an alert message to its fixed recipient.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Display is a pure sink for the rendered state of each tick.
type Display interface {
	Render(frame Frame, overlay []DetectionRecord, status string, vehicleCount int)
}

// Journal receives an audit trail of detections and alerts. Errors are logged
// by the driver and never affect pipeline state.
type Journal interface {
	RecordBatch(tick int, frame Frame, batch Batch) error
	RecordAlert(alert Alert) error
}

// Logger is the subset of the application logger the pipeline needs.
type Logger interface {
	Info(format string, v ...interface{})
	Warning(format string, v ...interface{})
	Error(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})    {}
func (nopLogger) Warning(string, ...interface{}) {}
func (nopLogger) Error(string, ...interface{})   {}

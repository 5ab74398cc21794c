package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"landslidewatch/internal/config"
	"landslidewatch/internal/logger"
	"landslidewatch/internal/service/pipeline"

	"gocv.io/x/gocv"
)

const (
	// DefaultWMSURL is the Sentinel Hub OGC endpoint; the instance id is appended.
	DefaultWMSURL = "https://services.sentinel-hub.com/ogc/wms/"
	// archiveStart is the first Sentinel-2 acquisition date.
	archiveStart = "2015-06-23"
	maxImageSize = 32 << 20
)

type SatelliteOptions struct {
	BaseURL    string
	InstanceID string
	Layer      string
	BBox       config.BBox
	Resolution int
	Timeout    time.Duration
}

// Satellite fetches the most recent image of an area from a WMS endpoint.
// It never runs out of frames.
type Satellite struct {
	opts   SatelliteOptions
	client *http.Client
	now    func() time.Time
	logger *logger.Logger
}

func NewSatellite(opts SatelliteOptions, logger *logger.Logger) *Satellite {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultWMSURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Satellite{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		now:    time.Now,
		logger: logger,
	}
}

// requestURL builds a GetMap request for the latest mosaic up to at.
func (s *Satellite) requestURL(at time.Time) string {
	b := s.opts.BBox
	q := url.Values{}
	q.Set("SERVICE", "WMS")
	q.Set("REQUEST", "GetMap")
	q.Set("VERSION", "1.3.0")
	q.Set("LAYERS", s.opts.Layer)
	q.Set("CRS", "CRS:84")
	q.Set("BBOX", fmt.Sprintf("%s,%s,%s,%s", fmtCoord(b[0]), fmtCoord(b[1]), fmtCoord(b[2]), fmtCoord(b[3])))
	q.Set("WIDTH", strconv.Itoa(s.opts.Resolution))
	q.Set("HEIGHT", strconv.Itoa(s.opts.Resolution))
	q.Set("FORMAT", "image/png")
	q.Set("TIME", archiveStart+"/"+at.UTC().Format("2006-01-02"))
	q.Set("PRIORITY", "mostRecent")
	return s.opts.BaseURL + url.PathEscape(s.opts.InstanceID) + "?" + q.Encode()
}

func fmtCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Next downloads one image. Failures are returned as ordinary errors so the
// pipeline retries on the next tick.
func (s *Satellite) Next(ctx context.Context) (pipeline.Frame, error) {
	at := s.now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.requestURL(at), nil)
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("failed to build WMS request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("WMS request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("failed to read WMS response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return pipeline.Frame{}, fmt.Errorf("WMS returned %s: %.200s", resp.Status, body)
	}

	mat, err := gocv.IMDecode(body, gocv.IMReadColor)
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("failed to decode satellite image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return pipeline.Frame{}, fmt.Errorf("satellite image is empty")
	}

	img, err := encodeJPEG(mat)
	if err != nil {
		return pipeline.Frame{}, err
	}

	s.logger.Info("Fetched satellite image %dx%d for %s", mat.Cols(), mat.Rows(), s.opts.BBox)
	return pipeline.Frame{
		Image:      img,
		Width:      mat.Cols(),
		Height:     mat.Rows(),
		CapturedAt: at,
		Source:     "sentinel-hub:" + s.opts.Layer,
	}, nil
}

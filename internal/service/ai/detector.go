package ai

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"landslidewatch/internal/logger"
	"landslidewatch/internal/service/pipeline"

	"gocv.io/x/gocv"
)

const (
	// DefaultConfidence is the minimum class score kept before NMS.
	DefaultConfidence = 0.5
	// DefaultNMSThreshold is the IoU above which overlapping boxes are merged.
	DefaultNMSThreshold = 0.45
	// DefaultInputSize is the square network input used by YOLO exports.
	DefaultInputSize = 640
)

// Options configures one YOLO network.
type Options struct {
	ModelPath    string
	Confidence   float64
	NMSThreshold float64
	InputSize    int
}

// Detector runs a YOLO ONNX export over JPEG frames.
type Detector struct {
	name   string
	opts   Options
	net    gocv.Net
	ready  bool
	mutex  sync.Mutex
	logger *logger.Logger
}

// NewDetector loads the network behind name. A network that fails to load is
// logged and every later Detect call fails, so the pipeline reports it per tick.
func NewDetector(name string, opts Options, logger *logger.Logger) *Detector {
	if opts.Confidence <= 0 {
		opts.Confidence = DefaultConfidence
	}
	if opts.NMSThreshold <= 0 {
		opts.NMSThreshold = DefaultNMSThreshold
	}
	if opts.InputSize <= 0 {
		opts.InputSize = DefaultInputSize
	}

	d := &Detector{
		name:   name,
		opts:   opts,
		logger: logger,
	}

	if err := d.initializeNet(); err != nil {
		d.logger.Warning("Could not initialize %s network: %v", name, err)
		return d
	}

	return d
}

func (d *Detector) initializeNet() error {
	if _, err := os.Stat(d.opts.ModelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", d.opts.ModelPath)
	}

	net := gocv.ReadNetFromONNX(d.opts.ModelPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", d.opts.ModelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	d.net = net
	d.ready = true
	d.logger.Info("%s network initialized from %s", d.name, d.opts.ModelPath)
	return nil
}

// Name returns the detector's name.
func (d *Detector) Name() string {
	return d.name
}

// Ready reports whether the network loaded.
func (d *Detector) Ready() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.ready
}

// Detect runs the network on a frame and returns boxes in frame pixels.
func (d *Detector) Detect(ctx context.Context, frame pipeline.Frame) ([]pipeline.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.ready {
		return nil, fmt.Errorf("%s network not initialized", d.name)
	}

	mat, err := gocv.IMDecode(frame.Image, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	size := d.opts.InputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}

	layout := outputLayout{channels: dims[1], anchors: dims[2]}
	if layout.channels > layout.anchors {
		layout = outputLayout{channels: dims[2], anchors: dims[1], transposed: true}
	}

	candidates, err := decodeOutput(data, layout, geometry{
		scaleX: float64(mat.Cols()) / float64(size),
		scaleY: float64(mat.Rows()) / float64(size),
		width:  mat.Cols(),
		height: mat.Rows(),
	}, float32(d.opts.Confidence))
	if err != nil {
		return nil, err
	}

	return d.suppress(candidates), nil
}

// suppress runs per-class NMS. Boxes are shifted by class so boxes of
// different classes never overlap.
func (d *Detector) suppress(candidates []candidate) []pipeline.RawDetection {
	if len(candidates) == 0 {
		return nil
	}

	const classOffset = 8192
	rects := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		off := image.Pt(c.class*classOffset, c.class*classOffset)
		rects[i] = c.rect.Add(off)
		scores[i] = c.score
	}

	keep := gocv.NMSBoxes(rects, scores, float32(d.opts.Confidence), float32(d.opts.NMSThreshold))
	detections := make([]pipeline.RawDetection, 0, len(keep))
	for _, idx := range keep {
		detections = append(detections, candidates[idx].raw())
	}
	return detections
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if !d.ready {
		return nil
	}
	d.ready = false
	return d.net.Close()
}

package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"landslidewatch/internal/logger"
	"landslidewatch/internal/service/pipeline"

	"gocv.io/x/gocv"
)

// Video reads frames from a video file or stream.
type Video struct {
	path      string
	capture   *gocv.VideoCapture
	mat       gocv.Mat
	frameRate float64
	closed    bool
	mutex     sync.Mutex
	logger    *logger.Logger
}

// OpenVideo opens path with OpenCV's capture backend.
func OpenVideo(path string, logger *logger.Logger) (*Video, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("failed to open video %s", path)
	}

	v := &Video{
		path:      path,
		capture:   capture,
		mat:       gocv.NewMat(),
		frameRate: capture.Get(gocv.VideoCaptureFPS),
		logger:    logger,
	}
	logger.Info("Opened video %s (%.2f fps)", path, v.frameRate)
	return v, nil
}

// FrameRate is the rate reported by the container, zero when unknown.
func (v *Video) FrameRate() float64 {
	return v.frameRate
}

// Next decodes the next frame. The end of the file is reported as
// pipeline.ErrSourceExhausted.
func (v *Video) Next(ctx context.Context) (pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Frame{}, err
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	if v.closed {
		return pipeline.Frame{}, pipeline.ErrSourceExhausted
	}
	if ok := v.capture.Read(&v.mat); !ok || v.mat.Empty() {
		return pipeline.Frame{}, pipeline.ErrSourceExhausted
	}

	img, err := encodeJPEG(v.mat)
	if err != nil {
		return pipeline.Frame{}, err
	}

	return pipeline.Frame{
		Image:      img,
		Width:      v.mat.Cols(),
		Height:     v.mat.Rows(),
		CapturedAt: time.Now(),
		Source:     v.path,
	}, nil
}

func (v *Video) Close() error {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	v.mat.Close()
	return v.capture.Close()
}

func encodeJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	img := make([]byte, len(buf.GetBytes()))
	copy(img, buf.GetBytes())
	return img, nil
}

package pipeline

import (
	"context"
	"errors"
	"time"
)

// scriptedDetector returns script[i] on its i-th call and nothing afterwards.
type scriptedDetector struct {
	script [][]RawDetection
	err    error
	calls  int
}

func (d *scriptedDetector) Detect(_ context.Context, _ Frame) ([]RawDetection, error) {
	call := d.calls
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if call < len(d.script) {
		return d.script[call], nil
	}
	return nil, nil
}

// countingSource produces frames until limit frames have been handed out.
type countingSource struct {
	limit int
	calls int
	err   error
}

func (s *countingSource) Next(_ context.Context) (Frame, error) {
	s.calls++
	if s.calls > s.limit {
		return Frame{}, ErrSourceExhausted
	}
	if s.err != nil {
		return Frame{}, s.err
	}
	return Frame{
		Image:      []byte{0xFF, 0xD8, 0xFF, 0xD9},
		CapturedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Source:     "test",
	}, nil
}

type recordingNotifier struct {
	messages []string
	err      error
}

func (n *recordingNotifier) Send(_ context.Context, message string) error {
	n.messages = append(n.messages, message)
	return n.err
}

type render struct {
	overlay      []DetectionRecord
	status       string
	vehicleCount int
}

type recordingDisplay struct {
	renders []render
}

func (d *recordingDisplay) Render(_ Frame, overlay []DetectionRecord, status string, vehicleCount int) {
	d.renders = append(d.renders, render{overlay: overlay, status: status, vehicleCount: vehicleCount})
}

type recordingJournal struct {
	batches []Batch
	alerts  []Alert
}

func (j *recordingJournal) RecordBatch(_ int, _ Frame, batch Batch) error {
	j.batches = append(j.batches, batch)
	return nil
}

func (j *recordingJournal) RecordAlert(alert Alert) error {
	j.alerts = append(j.alerts, alert)
	return errors.New("journal unavailable")
}

var (
	landslideClasses = ClassNames{"terrain", "landslide"}
	vehicleClasses   = ClassNames{"car", "truck", "bus"}
)

func box(x int) BoundingBox {
	return BoundingBox{X1: x, Y1: x, X2: x + 10, Y2: x + 10}
}

func positive() RawDetection {
	return RawDetection{Box: box(1), ClassIndex: 1, Confidence: 0.9}
}

func car() RawDetection {
	return RawDetection{Box: box(50), ClassIndex: 0, Confidence: 0.8}
}

func truck() RawDetection {
	return RawDetection{Box: box(80), ClassIndex: 1, Confidence: 0.7}
}

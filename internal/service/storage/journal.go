package storage

import (
	"fmt"
	"sync"
	"time"

	"landslidewatch/internal/logger"
	"landslidewatch/internal/model"
	"landslidewatch/internal/repository"
	"landslidewatch/internal/service/pipeline"
)

// Annotator draws records onto a JPEG frame.
type Annotator func(img []byte, records []pipeline.DetectionRecord) ([]byte, error)

// Journal is the pipeline's audit trail: detection records and the alert go
// to sqlite, and the alert frame is queued as a snapshot.
type Journal struct {
	detections repository.DetectionRepository
	alerts     repository.AlertRepository
	buffer     *BufferService
	annotate   Annotator
	logger     *logger.Logger
	now        func() time.Time

	mu      sync.Mutex
	tick    int
	lastIDs []int64 // detection rows of tick
}

func NewJournal(detections repository.DetectionRepository, alerts repository.AlertRepository, buffer *BufferService, annotate Annotator, logger *logger.Logger) *Journal {
	return &Journal{
		detections: detections,
		alerts:     alerts,
		buffer:     buffer,
		annotate:   annotate,
		logger:     logger,
		now:        time.Now,
	}
}

func (j *Journal) RecordBatch(tick int, _ pipeline.Frame, batch pipeline.Batch) error {
	now := j.now()
	rows := make([]model.Detection, 0, len(batch))
	for _, r := range batch {
		rows = append(rows, model.Detection{
			Tick:      tick,
			Category:  r.Category.String(),
			Label:     r.Label,
			X1:        r.Box.X1,
			Y1:        r.Box.Y1,
			X2:        r.Box.X2,
			Y2:        r.Box.Y2,
			CreatedAt: now,
		})
	}
	ids, err := j.detections.InsertBatch(rows)

	j.mu.Lock()
	j.tick, j.lastIDs = tick, ids
	j.mu.Unlock()
	return err
}

// detectionIDs returns the rows recorded for tick by the latest RecordBatch.
func (j *Journal) detectionIDs(tick int) []int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.tick != tick {
		return nil
	}
	return j.lastIDs
}

func (j *Journal) RecordAlert(alert pipeline.Alert) error {
	row := &model.Alert{
		Tick:      alert.Tick,
		Message:   alert.Message,
		Sent:      alert.Sent(),
		CreatedAt: alert.SentAt,
	}
	if alert.Err != nil {
		row.Error = alert.Err.Error()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = j.now()
	}

	alertID, err := j.alerts.Insert(row)
	if err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}

	if j.buffer == nil || len(alert.Frame.Image) == 0 {
		return nil
	}

	img := alert.Frame.Image
	if j.annotate != nil {
		annotated, err := j.annotate(img, alert.Records)
		if err != nil {
			j.logger.Warning("Could not annotate alert snapshot: %v", err)
		} else {
			img = annotated
		}
	}

	j.buffer.AddImage(Snapshot{
		Tick:         alert.Tick,
		AlertID:      alertID,
		DetectionIDs: j.detectionIDs(alert.Tick),
		Source:       alert.Frame.Source,
		Timestamp:    alert.Frame.CapturedAt,
		Records:      alert.Records,
		Data:         img,
	})
	return nil
}

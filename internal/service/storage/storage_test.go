package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"landslidewatch/internal/logger"
	"landslidewatch/internal/model"
	"landslidewatch/internal/repository/sqlite"
	"landslidewatch/internal/service/pipeline"
)

type testEnv struct {
	dir        string
	log        *logger.Logger
	images     *sqlite.ImageRepository
	detections *sqlite.DetectionRepository
	alerts     *sqlite.AlertRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir, err := os.MkdirTemp("", "storage_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	l, err := logger.NewLogger(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	db, err := sqlite.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &testEnv{
		dir:        dir,
		log:        l,
		images:     sqlite.NewImageRepository(db),
		detections: sqlite.NewDetectionRepository(db),
		alerts:     sqlite.NewAlertRepository(db),
	}
}

func (e *testEnv) buffer(limit int) *BufferService {
	return NewBufferService(filepath.Join(e.dir, "snapshots"), limit, e.log, e.images, e.detections, e.alerts)
}

var capturedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func alertBatch(tick int) pipeline.Batch {
	return pipeline.Batch{
		{Box: pipeline.BoundingBox{X1: 1, Y1: 1, X2: 50, Y2: 50}, Label: "landslide", Category: pipeline.Landslide, Tick: tick},
		{Box: pipeline.BoundingBox{X1: 60, Y1: 60, X2: 70, Y2: 70}, Label: "car", Category: pipeline.Vehicle, Tick: tick},
	}
}

func TestJournalRecordsAlertWithSnapshot(t *testing.T) {
	env := newTestEnv(t)
	buf := env.buffer(DefaultBufferLimit)

	var annotated []pipeline.DetectionRecord
	annotate := func(img []byte, records []pipeline.DetectionRecord) ([]byte, error) {
		annotated = records
		return append([]byte("annotated:"), img...), nil
	}
	j := NewJournal(env.detections, env.alerts, buf, annotate, env.log)

	frame := pipeline.Frame{Image: []byte("jpeg"), CapturedAt: capturedAt, Source: "input.mp4"}
	batch := alertBatch(3)
	if err := j.RecordBatch(3, frame, batch); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}
	if err := j.RecordAlert(pipeline.Alert{
		Tick:    3,
		Message: "ALERT: Landslide detected.",
		Frame:   frame,
		Records: batch,
		SentAt:  capturedAt,
	}); err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	if len(annotated) != 2 {
		t.Fatalf("expected records passed to annotator, got %d", len(annotated))
	}
	if buf.Pending() != 1 {
		t.Fatalf("expected 1 pending snapshot, got %d", buf.Pending())
	}

	if n := buf.FlushImages(); n != 1 {
		t.Fatalf("expected 1 snapshot flushed, got %d", n)
	}

	imgs, err := env.images.GetAll(nil)
	if err != nil || len(imgs) != 1 {
		t.Fatalf("expected 1 image row, got %v %v", imgs, err)
	}
	img := imgs[0]
	if !strings.Contains(img.Filename, "tick3_landslide_car") {
		t.Errorf("unexpected filename %q", img.Filename)
	}
	data, err := os.ReadFile(img.FilePath)
	if err != nil || string(data) != "annotated:jpeg" {
		t.Fatalf("unexpected snapshot content %q (%v)", string(data), err)
	}

	linked, err := env.detections.GetByImageID(img.ID)
	if err != nil || len(linked) != 2 {
		t.Fatalf("expected detections linked to snapshot, got %v %v", linked, err)
	}

	alert, err := env.alerts.GetLatest()
	if err != nil || alert == nil {
		t.Fatalf("GetLatest: %v %v", alert, err)
	}
	if !alert.Sent || alert.ImageID == nil || *alert.ImageID != img.ID {
		t.Fatalf("unexpected alert row %+v", alert)
	}
}

func TestJournalRecordsFailedAlert(t *testing.T) {
	env := newTestEnv(t)
	j := NewJournal(env.detections, env.alerts, nil, nil, env.log)

	if err := j.RecordAlert(pipeline.Alert{Tick: 1, Message: "m", Err: errors.New("auth failed")}); err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	alert, _ := env.alerts.GetLatest()
	if alert == nil || alert.Sent || alert.Error != "auth failed" {
		t.Fatalf("unexpected alert row %+v", alert)
	}
}

func TestBufferServiceLimit(t *testing.T) {
	env := newTestEnv(t)
	buf := env.buffer(2)

	for tick := 0; tick < 3; tick++ {
		ok := buf.AddImage(Snapshot{Tick: tick, Source: "video", Timestamp: capturedAt.Add(time.Duration(tick) * time.Second), Data: []byte{1}})
		if ok != (tick < 2) {
			t.Fatalf("tick %d: unexpected accept=%v", tick, ok)
		}
	}
	if n := buf.FlushImages(); n != 2 {
		t.Fatalf("expected 2 flushed, got %d", n)
	}
	if buf.Pending() != 0 {
		t.Fatalf("expected empty buffer after flush, got %d", buf.Pending())
	}
	if n := buf.FlushImages(); n != 0 {
		t.Fatalf("expected nothing to flush, got %d", n)
	}
}

func TestBufferServiceRunFlushesOnShutdown(t *testing.T) {
	env := newTestEnv(t)
	buf := env.buffer(DefaultBufferLimit)
	buf.AddImage(Snapshot{Tick: 7, Source: "video", Timestamp: capturedAt, Data: []byte{1, 2}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		buf.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	imgs, err := env.images.GetAll(&model.ImageFilter{})
	if err != nil || len(imgs) != 1 || imgs[0].Tick != 7 {
		t.Fatalf("expected snapshot flushed on shutdown, got %v %v", imgs, err)
	}
}

func TestSnapshotFilename(t *testing.T) {
	name := snapshotFilename(Snapshot{
		Tick:      12,
		Timestamp: capturedAt,
		Records: []pipeline.DetectionRecord{
			{Label: "landslide"}, {Label: "car"}, {Label: "car"}, {Label: "pick up/van"},
		},
	})
	expected := "2024-05-01_12-00-00.000_tick12_landslide_car_pick-up-van.jpg"
	if name != expected {
		t.Fatalf("expected %q, got %q", expected, name)
	}
}

func TestJournalLinksOnlyItsOwnDetections(t *testing.T) {
	env := newTestEnv(t)

	// A batch journalled by an earlier run at the same tick number.
	earlier := NewJournal(env.detections, env.alerts, nil, nil, env.log)
	if err := earlier.RecordBatch(3, pipeline.Frame{}, pipeline.Batch{
		{Label: "bus", Category: pipeline.Vehicle, Tick: 3},
	}); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}

	buf := env.buffer(DefaultBufferLimit)
	j := NewJournal(env.detections, env.alerts, buf, nil, env.log)
	frame := pipeline.Frame{Image: []byte("jpeg"), CapturedAt: capturedAt, Source: "input.mp4"}
	batch := alertBatch(3)
	if err := j.RecordBatch(3, frame, batch); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}
	if err := j.RecordAlert(pipeline.Alert{Tick: 3, Message: "m", Frame: frame, Records: batch, SentAt: capturedAt}); err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	if n := buf.FlushImages(); n != 1 {
		t.Fatalf("expected 1 snapshot flushed, got %d", n)
	}

	imgs, _ := env.images.GetAll(nil)
	if len(imgs) != 1 {
		t.Fatalf("expected 1 image row, got %d", len(imgs))
	}
	linked, err := env.detections.GetByImageID(imgs[0].ID)
	if err != nil {
		t.Fatalf("GetByImageID: %v", err)
	}
	if len(linked) != 2 {
		t.Fatalf("expected 2 linked detections, got %d", len(linked))
	}
	for _, d := range linked {
		if d.Label == "bus" {
			t.Fatal("detection from another run linked to the snapshot")
		}
	}
}

func TestBufferServiceKeepsUnwrittenSnapshots(t *testing.T) {
	env := newTestEnv(t)
	buf := env.buffer(DefaultBufferLimit)
	snap := Snapshot{Tick: 4, Source: "video", Timestamp: capturedAt, Data: []byte{1}}
	buf.AddImage(snap)

	// A directory in place of the target file makes the write fail.
	blocked := filepath.Join(env.dir, "snapshots", snapshotFilename(snap))
	if err := os.MkdirAll(blocked, 0755); err != nil {
		t.Fatalf("failed to create blocking dir: %v", err)
	}

	if n := buf.FlushImages(); n != 0 {
		t.Fatalf("expected nothing written, got %d", n)
	}
	if buf.Pending() != 1 {
		t.Fatalf("expected failed snapshot to stay buffered, got %d", buf.Pending())
	}

	if err := os.Remove(blocked); err != nil {
		t.Fatalf("failed to remove blocking dir: %v", err)
	}
	if n := buf.FlushImages(); n != 1 {
		t.Fatalf("expected retry to write the snapshot, got %d", n)
	}
	if buf.Pending() != 0 {
		t.Fatalf("expected empty buffer, got %d", buf.Pending())
	}
}

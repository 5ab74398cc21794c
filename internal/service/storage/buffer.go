package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"landslidewatch/internal/logger"
	"landslidewatch/internal/model"
	"landslidewatch/internal/repository"
	"landslidewatch/internal/service/pipeline"
)

const (
	// DefaultBufferLimit caps how many snapshots wait in memory for a flush.
	DefaultBufferLimit = 7
	// DefaultFlushInterval is how often buffered snapshots are written out.
	DefaultFlushInterval = 30 * time.Second

	timestampLayout = "2006-01-02_15-04-05.000"
)

// Snapshot is an annotated frame waiting to be written to disk.
type Snapshot struct {
	Tick         int
	AlertID      int64   // zero when the snapshot belongs to no alert
	DetectionIDs []int64 // detection rows drawn on the snapshot
	Source       string
	Timestamp    time.Time
	Records      []pipeline.DetectionRecord
	Data         []byte
}

// BufferService buffers snapshots in memory and periodically flushes them to
// disk, recording each file in the images table.
type BufferService struct {
	imagesDir     string
	limit         int
	snapshots     []Snapshot
	mu            sync.Mutex
	logger        *logger.Logger
	imageRepo     repository.ImageRepository
	detectionRepo repository.DetectionRepository
	alertRepo     repository.AlertRepository
}

// NewBufferService creates a BufferService writing under imagesDir. The
// repositories may be nil, in which case only files are written.
func NewBufferService(imagesDir string, limit int, logger *logger.Logger, imageRepo repository.ImageRepository, detectionRepo repository.DetectionRepository, alertRepo repository.AlertRepository) *BufferService {
	if limit < 1 {
		limit = DefaultBufferLimit
	}
	return &BufferService{
		imagesDir:     imagesDir,
		limit:         limit,
		logger:        logger,
		imageRepo:     imageRepo,
		detectionRepo: detectionRepo,
		alertRepo:     alertRepo,
	}
}

// Run flushes on every interval until ctx is done, then flushes once more.
func (s *BufferService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushImages()
			return
		case <-ticker.C:
			s.FlushImages()
		}
	}
}

// AddImage queues a snapshot. It reports false when the buffer is full.
func (s *BufferService) AddImage(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) >= s.limit {
		s.logger.Warning("Snapshot buffer full (%d), dropping tick %d", s.limit, snap.Tick)
		return false
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	s.snapshots = append(s.snapshots, snap)
	s.logger.Info("Snapshot buffer size: %d/%d", len(s.snapshots), s.limit)
	return true
}

// Pending returns the number of buffered snapshots.
func (s *BufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// FlushImages writes buffered snapshots to disk. Snapshots whose file could
// not be written stay buffered for the next flush. It returns the number of
// files written.
func (s *BufferService) FlushImages() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) == 0 {
		return 0
	}

	if err := os.MkdirAll(s.imagesDir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return 0
	}

	savedCount := 0
	var failed []Snapshot
	for _, snap := range s.snapshots {
		filename := snapshotFilename(snap)
		fullpath := filepath.Join(s.imagesDir, filename)

		if err := os.WriteFile(fullpath, snap.Data, 0644); err != nil {
			s.logger.Error("Error saving snapshot %s: %v", filename, err)
			failed = append(failed, snap)
			continue
		}
		savedCount++

		if s.imageRepo == nil {
			continue
		}

		imageID, err := s.imageRepo.Insert(&model.Image{
			Filename:  filename,
			Source:    snap.Source,
			Tick:      snap.Tick,
			Timestamp: snap.Timestamp,
			FilePath:  fullpath,
			FileSize:  int64(len(snap.Data)),
		})
		if err != nil {
			s.logger.Error("Error saving snapshot to database %s: %v", filename, err)
			continue
		}

		if s.detectionRepo != nil && len(snap.DetectionIDs) > 0 {
			if _, err := s.detectionRepo.AttachImage(snap.DetectionIDs, imageID); err != nil {
				s.logger.Error("Error linking detections to %s: %v", filename, err)
			}
		}
		if s.alertRepo != nil && snap.AlertID != 0 {
			if err := s.alertRepo.AttachImage(snap.AlertID, imageID); err != nil {
				s.logger.Error("Error linking alert to %s: %v", filename, err)
			}
		}
	}

	s.logger.Info("Flushed %d snapshots to disk", savedCount)
	if len(failed) > 0 {
		s.logger.Warning("%d snapshots kept for the next flush", len(failed))
	}
	s.snapshots = append(s.snapshots[:0], failed...)
	return savedCount
}

// snapshotFilename builds "<time>_tick<N>_<labels>.jpg" with unique labels.
func snapshotFilename(snap Snapshot) string {
	seen := make(map[string]bool)
	var labels []string
	for _, r := range snap.Records {
		if !seen[r.Label] {
			seen[r.Label] = true
			labels = append(labels, sanitize(r.Label))
		}
	}

	name := fmt.Sprintf("%s_tick%d", snap.Timestamp.Format(timestampLayout), snap.Tick)
	if len(labels) > 0 {
		name += "_" + strings.Join(labels, "_")
	}
	return name + ".jpg"
}

func sanitize(label string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, label)
}

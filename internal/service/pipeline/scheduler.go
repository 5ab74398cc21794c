package pipeline

import (
	"math"
	"time"
)

// Scheduler decides which ticks run the detectors.
type Scheduler struct {
	interval int
}

// NewScheduler returns a scheduler that runs detection every interval ticks.
func NewScheduler(interval int) (Scheduler, error) {
	if interval < 1 {
		return Scheduler{}, &ConfigError{Field: "detection interval", Reason: "must be >= 1"}
	}
	return Scheduler{interval: interval}, nil
}

// IsDetectionTick reports whether tick should run the detectors.
func (s Scheduler) IsDetectionTick(tick int) bool {
	return tick%s.interval == 0
}

func (s Scheduler) Interval() int {
	return s.interval
}

// IntervalFromFrameRate converts "detect every d of video" into a tick count
// for a source playing at fps frames per second. The result is at least 1.
func IntervalFromFrameRate(fps float64, every time.Duration) (int, error) {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 0, &ConfigError{Field: "frame rate", Reason: "must be > 0"}
	}
	if every <= 0 {
		return 0, &ConfigError{Field: "detection period", Reason: "must be > 0"}
	}
	n := int(math.Round(every.Seconds() * fps))
	if n < 1 {
		n = 1
	}
	return n, nil
}

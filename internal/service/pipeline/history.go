package pipeline

// DefaultHistorySize is the number of ticks a detection stays on screen.
const DefaultHistorySize = 10

// History keeps the batches of the most recent ticks for overlay rendering.
// Render-only ticks push empty batches so entries age out by tick, not by
// detection.
type History struct {
	batches *ring[Batch]
}

func NewHistory(size int) (*History, error) {
	if size < 1 {
		return nil, &ConfigError{Field: "history size", Reason: "must be >= 1"}
	}
	return &History{batches: newRing[Batch](size)}, nil
}

// Push appends the batch of the current tick, evicting the oldest.
func (h *History) Push(b Batch) {
	h.batches.push(b)
}

func (h *History) Len() int {
	return h.batches.len()
}

// Snapshot concatenates every held batch, oldest first.
func (h *History) Snapshot() []DetectionRecord {
	var out []DetectionRecord
	h.batches.each(func(b Batch) {
		out = append(out, b...)
	})
	return out
}

package pipeline

import (
	"fmt"
	"strings"
)

// DefaultWindowSize is the number of detection ticks summarised in an alert.
const DefaultWindowSize = 5

// VehicleCounts maps vehicle labels to occurrence counts. Labels keep the
// order in which they were first added so summaries are deterministic.
// The zero value is empty and ready to use.
type VehicleCounts struct {
	labels []string
	counts map[string]int
}

// NewVehicleCounts counts one occurrence per label given.
func NewVehicleCounts(labels ...string) VehicleCounts {
	var c VehicleCounts
	for _, l := range labels {
		c.add(l, 1)
	}
	return c
}

func (c *VehicleCounts) add(label string, n int) {
	if n <= 0 {
		return
	}
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	if _, ok := c.counts[label]; !ok {
		c.labels = append(c.labels, label)
	}
	c.counts[label] += n
}

// Count returns the count for label, zero when absent.
func (c VehicleCounts) Count(label string) int {
	return c.counts[label]
}

// Labels returns the labels in first-seen order.
func (c VehicleCounts) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

func (c VehicleCounts) Len() int {
	return len(c.labels)
}

func (c VehicleCounts) Empty() bool {
	return len(c.labels) == 0
}

// Total is the sum of all counts.
func (c VehicleCounts) Total() int {
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Map returns a copy as a plain map.
func (c VehicleCounts) Map() map[string]int {
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Summary renders the counts as "3 cars, 1 truck".
func (c VehicleCounts) Summary() string {
	parts := make([]string, 0, len(c.labels))
	for _, label := range c.labels {
		n := c.counts[label]
		if n > 1 {
			parts = append(parts, fmt.Sprintf("%d %ss", n, label))
		} else {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	if len(parts) == 0 {
		return "No vehicles detected"
	}
	return strings.Join(parts, ", ")
}

// VehicleWindow holds the vehicle counts of the most recent detection ticks.
type VehicleWindow struct {
	entries *ring[VehicleCounts]
}

// NewVehicleWindow returns a window of the given size primed with empty
// counts, so it is always full.
func NewVehicleWindow(size int) (*VehicleWindow, error) {
	if size < 1 {
		return nil, &ConfigError{Field: "window size", Reason: "must be >= 1"}
	}
	w := &VehicleWindow{entries: newRing[VehicleCounts](size)}
	for i := 0; i < size; i++ {
		w.entries.push(VehicleCounts{})
	}
	return w, nil
}

// Push appends counts, evicting the oldest entry.
func (w *VehicleWindow) Push(c VehicleCounts) {
	w.entries.push(c)
}

func (w *VehicleWindow) Len() int {
	return w.entries.len()
}

// Aggregate sums counts per label across every held entry. Label order is
// first appearance, scanning oldest entry first.
func (w *VehicleWindow) Aggregate() VehicleCounts {
	var total VehicleCounts
	w.entries.each(func(c VehicleCounts) {
		for _, label := range c.labels {
			total.add(label, c.counts[label])
		}
	})
	return total
}

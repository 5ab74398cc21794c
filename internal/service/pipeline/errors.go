package pipeline

import (
	"errors"
	"fmt"
)

// ErrSourceExhausted marks the normal end of a frame source.
var ErrSourceExhausted = errors.New("frame source exhausted")

// ConfigError reports an invalid construction parameter. It is always fatal.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// DetectorError fails a detection tick.
type DetectorError struct {
	Detector string
	Err      error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("%s detector: %v", e.Detector, e.Err)
}

func (e *DetectorError) Unwrap() error {
	return e.Err
}

// LabelResolutionError is returned when a detector emits a class index that
// has no entry in its class-name table.
type LabelResolutionError struct {
	ClassIndex int
	Size       int
}

func (e *LabelResolutionError) Error() string {
	return fmt.Sprintf("class index %d has no label (table has %d entries)", e.ClassIndex, e.Size)
}

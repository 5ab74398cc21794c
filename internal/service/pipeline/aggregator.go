package pipeline

import (
	"context"
)

// DefaultPositiveClass is the landslide-model class index that raises an alert.
const DefaultPositiveClass = 1

// ClassNames maps a detector's class index to its label.
type ClassNames []string

// Resolve returns the label for index, or a *LabelResolutionError when the
// table has no entry for it.
func (c ClassNames) Resolve(index int) (string, error) {
	if index < 0 || index >= len(c) || c[index] == "" {
		return "", &LabelResolutionError{ClassIndex: index, Size: len(c)}
	}
	return c[index], nil
}

type AggregatorConfig struct {
	Landslide        Detector
	LandslideClasses ClassNames
	Vehicle          Detector
	VehicleClasses   ClassNames
	// PositiveClass is the landslide class that counts as a confirmed landslide.
	PositiveClass int
}

// Aggregator runs both detectors on a detection tick and merges their output.
type Aggregator struct {
	cfg AggregatorConfig
}

// Detection is the merged result of one detection tick.
type Detection struct {
	Batch             Batch
	Vehicles          VehicleCounts
	LandslideDetected bool
}

func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if cfg.Landslide == nil {
		return nil, &ConfigError{Field: "landslide detector", Reason: "is required"}
	}
	if cfg.Vehicle == nil {
		return nil, &ConfigError{Field: "vehicle detector", Reason: "is required"}
	}
	if _, err := cfg.LandslideClasses.Resolve(cfg.PositiveClass); err != nil {
		return nil, &ConfigError{Field: "positive class", Reason: err.Error()}
	}
	return &Aggregator{cfg: cfg}, nil
}

// Run invokes the landslide detector, then the vehicle detector. Any detector
// or label failure fails the whole tick with a *DetectorError.
func (a *Aggregator) Run(ctx context.Context, frame Frame, tick int) (Detection, error) {
	var out Detection

	landslides, err := a.cfg.Landslide.Detect(ctx, frame)
	if err != nil {
		return Detection{}, &DetectorError{Detector: "landslide", Err: err}
	}
	for _, d := range landslides {
		label, err := a.cfg.LandslideClasses.Resolve(d.ClassIndex)
		if err != nil {
			return Detection{}, &DetectorError{Detector: "landslide", Err: err}
		}
		if d.ClassIndex == a.cfg.PositiveClass {
			out.LandslideDetected = true
		}
		out.Batch = append(out.Batch, DetectionRecord{Box: d.Box, Label: label, Category: Landslide, Tick: tick})
	}

	vehicles, err := a.cfg.Vehicle.Detect(ctx, frame)
	if err != nil {
		return Detection{}, &DetectorError{Detector: "vehicle", Err: err}
	}
	for _, d := range vehicles {
		label, err := a.cfg.VehicleClasses.Resolve(d.ClassIndex)
		if err != nil {
			return Detection{}, &DetectorError{Detector: "vehicle", Err: err}
		}
		out.Batch = append(out.Batch, DetectionRecord{Box: d.Box, Label: label, Category: Vehicle, Tick: tick})
		out.Vehicles.add(label, 1)
	}

	return out, nil
}

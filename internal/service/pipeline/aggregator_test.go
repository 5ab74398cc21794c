package pipeline

import (
	"context"
	"errors"
	"testing"
)

func newTestAggregator(t *testing.T, landslide, vehicle Detector) *Aggregator {
	t.Helper()
	a, err := NewAggregator(AggregatorConfig{
		Landslide:        landslide,
		LandslideClasses: landslideClasses,
		Vehicle:          vehicle,
		VehicleClasses:   vehicleClasses,
		PositiveClass:    DefaultPositiveClass,
	})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return a
}

func TestAggregatorTagsRecordsLandslideFirst(t *testing.T) {
	landslide := &scriptedDetector{script: [][]RawDetection{{positive()}}}
	vehicle := &scriptedDetector{script: [][]RawDetection{{car(), truck(), car()}}}
	a := newTestAggregator(t, landslide, vehicle)

	det, err := a.Run(context.Background(), Frame{}, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !det.LandslideDetected {
		t.Fatal("expected landslide detected")
	}

	expected := []struct {
		label    string
		category Category
	}{
		{"landslide", Landslide},
		{"car", Vehicle},
		{"truck", Vehicle},
		{"car", Vehicle},
	}
	if len(det.Batch) != len(expected) {
		t.Fatalf("expected %d records, got %d", len(expected), len(det.Batch))
	}
	for i, e := range expected {
		r := det.Batch[i]
		if r.Label != e.label || r.Category != e.category || r.Tick != 42 {
			t.Errorf("record %d: expected %s/%s@42, got %s/%s@%d", i, e.label, e.category, r.Label, r.Category, r.Tick)
		}
	}
	if det.Batch[0].Box != box(1) {
		t.Errorf("expected box to be carried over, got %+v", det.Batch[0].Box)
	}
	if det.Vehicles.Count("car") != 2 || det.Vehicles.Count("truck") != 1 {
		t.Errorf("expected car=2 truck=1, got %v", det.Vehicles.Map())
	}
}

func TestAggregatorIgnoresNonPositiveLandslideClasses(t *testing.T) {
	terrain := RawDetection{Box: box(3), ClassIndex: 0, Confidence: 0.99}
	a := newTestAggregator(t,
		&scriptedDetector{script: [][]RawDetection{{terrain}}},
		&scriptedDetector{},
	)

	det, err := a.Run(context.Background(), Frame{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if det.LandslideDetected {
		t.Fatal("terrain class must not count as landslide")
	}
	if len(det.Batch) != 1 || det.Batch[0].Label != "terrain" {
		t.Fatalf("expected terrain record, got %+v", det.Batch)
	}
	if !det.Vehicles.Empty() {
		t.Fatalf("expected no vehicles, got %v", det.Vehicles.Map())
	}
}

func TestAggregatorPropagatesDetectorFailure(t *testing.T) {
	backendDown := errors.New("backend unavailable")
	vehicle := &scriptedDetector{}
	a := newTestAggregator(t, &scriptedDetector{err: backendDown}, vehicle)

	_, err := a.Run(context.Background(), Frame{}, 0)
	var detErr *DetectorError
	if !errors.As(err, &detErr) {
		t.Fatalf("expected DetectorError, got %v", err)
	}
	if detErr.Detector != "landslide" || !errors.Is(err, backendDown) {
		t.Fatalf("expected landslide failure wrapping backend error, got %v", err)
	}
	if vehicle.calls != 0 {
		t.Fatalf("vehicle detector must not run after landslide failure, ran %d times", vehicle.calls)
	}
}

func TestAggregatorFailsOnUnknownClassIndex(t *testing.T) {
	unknown := RawDetection{Box: box(1), ClassIndex: 7}
	a := newTestAggregator(t,
		&scriptedDetector{},
		&scriptedDetector{script: [][]RawDetection{{car(), unknown}}},
	)

	_, err := a.Run(context.Background(), Frame{}, 0)
	var labelErr *LabelResolutionError
	if !errors.As(err, &labelErr) {
		t.Fatalf("expected LabelResolutionError, got %v", err)
	}
	if labelErr.ClassIndex != 7 || labelErr.Size != len(vehicleClasses) {
		t.Fatalf("unexpected error details: %+v", labelErr)
	}
	var detErr *DetectorError
	if !errors.As(err, &detErr) || detErr.Detector != "vehicle" {
		t.Fatalf("expected vehicle DetectorError, got %v", err)
	}
}

func TestNewAggregatorValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  AggregatorConfig
	}{
		{"missing landslide", AggregatorConfig{Vehicle: &scriptedDetector{}, LandslideClasses: landslideClasses, PositiveClass: 1}},
		{"missing vehicle", AggregatorConfig{Landslide: &scriptedDetector{}, LandslideClasses: landslideClasses, PositiveClass: 1}},
		{"positive class out of range", AggregatorConfig{Landslide: &scriptedDetector{}, Vehicle: &scriptedDetector{}, LandslideClasses: landslideClasses, PositiveClass: 2}},
	}
	for _, tt := range tests {
		_, err := NewAggregator(tt.cfg)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%s: expected ConfigError, got %v", tt.name, err)
		}
	}
}

func TestClassNamesResolve(t *testing.T) {
	names := ClassNames{"car", "", "bus"}
	if label, err := names.Resolve(2); err != nil || label != "bus" {
		t.Fatalf("expected bus, got %q (%v)", label, err)
	}
	for _, idx := range []int{-1, 1, 3} {
		if _, err := names.Resolve(idx); err == nil {
			t.Errorf("expected error for index %d", idx)
		}
	}
}

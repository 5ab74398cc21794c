package ai

import (
	"testing"
)

// head builds a [channels, anchors] output from per-anchor rows.
func head(channels int, anchors ...[]float32) []float32 {
	data := make([]float32, channels*len(anchors))
	for a, values := range anchors {
		for c, v := range values {
			data[c*len(anchors)+a] = v
		}
	}
	return data
}

func TestDecodeOutputPicksBestClass(t *testing.T) {
	data := head(6,
		[]float32{100, 100, 40, 20, 0.2, 0.9},
		[]float32{300, 300, 50, 50, 0.3, 0.1},
	)
	layout := outputLayout{channels: 6, anchors: 2}
	g := geometry{scaleX: 2, scaleY: 1, width: 1280, height: 640}

	got, err := decodeOutput(data, layout, g, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	c := got[0]
	if c.class != 1 {
		t.Errorf("expected class 1, got %d", c.class)
	}
	if c.rect.Min.X != 160 || c.rect.Min.Y != 90 || c.rect.Max.X != 240 || c.rect.Max.Y != 110 {
		t.Errorf("unexpected rect %v", c.rect)
	}

	raw := c.raw()
	if raw.ClassIndex != 1 || raw.Box.X1 != 160 || raw.Box.Y2 != 110 {
		t.Errorf("unexpected raw detection %+v", raw)
	}
}

func TestDecodeOutputClampsToFrame(t *testing.T) {
	data := head(5, []float32{10, 10, 40, 40, 0.8})
	got, err := decodeOutput(data, outputLayout{channels: 5, anchors: 1}, geometry{scaleX: 1, scaleY: 1, width: 100, height: 100}, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].rect.Min.X != 0 || got[0].rect.Min.Y != 0 || got[0].rect.Max.X != 30 {
		t.Errorf("expected clamped rect, got %v", got[0].rect)
	}
}

func TestDecodeOutputTransposed(t *testing.T) {
	data := []float32{
		50, 50, 20, 20, 0.1, 0.7,
		80, 80, 10, 10, 0.6, 0.2,
	}
	layout := outputLayout{channels: 6, anchors: 2, transposed: true}
	got, err := decodeOutput(data, layout, geometry{scaleX: 1, scaleY: 1, width: 200, height: 200}, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].class != 1 || got[1].class != 0 {
		t.Fatalf("unexpected candidates %+v", got)
	}
}

func TestDecodeOutputRejectsShortData(t *testing.T) {
	if _, err := decodeOutput(make([]float32, 3), outputLayout{channels: 6, anchors: 2}, geometry{}, 0.5); err == nil {
		t.Fatal("expected error for short output")
	}
	if _, err := decodeOutput(nil, outputLayout{channels: 4, anchors: 0}, geometry{}, 0.5); err == nil {
		t.Fatal("expected error for head without class scores")
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH int
		expW, expH       int
	}{
		{1920, 1080, 960, 540, 960, 540},
		{1024, 1024, 960, 540, 540, 540},
		{640, 480, 960, 540, 640, 480},
		{4000, 1000, 960, 540, 960, 240},
		{800, 600, 0, 0, 800, 600},
	}
	for _, tt := range tests {
		w, h := FitWithin(tt.w, tt.h, tt.maxW, tt.maxH)
		if w != tt.expW || h != tt.expH {
			t.Errorf("FitWithin(%d, %d, %d, %d) = %dx%d, expected %dx%d", tt.w, tt.h, tt.maxW, tt.maxH, w, h, tt.expW, tt.expH)
		}
	}
}

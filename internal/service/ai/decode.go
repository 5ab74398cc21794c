package ai

import (
	"fmt"
	"image"

	"landslidewatch/internal/service/pipeline"
)

// outputLayout describes a YOLO head of shape [1, channels, anchors], where
// channels is 4 box values followed by one score per class. Transposed heads
// are [1, anchors, channels].
type outputLayout struct {
	channels   int
	anchors    int
	transposed bool
}

func (l outputLayout) at(data []float32, channel, anchor int) float32 {
	if l.transposed {
		return data[anchor*l.channels+channel]
	}
	return data[channel*l.anchors+anchor]
}

// geometry maps network input coordinates back to the source frame.
type geometry struct {
	scaleX, scaleY float64
	width, height  int
}

type candidate struct {
	rect  image.Rectangle
	class int
	score float32
}

func (c candidate) raw() pipeline.RawDetection {
	return pipeline.RawDetection{
		Box: pipeline.BoundingBox{
			X1: c.rect.Min.X,
			Y1: c.rect.Min.Y,
			X2: c.rect.Max.X,
			Y2: c.rect.Max.Y,
		},
		ClassIndex: c.class,
		Confidence: float64(c.score),
	}
}

// decodeOutput turns the raw head into candidates whose best class score is
// at least threshold. Boxes are clamped to the frame.
func decodeOutput(data []float32, layout outputLayout, g geometry, threshold float32) ([]candidate, error) {
	if layout.channels <= 4 {
		return nil, fmt.Errorf("output has %d channels, need at least 5", layout.channels)
	}
	if len(data) < layout.channels*layout.anchors {
		return nil, fmt.Errorf("output has %d values, expected %d", len(data), layout.channels*layout.anchors)
	}

	bounds := image.Rect(0, 0, g.width, g.height)
	var out []candidate
	for a := 0; a < layout.anchors; a++ {
		best, class := float32(0), -1
		for c := 4; c < layout.channels; c++ {
			if s := layout.at(data, c, a); s > best {
				best, class = s, c-4
			}
		}
		if class < 0 || best < threshold {
			continue
		}

		cx := float64(layout.at(data, 0, a))
		cy := float64(layout.at(data, 1, a))
		w := float64(layout.at(data, 2, a))
		h := float64(layout.at(data, 3, a))

		rect := image.Rect(
			int((cx-w/2)*g.scaleX),
			int((cy-h/2)*g.scaleY),
			int((cx+w/2)*g.scaleX),
			int((cy+h/2)*g.scaleY),
		).Intersect(bounds)
		if rect.Empty() {
			continue
		}

		out = append(out, candidate{rect: rect, class: class, score: best})
	}
	return out, nil
}

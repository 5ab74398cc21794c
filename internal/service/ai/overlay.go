package ai

import (
	"fmt"
	"image"
	"image/color"

	"landslidewatch/internal/service/pipeline"

	"gocv.io/x/gocv"
)

var (
	landslideColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	vehicleColor   = color.RGBA{R: 0, G: 0, B: 255, A: 0}
)

// DrawOverlay draws records on a JPEG image, shrinks the result to fit
// maxWidth x maxHeight and returns it re-encoded as JPEG. Non-positive limits
// disable scaling.
func DrawOverlay(img []byte, records []pipeline.DetectionRecord, maxWidth, maxHeight int) ([]byte, error) {
	mat, err := gocv.IMDecode(img, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	for _, r := range records {
		c := vehicleColor
		if r.Category == pipeline.Landslide {
			c = landslideColor
		}

		rect := image.Rect(r.Box.X1, r.Box.Y1, r.Box.X2, r.Box.Y2)
		if err := gocv.Rectangle(&mat, rect, c, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}
		if err := gocv.PutText(&mat, r.Label, image.Pt(r.Box.X1, r.Box.Y1-10), gocv.FontHersheySimplex, 0.9, c, 2); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	out := mat
	w, h := FitWithin(mat.Cols(), mat.Rows(), maxWidth, maxHeight)
	if w != mat.Cols() || h != mat.Rows() {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
		out = resized
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	encoded := make([]byte, len(buf.GetBytes()))
	copy(encoded, buf.GetBytes())
	return encoded, nil
}

// FitWithin scales width x height down, keeping the aspect ratio, so it fits
// maxWidth x maxHeight. Images that already fit are returned unchanged.
func FitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if maxWidth <= 0 || maxHeight <= 0 || width <= 0 || height <= 0 {
		return width, height
	}
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}

	scale := float64(maxWidth) / float64(width)
	if s := float64(maxHeight) / float64(height); s < scale {
		scale = s
	}
	w := int(float64(width) * scale)
	h := int(float64(height) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

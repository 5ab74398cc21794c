package model

import "time"

// Detection is one labelled box from a detection tick. ImageID is set once a
// snapshot of the tick has been flushed to disk.
type Detection struct {
	ID        int64     `json:"id"`
	ImageID   *int64    `json:"image_id,omitempty"`
	Tick      int       `json:"tick"`
	Category  string    `json:"category"`
	Label     string    `json:"label"`
	X1        int       `json:"x1"`
	Y1        int       `json:"y1"`
	X2        int       `json:"x2"`
	Y2        int       `json:"y2"`
	CreatedAt time.Time `json:"created_at"`
}

// DetectionFilter contains filtering options for querying detections.
type DetectionFilter struct {
	Category string
	Label    string
	Limit    int
}

package model

import "time"

// Image is a snapshot written to disk when an alert fires.
type Image struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Source    string    `json:"source"`
	Tick      int       `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
	FilePath  string    `json:"filepath"`
	FileSize  int64     `json:"filesize"`
}

// ImageFilter contains filtering options for querying images.
type ImageFilter struct {
	Source string
	Since  time.Time
	Limit  int
	Offset int
}

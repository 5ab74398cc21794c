package model

import "time"

// Alert records the outcome of the session's alert attempt.
type Alert struct {
	ID        int64     `json:"id"`
	Tick      int       `json:"tick"`
	Message   string    `json:"message"`
	Sent      bool      `json:"sent"`
	Error     string    `json:"error,omitempty"`
	ImageID   *int64    `json:"image_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

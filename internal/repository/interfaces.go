package repository

import (
	"landslidewatch/internal/model"
)

// ImageRepository defines the interface for snapshot image operations.
type ImageRepository interface {
	// Create operations
	Insert(img *model.Image) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Image, error)
	GetByFilename(filename string) (*model.Image, error)
	GetAll(filter *model.ImageFilter) ([]model.Image, error)

	// Delete operations
	Delete(id int64) error
}

// DetectionRepository defines the interface for detection record operations.
type DetectionRepository interface {
	// Create operations
	InsertBatch(detections []model.Detection) ([]int64, error)

	// Update operations
	AttachImage(detectionIDs []int64, imageID int64) (int64, error)

	// Read operations
	GetByTick(tick int) ([]model.Detection, error)
	GetByImageID(imageID int64) ([]model.Detection, error)
	GetRecent(filter *model.DetectionFilter) ([]model.Detection, error)
	CountByLabel(category string) (map[string]int, error)
}

// AlertRepository defines the interface for alert record operations.
type AlertRepository interface {
	Insert(alert *model.Alert) (int64, error)
	AttachImage(alertID, imageID int64) error
	GetAll(limit int) ([]model.Alert, error)
	GetLatest() (*model.Alert, error)
}

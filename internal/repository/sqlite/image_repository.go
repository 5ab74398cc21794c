package sqlite

import (
	"database/sql"
	"fmt"

	"landslidewatch/internal/model"
)

// ImageRepository implements repository.ImageRepository for SQLite.
type ImageRepository struct {
	db *DB
}

// NewImageRepository creates a new SQLite image repository.
func NewImageRepository(db *DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Insert adds a new image record to the database.
func (r *ImageRepository) Insert(img *model.Image) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO images (filename, source, tick, timestamp, filepath, filesize)
		VALUES (?, ?, ?, ?, ?, ?)
	`, img.Filename, img.Source, img.Tick, img.Timestamp, img.FilePath, img.FileSize)
	if err != nil {
		return 0, fmt.Errorf("failed to insert image: %w", err)
	}

	return result.LastInsertId()
}

// GetByID retrieves an image by its ID. A missing image is (nil, nil).
func (r *ImageRepository) GetByID(id int64) (*model.Image, error) {
	return r.getOne(`WHERE id = ?`, id)
}

// GetByFilename retrieves an image by its filename. A missing image is (nil, nil).
func (r *ImageRepository) GetByFilename(filename string) (*model.Image, error) {
	return r.getOne(`WHERE filename = ?`, filename)
}

func (r *ImageRepository) getOne(where string, arg interface{}) (*model.Image, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var img model.Image
	err := r.db.Conn().QueryRow(`
		SELECT id, filename, source, tick, timestamp, filepath, filesize
		FROM images `+where, arg).Scan(&img.ID, &img.Filename, &img.Source, &img.Tick, &img.Timestamp, &img.FilePath, &img.FileSize)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return &img, nil
}

// GetAll retrieves images, newest first.
func (r *ImageRepository) GetAll(filter *model.ImageFilter) ([]model.Image, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT id, filename, source, tick, timestamp, filepath, filesize
		FROM images
		WHERE 1=1
	`
	args := []interface{}{}

	if filter != nil && filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}

	if filter != nil && !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since)
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []model.Image
	for rows.Next() {
		var img model.Image
		if err := rows.Scan(&img.ID, &img.Filename, &img.Source, &img.Tick, &img.Timestamp, &img.FilePath, &img.FileSize); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}

	return images, rows.Err()
}

// Delete removes an image. Detections and alerts pointing to it keep their
// rows with the image reference cleared.
func (r *ImageRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM images WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

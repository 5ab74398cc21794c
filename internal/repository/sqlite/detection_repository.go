package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"landslidewatch/internal/model"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

const detectionColumns = `id, image_id, tick, category, label, x1, y1, x2, y2, created_at`

// InsertBatch adds the records of one tick in a single transaction and
// returns their row IDs in input order.
func (r *DetectionRepository) InsertBatch(detections []model.Detection) ([]int64, error) {
	if len(detections) == 0 {
		return nil, nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO detections (image_id, tick, category, label, x1, y1, x2, y2, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(detections))
	for _, det := range detections {
		result, err := stmt.Exec(nullableID(det.ImageID), det.Tick, det.Category, det.Label, det.X1, det.Y1, det.X2, det.Y2, det.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert detection: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get detection id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit detections: %w", err)
	}
	return ids, nil
}

// AttachImage links the detections with the given IDs that have no image yet
// to imageID and returns how many rows changed.
func (r *DetectionRepository) AttachImage(detectionIDs []int64, imageID int64) (int64, error) {
	if len(detectionIDs) == 0 {
		return 0, nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	args := make([]interface{}, 0, len(detectionIDs)+1)
	args = append(args, imageID)
	for _, id := range detectionIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(detectionIDs)), ",")

	result, err := r.db.Conn().Exec(`UPDATE detections SET image_id = ? WHERE image_id IS NULL AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to attach image: %w", err)
	}
	return result.RowsAffected()
}

// GetByTick retrieves the detections of one tick in insertion order.
func (r *DetectionRepository) GetByTick(tick int) ([]model.Detection, error) {
	return r.query(`SELECT `+detectionColumns+` FROM detections WHERE tick = ? ORDER BY id`, tick)
}

// GetByImageID retrieves all detections attached to an image.
func (r *DetectionRepository) GetByImageID(imageID int64) ([]model.Detection, error) {
	return r.query(`SELECT `+detectionColumns+` FROM detections WHERE image_id = ? ORDER BY id`, imageID)
}

// GetRecent retrieves the newest detections matching filter.
func (r *DetectionRepository) GetRecent(filter *model.DetectionFilter) ([]model.Detection, error) {
	query := `SELECT ` + detectionColumns + ` FROM detections WHERE 1=1`
	args := []interface{}{}

	if filter != nil && filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter != nil && filter.Label != "" {
		query += " AND label = ?"
		args = append(args, filter.Label)
	}

	query += " ORDER BY id DESC"

	limit := 100
	if filter != nil && filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " LIMIT ?"
	args = append(args, limit)

	return r.query(query, args...)
}

// CountByLabel returns how often each label of category was detected.
func (r *DetectionRepository) CountByLabel(category string) (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT label, COUNT(*) FROM detections WHERE category = ? GROUP BY label`, category)
	if err != nil {
		return nil, fmt.Errorf("failed to count detections: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

func (r *DetectionRepository) query(query string, args ...interface{}) ([]model.Detection, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []model.Detection
	for rows.Next() {
		var det model.Detection
		var imageID sql.NullInt64
		if err := rows.Scan(&det.ID, &imageID, &det.Tick, &det.Category, &det.Label, &det.X1, &det.Y1, &det.X2, &det.Y2, &det.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		det.ImageID = idPointer(imageID)
		detections = append(detections, det)
	}

	return detections, rows.Err()
}

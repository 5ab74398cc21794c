package sqlite

import (
	"database/sql"
	"fmt"

	"landslidewatch/internal/model"
)

// AlertRepository implements repository.AlertRepository for SQLite.
type AlertRepository struct {
	db *DB
}

func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Insert(alert *model.Alert) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO alerts (tick, message, sent, error, image_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, alert.Tick, alert.Message, alert.Sent, alert.Error, nullableID(alert.ImageID), alert.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}

	return result.LastInsertId()
}

// AttachImage records the snapshot taken for an alert.
func (r *AlertRepository) AttachImage(alertID, imageID int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`UPDATE alerts SET image_id = ? WHERE id = ?`, imageID, alertID); err != nil {
		return fmt.Errorf("failed to attach image to alert: %w", err)
	}
	return nil
}

// GetAll returns alerts newest first. A non-positive limit returns all.
func (r *AlertRepository) GetAll(limit int) ([]model.Alert, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `SELECT id, tick, message, sent, error, image_id, created_at FROM alerts ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

// GetLatest returns the newest alert, or (nil, nil) when none was recorded.
func (r *AlertRepository) GetLatest() (*model.Alert, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT id, tick, message, sent, error, image_id, created_at FROM alerts ORDER BY id DESC LIMIT 1`)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return alert, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(s scanner) (*model.Alert, error) {
	var alert model.Alert
	var imageID sql.NullInt64
	if err := s.Scan(&alert.ID, &alert.Tick, &alert.Message, &alert.Sent, &alert.Error, &imageID, &alert.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	alert.ImageID = idPointer(imageID)
	return &alert, nil
}

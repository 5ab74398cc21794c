package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"landslidewatch/internal/logger"
	"landslidewatch/internal/model"
	"landslidewatch/internal/repository"
	"landslidewatch/internal/service/pipeline"
)

// StatusProvider exposes the live pipeline status.
type StatusProvider interface {
	Status() pipeline.Status
}

// StatusHandler serves GET /api/status.
func StatusHandler(p StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, p.Status())
	}
}

// AlertsHandler serves GET /api/alerts?limit=N, newest first.
func AlertsHandler(alerts repository.AlertRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		list, err := alerts.GetAll(atoiDefault(r.URL.Query().Get("limit"), 20))
		if err != nil {
			logger.Error("Failed to list alerts: %v", err)
			http.Error(w, "Failed to list alerts", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []model.Alert{}
		}
		writeJSON(w, list)
	}
}

// DetectionsHandler serves GET /api/detections. With image_id it lists the
// detections drawn on one snapshot, with tick those of one tick, otherwise
// the newest ones matching category, label and limit.
func DetectionsHandler(detections repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()

		var list []model.Detection
		var err error
		switch {
		case q.Get("image_id") != "":
			id, perr := strconv.ParseInt(q.Get("image_id"), 10, 64)
			if perr != nil {
				http.Error(w, "Invalid image_id", http.StatusBadRequest)
				return
			}
			list, err = detections.GetByImageID(id)
		case q.Get("tick") != "":
			tick, perr := strconv.Atoi(q.Get("tick"))
			if perr != nil || tick < 0 {
				http.Error(w, "Invalid tick", http.StatusBadRequest)
				return
			}
			list, err = detections.GetByTick(tick)
		default:
			list, err = detections.GetRecent(&model.DetectionFilter{
				Category: q.Get("category"),
				Label:    q.Get("label"),
				Limit:    atoiDefault(q.Get("limit"), 100),
			})
		}
		if err != nil {
			logger.Error("Failed to list detections: %v", err)
			http.Error(w, "Failed to list detections", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []model.Detection{}
		}
		writeJSON(w, list)
	}
}

// DetectionStatsHandler serves GET /api/detections/stats?category=vehicle with
// the number of detections per label.
func DetectionStatsHandler(detections repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		category := r.URL.Query().Get("category")
		if category == "" {
			category = "vehicle"
		}
		counts, err := detections.CountByLabel(category)
		if err != nil {
			logger.Error("Failed to count detections: %v", err)
			http.Error(w, "Failed to count detections", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{
			"category": category,
			"counts":   counts,
		})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(v)
}

// atoiDefault parses a positive integer, falling back to def.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

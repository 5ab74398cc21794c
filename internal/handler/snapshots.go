package handler

import (
	"net/http"
	"os"
	"strconv"

	"landslidewatch/internal/logger"
	"landslidewatch/internal/model"
	"landslidewatch/internal/repository"
)

// SnapshotsHandler serves GET /api/snapshots?source=&limit=&page=, newest first.
func SnapshotsHandler(images repository.ImageRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		list, err := images.GetAll(&model.ImageFilter{
			Source: q.Get("source"),
			Limit:  limit,
			Offset: (page - 1) * limit,
		})
		if err != nil {
			logger.Error("Error querying snapshots: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []model.Image{}
		}
		writeJSON(w, list)
	}
}

// ViewSnapshotHandler serves the JPEG of one snapshot, chosen by ?id= or ?name=.
func ViewSnapshotHandler(images repository.ImageRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img, ok := lookupSnapshot(w, r, images, logger)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, img.FilePath)
	}
}

// DeleteSnapshotHandler removes a snapshot from disk and database on POST.
// Detections and the alert keep their rows.
func DeleteSnapshotHandler(images repository.ImageRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		img, ok := lookupSnapshot(w, r, images, logger)
		if !ok {
			return
		}

		if err := os.Remove(img.FilePath); err != nil && !os.IsNotExist(err) {
			logger.Error("Error deleting snapshot file %s: %v", img.Filename, err)
			http.Error(w, "Failed to delete snapshot", http.StatusInternalServerError)
			return
		}
		if err := images.Delete(img.ID); err != nil {
			logger.Error("Error deleting snapshot %d from database: %v", img.ID, err)
			http.Error(w, "Failed to delete snapshot", http.StatusInternalServerError)
			return
		}

		logger.Info("Deleted snapshot: %s", img.Filename)
		w.WriteHeader(http.StatusNoContent)
	}
}

func lookupSnapshot(w http.ResponseWriter, r *http.Request, images repository.ImageRepository, logger *logger.Logger) (*model.Image, bool) {
	q := r.URL.Query()

	var img *model.Image
	var err error
	switch {
	case q.Get("id") != "":
		id, perr := strconv.ParseInt(q.Get("id"), 10, 64)
		if perr != nil {
			http.Error(w, "Invalid id", http.StatusBadRequest)
			return nil, false
		}
		img, err = images.GetByID(id)
	case q.Get("name") != "":
		img, err = images.GetByFilename(q.Get("name"))
	default:
		http.Error(w, "id or name is required", http.StatusBadRequest)
		return nil, false
	}

	if err != nil {
		logger.Error("Error looking up snapshot: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	if img == nil {
		http.NotFound(w, r)
		return nil, false
	}
	return img, true
}

package routes

import (
	"net/http"

	"landslidewatch/internal/config"
	"landslidewatch/internal/handler"
	"landslidewatch/internal/logger"
	"landslidewatch/internal/middleware"
	"landslidewatch/internal/repository"
	"landslidewatch/internal/service/websocket"
)

// Deps are the services the HTTP surface reads from.
type Deps struct {
	Status     handler.StatusProvider
	Hub        *websocket.HubService
	Alerts     repository.AlertRepository
	Detections repository.DetectionRepository
	Images     repository.ImageRepository
}

// SetupRoutes registers the viewer, API and log endpoints and wraps the mux
// with the token middleware.
func SetupRoutes(deps Deps, cfg *config.Config, l *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(deps.Hub, l))
	mux.HandleFunc("/api/status", handler.StatusHandler(deps.Status))
	mux.HandleFunc("/api/alerts", handler.AlertsHandler(deps.Alerts, l))
	mux.HandleFunc("/api/detections", handler.DetectionsHandler(deps.Detections, l))
	mux.HandleFunc("/api/detections/stats", handler.DetectionStatsHandler(deps.Detections, l))
	mux.HandleFunc("/api/snapshots", handler.SnapshotsHandler(deps.Images, l))
	mux.HandleFunc("/api/snapshots/view", handler.ViewSnapshotHandler(deps.Images, l))
	mux.HandleFunc("/api/snapshots/delete", handler.DeleteSnapshotHandler(deps.Images, l))

	// Log endpoints
	for level, file := range map[string]string{
		"info":    logger.InfoFile,
		"warning": logger.WarningFile,
		"error":   logger.ErrorFile,
	} {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(l, file))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(l, file))
	}

	// Viewer page
	mux.Handle("/", http.FileServer(http.Dir(cfg.ViewerStaticFiles)))

	return middleware.TokenMiddleware(cfg.ViewerToken, mux)
}

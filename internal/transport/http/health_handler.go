package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// StatsProvider reports runtime counters, such as the websocket hub's.
type StatsProvider interface {
	Stats() map[string]any
}

// StorageInfo describes the active storage backend.
type StorageInfo interface {
	Backend() string
	Degraded() bool
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status      string         `json:"status"`
	Version     string         `json:"version"`
	Uptime      string         `json:"uptime"`
	Storage     StorageHealth  `json:"storage"`
	Entitlement string         `json:"entitlement,omitempty"`
	WebSocket   map[string]any `json:"websocket,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// StorageHealth is the storage part of HealthResponse.
type StorageHealth struct {
	Backend  string `json:"backend"`
	Degraded bool   `json:"degraded"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	version   string
	startedAt time.Time
	service   LicenseService
	storage   StorageInfo
	hub       StatsProvider
	logger    *slog.Logger
}

// NewHealthHandler creates a new health handler. hub may be nil.
func NewHealthHandler(version string, service LicenseService, storage StorageInfo, hub StatsProvider, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startedAt: time.Now(),
		service:   service,
		storage:   storage,
		hub:       hub,
		logger:    logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /healthz. A degraded storage backend still
// answers 200 so the UI keeps working from memory.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}

	if h.storage != nil {
		resp.Storage = StorageHealth{Backend: h.storage.Backend(), Degraded: h.storage.Degraded()}
		if resp.Storage.Degraded {
			resp.Status = "degraded"
		}
	}
	if h.hub != nil {
		resp.WebSocket = h.hub.Stats()
	}

	status, err := h.service.GetStatus(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "health check could not evaluate entitlement",
			slog.String("error", err.Error()))
		resp.Status = "degraded"
	} else {
		resp.Entitlement = string(status.State)
	}

	render.JSON(w, r, resp)
}

package websocket

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"sellerlicense/internal/config"
	"sellerlicense/internal/infrastructure"
)

// Handler upgrades HTTP requests and attaches the connection to a Hub.
type Handler struct {
	hub            *Hub
	cfg            config.WebSocketConfig
	allowedOrigins []string
	upgrader       websocket.Upgrader
	logger         *slog.Logger
}

// NewHandler creates the upgrade handler. An empty allowedOrigins list
// or a "*" entry accepts any origin.
func NewHandler(hub *Hub, cfg config.WebSocketConfig, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	h := &Handler{
		hub:            hub,
		cfg:            cfg,
		allowedOrigins: allowedOrigins,
		logger:         logger.With(slog.String("component", "websocket.handler")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			h.logger.ErrorContext(r.Context(), "WebSocket upgrade error",
				slog.Int("status", status),
				slog.String("reason", reason.Error()),
				slog.String("origin", r.Header.Get("Origin")))
			http.Error(w, http.StatusText(status), status)
		},
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Allow if no origin (local file or same-origin request)
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 || slices.Contains(h.allowedOrigins, "*") {
		return true
	}
	if slices.Contains(h.allowedOrigins, origin) {
		return true
	}

	h.logger.WarnContext(r.Context(), "WebSocket origin check - origin not allowed",
		slog.String("origin", origin),
		slog.Any("allowed_origins", h.allowedOrigins))
	return false
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied through the Error callback
		return
	}

	traceID := infrastructure.GetTraceID(ctx)
	client := NewClient(h.hub, NewConnectionWrapper(conn), traceID, h.cfg.PingPeriod, h.cfg.PongWait, h.logger)
	h.hub.Register(client)

	h.logger.InfoContext(ctx, "WebSocket client connected",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("client_id", client.ID()))

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("WebSocket write pump panic",
					slog.Any("panic", rec),
					slog.String("client_id", client.ID()))
			}
		}()
		client.WritePump()
	}()
	go client.ReadPump()
}

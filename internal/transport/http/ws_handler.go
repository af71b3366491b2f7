package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	ws "trendscli/internal/websocket"
)

// WSHandler upgrades HTTP connections to WebSocket and hands them to the hub,
// which streams run status events to every connected client.
type WSHandler struct {
	hub      *ws.Hub
	origins  []string
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WebSocket upgrade handler. Origins are matched
// against the Origin header; connections without one (curl, native clients)
// are always accepted.
func NewWSHandler(hub *ws.Hub, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &WSHandler{
		hub:     hub,
		origins: allowedOrigins,
		logger:  logger.With(slog.String("handler", "websocket")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			h.logger.Error("websocket upgrade rejected",
				slog.Int("status", status),
				slog.String("reason", reason.Error()),
				slog.String("remote_addr", r.RemoteAddr),
			)
			http.Error(w, http.StatusText(status), status)
		},
	}
	return h
}

// Handle upgrades the request and registers the connection with the hub.
func (h *WSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader.Error already wrote the response.
		return
	}

	ws.ServeWS(h.hub, conn)

	h.logger.Info("websocket client connected",
		slog.String("remote_addr", conn.RemoteAddr().String()),
		slog.Int("client_count", h.hub.ClientCount()),
	)
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
	return false
}

// Package websocket fans the run progress stream out to connected
// clients. A single Hub goroutine owns the client set; clients that
// cannot keep up with the broadcast rate are evicted rather than
// allowed to stall everyone else.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"trendscli/internal/infrastructure"
	"trendscli/pkg/contracts/events"
)

// broadcastBuffer bounds how many frames can queue for the hub loop.
// Publish drops frames once it is full so a stalled hub never blocks
// the run engine.
const broadcastBuffer = 256

// Hub maintains the set of active clients and broadcasts run events to
// them.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections int64
	messagesSent     int64
	messagesDropped  int64

	quit    chan struct{}
	running bool
}

// NewHub creates a hub. Start must be called before clients connect.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		quit:       make(chan struct{}),
	}
}

// Start launches the hub loop. Calling Start on a running hub is a
// no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.send(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.totalConnections++
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client registered",
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr),
		slog.Int("total_clients", count))

	greeting, err := json.Marshal(events.Envelope{
		Type: events.EventConnect,
		Data: events.ConnectionData{
			Status:   "connected",
			ClientID: client.id,
			Message:  "connected to run progress stream",
		},
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}
	select {
	case client.send <- greeting:
	default:
		h.logger.Warn("greeting dropped, client buffer full",
			slog.String("client_id", client.id))
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client unregistered",
		slog.String("client_id", client.id),
		slog.Duration("connection_duration", time.Since(client.connectedAt)),
		slog.Int("total_clients", count))
}

// send delivers one frame to every client, evicting any whose send
// buffer is full.
func (h *Hub) send(message []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	delivered := 0
	var evict []*Client
	for _, client := range targets {
		select {
		case client.send <- message:
			delivered++
		default:
			evict = append(evict, client)
		}
	}

	h.mu.Lock()
	h.messagesSent += int64(delivered)
	for _, client := range evict {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
	}
	h.mu.Unlock()

	for _, client := range evict {
		h.logger.Warn("client send buffer full, disconnecting",
			slog.String("client_id", client.id))
	}
}

// Publish broadcasts one run event to every connected client. It never
// blocks: when the hub is stopped or saturated the frame is dropped,
// keeping the run engine independent of client health.
func (h *Hub) Publish(eventType string, payload interface{}) {
	frame, err := json.Marshal(events.Envelope{
		Type:      events.EventType(eventType),
		Data:      payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Error("event marshal failed",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- frame:
	default:
		h.mu.Lock()
		h.messagesDropped++
		h.mu.Unlock()
		h.logger.Warn("broadcast queue full, event dropped",
			slog.String("event_type", eventType))
	}
}

// Register hands a new client to the hub loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats reports hub counters for the health endpoint.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_dropped":  h.messagesDropped,
	}
}

// Stop shuts the hub down and closes every client connection. Calling
// Stop on a stopped hub is a no-op.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

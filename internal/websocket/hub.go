package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"sellerlicense/internal/infrastructure"
	"sellerlicense/internal/license"
)

// Message types sent to clients besides the license event types.
const (
	TypeConnection = "connection"
)

// broadcastQueueSize bounds the hub queue. Publishers never block; a
// full queue drops the message.
const broadcastQueueSize = 64

// Envelope is the JSON frame written to every client.
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type outbound struct {
	msgType string
	data    []byte
}

// Hub maintains the set of active clients and broadcasts license events
// to them. The latest catalog and status frames are replayed to every
// newly registered client.
type Hub struct {
	// Registered clients, owned by Run
	clients map[*Client]bool

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	latest map[string][]byte
	order  []string

	logger  *slog.Logger
	metrics *Metrics

	totalConnections int64
	messagesSent     int64
	droppedMessages  int64
	activeClients    int

	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewHub creates a hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, broadcastQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		latest:     make(map[string][]byte),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop in a goroutine. It is a no-op when running.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Stop ends the hub loop and disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}

// Run is the hub's main loop. Use Start unless you manage the goroutine yourself.
func (h *Hub) Run() {
	defer close(h.done)
	ctx := context.Background()

	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.setActive(0)
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setActive(len(h.clients))
			h.mu.Lock()
			h.totalConnections++
			h.mu.Unlock()
			h.metrics.recordConnection(ctx)

			h.logger.InfoContext(clientContext(client), "Client registered",
				slog.Int("total_clients", len(h.clients)),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			h.greet(client)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; !ok {
				continue
			}
			delete(h.clients, client)
			close(client.send)
			h.setActive(len(h.clients))
			h.metrics.recordDisconnection(ctx, time.Since(client.connectedAt))

			h.logger.InfoContext(clientContext(client), "Client unregistered",
				slog.Int("total_clients", len(h.clients)),
				slog.String("client_id", client.id),
				slog.Duration("connection_duration", time.Since(client.connectedAt)))

		case msg := <-h.broadcast:
			sent := 0
			for client := range h.clients {
				select {
				case client.send <- msg.data:
					sent++
				default:
					// slow client, disconnect it
					close(client.send)
					delete(h.clients, client)
					h.metrics.recordDropped(ctx, "client_buffer_full")
					h.metrics.recordDisconnection(ctx, time.Since(client.connectedAt))
					h.logger.WarnContext(clientContext(client), "Client send buffer full, disconnecting",
						slog.String("client_id", client.id))
				}
			}
			h.setActive(len(h.clients))
			h.mu.Lock()
			h.messagesSent += int64(sent)
			h.mu.Unlock()
			h.metrics.recordSent(ctx, msg.msgType, sent)

			h.logger.Debug("Broadcast message to clients",
				slog.String("type", msg.msgType),
				slog.Int("client_count", sent),
				slog.Int("message_size", len(msg.data)))
		}
	}
}

// greet sends the connection frame followed by the latest license frames.
func (h *Hub) greet(client *Client) {
	frames := make([][]byte, 0, 3)
	if data, err := encode(TypeConnection, map[string]any{
		"status":    "connected",
		"client_id": client.id,
	}, time.Now()); err == nil {
		frames = append(frames, data)
	}

	h.mu.RLock()
	for _, msgType := range h.order {
		frames = append(frames, h.latest[msgType])
	}
	h.mu.RUnlock()

	for _, frame := range frames {
		select {
		case client.send <- frame:
		default:
			h.logger.WarnContext(clientContext(client), "Failed to send greeting - client buffer full",
				slog.String("client_id", client.id))
			return
		}
	}
}

// Listener returns a bus listener that forwards every event to clients.
func (h *Hub) Listener() license.Listener {
	return h.BroadcastEvent
}

// BroadcastEvent encodes e as an Envelope and queues it for all clients.
func (h *Hub) BroadcastEvent(e license.Event) {
	data, err := encode(string(e.Type), e.Payload(), e.Timestamp)
	if err != nil {
		h.logger.Error("Error marshaling license event",
			slog.String("type", string(e.Type)),
			slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	if _, seen := h.latest[string(e.Type)]; !seen {
		h.order = append(h.order, string(e.Type))
	}
	h.latest[string(e.Type)] = data
	h.mu.Unlock()

	h.enqueue(outbound{msgType: string(e.Type), data: data})
}

// Broadcast queues an arbitrary typed message for all clients.
func (h *Hub) Broadcast(msgType string, payload any) {
	data, err := encode(msgType, payload, time.Now())
	if err != nil {
		h.logger.Error("Error marshaling message",
			slog.String("type", msgType),
			slog.String("error", err.Error()))
		return
	}
	h.enqueue(outbound{msgType: msgType, data: data})
}

func (h *Hub) enqueue(msg outbound) {
	select {
	case h.broadcast <- msg:
	default:
		h.mu.Lock()
		h.droppedMessages++
		h.mu.Unlock()
		h.metrics.recordDropped(context.Background(), "hub_queue_full")
		h.logger.Warn("Broadcast queue full, dropping message",
			slog.String("type", msg.msgType))
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.activeClients
}

// Stats returns counters for the health endpoint.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]any{
		"active_clients":    h.activeClients,
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"dropped_messages":  h.droppedMessages,
	}
}

func (h *Hub) setActive(n int) {
	h.mu.Lock()
	h.activeClients = n
	h.mu.Unlock()
}

func encode(msgType string, payload any, ts time.Time) ([]byte, error) {
	if ts.IsZero() {
		ts = time.Now()
	}
	return json.Marshal(Envelope{Type: msgType, Data: payload, Timestamp: ts.UTC()})
}

func clientContext(c *Client) context.Context {
	ctx := context.Background()
	if c.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, c.traceID)
	}
	return ctx
}

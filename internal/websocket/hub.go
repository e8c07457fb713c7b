package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"foodpulse/internal/infrastructure"
	"foodpulse/internal/pipeline"
)

// Message types sent to clients
const (
	TypeConnection       = "connection"
	TypePipelineSnapshot = "pipeline:snapshot"
)

const broadcastBuffer = 64

// Hub maintains the set of active clients and broadcasts pipeline snapshots
// to them. It implements pipeline.Notifier.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	// last snapshot message, replayed to clients on connect
	latest []byte

	quit    chan struct{}
	running bool
}

// NewHub creates a hub; call Start before serving clients
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
		quit:       make(chan struct{}),
	}
}

// Start runs the hub loop in the background. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

// Stop ends the hub loop and disconnects every client
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			latest := h.latest
			h.mu.Unlock()

			ctx := infrastructure.WithTraceID(context.Background(), client.traceID)
			h.logger.InfoContext(ctx, "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			h.sendTo(ctx, client, h.connectionMessage(client))
			if latest != nil {
				h.sendTo(ctx, client, latest)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.Info("Client unregistered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.Duration("connection_duration", time.Since(client.connectedAt)))

		case message := <-h.broadcast:
			h.mu.Lock()
			failed := 0
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// send buffer full, drop the client
					close(client.send)
					delete(h.clients, client)
					failed++
				}
			}
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.Debug("Broadcast message",
				slog.Int("client_count", count),
				slog.Int("message_size", len(message)))
			if failed > 0 {
				h.logger.Warn("Dropped clients with full send buffers", slog.Int("fail_count", failed))
			}
		}
	}
}

func (h *Hub) connectionMessage(client *Client) []byte {
	data, _ := json.Marshal(map[string]any{
		"type": TypeConnection,
		"data": map[string]any{
			"status":    "connected",
			"client_id": client.id,
		},
		"timestamp": time.Now().Format(time.RFC3339),
		"trace_id":  client.traceID,
	})
	return data
}

func (h *Hub) sendTo(ctx context.Context, client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		h.logger.WarnContext(ctx, "Client buffer full, message not sent",
			slog.String("client_id", client.id))
	}
}

// Notify broadcasts a pipeline snapshot. It never blocks the run: when the
// broadcast queue is full the snapshot is dropped, and the next one carries
// the full state anyway.
func (h *Hub) Notify(ctx context.Context, snapshot pipeline.Snapshot) {
	message := map[string]any{
		"type":      TypePipelineSnapshot,
		"data":      snapshot,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		message["trace_id"] = traceID
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error marshaling snapshot",
			slog.String("run_id", snapshot.RunID),
			slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	h.latest = data
	h.mu.Unlock()

	select {
	case h.broadcast <- data:
	default:
		h.logger.WarnContext(ctx, "Broadcast queue full, snapshot dropped",
			slog.String("run_id", snapshot.RunID),
			slog.Int("progress", snapshot.Progress))
	}
}

var _ pipeline.Notifier = (*Hub)(nil)

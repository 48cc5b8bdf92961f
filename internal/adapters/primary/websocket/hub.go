package websocket

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/openmuni/pulse-backend/internal/core/domain"
	"github.com/openmuni/pulse-backend/internal/core/ports"
)

// Hub maintains the set of active Clients and fans published frames out to
// the sessions in each frame's audience.
type Hub struct {
	// clients maps user IDs to their active connections
	// A single user can have multiple connections (multiple tabs/devices)
	clients map[uuid.UUID]map[*Client]bool

	// Broadcast channel for frames
	broadcast chan domain.Frame

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// mu protects the clients map
	mu sync.RWMutex

	// delivery counters, read by the metrics collector
	published atomic.Uint64
	dropped   atomic.Uint64

	// logger for the hub
	logger *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan domain.Frame, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast queues a frame for delivery to its audience.
// This method implements the ports.EventBroadcaster interface.
func (h *Hub) Broadcast(frame domain.Frame) error {
	select {
	case h.broadcast <- frame:
		return nil
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast channel full, dropping frame",
			"event_type", frame.Type,
			"audience", frame.Audience,
		)
		return nil
	}
}

// Run starts the hub's event loop. This MUST be run as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case frame := <-h.broadcast:
			h.broadcastFrame(frame)
		}
	}
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true

	h.logger.Info("client registered",
		"user_id", client.UserID,
		"role", client.Role,
		"total_connections", len(h.clients[client.UserID]),
	)
}

// unregisterClient removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userClients, ok := h.clients[client.UserID]; ok {
		if _, exists := userClients[client]; exists {
			delete(userClients, client)
			if len(userClients) == 0 {
				delete(h.clients, client.UserID)
			}
		}
	}

	client.CloseSend()

	h.logger.Info("client unregistered",
		"user_id", client.UserID,
	)
}

// broadcastFrame sends a frame to every client in its audience
func (h *Hub) broadcastFrame(frame domain.Frame) {
	h.mu.RLock()
	// Copy the recipient list to avoid holding the lock while sending
	recipients := make([]*Client, 0)
	for _, userClients := range h.clients {
		for client := range userClients {
			if audienceMatches(frame.Audience, client.Role) {
				recipients = append(recipients, client)
			}
		}
	}
	h.mu.RUnlock()

	h.logger.Debug("broadcasting frame",
		"event_type", frame.Type,
		"audience", frame.Audience,
		"recipient_count", len(recipients),
	)

	for _, client := range recipients {
		select {
		case client.Send <- frame:
			h.published.Add(1)
		default:
			// Client's send buffer is full, unregister them.
			// Called inline: sending to h.Unregister from here would
			// deadlock the run loop.
			h.dropped.Add(1)
			h.logger.Warn("client send buffer full, unregistering",
				"user_id", client.UserID,
			)
			h.unregisterClient(client)
		}
	}
}

// audienceMatches decides whether a session with the given role receives a
// frame targeted at the given audience. Admin sessions see everything.
func audienceMatches(audience domain.Audience, role domain.Audience) bool {
	if audience == "" || audience == domain.AudienceAll {
		return true
	}
	if role == domain.AudienceAdmin {
		return true
	}
	return audience == role
}

// ClientCount returns the total number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, userClients := range h.clients {
		count += len(userClients)
	}
	return count
}

// IsUserConnected checks if a user has any active connections
func (h *Hub) IsUserConnected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.clients[userID]
	return ok && len(clients) > 0
}

// PublishedTotal returns the cumulative count of frames delivered to client
// send buffers.
func (h *Hub) PublishedTotal() uint64 {
	return h.published.Load()
}

// DroppedTotal returns the cumulative count of frames dropped on full
// buffers.
func (h *Hub) DroppedTotal() uint64 {
	return h.dropped.Load()
}

package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/telemetry"
)

// Hub manages WebSocket connections and group subscriptions. Groups are
// review request ids.
type Hub struct {
	name       string
	clients    map[*Client]bool
	groups     map[string]map[*Client]bool // group -> clients
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(name string, logger *zap.Logger) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down", zap.String("hub", h.name))
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			telemetry.Gauge(telemetry.MetricPushSubscribers, float32(n))
			h.logger.Debug("client registered",
				zap.String("hub", h.name),
				zap.String("connID", client.connID),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				// Remove from all groups
				for group := range client.groups {
					if clients, ok := h.groups[group]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.groups, group)
						}
					}
				}
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			telemetry.Gauge(telemetry.MetricPushSubscribers, float32(n))
			h.logger.Debug("client unregistered",
				zap.String("hub", h.name),
				zap.String("connID", client.connID),
			)
		}
	}
}

// shutdown gracefully closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	close(h.done)

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.groups = make(map[string]map[*Client]bool)
}

// enqueue hands payload to the client's write pump, disconnecting clients
// whose buffer is full. Callers hold h.mu so send is not closed underneath.
func (h *Hub) enqueue(client *Client, payload []byte) {
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- payload:
	default:
		// Buffer full, schedule disconnect
		go h.leave(client)
	}
}

// leave unregisters client unless the hub has already shut down.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// JoinGroup adds a client to a group.
func (h *Hub) JoinGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]bool)
	}
	h.groups[group][client] = true
	client.groups[group] = true

	h.logger.Debug("client joined group",
		zap.String("hub", h.name),
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
}

// ActiveGroups returns all groups with at least one subscriber.
func (h *Hub) ActiveGroups() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	groups := make([]string, 0, len(h.groups))
	for group, clients := range h.groups {
		if len(clients) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

// GroupSize returns the number of clients subscribed to group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// BroadcastEach builds a payload per client in a group. Clients for which
// build returns nil are skipped.
func (h *Hub) BroadcastEach(group string, build func(c *Client) []byte) int {
	h.mu.RLock()
	clients, ok := h.groups[group]
	if !ok {
		h.mu.RUnlock()
		return 0
	}
	// Copy clients to avoid holding lock during send
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	// Payloads are built without the lock; only the hand-off holds it.
	sent := 0
	for _, client := range clientList {
		msg := build(client)
		if msg == nil {
			continue
		}
		h.mu.RLock()
		h.enqueue(client, msg)
		h.mu.RUnlock()
		sent++
	}
	return sent
}

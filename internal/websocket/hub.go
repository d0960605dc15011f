package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/kohrachel/weshare-sub000/internal/model"
)

// Message types sent to feed clients.
const (
	TypeRideUpdated   = "ride_updated"
	TypeRidesReplaced = "rides_replaced"
)

// Message is a ride feed notification.
type Message struct {
	Type   string      `json:"type"`
	RideID string      `json:"ride_id,omitempty"`
	Ride   *model.Ride `json:"ride,omitempty"`
	Count  int         `json:"count,omitempty"`
}

// RideUpdated carries the cached state of one ride.
func RideUpdated(r *model.Ride) Message {
	return Message{Type: TypeRideUpdated, RideID: r.ID, Ride: r}
}

// RidesReplaced tells clients the feed was reloaded and now holds count rides.
func RidesReplaced(count int) Message {
	return Message{Type: TypeRidesReplaced, Count: count}
}

// Hub tracks connected feed clients and routes ride messages to the clients
// watching them. Feed reloads reach every client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Watch narrows c to updates for the given rides, adding to any rides it
// already watches.
func (h *Hub) Watch(c *Client, rideIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.allRides = false
	if c.rides == nil {
		c.rides = make(map[string]struct{}, len(rideIDs))
	}
	for _, id := range rideIDs {
		if id != "" {
			c.rides[id] = struct{}{}
		}
	}
}

// Unwatch stops updates for the given rides. A client left watching nothing
// still receives feed reloads.
func (h *Hub) Unwatch(c *Client, rideIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range rideIDs {
		delete(c.rides, id)
	}
}

// WatchAll returns c to receiving updates for every ride.
func (h *Hub) WatchAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.allRides = true
	c.rides = nil
}

// Publish sends msg to every client interested in it. A client whose buffer
// is full misses the message.
func (h *Hub) Publish(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal ride message", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Debug("client buffer full", "type", msg.Type, "ride_id", msg.RideID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Watchers returns how many clients receive updates for rideID.
func (h *Hub) Watchers(rideID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.wants(Message{Type: TypeRideUpdated, RideID: rideID}) {
			n++
		}
	}
	return n
}

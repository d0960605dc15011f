package websocket

import (
	"context"
	"encoding/json"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Control operations a client may send to change what it watches.
const (
	OpWatch    = "watch"
	OpUnwatch  = "unwatch"
	OpWatchAll = "watch_all"
)

// Control is a client request to change its ride subscription.
type Control struct {
	Op      string   `json:"op"`
	RideIDs []string `json:"ride_ids,omitempty"`
}

// Client is one feed connection. Its subscription fields are guarded by the
// hub's lock.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte

	allRides bool
	rides    map[string]struct{}
}

// NewClient creates a Client tied to the given hub and connection. With no
// ride IDs it watches the whole feed.
func NewClient(hub *Hub, conn *ws.Conn, rideIDs ...string) *Client {
	c := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		allRides: len(rideIDs) == 0,
	}
	if len(rideIDs) > 0 {
		c.rides = make(map[string]struct{}, len(rideIDs))
		for _, id := range rideIDs {
			c.rides[id] = struct{}{}
		}
	}
	return c
}

func (c *Client) wants(msg Message) bool {
	if msg.Type != TypeRideUpdated || c.allRides {
		return true
	}
	_, ok := c.rides[msg.RideID]
	return ok
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump applies control messages until the connection closes.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		c.handleControl(data)
	}
}

// handleControl applies one control message. Unknown or malformed messages
// are ignored.
func (c *Client) handleControl(data []byte) {
	var ctl Control
	if err := json.Unmarshal(data, &ctl); err != nil {
		c.hub.logger.Debug("ignoring client message", "error", err)
		return
	}
	switch ctl.Op {
	case OpWatch:
		c.hub.Watch(c, ctl.RideIDs...)
	case OpUnwatch:
		c.hub.Unwatch(c, ctl.RideIDs...)
	case OpWatchAll:
		c.hub.WatchAll(c)
	default:
		c.hub.logger.Debug("unknown client op", "op", ctl.Op)
	}
}

// writePump forwards queued messages and pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

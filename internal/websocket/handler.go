package websocket

import (
	"log/slog"
	"net/http"
	"strings"

	ws "github.com/coder/websocket"
)

// maxWatchedRides bounds the ride filter a client can request on connect.
const maxWatchedRides = 50

// HandleWebSocket upgrades feed connections. Repeated ?ride=<id> parameters
// limit the connection to those rides; without them it gets the whole feed.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rideIDs []string
		for _, id := range r.URL.Query()["ride"] {
			if id = strings.TrimSpace(id); id != "" {
				rideIDs = append(rideIDs, id)
			}
		}
		if len(rideIDs) > maxWatchedRides {
			http.Error(w, "too many rides", http.StatusBadRequest)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // ride feed is public
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, rideIDs...)
		logger.Debug("feed client connected", "rides", len(rideIDs))
		client.Run(r.Context())
	}
}

package websocket

import (
	"github.com/kohrachel/weshare-sub000/internal/ridecache"
)

// RideObserver returns a ride cache observer that publishes changes to the
// hub's clients.
func RideObserver(hub *Hub) func(ridecache.Change) {
	return func(ch ridecache.Change) {
		switch ch.Kind {
		case ridecache.ChangeUpdated:
			if ch.Ride != nil {
				hub.Publish(RideUpdated(ch.Ride))
			}
		case ridecache.ChangeReplaced:
			hub.Publish(RidesReplaced(ch.Size))
		}
	}
}

package rsvp

import (
	"context"

	"github.com/kohrachel/weshare-sub000/internal/model"
	"github.com/kohrachel/weshare-sub000/internal/store"
)

// StoreRepository backs a Coordinator with the document-store stores.
type StoreRepository struct {
	Rides *store.RideStore
	Users *store.UserStore
}

func (r StoreRepository) GetRide(ctx context.Context, id string) (*model.Ride, error) {
	return r.Rides.GetByID(ctx, id)
}

func (r StoreRepository) GetUser(ctx context.Context, id string) (*model.UserProfile, error) {
	return r.Users.GetByID(ctx, id)
}

// StartRosterUpdate runs the write to completion before returning. The store
// is embedded, so issuing and finishing the write are the same step.
func (r StoreRepository) StartRosterUpdate(ctx context.Context, rideID, userID string, join bool) func() error {
	err := r.Rides.UpdateRoster(ctx, rideID, userID, join)
	return func() error { return err }
}

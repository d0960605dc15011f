package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kohrachel/weshare-sub000/internal/docstore"
	"github.com/kohrachel/weshare-sub000/internal/model"
)

type RideStore struct {
	docs *docstore.Store
}

func NewRideStore(docs *docstore.Store) *RideStore {
	return &RideStore{docs: docs}
}

// Create stores a new ride and returns it with its assigned id.
func (s *RideStore) Create(ctx context.Context, ride model.Ride) (*model.Ride, error) {
	ride.ID = ""
	if ride.RosterUserIDs == nil {
		ride.RosterUserIDs = []string{}
	}
	id, err := s.docs.Add(ctx, model.CollectionRides, ride)
	if err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	ride.ID = id
	return &ride, nil
}

// GetByID returns nil, nil when the ride does not exist.
func (s *RideStore) GetByID(ctx context.Context, id string) (*model.Ride, error) {
	snap, err := s.docs.Get(ctx, model.CollectionRides, id)
	if err != nil {
		return nil, fmt.Errorf("get ride: %w", err)
	}
	if !snap.Exists {
		return nil, nil
	}
	return decodeRide(snap)
}

// List returns every readable ride. Documents that cannot be decoded at all
// are logged and skipped.
func (s *RideStore) List(ctx context.Context) ([]model.Ride, error) {
	snaps, err := s.docs.List(ctx, model.CollectionRides)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	rides := make([]model.Ride, 0, len(snaps))
	for _, snap := range snaps {
		r, err := decodeRide(snap)
		if err != nil {
			slog.Warn("skipping unreadable ride", "ride_id", snap.ID, "error", err)
			continue
		}
		rides = append(rides, *r)
	}
	return rides, nil
}

// UpdateRoster adds or removes userID and moves the counter by one in a
// single atomic write.
func (s *RideStore) UpdateRoster(ctx context.Context, rideID, userID string, join bool) error {
	patch := docstore.Patch{
		model.FieldRosterUserIDs: docstore.ArrayRemove(userID),
		model.FieldRosterCount:   docstore.Increment(-1),
	}
	if join {
		patch = docstore.Patch{
			model.FieldRosterUserIDs: docstore.ArrayUnion(userID),
			model.FieldRosterCount:   docstore.Increment(1),
		}
	}
	if err := s.docs.Update(ctx, model.CollectionRides, rideID, patch); err != nil {
		return fmt.Errorf("update roster: %w", err)
	}
	return nil
}

// decodeRide decodes a ride document. Fields whose stored value does not fit
// the ride type are dropped, so a bad creator id or roster entry leaves the
// rest of the ride readable.
func decodeRide(snap *docstore.Snapshot) (*model.Ride, error) {
	var r model.Ride
	if err := snap.DataTo(&r); err == nil {
		r.ID = snap.ID
		return &r, nil
	}

	fields, err := snap.Data()
	if err != nil {
		return nil, fmt.Errorf("decode ride: %w", err)
	}
	dropped := sanitizeRideFields(fields)
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("decode ride %s: %w", snap.ID, err)
	}
	r = model.Ride{}
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode ride %s: %w", snap.ID, err)
	}
	slog.Warn("ride has malformed fields", "ride_id", snap.ID, "fields", dropped)
	r.ID = snap.ID
	return &r, nil
}

func sanitizeRideFields(fields map[string]any) []string {
	var dropped []string
	for key, v := range fields {
		if items, ok := v.([]any); ok && key == model.FieldRosterUserIDs {
			ids := make([]any, 0, len(items))
			for _, item := range items {
				if id, ok := item.(string); ok {
					ids = append(ids, id)
				}
			}
			if len(ids) != len(items) {
				fields[key] = ids
				dropped = append(dropped, key)
			}
			continue
		}
		raw, err := json.Marshal(map[string]any{key: v})
		var check model.Ride
		if err != nil || json.Unmarshal(raw, &check) != nil {
			delete(fields, key)
			dropped = append(dropped, key)
		}
	}
	sort.Strings(dropped)
	return dropped
}

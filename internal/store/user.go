package store

import (
	"context"
	"fmt"

	"github.com/kohrachel/weshare-sub000/internal/docstore"
	"github.com/kohrachel/weshare-sub000/internal/model"
)

// UserStore reads user profiles from the users collection.
type UserStore struct {
	docs *docstore.Store
}

func NewUserStore(docs *docstore.Store) *UserStore {
	return &UserStore{docs: docs}
}

// GetByID returns nil, nil when the user does not exist.
func (s *UserStore) GetByID(ctx context.Context, id string) (*model.UserProfile, error) {
	snap, err := s.docs.Get(ctx, model.CollectionUsers, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !snap.Exists {
		return nil, nil
	}
	var u model.UserProfile
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	u.ID = snap.ID
	return &u, nil
}

func (s *UserStore) Upsert(ctx context.Context, u model.UserProfile) (*model.UserProfile, error) {
	if err := s.docs.Set(ctx, model.CollectionUsers, u.ID, u); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetByID(ctx, u.ID)
}

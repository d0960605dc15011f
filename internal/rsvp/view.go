package rsvp

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kohrachel/weshare-sub000/internal/model"
)

// Display placeholders for data that is missing or not loaded yet.
const (
	PlaceholderLoading = "Loading..."
	UnknownUser        = "Unknown User"
)

// State is the lifecycle of a View.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// View is one user's view of one ride.
type View struct {
	c      *Coordinator
	rideID string
	userID string

	mu          sync.RWMutex
	state       State
	version     uint64
	profile     *model.UserProfile
	creatorName string
}

// View returns an uninitialized view of rideID for userID. userID may be
// empty for an anonymous viewer.
func (c *Coordinator) View(rideID, userID string) *View {
	return &View{
		c:           c,
		rideID:      rideID,
		userID:      userID,
		creatorName: PlaceholderLoading,
	}
}

// Activate loads the viewer's profile and refreshes the cached ride from the
// store, then resolves the creator's name. Lookup failures are logged and
// leave the placeholders in place.
func (v *View) Activate(ctx context.Context) {
	v.mu.Lock()
	v.state = StateLoading
	v.mu.Unlock()

	log := v.c.logger.With("ride_id", v.rideID)

	var g errgroup.Group
	if v.userID != "" {
		g.Go(func() error {
			profile, err := v.c.repo.GetUser(ctx, v.userID)
			if err != nil {
				log.Debug("load viewer profile", "user_id", v.userID, "error", err)
				return nil
			}
			if profile != nil {
				v.mu.Lock()
				v.profile = profile
				v.mu.Unlock()
			}
			return nil
		})
	}
	g.Go(func() error {
		ride, err := v.c.repo.GetRide(ctx, v.rideID)
		if err != nil {
			log.Debug("refresh ride", "error", err)
		}
		if ride != nil {
			v.c.cache.Upsert(ride)
		}

		current, ok := v.c.cache.Get(v.rideID)
		if !ok || current.CreatorID == "" {
			return nil
		}
		creator, err := v.c.repo.GetUser(ctx, current.CreatorID)
		if err != nil {
			log.Debug("load creator", "creator_id", current.CreatorID, "error", err)
			return nil
		}
		if creator != nil {
			v.mu.Lock()
			v.creatorName = creator.Name
			v.mu.Unlock()
		}
		return nil
	})
	_ = g.Wait()

	v.mu.Lock()
	v.state = StateReady
	v.version++
	v.mu.Unlock()
}

// State returns the view's lifecycle state.
func (v *View) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Version increments every time the view becomes ready or its roster changes.
func (v *View) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Ride returns the cached ride, or false while it is not loaded.
func (v *View) Ride() (*model.Ride, bool) {
	return v.c.cache.Get(v.rideID)
}

func (v *View) Profile() *model.UserProfile {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.profile
}

func (v *View) CreatorName() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.creatorName
}

// IsMember reports whether the viewer is on the roster.
func (v *View) IsMember() bool {
	ride, _ := v.Ride()
	return ride.HasMember(v.userID)
}

// Eligibility reports whether the RSVP action is enabled and, if not, a
// human-readable reason.
func (v *View) Eligibility() (bool, string) {
	ride, _ := v.Ride()
	return IsEligible(ride, v.userID, v.Profile())
}

// Toggle flips the viewer's membership.
func (v *View) Toggle(ctx context.Context) (*Result, error) {
	res, err := v.c.ToggleRSVP(ctx, v.rideID, v.userID)
	if err != nil || res == nil {
		return res, err
	}
	v.mu.Lock()
	v.version++
	v.mu.Unlock()
	return res, nil
}

// RosterNames resolves the display names of the ride's members in roster
// order.
func (v *View) RosterNames(ctx context.Context) []string {
	ride, ok := v.Ride()
	if !ok {
		return nil
	}
	names := make([]string, 0, len(ride.RosterUserIDs))
	for _, id := range ride.RosterUserIDs {
		names = append(names, v.c.displayName(ctx, id))
	}
	return names
}

func (c *Coordinator) displayName(ctx context.Context, userID string) string {
	if userID == "" {
		return UnknownUser
	}
	u, err := c.repo.GetUser(ctx, userID)
	if err != nil {
		c.logger.Debug("resolve roster name", "user_id", userID, "error", err)
		return UnknownUser
	}
	if u == nil || u.Name == "" {
		return UnknownUser
	}
	return u.Name
}

// Package rsvp coordinates roster membership for rides: the per-ride view
// state shown to a user and the join/leave toggle that keeps the roster and
// its counter in step across the document store and the ride cache.
package rsvp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kohrachel/weshare-sub000/internal/model"
	"github.com/kohrachel/weshare-sub000/internal/ridecache"
)

// ErrToggleInFlight is returned when a toggle for the same ride is still
// outstanding.
var ErrToggleInFlight = errors.New("rsvp toggle already in progress")

// Toggle actions.
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

// Repository is the remote side of the coordinator.
type Repository interface {
	GetRide(ctx context.Context, id string) (*model.Ride, error)
	GetUser(ctx context.Context, id string) (*model.UserProfile, error)
	// StartRosterUpdate submits the roster write and returns once it has been
	// issued. wait blocks until the outcome is known.
	StartRosterUpdate(ctx context.Context, rideID, userID string, join bool) (wait func() error)
}

// Reminders schedules and cancels a member's departure reminder.
type Reminders interface {
	ScheduleRideReminder(ctx context.Context, userID string, departure time.Time) error
	CancelRideReminder(ctx context.Context, userID string, departure time.Time) bool
}

// Metrics receives toggle outcomes.
type Metrics interface {
	RecordRSVPToggle(action string)
}

// Result describes a completed toggle.
type Result struct {
	Action string
	Ride   *model.Ride
}

// Coordinator is shared by all views. It owns the in-flight guard.
type Coordinator struct {
	repo      Repository
	cache     *ridecache.Cache
	reminders Reminders
	metrics   Metrics
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewCoordinator creates a coordinator. reminders and metrics may be nil.
func NewCoordinator(repo Repository, cache *ridecache.Cache, reminders Reminders, metrics Metrics, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		repo:      repo,
		cache:     cache,
		reminders: reminders,
		metrics:   metrics,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
	}
}

// ToggleRSVP joins userID to the ride when not a member and removes them
// otherwise. Membership is read from the cache. The remote write is issued
// before the cached record is optimistically updated; the remote result is
// returned once known and the cache is not rolled back on failure. Empty
// ids are a no-op and return a nil Result.
func (c *Coordinator) ToggleRSVP(ctx context.Context, rideID, userID string) (*Result, error) {
	if rideID == "" || userID == "" {
		return nil, nil
	}
	if !c.acquire(rideID) {
		return nil, ErrToggleInFlight
	}
	defer c.release(rideID)

	prev, cached := c.cache.Get(rideID)
	wasMember := prev.HasMember(userID)

	wait := c.repo.StartRosterUpdate(ctx, rideID, userID, !wasMember)

	action := ActionJoin
	if wasMember {
		action = ActionLeave
	}

	var updated *model.Ride
	if cached {
		roster, count := nextRoster(prev, userID, wasMember)
		if c.cache.Merge(rideID, model.RidePatch{RosterUserIDs: roster, RosterCount: &count}) {
			updated, _ = c.cache.Get(rideID)
		}
	}

	if err := wait(); err != nil {
		c.logger.Warn("rsvp remote update failed", "ride_id", rideID, "user_id", userID, "action", action, "error", err)
		return nil, fmt.Errorf("%s ride %s: %w", action, rideID, err)
	}

	if c.metrics != nil {
		c.metrics.RecordRSVPToggle(action)
	}
	if updated != nil {
		c.syncReminder(ctx, userID, updated.Departure, wasMember)
	}

	c.logger.Debug("rsvp toggled", "ride_id", rideID, "user_id", userID, "action", action)
	return &Result{Action: action, Ride: updated}, nil
}

// nextRoster derives the post-toggle roster and counter from the previous
// record. The counter moves by one from its previous value and is never
// recomputed from the roster length.
func nextRoster(prev *model.Ride, userID string, wasMember bool) ([]string, int) {
	if wasMember {
		roster := slices.DeleteFunc(slices.Clone(prev.RosterUserIDs), func(id string) bool { return id == userID })
		return roster, prev.RosterCount - 1
	}
	roster := append(slices.Clone(prev.RosterUserIDs), userID)
	return roster, prev.RosterCount + 1
}

func (c *Coordinator) syncReminder(ctx context.Context, userID string, departure time.Time, left bool) {
	if c.reminders == nil {
		return
	}
	if left {
		c.reminders.CancelRideReminder(ctx, userID, departure)
		return
	}
	if err := c.reminders.ScheduleRideReminder(ctx, userID, departure); err != nil {
		c.logger.Info("rsvp reminder not scheduled", "user_id", userID, "error", err)
	}
}

func (c *Coordinator) acquire(rideID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[rideID]; busy {
		return false
	}
	c.inFlight[rideID] = struct{}{}
	return true
}

func (c *Coordinator) release(rideID string) {
	c.mu.Lock()
	delete(c.inFlight, rideID)
	c.mu.Unlock()
}

// IsEligible reports whether userID may toggle the ride's RSVP, and if not,
// why. A ride without capacity is always full. Restricted rides stay
// disabled until the user's profile is known.
func IsEligible(ride *model.Ride, userID string, profile *model.UserProfile) (bool, string) {
	if ride == nil {
		return false, ""
	}
	if ride.RosterCount >= ride.Capacity && !ride.HasMember(userID) {
		return false, "Ride is full"
	}
	if ride.Gender != model.GenderCoed && (profile == nil || profile.Gender != ride.Gender) {
		return false, fmt.Sprintf("%s only ride", ride.Gender)
	}
	return true, ""
}

// Package rides implements ride creation and the upcoming-ride feed.
package rides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/kohrachel/weshare-sub000/internal/model"
	"github.com/kohrachel/weshare-sub000/internal/ridecache"
	"github.com/kohrachel/weshare-sub000/internal/store"
)

// ErrInvalid wraps validation failures of a new ride.
var ErrInvalid = errors.New("invalid ride")

// Reminders schedules the creator's departure reminder.
type Reminders interface {
	ScheduleRideReminder(ctx context.Context, userID string, departure time.Time) error
}

type Service struct {
	rides     *store.RideStore
	cache     *ridecache.Cache
	reminders Reminders
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(rides *store.RideStore, cache *ridecache.Cache, reminders Reminders, logger *slog.Logger) *Service {
	return &Service{
		rides:     rides,
		cache:     cache,
		reminders: reminders,
		now:       time.Now,
		logger:    logger,
	}
}

// Create validates and stores a ride posted by creatorID, adds it to the
// cache and schedules the creator's reminder. The ride is returned even when
// scheduling fails; the scheduling error is returned alongside it.
func (s *Service) Create(ctx context.Context, creatorID string, ride model.Ride) (*model.Ride, error) {
	ride.CreatorID = creatorID
	ride.Destination = strings.TrimSpace(ride.Destination)
	ride.MeetingLocation = strings.TrimSpace(ride.MeetingLocation)
	ride.RosterUserIDs = nil
	ride.RosterCount = 0
	if err := s.validate(ride); err != nil {
		return nil, err
	}

	created, err := s.rides.Create(ctx, ride)
	if err != nil {
		return nil, err
	}
	s.cache.Upsert(created)
	s.logger.Info("ride created", "ride_id", created.ID, "creator_id", creatorID, "departure", created.Departure)

	if s.reminders != nil {
		if err := s.reminders.ScheduleRideReminder(ctx, creatorID, created.Departure); err != nil {
			return created, err
		}
	}
	return created, nil
}

func (s *Service) validate(r model.Ride) error {
	switch {
	case r.CreatorID == "":
		return fmt.Errorf("%w: creator is required", ErrInvalid)
	case r.Destination == "":
		return fmt.Errorf("%w: destination is required", ErrInvalid)
	case r.Departure.IsZero():
		return fmt.Errorf("%w: departure is required", ErrInvalid)
	case !r.Departure.After(s.now()):
		return fmt.Errorf("%w: departure must be in the future", ErrInvalid)
	case r.Return != nil && !r.Return.After(r.Departure):
		return fmt.Errorf("%w: return must be after departure", ErrInvalid)
	case !r.Gender.Valid():
		return fmt.Errorf("%w: unknown gender restriction %q", ErrInvalid, r.Gender)
	case r.Capacity < 1:
		return fmt.Errorf("%w: capacity must be at least 1", ErrInvalid)
	}
	return nil
}

// Feed loads every ride departing after now, ordered by departure, and
// replaces the cache contents with them.
func (s *Service) Feed(ctx context.Context) ([]*model.Ride, error) {
	all, err := s.rides.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	upcoming := make([]*model.Ride, 0, len(all))
	for i := range all {
		if all[i].Departure.After(now) {
			upcoming = append(upcoming, &all[i])
		}
	}
	slices.SortStableFunc(upcoming, func(a, b *model.Ride) int {
		return a.Departure.Compare(b.Departure)
	})

	s.cache.ReplaceAll(upcoming)
	return upcoming, nil
}

package rsvp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kohrachel/weshare-sub000/internal/model"
	"github.com/kohrachel/weshare-sub000/internal/ridecache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type rosterCall struct {
	rideID, userID string
	join           bool
	// cachedCount is the cached counter seen when the write was issued.
	cachedCount int
}

type fakeRepo struct {
	mu        sync.Mutex
	rides     map[string]*model.Ride
	users     map[string]*model.UserProfile
	calls     []rosterCall
	updateErr error
	getErr    error
	gate      chan struct{}
	cache     *ridecache.Cache
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		rides: map[string]*model.Ride{},
		users: map[string]*model.UserProfile{},
	}
}

func (f *fakeRepo) GetRide(_ context.Context, id string) (*model.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.rides[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) GetUser(_ context.Context, id string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.users[id], nil
}

func (f *fakeRepo) StartRosterUpdate(_ context.Context, rideID, userID string, join bool) func() error {
	call := rosterCall{rideID: rideID, userID: userID, join: join, cachedCount: -1}
	if f.cache != nil {
		if r, ok := f.cache.Get(rideID); ok {
			call.cachedCount = r.RosterCount
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	err := f.updateErr
	f.mu.Unlock()

	gate := f.gate
	return func() error {
		if gate != nil {
			<-gate
		}
		return err
	}
}

type fakeReminders struct {
	mu        sync.Mutex
	scheduled []string
	cancelled []string
}

func (f *fakeReminders) ScheduleRideReminder(_ context.Context, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, userID)
	return nil
}

func (f *fakeReminders) CancelRideReminder(_ context.Context, userID string, _ time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, userID)
	return true
}

func setupCoordinator(t *testing.T, rides ...*model.Ride) (*Coordinator, *fakeRepo, *ridecache.Cache) {
	t.Helper()
	repo := newFakeRepo()
	cache := ridecache.New(testLogger())
	cache.ReplaceAll(rides)
	for _, r := range rides {
		repo.rides[r.ID] = r
	}
	repo.cache = cache
	return NewCoordinator(repo, cache, nil, nil, testLogger()), repo, cache
}

func sampleRide() *model.Ride {
	return &model.Ride{
		ID:            "ride-1",
		CreatorID:     "u1",
		Destination:   "Airport",
		Departure:     time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC),
		Gender:        model.GenderCoed,
		Capacity:      4,
		RosterUserIDs: []string{"u1", "u2"},
		RosterCount:   2,
	}
}

func TestToggleJoinAppendsAndIncrements(t *testing.T) {
	c, repo, cache := setupCoordinator(t, sampleRide())

	res, err := c.ToggleRSVP(context.Background(), "ride-1", "u3")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if res.Action != ActionJoin {
		t.Errorf("action = %q, want %q", res.Action, ActionJoin)
	}

	got, _ := cache.Get("ride-1")
	if !slices.Equal(got.RosterUserIDs, []string{"u1", "u2", "u3"}) {
		t.Errorf("roster = %v", got.RosterUserIDs)
	}
	if got.RosterCount != 3 {
		t.Errorf("count = %d, want 3", got.RosterCount)
	}
	if len(repo.calls) != 1 || !repo.calls[0].join || repo.calls[0].userID != "u3" {
		t.Errorf("remote calls = %+v", repo.calls)
	}
}

func TestToggleLeavePreservesOrder(t *testing.T) {
	ride := sampleRide()
	ride.RosterUserIDs = []string{"u1", "u2", "u3", "u4"}
	ride.RosterCount = 4
	c, repo, cache := setupCoordinator(t, ride)

	res, err := c.ToggleRSVP(context.Background(), "ride-1", "u2")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if res.Action != ActionLeave {
		t.Errorf("action = %q, want %q", res.Action, ActionLeave)
	}

	got, _ := cache.Get("ride-1")
	if !slices.Equal(got.RosterUserIDs, []string{"u1", "u3", "u4"}) {
		t.Errorf("roster = %v", got.RosterUserIDs)
	}
	if got.RosterCount != 3 {
		t.Errorf("count = %d, want 3", got.RosterCount)
	}
	if repo.calls[0].join {
		t.Error("expected leave on remote")
	}
}

func TestToggleIssuesRemoteBeforeMerge(t *testing.T) {
	c, repo, cache := setupCoordinator(t, sampleRide())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		before, _ := cache.Get("ride-1")
		if _, err := c.ToggleRSVP(ctx, "ride-1", "u3"); err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		last := repo.calls[len(repo.calls)-1]
		if last.cachedCount != before.RosterCount {
			t.Fatalf("toggle %d: remote write saw cached count %d, want pre-merge %d", i, last.cachedCount, before.RosterCount)
		}
	}
}

func TestToggleScenario(t *testing.T) {
	c, _, cache := setupCoordinator(t, sampleRide())
	ctx := context.Background()

	if _, err := c.ToggleRSVP(ctx, "ride-1", "u3"); err != nil {
		t.Fatalf("join: %v", err)
	}
	got, _ := cache.Get("ride-1")
	if !slices.Equal(got.RosterUserIDs, []string{"u1", "u2", "u3"}) || got.RosterCount != 3 {
		t.Fatalf("after join: roster = %v, count = %d", got.RosterUserIDs, got.RosterCount)
	}

	if _, err := c.ToggleRSVP(ctx, "ride-1", "u3"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	got, _ = cache.Get("ride-1")
	if !slices.Equal(got.RosterUserIDs, []string{"u1", "u2"}) || got.RosterCount != 2 {
		t.Errorf("after leave: roster = %v, count = %d", got.RosterUserIDs, got.RosterCount)
	}
}

func TestToggleKeepsCounterDrift(t *testing.T) {
	ride := sampleRide()
	ride.RosterCount = 5
	c, _, cache := setupCoordinator(t, ride)

	c.ToggleRSVP(context.Background(), "ride-1", "u3")
	got, _ := cache.Get("ride-1")
	if got.RosterCount != 6 {
		t.Errorf("count = %d, want 6", got.RosterCount)
	}
}

func TestToggleEmptyIDs(t *testing.T) {
	c, repo, _ := setupCoordinator(t, sampleRide())

	for _, tc := range []struct{ ride, user string }{{"", "u3"}, {"ride-1", ""}} {
		res, err := c.ToggleRSVP(context.Background(), tc.ride, tc.user)
		if err != nil || res != nil {
			t.Errorf("toggle(%q, %q) = %v, %v; want nil, nil", tc.ride, tc.user, res, err)
		}
	}
	if len(repo.calls) != 0 {
		t.Errorf("remote calls = %d, want 0", len(repo.calls))
	}
}

func TestToggleRemoteFailureNoRollback(t *testing.T) {
	c, repo, cache := setupCoordinator(t, sampleRide())
	repo.updateErr = errors.New("network down")

	_, err := c.ToggleRSVP(context.Background(), "ride-1", "u3")
	if !errors.Is(err, repo.updateErr) {
		t.Fatalf("err = %v, want wrapped update error", err)
	}

	got, _ := cache.Get("ride-1")
	if got.RosterCount != 3 || !got.HasMember("u3") {
		t.Errorf("expected optimistic state kept, got roster = %v count = %d", got.RosterUserIDs, got.RosterCount)
	}
}

func TestToggleInFlight(t *testing.T) {
	c, repo, _ := setupCoordinator(t, sampleRide())
	repo.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := c.ToggleRSVP(context.Background(), "ride-1", "u3")
		done <- err
	}()

	// Wait until the first toggle holds the guard.
	deadline := time.Now().Add(time.Second)
	for {
		c.mu.Lock()
		_, busy := c.inFlight["ride-1"]
		c.mu.Unlock()
		if busy {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first toggle never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := c.ToggleRSVP(context.Background(), "ride-1", "u4"); !errors.Is(err, ErrToggleInFlight) {
		t.Errorf("second toggle err = %v, want ErrToggleInFlight", err)
	}

	close(repo.gate)
	if err := <-done; err != nil {
		t.Fatalf("first toggle: %v", err)
	}

	if _, err := c.ToggleRSVP(context.Background(), "ride-1", "u4"); err != nil {
		t.Errorf("toggle after release: %v", err)
	}
}

func TestToggleSyncsReminders(t *testing.T) {
	repo := newFakeRepo()
	cache := ridecache.New(testLogger())
	cache.ReplaceAll([]*model.Ride{sampleRide()})
	reminders := &fakeReminders{}
	c := NewCoordinator(repo, cache, reminders, nil, testLogger())

	c.ToggleRSVP(context.Background(), "ride-1", "u3")
	c.ToggleRSVP(context.Background(), "ride-1", "u3")

	if !slices.Equal(reminders.scheduled, []string{"u3"}) {
		t.Errorf("scheduled = %v", reminders.scheduled)
	}
	if !slices.Equal(reminders.cancelled, []string{"u3"}) {
		t.Errorf("cancelled = %v", reminders.cancelled)
	}
}

func TestIsEligible(t *testing.T) {
	full := sampleRide()
	full.RosterUserIDs = []string{"u1", "u2", "u3", "u4"}
	full.RosterCount = 4

	female := sampleRide()
	female.Gender = model.GenderFemale

	noCapacity := sampleRide()
	noCapacity.Capacity = 0
	noCapacity.RosterUserIDs = nil
	noCapacity.RosterCount = 0

	femaleProfile := &model.UserProfile{ID: "u9", Gender: model.GenderFemale}
	maleProfile := &model.UserProfile{ID: "u9", Gender: model.GenderMale}

	tests := []struct {
		name    string
		ride    *model.Ride
		userID  string
		profile *model.UserProfile
		want    bool
		reason  string
	}{
		{"open co-ed ride", sampleRide(), "u9", nil, true, ""},
		{"full non-member", full, "u9", maleProfile, false, "Ride is full"},
		{"full member", full, "u2", maleProfile, true, ""},
		{"gender match", female, "u9", femaleProfile, true, ""},
		{"gender mismatch", female, "u9", maleProfile, false, "Female only ride"},
		{"gender without profile", female, "u9", nil, false, "Female only ride"},
		{"unset capacity", noCapacity, "u9", nil, false, "Ride is full"},
		{"not loaded", nil, "u9", nil, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := IsEligible(tt.ride, tt.userID, tt.profile)
			if got != tt.want {
				t.Errorf("eligible = %v, want %v", got, tt.want)
			}
			if reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

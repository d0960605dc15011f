package rsvp

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/kohrachel/weshare-sub000/internal/database"
	"github.com/kohrachel/weshare-sub000/internal/docstore"
	"github.com/kohrachel/weshare-sub000/internal/model"
	"github.com/kohrachel/weshare-sub000/internal/ridecache"
	"github.com/kohrachel/weshare-sub000/internal/store"
)

func TestViewActivate(t *testing.T) {
	c, repo, _ := setupCoordinator(t)
	repo.rides["ride-1"] = sampleRide()
	repo.users["u1"] = &model.UserProfile{ID: "u1", Name: "Ana"}
	repo.users["u3"] = &model.UserProfile{ID: "u3", Name: "Cy", Gender: model.GenderMale}

	v := c.View("ride-1", "u3")
	if v.State() != StateUninitialized {
		t.Fatalf("state = %v, want uninitialized", v.State())
	}
	if v.CreatorName() != PlaceholderLoading {
		t.Errorf("creator = %q, want placeholder", v.CreatorName())
	}
	if _, ok := v.Ride(); ok {
		t.Error("expected ride not loaded before activation")
	}

	v.Activate(context.Background())

	if v.State() != StateReady {
		t.Errorf("state = %v, want ready", v.State())
	}
	if _, ok := v.Ride(); !ok {
		t.Fatal("expected ride cached after activation")
	}
	if v.CreatorName() != "Ana" {
		t.Errorf("creator = %q, want %q", v.CreatorName(), "Ana")
	}
	if v.Profile() == nil || v.Profile().Name != "Cy" {
		t.Errorf("profile = %+v", v.Profile())
	}
	if v.IsMember() {
		t.Error("expected u3 not a member")
	}
	if ok, reason := v.Eligibility(); !ok {
		t.Errorf("expected eligible, reason %q", reason)
	}

	before := v.Version()
	if _, err := v.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !v.IsMember() {
		t.Error("expected member after toggle")
	}
	if v.Version() != before+1 {
		t.Errorf("version = %d, want %d", v.Version(), before+1)
	}
}

func TestViewActivateRefreshesCachedRide(t *testing.T) {
	stale := sampleRide()
	c, repo, cache := setupCoordinator(t, stale)

	fresh := sampleRide()
	fresh.RosterUserIDs = []string{"u1", "u2", "u5"}
	fresh.RosterCount = 3
	repo.rides["ride-1"] = fresh

	c.View("ride-1", "").Activate(context.Background())

	got, _ := cache.Get("ride-1")
	if got.RosterCount != 3 || !got.HasMember("u5") {
		t.Errorf("cache not refreshed: %+v", got)
	}
}

func TestViewActivateMissingRide(t *testing.T) {
	c, _, cache := setupCoordinator(t)

	v := c.View("ghost", "u1")
	v.Activate(context.Background())

	if v.State() != StateReady {
		t.Errorf("state = %v, want ready", v.State())
	}
	if cache.Len() != 0 {
		t.Errorf("cache len = %d, want 0", cache.Len())
	}
	if v.CreatorName() != PlaceholderLoading {
		t.Errorf("creator = %q, want placeholder", v.CreatorName())
	}
	if ok, _ := v.Eligibility(); ok {
		t.Error("expected not eligible without a ride")
	}
}

func TestViewActivateToleratesErrors(t *testing.T) {
	c, repo, _ := setupCoordinator(t, sampleRide())
	repo.getErr = errors.New("offline")

	v := c.View("ride-1", "u3")
	v.Activate(context.Background())

	if v.Profile() != nil {
		t.Error("expected nil profile on error")
	}
	if v.CreatorName() != PlaceholderLoading {
		t.Errorf("creator = %q, want placeholder", v.CreatorName())
	}
	if _, ok := v.Ride(); !ok {
		t.Error("expected cached ride to survive refresh error")
	}
}

func TestRosterNames(t *testing.T) {
	ride := sampleRide()
	ride.RosterUserIDs = []string{"u1", "", "ghost", "u2"}
	c, repo, _ := setupCoordinator(t, ride)
	repo.users["u1"] = &model.UserProfile{ID: "u1", Name: "Ana"}
	repo.users["u2"] = &model.UserProfile{ID: "u2", Name: "Bo"}

	got := c.View("ride-1", "").RosterNames(context.Background())
	want := []string{"Ana", UnknownUser, UnknownUser, "Bo"}
	if !slices.Equal(got, want) {
		t.Errorf("names = %v, want %v", got, want)
	}
}

func TestToggleAgainstStore(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	docs := docstore.New(db)
	rides := store.NewRideStore(docs)
	repo := StoreRepository{Rides: rides, Users: store.NewUserStore(docs)}

	created, err := rides.Create(ctx, model.Ride{
		CreatorID: "u1",
		Gender:    model.GenderCoed,
		Capacity:  4,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	rides.UpdateRoster(ctx, created.ID, "u1", true)
	rides.UpdateRoster(ctx, created.ID, "u2", true)

	cache := ridecache.New(testLogger())
	c := NewCoordinator(repo, cache, nil, nil, testLogger())
	v := c.View(created.ID, "u3")
	v.Activate(ctx)

	if _, err := v.Toggle(ctx); err != nil {
		t.Fatalf("join: %v", err)
	}
	remote, _ := rides.GetByID(ctx, created.ID)
	if !slices.Equal(remote.RosterUserIDs, []string{"u1", "u2", "u3"}) || remote.RosterCount != 3 {
		t.Fatalf("remote after join: %v / %d", remote.RosterUserIDs, remote.RosterCount)
	}

	if _, err := v.Toggle(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
	remote, _ = rides.GetByID(ctx, created.ID)
	if !slices.Equal(remote.RosterUserIDs, []string{"u1", "u2"}) || remote.RosterCount != 2 {
		t.Errorf("remote after leave: %v / %d", remote.RosterUserIDs, remote.RosterCount)
	}
	cached, _ := cache.Get(created.ID)
	if !slices.Equal(cached.RosterUserIDs, remote.RosterUserIDs) || cached.RosterCount != remote.RosterCount {
		t.Errorf("cache %v/%d diverged from store %v/%d", cached.RosterUserIDs, cached.RosterCount, remote.RosterUserIDs, remote.RosterCount)
	}
}

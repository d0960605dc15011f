package ridecache

import (
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/kohrachel/weshare-sub000/internal/model"
)

func testRide(id string, roster ...string) *model.Ride {
	return &model.Ride{
		ID:            id,
		CreatorID:     "creator",
		Destination:   "Airport",
		Departure:     time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC),
		Gender:        model.GenderCoed,
		Capacity:      4,
		RosterUserIDs: roster,
		RosterCount:   len(roster),
	}
}

func intPtr(n int) *int { return &n }

func TestGetMissing(t *testing.T) {
	c := New(slog.Default())

	ride, ok := c.Get("nope")
	if ok || ride != nil {
		t.Errorf("Get = (%v, %v), want (nil, false)", ride, ok)
	}
}

func TestReplaceAllAndGet(t *testing.T) {
	c := New(slog.Default())
	r1, r2 := testRide("r1"), testRide("r2")

	c.ReplaceAll([]*model.Ride{r1, r2})

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	got, ok := c.Get("r2")
	if !ok || got != r2 {
		t.Errorf("Get(r2) = (%p, %v), want (%p, true)", got, ok, r2)
	}
}

func TestUpdateFunctional(t *testing.T) {
	c := New(slog.Default())
	c.ReplaceAll([]*model.Ride{testRide("r1")})

	c.Update(func(prev []*model.Ride) []*model.Ride {
		return append(prev, testRide("r2"))
	})

	all := c.All()
	if len(all) != 2 || all[0].ID != "r1" || all[1].ID != "r2" {
		t.Errorf("rides = %v, want [r1 r2]", ids(all))
	}
}

func TestMergeAbsentIsNoop(t *testing.T) {
	c := New(slog.Default())
	c.ReplaceAll([]*model.Ride{testRide("r1", "u1"), testRide("r2")})

	before := snapshot(c.All())
	if c.Merge("ghost", model.RidePatch{RosterCount: intPtr(9)}) {
		t.Error("Merge on absent id reported an update")
	}
	after := snapshot(c.All())

	if !reflect.DeepEqual(before, after) {
		t.Errorf("cache changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestMergeTouchesOnlyTarget(t *testing.T) {
	c := New(slog.Default())
	r1, r2 := testRide("r1", "u1"), testRide("r2", "u2")
	c.ReplaceAll([]*model.Ride{r1, r2})
	r2Before := *r2

	if !c.Merge("r1", model.RidePatch{RosterUserIDs: []string{"u1", "u3"}, RosterCount: intPtr(2)}) {
		t.Fatal("Merge reported no update")
	}

	got2, _ := c.Get("r2")
	if got2 != r2 {
		t.Error("untouched ride lost pointer identity")
	}
	if !reflect.DeepEqual(*got2, r2Before) {
		t.Errorf("untouched ride changed: %+v", *got2)
	}

	got1, _ := c.Get("r1")
	if got1 == r1 {
		t.Error("merged ride should be a new value")
	}
	if !reflect.DeepEqual(got1.RosterUserIDs, []string{"u1", "u3"}) || got1.RosterCount != 2 {
		t.Errorf("merged roster = %v / %d", got1.RosterUserIDs, got1.RosterCount)
	}
	if got1.Destination != "Airport" || got1.Capacity != 4 {
		t.Errorf("unpatched fields changed: %+v", got1)
	}
	if len(r1.RosterUserIDs) != 1 {
		t.Errorf("original record mutated: %v", r1.RosterUserIDs)
	}
}

func TestUpsert(t *testing.T) {
	c := New(slog.Default())
	c.ReplaceAll([]*model.Ride{testRide("r1")})

	fresh := testRide("r1", "u1")
	fresh.Destination = "Downtown"
	c.Upsert(fresh)
	c.Upsert(testRide("r2"))
	c.Upsert(nil)

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	got, _ := c.Get("r1")
	if got.Destination != "Downtown" || got.RosterCount != 1 {
		t.Errorf("r1 = %+v, want refreshed", got)
	}
	if got == fresh {
		t.Error("cache should hold its own copy")
	}
}

func TestUpsertClearsReturn(t *testing.T) {
	c := New(slog.Default())

	roundTrip := testRide("r1")
	ret := roundTrip.Departure.Add(6 * time.Hour)
	roundTrip.Return = &ret
	roundTrip.IsRoundTrip = true
	c.Upsert(roundTrip)

	// The stored document no longer has a return leg.
	c.Upsert(testRide("r1"))

	got, _ := c.Get("r1")
	if got.Return != nil || got.IsRoundTrip {
		t.Errorf("return = %v, round trip = %v; want cleared", got.Return, got.IsRoundTrip)
	}
}

func TestMergeLeavesReturnWithoutClear(t *testing.T) {
	c := New(slog.Default())
	r := testRide("r1")
	ret := r.Departure.Add(time.Hour)
	r.Return = &ret
	c.ReplaceAll([]*model.Ride{r})

	c.Merge("r1", model.RidePatch{RosterCount: intPtr(1)})

	got, _ := c.Get("r1")
	if got.Return == nil || !got.Return.Equal(ret) {
		t.Errorf("return = %v, want %v", got.Return, ret)
	}
}

func TestOnChange(t *testing.T) {
	c := New(slog.Default())

	var mu sync.Mutex
	var changes []Change
	c.OnChange(func(ch Change) {
		mu.Lock()
		changes = append(changes, ch)
		mu.Unlock()
	})

	c.ReplaceAll([]*model.Ride{testRide("r1")})
	c.Merge("r1", model.RidePatch{RosterCount: intPtr(1)})
	c.Merge("ghost", model.RidePatch{RosterCount: intPtr(1)})

	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(changes))
	}
	if changes[0].Kind != ChangeReplaced || changes[0].Size != 1 {
		t.Errorf("first change = %+v", changes[0])
	}
	if changes[1].Kind != ChangeUpdated || changes[1].Ride.ID != "r1" {
		t.Errorf("second change = %+v", changes[1])
	}
}

func TestConcurrentMerges(t *testing.T) {
	c := New(slog.Default())
	c.ReplaceAll([]*model.Ride{testRide("r1"), testRide("r2")})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			c.Merge("r1", model.RidePatch{RosterCount: intPtr(n)})
		}(i)
		go func() {
			defer wg.Done()
			c.Get("r2")
			c.All()
		}()
	}
	wg.Wait()

	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func ids(rides []*model.Ride) []string {
	out := make([]string, len(rides))
	for i, r := range rides {
		out[i] = r.ID
	}
	return out
}

func snapshot(rides []*model.Ride) []model.Ride {
	out := make([]model.Ride, len(rides))
	for i, r := range rides {
		out[i] = *r
	}
	return out
}

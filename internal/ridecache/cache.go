// Package ridecache holds the process-wide in-memory view of ride documents.
//
// Records handed out by the cache are shared snapshots and must not be
// mutated by callers. Every write produces new *model.Ride values only for
// the records it touches, so consumers can detect changes by pointer.
package ridecache

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/kohrachel/weshare-sub000/internal/model"
)

// ChangeKind describes what a mutation did.
type ChangeKind string

const (
	ChangeReplaced ChangeKind = "replaced"
	ChangeUpdated  ChangeKind = "updated"
)

// Change is delivered to observers after each mutation.
type Change struct {
	Kind ChangeKind
	Ride *model.Ride // set for ChangeUpdated
	Size int
}

// Cache is an ordered set of rides keyed by id.
type Cache struct {
	mu        sync.RWMutex
	rides     []*model.Ride
	observers []func(Change)
	logger    *slog.Logger
}

// New creates an empty cache.
func New(logger *slog.Logger) *Cache {
	return &Cache{logger: logger}
}

// OnChange registers fn to be called after every mutation. Observers run
// outside the cache lock.
func (c *Cache) OnChange(fn func(Change)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// ReplaceAll swaps the full ride set.
func (c *Cache) ReplaceAll(rides []*model.Ride) {
	c.Update(func([]*model.Ride) []*model.Ride { return rides })
}

// Update derives the new ride set from the previous one. fn must not mutate
// the records it is given.
func (c *Cache) Update(fn func(prev []*model.Ride) []*model.Ride) {
	c.mu.Lock()
	prev := slices.Clone(c.rides)
	next := slices.DeleteFunc(slices.Clone(fn(prev)), func(r *model.Ride) bool { return r == nil })
	c.rides = next
	observers := c.observers
	c.mu.Unlock()

	c.notify(observers, Change{Kind: ChangeReplaced, Size: len(next)})
}

// All returns the current rides in order.
func (c *Cache) All() []*model.Ride {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.rides)
}

// Len returns the number of cached rides.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rides)
}

// Get returns the ride with the given id.
func (c *Cache) Get(id string) (*model.Ride, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexOf(id); i >= 0 {
		return c.rides[i], true
	}
	return nil, false
}

// Merge shallow-merges patch onto the ride with the given id. Unknown ids are
// ignored. It reports whether a ride was updated.
func (c *Cache) Merge(id string, patch model.RidePatch) bool {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		c.logger.Debug("merge skipped, ride not cached", "ride_id", id)
		return false
	}
	updated := patch.Apply(c.rides[i])
	next := slices.Clone(c.rides)
	next[i] = updated
	c.rides = next
	observers := c.observers
	c.mu.Unlock()

	c.notify(observers, Change{Kind: ChangeUpdated, Ride: updated, Size: len(next)})
	return true
}

// Upsert merges ride into the cache, appending it when it is not cached yet.
func (c *Cache) Upsert(ride *model.Ride) {
	if ride == nil || ride.ID == "" {
		return
	}
	if c.Merge(ride.ID, model.PatchFrom(ride)) {
		return
	}

	c.mu.Lock()
	if c.indexOf(ride.ID) >= 0 {
		// Lost a race with another writer; merge on top of theirs.
		c.mu.Unlock()
		c.Merge(ride.ID, model.PatchFrom(ride))
		return
	}
	added := model.PatchFrom(ride).Apply(ride)
	next := append(slices.Clone(c.rides), added)
	c.rides = next
	observers := c.observers
	c.mu.Unlock()

	c.notify(observers, Change{Kind: ChangeUpdated, Ride: added, Size: len(next)})
}

func (c *Cache) indexOf(id string) int {
	return slices.IndexFunc(c.rides, func(r *model.Ride) bool { return r.ID == id })
}

func (c *Cache) notify(observers []func(Change), ch Change) {
	for _, fn := range observers {
		fn(ch)
	}
}

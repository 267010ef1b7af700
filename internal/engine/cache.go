package engine

import (
	"sync"

	"github.com/zjrosen/fieldcore/internal/log"
)

// entryState is the lifecycle of one cached field value.
type entryState int

const (
	stateComputing entryState = iota
	stateComputed
	stateError
)

// cacheEntry is one memoized field value. done is closed once the entry
// leaves stateComputing; value, err and state are immutable afterwards.
// An Error entry is served to every later reader until an explicit
// invalidation drops it; it is never retried automatically.
type cacheEntry struct {
	state entryState
	value any
	err   error
	done  chan struct{}
}

// valueCache memoizes derived field values for a single instance. It
// guarantees at most one in-flight computation per field: the caller that
// creates an entry owns the computation, every other caller waits on the
// entry's done channel and receives the same result.
type valueCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func newValueCache() *valueCache {
	return &valueCache{entries: make(map[string]*cacheEntry)}
}

// begin returns the entry for field and whether the caller owns its
// computation. A non-owner must wait on entry.done before reading the
// result.
func (c *valueCache) begin(field string) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[field]; ok {
		return entry, false
	}
	entry := &cacheEntry{state: stateComputing, done: make(chan struct{})}
	c.entries[field] = entry
	return entry, true
}

// complete publishes the computation result on the entry the owner holds.
// If the field was invalidated mid-flight the entry is already detached
// from the map: waiters that joined before the invalidation still receive
// this result, readers arriving after it start a fresh computation.
func (c *valueCache) complete(field string, entry *cacheEntry, value any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.value = value
	entry.err = err
	if err != nil {
		entry.state = stateError
	} else {
		entry.state = stateComputed
	}
	close(entry.done)
}

// invalidate drops the cached entry for field, reporting whether one was
// present. An in-flight computation is left to run to completion against
// its detached entry.
func (c *valueCache) invalidate(field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[field]; !ok {
		return false
	}
	delete(c.entries, field)
	log.Debug(log.CatCache, "entry invalidated", "field", field)
	return true
}

// snapshot reports the entry state for field, for tests and inspection.
func (c *valueCache) snapshot(field string) (entryState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[field]
	if !ok {
		return 0, false
	}
	return entry.state, true
}

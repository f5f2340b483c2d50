package memo

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hefarica/ARBITRAGEXPLUS2025/route"
)

// Key identifies a dex combination independently of the order the dexes were
// enumerated in. Pivot is the start token, Amount the input size and Hops the
// cycle length the combination was searched for.
type Key struct {
	Dexes  string
	Pivot  string
	Amount float64
	Hops   int
}

// NewKey builds a Key from an unordered set of dex ids.
func NewKey(pivot string, amount float64, hops int, dexIDs ...string) Key {
	sorted := slices.Clone(dexIDs)
	slices.Sort(sorted)
	return Key{
		Dexes:  strings.Join(sorted, "_"),
		Pivot:  pivot,
		Amount: amount,
		Hops:   hops,
	}
}

func (k Key) String() string {
	return k.Dexes + "/" + k.Pivot + "/" + strconv.FormatFloat(k.Amount, 'g', -1, 64) + "/" + strconv.Itoa(k.Hops)
}

// Entry is the best result found for a combination. Route is nil when no
// viable cycle exists; the negative result is cached too.
type Entry struct {
	Profit float64
	Route  *route.CandidateRoute
}

// Found reports whether the entry holds a route.
func (e Entry) Found() bool {
	return e.Route != nil
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hitRate"`
}

// Cache is a concurrent key -> best-result store scoped to one cycle.
// It avoids duplicate work on a best-effort basis: two workers may compute the
// same key concurrently, the first insert wins and both observe a complete entry.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]Entry

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[Key]Entry),
	}
}

// Get looks a key up, counting a hit or a miss.
func (c *Cache) Get(k Key) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return e, ok
}

// Peek looks a key up without touching the counters.
func (c *Cache) Peek(k Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[k]
	return e, ok
}

// Put stores e under k unless an entry already exists, and returns the entry
// that is stored after the call.
func (c *Cache) Put(k Key, e Entry) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[k]; ok {
		return existing
	}
	c.entries[k] = e
	return e
}

// GetOrCompute returns the cached entry for k, or runs compute and inserts its
// result if no other worker did in the meantime. compute runs without any lock held.
func (c *Cache) GetOrCompute(k Key, compute func() Entry) (entry Entry, hit bool) {
	if e, ok := c.Get(k); ok {
		return e, true
	}
	return c.Put(k, compute()), false
}

// Entries returns a copy of every stored entry keyed by combination.
func (c *Cache) Entries() map[Key]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[Key]Entry, len(c.entries))
	for k, e := range c.entries {
		out[k] = e
	}
	return out
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every entry and zeroes the counters.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[Key]Entry)
	c.mu.Unlock()

	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats returns the hit/miss counters and the hit rate in [0,1].
func (c *Cache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{
		Hits:    hits,
		Misses:  misses,
		Entries: c.Len(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

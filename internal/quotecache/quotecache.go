// Package quotecache holds the latest known quote per symbol. Entries
// are only ever replaced by newer fetches, never evicted for age: a
// stale quote is strictly better for chart continuity than no quote.
package quotecache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"marketdata/internal/provider"
)

// entry wraps a quote with the time it was stored.
type entry struct {
	quote     provider.Quote
	fetchedAt time.Time
}

type Cache struct {
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Put stores the quote for its symbol, replacing any previous entry and
// timestamping it now. Invalid quotes are dropped.
func (c *Cache) Put(q provider.Quote) {
	if !q.Valid() {
		return
	}
	key := strings.ToUpper(q.Symbol)
	c.mu.Lock()
	c.entries[key] = entry{quote: q, fetchedAt: c.now()}
	c.mu.Unlock()
}

// Get returns the last written quote regardless of age. It never blocks
// on anything but the lock.
func (c *Cache) Get(symbol string) (provider.Quote, bool) {
	c.mu.RLock()
	e, ok := c.entries[strings.ToUpper(symbol)]
	c.mu.RUnlock()
	return e.quote, ok
}

// GetAll returns every cached quote ordered by rank ascending, unranked
// quotes last, ties broken by symbol.
func (c *Cache) GetAll() []provider.Quote {
	c.mu.RLock()
	out := make([]provider.Quote, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.quote)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Rank, out[j].Rank
		if ri == 0 {
			ri = int(^uint(0) >> 1)
		}
		if rj == 0 {
			rj = int(^uint(0) >> 1)
		}
		if ri != rj {
			return ri < rj
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// FetchedAt reports when the symbol's entry was stored.
func (c *Cache) FetchedAt(symbol string) (time.Time, bool) {
	c.mu.RLock()
	e, ok := c.entries[strings.ToUpper(symbol)]
	c.mu.RUnlock()
	return e.fetchedAt, ok
}

// IsStale reports whether the symbol's entry is older than maxAge.
// Staleness is advisory for schedulers and consumers; it never triggers
// eviction. A symbol with no entry is stale.
func (c *Cache) IsStale(symbol string, maxAge time.Duration) bool {
	c.mu.RLock()
	e, ok := c.entries[strings.ToUpper(symbol)]
	c.mu.RUnlock()
	if !ok {
		return true
	}
	return c.now().Sub(e.fetchedAt) > maxAge
}

// Len reports the number of cached symbols.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

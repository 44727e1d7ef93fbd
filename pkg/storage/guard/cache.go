package guard

import (
	"sync"
	"time"

	"github.com/countkeeper/countkeeper/pkg/storage"
)

// readCache holds the last successful read per table for a bounded time.
// Any write to a table drops its entry immediately. The cache is an
// optimization only; the coordinator re-validates before every mutation, so
// correctness never depends on an entry being fresh.
type readCache struct {
	sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	rows      []storage.Row
	fetchedAt time.Time
}

func newReadCache(ttl time.Duration) *readCache {
	return &readCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *readCache) Get(table string) ([]storage.Row, bool) {
	c.Lock()
	defer c.Unlock()

	entry, ok := c.entries[table]
	if !ok {
		return nil, false
	}
	if time.Since(entry.fetchedAt) > c.ttl {
		delete(c.entries, table)
		return nil, false
	}

	out := make([]storage.Row, len(entry.rows))
	for i, row := range entry.rows {
		out[i] = append(storage.Row(nil), row...)
	}
	return out, true
}

func (c *readCache) Set(table string, rows []storage.Row) {
	copied := make([]storage.Row, len(rows))
	for i, row := range rows {
		copied[i] = append(storage.Row(nil), row...)
	}

	c.Lock()
	defer c.Unlock()
	c.entries[table] = cacheEntry{rows: copied, fetchedAt: time.Now()}
}

func (c *readCache) Invalidate(table string) {
	c.Lock()
	defer c.Unlock()
	delete(c.entries, table)
}

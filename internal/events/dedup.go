package events

import (
	"sync"
	"time"
)

// DedupCache remembers recently processed event keys. It is bounded both by
// entry count and by age: duplicates only ever arrive within a short
// mutation-delivery window, so old keys are safe to forget.
type DedupCache struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	entries map[string]time.Time
	order   []string // insertion order, for size eviction
}

func NewDedupCache(max int, window time.Duration) *DedupCache {
	if max <= 0 {
		max = 4096
	}
	return &DedupCache{
		max:     max,
		window:  window,
		now:     time.Now,
		entries: make(map[string]time.Time, max),
	}
}

// Contains reports whether key was added within the retention window.
func (c *DedupCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	added, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.window > 0 && c.now().Sub(added) > c.window {
		return false
	}
	return true
}

// Add records key, evicting expired and then oldest entries as needed.
func (c *DedupCache) Add(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.evictExpired(now)
	for len(c.entries) >= c.max && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = now
}

// Len returns the number of retained keys.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *DedupCache) evictExpired(now time.Time) {
	if c.window <= 0 {
		return
	}
	kept := c.order[:0]
	for _, key := range c.order {
		added, ok := c.entries[key]
		if !ok {
			continue
		}
		if now.Sub(added) > c.window {
			delete(c.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
}

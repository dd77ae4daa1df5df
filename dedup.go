package main

import "sync"

// runCache is the bounded dedup set for (competitionId, runId) pairs. It is an
// approximation of a time-windowed cache: past the high-water mark the oldest
// entries are trimmed down to the retained window, not tracked per-access.
// Process-lifetime only; losing it on restart is an accepted trade-off.
type runCache struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	order     []string
	highWater int
	retain    int
}

func newRunCache(highWater, retain int) *runCache {
	if highWater <= 0 {
		highWater = 10000
	}
	if retain <= 0 || retain > highWater {
		retain = highWater * 4 / 5
	}
	return &runCache{
		seen:      make(map[string]struct{}),
		highWater: highWater,
		retain:    retain,
	}
}

func (c *runCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.seen[key]
	return ok
}

// Add records a confirmed-accepted submission. Returns false when the key was
// already present.
func (c *runCache) Add(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	c.order = append(c.order, key)

	if len(c.order) > c.highWater {
		cut := len(c.order) - c.retain
		for _, old := range c.order[:cut] {
			delete(c.seen, old)
		}
		c.order = append([]string(nil), c.order[cut:]...)
	}
	return true
}

func (c *runCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

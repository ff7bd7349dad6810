package pods

import (
	"sync"
	"time"

	"podvault/internal/models"
)

// openPodCache is the only shared mutable state between requests: a short
// lived per-plan view of open pods. Any pod mutation invalidates it.
type openPodCache struct {
	mu      sync.Mutex
	entries map[string]openPodEntry
}

type openPodEntry struct {
	pods    []models.Pod
	expires time.Time
}

func (c *openPodCache) get(plan string, now time.Time) ([]models.Pod, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[plan]
	if !ok || now.After(entry.expires) {
		return nil, false
	}
	return entry.pods, true
}

func (c *openPodCache) put(plan string, pods []models.Pod, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[plan] = openPodEntry{pods: pods, expires: now.Add(openPodCacheTTL)}
}

func (c *openPodCache) invalidate(plan string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, plan)
}

func (c *openPodCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]openPodEntry)
}

// Package cachesvc implements page.Cache over redis, or in process memory.
package cachesvc

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/vitrine/core/page"
)

type entry struct {
	val       []byte
	expiresAt time.Time
}

// MemoryCache is an in-memory page.Cache whose entries expire after a TTL.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry

	stop     chan struct{}
	stopOnce sync.Once
}

var _ page.Cache = (*MemoryCache)(nil)

// NewMemoryCache returns a cache keeping entries for ttl. Expired entries are swept every minute until Stop.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	c := &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	go c.cleanupLoop(time.Minute)
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, page.ErrCacheMiss
	}
	return append([]byte(nil), e.val...), nil
}

func (c *MemoryCache) Set(_ context.Context, key string, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{val: append([]byte(nil), val...), expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Len returns the number of entries, expired ones included until swept.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) sweep() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// Stop ends the background sweeping.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

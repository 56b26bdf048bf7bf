package cache

import (
	"context"
	"sync"
	"time"

	"github.com/invoicehub/backend/internal/domain/numbering"
)

// allocationEntry holds a cached allocation with its expiration
type allocationEntry struct {
	allocation numbering.Allocation
	expiresAt  time.Time
}

// InMemoryAllocationCache implements AllocationCache using an in-memory map.
// Suitable for single-instance deployments and testing; retried requests
// served by another instance miss the cache and consume a fresh number.
type InMemoryAllocationCache struct {
	mu        sync.RWMutex
	entries   map[string]allocationEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryAllocationCache creates a new in-memory allocation cache.
// It starts a background goroutine to clean up expired entries.
func NewInMemoryAllocationCache() *InMemoryAllocationCache {
	c := &InMemoryAllocationCache{
		entries:  make(map[string]allocationEntry),
		stopChan: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	return c
}

// Get returns the cached allocation for the key, if present and unexpired
func (c *InMemoryAllocationCache) Get(ctx context.Context, key string) (*numbering.Allocation, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[key]
	if !exists || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}

	allocation := e.allocation
	return &allocation, true, nil
}

// Put stores an allocation under the key with a TTL
func (c *InMemoryAllocationCache) Put(ctx context.Context, key string, allocation *numbering.Allocation, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = allocationEntry{
		allocation: *allocation,
		expiresAt:  time.Now().Add(ttl),
	}
	return nil
}

// Close stops the cleanup goroutine and releases resources.
// Safe to call multiple times.
func (c *InMemoryAllocationCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (c *InMemoryAllocationCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryAllocationCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Size returns the number of entries in the cache (for testing/monitoring)
func (c *InMemoryAllocationCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ensure InMemoryAllocationCache implements AllocationCache
var _ numbering.AllocationCache = (*InMemoryAllocationCache)(nil)

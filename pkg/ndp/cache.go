package ndp

import (
	"sync"
	"time"

	"github.com/lambdafunc/usertcpip/pkg/common"
)

// DefaultCacheTimeout mirrors pkg/arp's default; RFC 4861 leaves the
// reachable-time constant to the stack, typically tens of seconds.
const DefaultCacheTimeout = 5 * time.Minute

// DefaultNegativeCacheTimeout bounds how long a failed resolution is
// remembered before the gate retries it.
const DefaultNegativeCacheTimeout = 10 * time.Second

// CacheEntry is a single neighbor cache entry.
type CacheEntry struct {
	MAC       common.MACAddress
	ExpiresAt time.Time
}

func (e *CacheEntry) isExpired() bool { return time.Now().After(e.ExpiresAt) }

// Cache is the IPv6 analogue of pkg/arp.Cache: a thread-safe map from
// IPv6 address to resolved MAC address, with a parallel negative-cache
// set for addresses whose resolution has already failed.
type Cache struct {
	mu       sync.RWMutex
	entries  map[common.IPv6Address]*CacheEntry
	negative map[common.IPv6Address]time.Time
	timeout  time.Duration
	negTTL   time.Duration
}

// NewCache creates a neighbor cache with the given positive-entry
// timeout.
func NewCache(timeout time.Duration) *Cache {
	return &Cache{
		entries:  make(map[common.IPv6Address]*CacheEntry),
		negative: make(map[common.IPv6Address]time.Time),
		timeout:  timeout,
		negTTL:   DefaultNegativeCacheTimeout,
	}
}

// NewDefaultCache creates a neighbor cache with the default timeout.
func NewDefaultCache() *Cache { return NewCache(DefaultCacheTimeout) }

// Add records a resolved neighbor, clearing any negative-cache entry for it.
func (c *Cache) Add(ip common.IPv6Address, mac common.MACAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ip] = &CacheEntry{MAC: mac, ExpiresAt: time.Now().Add(c.timeout)}
	delete(c.negative, ip)
}

// Get returns the cached MAC for ip, if present and unexpired.
func (c *Cache) Get(ip common.IPv6Address) (common.MACAddress, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[ip]
	if !ok || entry.isExpired() {
		return common.MACAddress{}, false
	}
	return entry.MAC, true
}

// MarkResolutionFailed records a failed resolution attempt for ip.
func (c *Cache) MarkResolutionFailed(ip common.IPv6Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.negative[ip] = time.Now().Add(c.negTTL)
}

// IsNegativelyCached reports whether ip has an unexpired negative entry.
func (c *Cache) IsNegativelyCached(ip common.IPv6Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	expiry, ok := c.negative[ip]
	return ok && time.Now().Before(expiry)
}

// Size returns the number of entries currently in the cache, including
// expired ones not yet swept.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup removes expired positive and negative entries, returning the
// count removed. Called from the dispatcher/timer goroutine's periodic
// sweep rather than from a cache-owned goroutine, to keep the stack's
// goroutine count fixed at three.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	now := time.Now()
	for ip, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, ip)
			removed++
		}
	}
	for ip, expiry := range c.negative {
		if now.After(expiry) {
			delete(c.negative, ip)
			removed++
		}
	}
	return removed
}

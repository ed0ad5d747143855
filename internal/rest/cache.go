package rest

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long a cached read may serve repeated calls.
const DefaultCacheTTL = 60 * time.Second

type cacheEntry struct {
	payload json.RawMessage
	at      time.Time // capture time
}

func (e cacheEntry) fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.at) < ttl
}

// responseCache is a TTL cache of successful GET payloads keyed by
// endpoint+params. Entries older than the TTL are treated as absent.
type responseCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &responseCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *responseCache) get(key string, now time.Time) (json.RawMessage, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.fresh(now, c.ttl) {
		c.mu.Lock()
		// re-check under the write lock; a fresher write may have landed
		if e2, ok := c.entries[key]; ok && !e2.fresh(now, c.ttl) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.payload, true
}

func (c *responseCache) put(key string, payload json.RawMessage, now time.Time) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{payload: payload, at: now}
	c.mu.Unlock()
}

// invalidate removes entries whose key equals or starts with prefix and
// returns how many were dropped.
func (c *responseCache) invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// invalidatePattern removes entries whose key matches re.
func (c *responseCache) invalidatePattern(re *regexp.Regexp) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if re.MatchString(k) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// CacheKey derives the deterministic cache key for path and params.
// url.Values.Encode sorts by key, so equal parameter sets always collide.
func CacheKey(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

// Package tokens keeps the set of API tokens allowed to bypass anonymous
// rate limits, along with the per-token request limit.
package tokens

import (
	"errors"
	"sync"
)

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token store has not been loaded yet.
	ErrTokenStoreNotReady = errors.New("token store not ready")
)

// Entry is a single API token record.
type Entry struct {
	RateLimit int
	Comment   string
}

// Cache is an in-memory snapshot of the token table.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache returns an empty cache that is not Ready until the first Replace.
func NewCache() *Cache {
	return &Cache{}
}

// Replace swaps the whole snapshot. The map is copied.
func (c *Cache) Replace(m map[string]Entry) {
	entries := make(map[string]Entry, len(m))
	for k, v := range m {
		entries[k] = v
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

// Ready reports whether the cache has been loaded at least once.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries != nil
}

// Valid checks whether token is known.
func (c *Cache) Valid(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[token]
	return ok
}

// RateLimit returns the request limit for token, or 0 for unknown tokens,
// which disables token rate limiting for them.
func (c *Cache) RateLimit(token string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[token].RateLimit
}

// Validate is the keyauth validator for this cache.
func (c *Cache) Validate(token string) error {
	if !c.Ready() {
		return ErrTokenStoreNotReady
	}
	if !c.Valid(token) {
		return ErrInvalidAPIKey
	}
	return nil
}

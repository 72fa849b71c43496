// Package cache stores short-lived catalog responses and rate-limit markers.
package cache

import (
	stderrors "errors"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = stderrors.New("cache: miss")

// CacheService represents a generic cache service
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// Key builds a memcache-safe key from an arbitrary string such as a URL.
// Memcache keys are limited to 250 bytes without spaces, so raw is hashed.
func Key(prefix, raw string) string {
	return prefix + ":" + strconv.FormatUint(xxhash.Sum64String(raw), 16)
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache is an in-process CacheService. It stands in when no memcache
// server is configured or reachable, so rate-limit markers still hold for the
// life of the process.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: map[string]memoryEntry{}, now: time.Now}
}

// Get retrieves a value, honoring expiration
func (m *MemoryCache) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.items, key)
		return nil, ErrMiss
	}
	return e.value, nil
}

// Set stores a value. A zero expiration never expires.
func (m *MemoryCache) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: append([]byte(nil), value...)}
	if expiration > 0 {
		e.expires = m.now().Add(expiration)
	}
	m.items[key] = e
	return nil
}

// Delete removes a value
func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

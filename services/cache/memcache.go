package cache

import (
	stderrors "errors"
	"time"

	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/pkg/errors"

	"github.com/bradfitz/gomemcache/memcache"
)

const provider = "memcache"

// MemcacheService implements CacheService using memcache
type MemcacheService struct {
	client *memcache.Client
	log    *logger.Logger
}

// NewMemcacheService creates a new memcache service
func NewMemcacheService(serverAddr string) *MemcacheService {
	client := memcache.New(serverAddr)
	client.Timeout = 500 * time.Millisecond
	return &MemcacheService{
		client: client,
		log:    logger.ForCache().WithField("addr", serverAddr),
	}
}

// Ping checks that the server answers
func (m *MemcacheService) Ping() error {
	if err := m.client.Ping(); err != nil {
		return errors.NewCache(provider, "ping", err)
	}
	return nil
}

// Get retrieves a value from memcache. A miss is reported as ErrMiss.
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if stderrors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrMiss
	}
	if err != nil {
		m.log.Debug().Err(err).Str("key", key).Msg("Cache get failed")
		return nil, errors.NewCache(provider, "get "+key, err)
	}
	return item.Value, nil
}

// Set stores a value in memcache with an expiration time
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	err := m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
	if err != nil {
		m.log.Debug().Err(err).Str("key", key).Msg("Cache set failed")
		return errors.NewCache(provider, "set "+key, err)
	}
	return nil
}

// Delete removes a value from memcache. Deleting a missing key is not an error.
func (m *MemcacheService) Delete(key string) error {
	err := m.client.Delete(key)
	if err == nil || stderrors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return errors.NewCache(provider, "delete "+key, err)
}

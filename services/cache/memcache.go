package cache

import (
	stderrors "errors"
	"time"

	"sjsage522/storefrontscraper/pkg/errors"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheService implements CacheService on memcached, so block cooldowns
// survive restarts and are shared between scraper processes.
type MemcacheService struct {
	client *memcache.Client
}

var _ CacheService = (*MemcacheService)(nil)

// NewMemcacheService creates a new memcache service
func NewMemcacheService(serverAddr string) *MemcacheService {
	return &MemcacheService{
		client: memcache.New(serverAddr),
	}
}

// Ping checks that the server answers
func (m *MemcacheService) Ping() error {
	if err := m.client.Ping(); err != nil {
		return errors.NewCache("memcache", "server not reachable", err)
	}
	return nil
}

// Get retrieves a value from memcache
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if stderrors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.NewCache("memcache", "get "+key, err)
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
		return errors.NewCache("memcache", "set "+key, err)
	}
	return nil
}

// Delete removes a value from memcache
func (m *MemcacheService) Delete(key string) error {
	err := m.client.Delete(key)
	if err != nil && !stderrors.Is(err, memcache.ErrCacheMiss) {
		return errors.NewCache("memcache", "delete "+key, err)
	}
	return nil
}

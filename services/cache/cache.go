package cache

import (
	stderrors "errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired
var ErrCacheMiss = stderrors.New("cache: miss")

// CacheService is the small key/value contract the fetch chain keeps its
// block cooldowns in.
type CacheService interface {
	// Get retrieves a value, or ErrCacheMiss
	Get(key string) ([]byte, error)

	// Set stores a value with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value
	Delete(key string) error
}

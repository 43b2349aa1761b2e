package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This test requires a running memcached instance
// If memcached is not available, the test will be skipped
func TestMemcacheService(t *testing.T) {
	mc := NewMemcacheService("localhost:11211")
	if err := mc.Ping(); err != nil {
		t.Skip("Memcached is not available, skipping test")
	}

	err := mc.Set("ozon.ru_blocked", []byte("300"), 2*time.Second)
	require.NoError(t, err)

	value, err := mc.Get("ozon.ru_blocked")
	require.NoError(t, err)
	assert.Equal(t, "300", string(value))

	require.NoError(t, mc.Delete("ozon.ru_blocked"))

	_, err = mc.Get("ozon.ru_blocked")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, mc.Delete("ozon.ru_blocked"), "deleting a missing key is not an error")
}

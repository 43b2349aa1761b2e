package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.Get("missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set("host_blocked", []byte("60"), time.Minute))
	value, err := c.Get("host_blocked")
	require.NoError(t, err)
	assert.Equal(t, "60", string(value))

	now = now.Add(59 * time.Second)
	_, err = c.Get("host_blocked")
	assert.NoError(t, err)

	now = now.Add(time.Second)
	_, err = c.Get("host_blocked")
	assert.ErrorIs(t, err, ErrCacheMiss, "entries expire at their deadline")
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache()
	require.NoError(t, c.Set("k", []byte("v"), 0))

	now := time.Now().Add(24 * time.Hour)
	c.now = func() time.Time { return now }
	_, err := c.Get("k")
	require.NoError(t, err, "zero expiration never expires")

	require.NoError(t, c.Delete("k"))
	_, err = c.Get("k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	c := NewMemoryCache()
	buf := []byte("abc")
	require.NoError(t, c.Set("k", buf, 0))
	buf[0] = 'x'

	value, err := c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(value))
}

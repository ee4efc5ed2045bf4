package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewMemoryCacheWithClock(func() time.Time { return now })

	c.Set("k", []byte("v"), time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	now = now.Add(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should expire exactly at its TTL")
}

func TestMemoryCacheSetNX(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewMemoryCacheWithClock(func() time.Time { return now })

	assert.True(t, c.SetNX("k", []byte("first"), time.Minute))
	assert.False(t, c.SetNX("k", []byte("second"), time.Minute))
	got, _ := c.Get("k")
	assert.Equal(t, "first", string(got))

	now = now.Add(2 * time.Minute)
	assert.True(t, c.SetNX("k", []byte("third"), time.Minute))
}

func TestMemoryCacheIncr(t *testing.T) {
	c := NewMemoryCache()
	for want := int64(1); want <= 3; want++ {
		n, err := c.Incr("count", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	c.Set("text", []byte("abc"), 0)
	_, err := c.Incr("text", 0)
	assert.Error(t, err)
}

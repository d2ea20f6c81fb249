package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetAndGet(t *testing.T) {
	c := NewCacheWithOptions(time.Minute, 0, 10)

	c.Set("key", "value")
	got, found := c.Get("key")
	require.True(t, found)
	assert.Equal(t, "value", got)

	_, found = c.Get("missing")
	assert.False(t, found)
}

func TestCacheExpiration(t *testing.T) {
	c := NewCacheWithOptions(time.Minute, 0, 10)

	c.SetWithExpiration("short", "value", 10*time.Millisecond)
	_, found := c.Get("short")
	require.True(t, found)

	time.Sleep(20 * time.Millisecond)
	_, found = c.Get("short")
	assert.False(t, found)
}

func TestCacheZeroExpirationNeverExpires(t *testing.T) {
	c := NewCacheWithOptions(time.Minute, 0, 10)

	c.SetWithExpiration("forever", "value", 0)
	time.Sleep(10 * time.Millisecond)

	_, found := c.Get("forever")
	assert.True(t, found)
}

func TestCacheDeleteAndFlush(t *testing.T) {
	c := NewCacheWithOptions(time.Minute, 0, 10)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	_, found := c.Get("a")
	assert.False(t, found)

	c.Flush()
	_, found = c.Get("b")
	assert.False(t, found)
}

func TestCacheEvictsWhenFull(t *testing.T) {
	c := NewCacheWithOptions(time.Minute, 0, 2)

	c.SetWithExpiration("old", 1, 10*time.Second)
	c.SetWithExpiration("newer", 2, time.Minute)
	c.SetWithExpiration("newest", 3, time.Minute)

	// The entry closest to expiry was evicted to make room
	_, found := c.Get("old")
	assert.False(t, found)
	_, found = c.Get("newest")
	assert.True(t, found)
}

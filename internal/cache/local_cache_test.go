package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalCacheGetSet(t *testing.T) {
	c := NewLocalCache[string](10, time.Minute)
	defer c.Close()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", "1", 0)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	c.Set("a", "2", 0)
	v, _ = c.Get("a")
	assert.Equal(t, "2", v)
	assert.Equal(t, 1, c.Len())

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLocalCacheExpiry(t *testing.T) {
	c := NewLocalCache[bool](10, time.Minute)
	defer c.Close()

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("listed", true, time.Second)
	_, ok := c.Get("listed")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("listed")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLocalCacheEviction(t *testing.T) {
	c := NewLocalCache[int](2, time.Minute)
	defer c.Close()

	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)
	c.Set("middle", 3, time.Minute)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("long")
	assert.True(t, ok)
}

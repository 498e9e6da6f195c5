package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdkroon/adslot-backend/internal/model"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisAvailability, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisAvailability(rdb, ttl), mr
}

func sampleCities() []model.CityAvailability {
	return []model.CityAvailability{
		{City: "Utrecht", ScreensTotal: 4, ScreensWithSpace: 3, ScreensFull: 1},
		{City: "Zwolle", ScreensTotal: 2, ScreensWithSpace: 0, ScreensFull: 2},
	}
}

func TestAvailabilityCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, 45*time.Second)
	ctx := context.Background()

	_, ok := c.Get(ctx)
	assert.False(t, ok, "cold cache misses")

	c.Set(ctx, sampleCities())
	got, ok := c.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, sampleCities(), got)
}

func TestAvailabilityCacheTTL(t *testing.T) {
	c, mr := newTestCache(t, 45*time.Second)
	ctx := context.Background()

	c.Set(ctx, sampleCities())
	mr.FastForward(44 * time.Second)
	_, ok := c.Get(ctx)
	assert.True(t, ok, "entry survives within the TTL")

	mr.FastForward(2 * time.Second)
	_, ok = c.Get(ctx)
	assert.False(t, ok, "entry expires after the TTL")
}

func TestAvailabilityCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t, 45*time.Second)
	ctx := context.Background()

	c.Set(ctx, sampleCities())
	require.NoError(t, c.Invalidate(ctx))
	_, ok := c.Get(ctx)
	assert.False(t, ok, "invalidation removes the entry before the TTL")
}

func TestAvailabilityCacheDropsCorruptEntry(t *testing.T) {
	c, mr := newTestCache(t, 45*time.Second)
	ctx := context.Background()

	require.NoError(t, mr.Set(availabilityKey, "{not json"))
	_, ok := c.Get(ctx)
	assert.False(t, ok)
	assert.False(t, mr.Exists(availabilityKey), "a corrupt entry is deleted on read")
}

func TestAvailabilityCacheWithoutRedis(t *testing.T) {
	c := NewRedisAvailability(nil, time.Second)
	ctx := context.Background()

	_, ok := c.Get(ctx)
	assert.False(t, ok)
	c.Set(ctx, sampleCities()) // must not panic
	assert.NoError(t, c.Invalidate(ctx))
}

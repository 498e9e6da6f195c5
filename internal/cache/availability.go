// Package cache implements the shared city availability cache.  Capacity
// reads dominate the public signup flow while capacity-changing writes are
// rare, so bounded staleness is acceptable — except at the moment of a
// state change, which must synchronously invalidate the cached aggregate
// before the write is reported as successful.  The cache lives in Redis
// rather than process memory so every service instance observes an
// invalidation at the same time.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jdkroon/adslot-backend/internal/model"
)

// AvailabilityStore is the keyed store behind the availability cache.
// Implementations must support TTL expiry and explicit delete.
type AvailabilityStore interface {
	// Get returns the cached city aggregates, or ok=false on a miss.
	Get(ctx context.Context) ([]model.CityAvailability, bool)
	// Set stores the aggregates for the configured TTL.
	Set(ctx context.Context, cities []model.CityAvailability)
	// Invalidate removes the cached aggregates.  It must be called
	// synchronously by every capacity-changing commit before the commit is
	// reported as successful.
	Invalidate(ctx context.Context) error
}

const availabilityKey = "availability:cities"

// RedisAvailability is the Redis implementation of AvailabilityStore.
type RedisAvailability struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisAvailability builds a Redis-backed availability cache with the
// given TTL.  The client may be nil, in which case every Get is a miss and
// Set/Invalidate are no-ops: the service degrades to hitting the ledger
// query directly.
func NewRedisAvailability(rdb *redis.Client, ttl time.Duration) *RedisAvailability {
	if ttl <= 0 {
		ttl = 45 * time.Second
	}
	return &RedisAvailability{rdb: rdb, ttl: ttl}
}

// Get returns the cached aggregates if present and decodable.
func (c *RedisAvailability) Get(ctx context.Context) ([]model.CityAvailability, bool) {
	if c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, availabilityKey).Bytes()
	if err != nil {
		return nil, false
	}
	var cities []model.CityAvailability
	if err := json.Unmarshal(raw, &cities); err != nil {
		// Corrupt entry: drop it so the next read repopulates.
		_ = c.rdb.Del(ctx, availabilityKey).Err()
		return nil, false
	}
	return cities, true
}

// Set stores the aggregates under the configured TTL.  Failures are
// ignored; the cache is an optimization, never a source of truth.
func (c *RedisAvailability) Set(ctx context.Context, cities []model.CityAvailability) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(cities)
	if err != nil {
		return
	}
	_ = c.rdb.SetEx(ctx, availabilityKey, raw, c.ttl).Err()
}

// Invalidate deletes the cached aggregates.  Unlike Set, the error is
// returned to the caller: a capacity-changing commit must know whether the
// stale entry is really gone before it reports success.
func (c *RedisAvailability) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, availabilityKey).Err()
}

package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"carhub/pkg/domain"
)

// SavedCarsCache fronts the saved-cars view. Entries expire on TTL and are
// invalidated after every wishlist mutation.
type SavedCarsCache interface {
	Get(userID string) ([]domain.Car, bool)
	Set(userID string, cars []domain.Car)
	Invalidate(userID string)
}

// RedisSavedCarsCache implements SavedCarsCache on Redis.
type RedisSavedCarsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSavedCarsCache builds a Redis-backed saved-cars cache.
func NewRedisSavedCarsCache(addr, password string, ttl time.Duration) *RedisSavedCarsCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisSavedCarsCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

func savedCarsKey(userID string) string {
	return "carhub:saved-cars:" + userID
}

// Get returns the cached view. Cache failures read as misses.
func (c *RedisSavedCarsCache) Get(userID string) ([]domain.Car, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, err := c.client.Get(ctx, savedCarsKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("saved-cars cache read failed", "err", err)
		return nil, false
	}
	var cars []domain.Car
	if err := json.Unmarshal(data, &cars); err != nil {
		return nil, false
	}
	return cars, true
}

// Set stores the view with TTL. Failures are logged, not surfaced; the cache
// is an optimization in front of the store.
func (c *RedisSavedCarsCache) Set(userID string, cars []domain.Car) {
	data, err := json.Marshal(cars)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.client.Set(ctx, savedCarsKey(userID), data, c.ttl).Err(); err != nil {
		slog.Warn("saved-cars cache write failed", "err", err)
	}
}

// Invalidate drops the cached view after a wishlist mutation.
func (c *RedisSavedCarsCache) Invalidate(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.client.Del(ctx, savedCarsKey(userID)).Err(); err != nil && err != redis.Nil {
		slog.Warn("saved-cars cache invalidation failed", "err", err)
	}
}

// NopCache disables caching (demo mode and tests).
type NopCache struct{}

func (NopCache) Get(string) ([]domain.Car, bool) { return nil, false }
func (NopCache) Set(string, []domain.Car)        {}
func (NopCache) Invalidate(string)               {}

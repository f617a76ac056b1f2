// Package dedup holds the expiring "already recorded" markers that keep
// repeated detections of the same person off the ledger.
package dedup

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL spans both shifts of a day plus margin.
const DefaultTTL = 24 * time.Hour

// Key identifies one person's check-in for one shift on one calendar day.
type Key struct {
	PersonID string
	Day      string
	Shift    string
}

func (k Key) String() string {
	return "attendance:" + k.PersonID + ":" + k.Day + ":" + k.Shift
}

// RedisCache stores markers as plain keys with an expiry.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps a shared client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Exists reports whether a marker is present.
func (c *RedisCache) Exists(ctx context.Context, key Key) (bool, error) {
	n, err := c.client.Exists(ctx, key.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Set writes a marker that expires after ttl.
func (c *RedisCache) Set(ctx context.Context, key Key, ttl time.Duration) error {
	return c.client.Set(ctx, key.String(), "1", ttl).Err()
}

// Delete drops a marker.
func (c *RedisCache) Delete(ctx context.Context, key Key) error {
	return c.client.Del(ctx, key.String()).Err()
}

// MemoryCache is a process-local cache for single-node deployments and tests.
// Expired markers stop matching at once but stay in memory until Run's
// janitor removes them.
type MemoryCache struct {
	items *ttlcache.Cache[Key, struct{}]
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: ttlcache.New[Key, struct{}](ttlcache.WithDisableTouchOnHit[Key, struct{}]()),
	}
}

// Run removes expired markers as they fall due, until ctx is done.
func (c *MemoryCache) Run(ctx context.Context) {
	go c.items.Start()
	<-ctx.Done()
	c.items.Stop()
}

// Exists reports whether a live marker is present.
func (c *MemoryCache) Exists(_ context.Context, key Key) (bool, error) {
	return c.items.Get(key) != nil, nil
}

// Set writes a marker that expires after ttl.
func (c *MemoryCache) Set(_ context.Context, key Key, ttl time.Duration) error {
	c.items.Set(key, struct{}{}, ttl)
	return nil
}

// Delete drops a marker.
func (c *MemoryCache) Delete(_ context.Context, key Key) error {
	c.items.Delete(key)
	return nil
}

// Flush drops every marker, as after a cache restart.
func (c *MemoryCache) Flush() {
	c.items.DeleteAll()
}

// Len returns the number of stored markers, including expired ones the
// janitor has not reached yet.
func (c *MemoryCache) Len() int {
	return c.items.Len()
}

package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = Key{PersonID: "p-1", Day: "2026-03-02", Shift: "morning"}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "attendance:p-1:2026-03-02:morning", key.String())
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	c := NewRedisCache(client)

	ok, err := c.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, DefaultTTL))
	ok, err = c.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, DefaultTTL, mr.TTL(key.String()))

	other := key
	other.Shift = "afternoon"
	ok, err = c.Exists(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(DefaultTTL)
	ok, err = c.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "marker must expire after the ttl")
}

func TestRedisCache_Delete(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	c := NewRedisCache(client)
	require.NoError(t, c.Set(ctx, key, time.Hour))
	require.NoError(t, c.Delete(ctx, key))
	assert.False(t, mr.Exists(key.String()))
}

func TestRedisCache_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, err := NewRedisCache(client).Exists(context.Background(), key)
	assert.Error(t, err)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, key, 50*time.Millisecond))
	ok, _ := c.Exists(ctx, key)
	assert.True(t, ok)

	other := key
	other.Shift = "afternoon"
	ok, _ = c.Exists(ctx, other)
	assert.False(t, ok)

	assert.Eventually(t, func() bool {
		ok, _ := c.Exists(ctx, key)
		return !ok
	}, 2*time.Second, 5*time.Millisecond, "marker must expire after the ttl")
}

func TestMemoryCache_JanitorFreesPastDays(t *testing.T) {
	c := NewMemoryCache()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Earlier days' markers are never looked up again once their day is over.
	for day := 1; day <= 5; day++ {
		for p := 0; p < 20; p++ {
			k := Key{PersonID: fmt.Sprintf("p-%d", p), Day: fmt.Sprintf("2026-03-%02d", day), Shift: "morning"}
			require.NoError(t, c.Set(ctx, k, 100*time.Millisecond))
		}
	}
	for p := 0; p < 20; p++ {
		k := Key{PersonID: fmt.Sprintf("p-%d", p), Day: "2026-03-06", Shift: "morning"}
		require.NoError(t, c.Set(ctx, k, time.Hour))
	}
	assert.Equal(t, 120, c.Len())

	assert.Eventually(t, func() bool { return c.Len() == 20 }, 2*time.Second, 5*time.Millisecond,
		"expired markers must be dropped without being looked up")
	ok, _ := c.Exists(ctx, Key{PersonID: "p-0", Day: "2026-03-06", Shift: "morning"})
	assert.True(t, ok)
}

func TestMemoryCache_DeleteAndFlush(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, key, time.Hour))
	require.NoError(t, c.Delete(ctx, key))
	ok, _ := c.Exists(ctx, key)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, time.Hour))
	c.Flush()
	ok, _ = c.Exists(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

package chess

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryEvalCacheTTL(t *testing.T) {
	c := NewMemoryEvalCache(50 * time.Millisecond)
	ctx := context.Background()

	_, ok := c.Get(ctx, "fen")
	require.False(t, ok)

	c.Set(ctx, "fen", -40)
	cp, ok := c.Get(ctx, "fen")
	require.True(t, ok)
	require.Equal(t, -40, cp)

	require.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "fen")
		return !ok
	}, time.Second, 10*time.Millisecond, "entry must expire at the ttl")
}

func TestMemoryEvalCacheReleasesExpired(t *testing.T) {
	c := NewMemoryEvalCache(30 * time.Millisecond)
	ctx := context.Background()
	for i := 0; i < 5000; i++ {
		c.Set(ctx, strconv.Itoa(i), i)
	}
	require.Equal(t, 5000, c.Len())

	time.Sleep(60 * time.Millisecond)
	c.Set(ctx, "fresh", 1)
	require.Equal(t, 1, c.Len())
}

func newRedisCache(t *testing.T) (*RedisEvalCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisEvalCache(rdb, 1500*time.Millisecond, nil), mr
}

func TestRedisEvalCache(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "8/8/8/8/8/8/8/K6k w - - 0 1")
	require.False(t, ok)

	c.Set(ctx, "8/8/8/8/8/8/8/K6k w - - 0 1", 137)
	cp, ok := c.Get(ctx, "8/8/8/8/8/8/8/K6k w - - 0 1")
	require.True(t, ok)
	require.Equal(t, 137, cp)
	require.Equal(t, 1500*time.Millisecond, mr.TTL("eval:8/8/8/8/8/8/8/K6k w - - 0 1"))

	mr.FastForward(1500 * time.Millisecond)
	_, ok = c.Get(ctx, "8/8/8/8/8/8/8/K6k w - - 0 1")
	require.False(t, ok)
}

func TestRedisEvalCacheUnavailableIsMiss(t *testing.T) {
	c, mr := newRedisCache(t)
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Set(ctx, "fen", 10)
	_, ok := c.Get(ctx, "fen")
	require.False(t, ok)
}

func TestRedisEvalCacheIgnoresGarbage(t *testing.T) {
	c, mr := newRedisCache(t)
	require.NoError(t, mr.Set("eval:fen", "not-a-number"))
	_, ok := c.Get(context.Background(), "fen")
	require.False(t, ok)
}

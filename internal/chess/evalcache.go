package chess

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultEvalTTL = 1500 * time.Millisecond

// EvalCache remembers recent evaluations keyed by FEN. Failures read as
// misses.
type EvalCache interface {
	Get(ctx context.Context, fen string) (int, bool)
	Set(ctx context.Context, fen string, evalCP int)
}

// MemoryEvalCache keeps evaluations in process. Expired entries are
// released on the next write.
type MemoryEvalCache struct {
	entries *ttlcache.Cache[string, int]
}

func NewMemoryEvalCache(ttl time.Duration) *MemoryEvalCache {
	if ttl <= 0 {
		ttl = DefaultEvalTTL
	}
	return &MemoryEvalCache{entries: ttlcache.New(
		ttlcache.WithTTL[string, int](ttl),
		ttlcache.WithDisableTouchOnHit[string, int](),
	)}
}

func (c *MemoryEvalCache) Get(_ context.Context, fen string) (int, bool) {
	item := c.entries.Get(fen)
	if item == nil {
		return 0, false
	}
	return item.Value(), true
}

func (c *MemoryEvalCache) Set(_ context.Context, fen string, evalCP int) {
	c.entries.DeleteExpired()
	c.entries.Set(fen, evalCP, ttlcache.DefaultTTL)
}

// Len counts stored entries, expired ones not yet released included.
func (c *MemoryEvalCache) Len() int { return c.entries.Len() }

// RedisEvalCache shares evaluations between processes; expiry is left to
// redis (SET ... PX).
type RedisEvalCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisEvalCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisEvalCache {
	if ttl <= 0 {
		ttl = DefaultEvalTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisEvalCache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *RedisEvalCache) key(fen string) string { return "eval:" + fen }

func (c *RedisEvalCache) Get(ctx context.Context, fen string) (int, bool) {
	raw, err := c.rdb.Get(ctx, c.key(fen)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false
	}
	if err != nil {
		c.logger.Warn("eval_cache_get_failed", zap.Error(err))
		return 0, false
	}
	cp, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return cp, true
}

func (c *RedisEvalCache) Set(ctx context.Context, fen string, evalCP int) {
	if err := c.rdb.Set(ctx, c.key(fen), strconv.Itoa(evalCP), c.ttl).Err(); err != nil {
		c.logger.Warn("eval_cache_set_failed", zap.Error(err))
	}
}

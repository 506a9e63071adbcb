package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Redis is a sliding-window limiter shared by every server instance. Each
// request is a member of a sorted set scored by its arrival time.
type Redis struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedis(rdb *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{rdb: rdb, limit: limit, window: window, prefix: "rate_limit:contact:", now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now()
	windowStart := now.Add(-r.window).UnixNano()
	k := r.prefix + key

	pipe := r.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(windowStart, 10))
	count := pipe.ZCard(ctx, k)
	pipe.ZAdd(ctx, k, &redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	pipe.Expire(ctx, k, r.window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("checking rate limit: %w", err)
	}
	return int(count.Val()) < r.limit, nil
}

// Close releases the redis connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

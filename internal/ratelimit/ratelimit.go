// Package ratelimit throttles contact form submissions per client.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config selects and sizes a limiter.
type Config struct {
	Backend       string // local, redis or off
	PerMinute     int
	Burst         int
	CleanupPeriod time.Duration

	RedisAddress  string
	RedisPassword string
	RedisDB       int
}

// Disabled lets everything through.
type Disabled struct{}

func (Disabled) Allow(context.Context, string) (bool, error) { return true, nil }

// New builds the limiter named by cfg.Backend. The redis backend pings the
// server before returning.
func New(ctx context.Context, cfg Config) (Limiter, error) {
	switch cfg.Backend {
	case "", "off":
		return Disabled{}, nil
	case "local":
		return NewLocal(cfg), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return NewRedis(rdb, cfg.PerMinute, time.Minute), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}

package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Local keeps one token bucket per key in memory.
type Local struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	limiters map[string]*limiterEntry
	now      func() time.Time

	lastCleanup time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewLocal refills PerMinute tokens a minute up to Burst. Keys unused for
// CleanupPeriod (default ten minutes) are forgotten.
func NewLocal(cfg Config) *Local {
	idle := cfg.CleanupPeriod
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &Local{
		limit:       rate.Limit(float64(cfg.PerMinute) / 60),
		burst:       cfg.Burst,
		idle:        idle,
		limiters:    make(map[string]*limiterEntry),
		now:         time.Now,
		lastCleanup: time.Now(),
	}
}

func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > l.idle {
		l.cleanup(now)
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastUsed = now
	return entry.limiter.AllowN(now, 1), nil
}

// Keys reports how many keys are tracked.
func (l *Local) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Local) cleanup(now time.Time) {
	cutoff := now.Add(-l.idle)
	for key, entry := range l.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
	l.lastCleanup = now
}

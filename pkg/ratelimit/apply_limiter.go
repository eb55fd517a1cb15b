// Package ratelimit provides the Redis-backed sliding window limiter used to
// cap per-user probe and submission rates.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SlidingWindowLimiter implements sliding window rate limiting using Redis.
// Keys are scoped by the caller (e.g. "probe:<user_id>").
type SlidingWindowLimiter struct {
	redis  *redis.Client
	rate   int
	window time.Duration
	burst  int
}

// NewSlidingWindowLimiter creates a limiter allowing rate+burst events per
// window.
func NewSlidingWindowLimiter(redisClient *redis.Client, rate int, window time.Duration, burst int) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:  redisClient,
		rate:   rate,
		window: window,
		burst:  burst,
	}
}

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local max_requests = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)

	if count < max_requests then
		redis.call('ZADD', key, now, now .. '-' .. math.random())
		redis.call('PEXPIRE', key, window_ms * 2)
		return 1
	else
		local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
		if #oldest > 0 then
			return -(oldest[2] + window_ms - now)
		end
		return 0
	end
`)

// Allow checks whether an event for key is allowed now. When denied it
// returns the duration until the window frees up.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l.redis == nil {
		// No redis, fail open
		return true, 0
	}

	now := time.Now()
	windowStart := now.Add(-l.window)
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	result, err := slidingWindowScript.Run(ctx, l.redis, []string{redisKey},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		l.rate+l.burst,
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		// Redis error, fail open
		return true, 0
	}

	if result == 1 {
		return true, 0
	}
	if result < 0 {
		return false, time.Duration(-result) * time.Millisecond
	}
	return false, l.window
}

// Debouncer suppresses duplicate work within a time window. Used to collapse
// repeated probe requests for the same application.
type Debouncer struct {
	redis    *redis.Client
	duration time.Duration
	local    map[string]time.Time // fallback when redis is absent
	mu       sync.RWMutex
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(redisClient *redis.Client, duration time.Duration) *Debouncer {
	return &Debouncer{
		redis:    redisClient,
		duration: duration,
		local:    make(map[string]time.Time),
	}
}

// IsDuplicate reports whether key was marked within the debounce window.
func (d *Debouncer) IsDuplicate(ctx context.Context, key string) bool {
	if d.redis != nil {
		exists, err := d.redis.Exists(ctx, "debounce:"+key).Result()
		if err == nil {
			return exists > 0
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	last, ok := d.local[key]
	return ok && time.Since(last) < d.duration
}

// Mark records key so later calls within the window are duplicates.
func (d *Debouncer) Mark(ctx context.Context, key string) {
	if d.redis != nil {
		if err := d.redis.Set(ctx, "debounce:"+key, 1, d.duration).Err(); err == nil {
			return
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.local[key] = time.Now()

	// Opportunistic cleanup
	if len(d.local) > 10000 {
		cutoff := time.Now().Add(-d.duration)
		for k, v := range d.local {
			if v.Before(cutoff) {
				delete(d.local, k)
			}
		}
	}
}

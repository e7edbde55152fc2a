package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the window counter and starts its expiry on
// the first hit. Returns {count, remaining ttl in ms}.
var fixedWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if current == 1 or ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
    ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisWindow is a fixed-window limiter whose counters live in Redis, so
// that every gateway process sees the same count for a client.
//
// When Redis is unreachable the request is allowed and the error is
// returned alongside the Decision.
type RedisWindow struct {
	client redis.Scripter
	max    int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisWindow allows limit requests per key in every window using client.
func NewRedisWindow(client redis.Scripter, limit int, w time.Duration, opts ...Option) *RedisWindow {
	o := buildOptions(opts)
	return &RedisWindow{
		client: client,
		max:    limit,
		window: w,
		prefix: o.prefix,
		now:    o.now,
	}
}

// Allow implements Limiter.
func (r *RedisWindow) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	res, err := fixedWindowScript.Run(ctx, r.client, []string{r.prefix + ":" + key}, r.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		if err == nil {
			err = fmt.Errorf("unexpected reply %v", res)
		}
		return Decision{Allowed: true, Limit: r.max, Remaining: r.max, ResetAt: now.Add(r.window)},
			fmt.Errorf("ratelimit: redis: %w", err)
	}

	count := int(res[0])
	return Decision{
		Allowed:   count <= r.max,
		Limit:     r.max,
		Remaining: max(0, r.max-count),
		ResetAt:   now.Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

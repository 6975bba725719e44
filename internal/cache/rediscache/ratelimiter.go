package rediscache

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultLimiterPrefix = "ratelimit"

// RateLimiter counts hits per key in fixed windows aligned to the window length.
// Each window gets its own redis key, so a burst at the end of one window never
// extends the next.
type RateLimiter struct {
	c      *redis.Client
	prefix string
	now    func() time.Time
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{
		c:      redis.NewClient(&redis.Options{Addr: addr}),
		prefix: defaultLimiterPrefix,
		now:    time.Now,
	}
}

func (rl *RateLimiter) WithPrefix(prefix string) *RateLimiter {
	if prefix != "" {
		rl.prefix = prefix
	}
	return rl
}

func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// Allow records one hit for key and reports whether the window count is still within limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	if window <= 0 {
		return false, 0, errors.New("redis ratelimit: window must be positive")
	}
	bucket := rl.now().UnixNano() / int64(window)
	windowKey := rl.prefix + ":" + key + ":" + strconv.FormatInt(bucket, 10)

	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}

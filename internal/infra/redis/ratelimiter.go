package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-worker/internal/domain"
	"github.com/kursadbilgin/notify-worker/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultSendsPerSec = 100
	sendRateKeyPrefix  = "sendrate"
	windowSeconds      = 1
)

// windowScript counts sends in the current one-second window. The key
// expires with the window, so idle channels cost nothing.
var windowScript = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return n
`)

var _ ratelimit.RateLimiter = (*SendLimiter)(nil)

// SendLimiter caps delivery attempts per channel per second across all
// worker instances sharing the Redis backend. Each channel can carry its
// own cap; channels without one use the default.
type SendLimiter struct {
	client   *goredis.Client
	fallback int64
	limits   map[domain.Channel]int64
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewSendLimiter(client *goredis.Client, defaultPerSec int, perChannel map[domain.Channel]int) (*SendLimiter, error) {
	return newSendLimiter(client, defaultPerSec, perChannel, time.Now, sleepWithContext)
}

func newSendLimiter(
	client *goredis.Client,
	defaultPerSec int,
	perChannel map[domain.Channel]int,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*SendLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if defaultPerSec <= 0 {
		defaultPerSec = defaultSendsPerSec
	}

	limits := make(map[domain.Channel]int64, len(perChannel))
	for ch, limit := range perChannel {
		if !ch.IsValid() {
			return nil, fmt.Errorf("rate limit configured for unknown channel %q", ch)
		}
		if limit > 0 {
			limits[ch] = int64(limit)
		}
	}

	return &SendLimiter{
		client:   client,
		fallback: int64(defaultPerSec),
		limits:   limits,
		now:      nowFn,
		sleep:    sleepFn,
	}, nil
}

func (l *SendLimiter) limitFor(channel domain.Channel) int64 {
	if limit, ok := l.limits[channel]; ok {
		return limit
	}
	return l.fallback
}

// Allow consumes one send slot from the channel's current window.
func (l *SendLimiter) Allow(ctx context.Context, channel domain.Channel) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("send limiter is not initialized")
	}
	if !channel.IsValid() {
		return false, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}

	key := fmt.Sprintf("%s:%s:%d", sendRateKeyPrefix, channel, l.now().UTC().Unix())
	count, err := windowScript.Run(ctx, l.client, []string{key}, windowSeconds).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to count sends for channel %s: %w", channel, err)
	}

	return count <= l.limitFor(channel), nil
}

// Wait blocks until the channel has a free slot. A saturated window
// sleeps to the window boundary instead of polling hot.
func (l *SendLimiter) Wait(ctx context.Context, channel domain.Channel) error {
	for {
		allowed, err := l.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := l.sleep(ctx, l.untilNextWindow()); err != nil {
			return err
		}
	}
}

func (l *SendLimiter) untilNextWindow() time.Duration {
	now := l.now()
	wait := now.Truncate(time.Second).Add(time.Second).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

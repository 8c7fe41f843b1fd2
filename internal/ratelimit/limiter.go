package ratelimit

import (
	"context"

	"github.com/kursadbilgin/notify-worker/internal/domain"
)

// RateLimiter throttles outbound delivery attempts per channel. Wait
// blocks until the channel has capacity or ctx is done; an error means
// the limiter itself is unavailable, not that the send was denied.
type RateLimiter interface {
	Allow(ctx context.Context, channel domain.Channel) (bool, error)
	Wait(ctx context.Context, channel domain.Channel) error
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-worker/internal/backoff"
	"github.com/kursadbilgin/notify-worker/internal/channel"
	"github.com/kursadbilgin/notify-worker/internal/domain"
	"github.com/kursadbilgin/notify-worker/internal/observability"
	"github.com/kursadbilgin/notify-worker/internal/queue"
	"github.com/kursadbilgin/notify-worker/internal/ratelimit"
	"github.com/kursadbilgin/notify-worker/internal/repository"
	"go.uber.org/zap"
)

// Dispatcher drives one delivery job through its requested channels,
// sequentially and strictly one job at a time. Backoff waits happen
// inline; nothing else runs on the worker while a job is in flight.
type Dispatcher struct {
	users    repository.UserRepository
	adapters channel.Registry
	policy   backoff.Policy
	limiter  ratelimit.RateLimiter
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(
	users repository.UserRepository,
	adapters channel.Registry,
	policy backoff.Policy,
	limiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one channel adapter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		users:    users,
		adapters: adapters,
		policy:   policy,
		limiter:  limiter,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepWithContext,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Dispatch processes every requested channel and returns the aggregated
// result. A returned error means the job did not reach a conclusive
// result and should be redelivered.
func (d *Dispatcher) Dispatch(ctx context.Context, job queue.DeliveryJob) (domain.DispatchResult, error) {
	logger := observability.JobLogger(d.logger, ctx, job.NotificationID)

	channels := job.Channels()

	user, err := d.users.GetByID(ctx, job.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// No recipient identity can ever resolve; exhaust every
			// channel without attempting.
			logger.Warn("user record not found, failing job",
				zap.Int64("userId", job.UserID),
			)
			outcomes := make([]domain.ChannelOutcome, 0, len(channels))
			for _, ch := range channels {
				outcomes = append(outcomes, domain.ChannelOutcome{
					Channel:   ch,
					LastError: fmt.Sprintf("user %d not found", job.UserID),
				})
			}
			return domain.AggregateOutcomes(outcomes), nil
		}
		return domain.DispatchResult{}, fmt.Errorf("failed to resolve user %d: %w", job.UserID, err)
	}

	outcomes := make([]domain.ChannelOutcome, 0, len(channels))
	for _, ch := range channels {
		outcome, err := d.dispatchChannel(ctx, logger, *user, ch, job.Title, job.Message)
		if err != nil {
			return domain.DispatchResult{}, err
		}
		outcomes = append(outcomes, outcome)

		if ctx.Err() != nil {
			return domain.DispatchResult{}, fmt.Errorf("dispatch interrupted: %w", ctx.Err())
		}
	}

	return domain.AggregateOutcomes(outcomes), nil
}

func (d *Dispatcher) dispatchChannel(
	ctx context.Context,
	logger *zap.Logger,
	user domain.User,
	ch domain.Channel,
	title string,
	body string,
) (domain.ChannelOutcome, error) {
	outcome := domain.ChannelOutcome{Channel: ch}

	adapter, ok := d.adapters.For(ch)
	if !ok {
		outcome.LastError = fmt.Sprintf("no adapter registered for channel %s", ch)
		logger.Error("channel has no adapter", zap.String("channel", ch.String()))
		return outcome, nil
	}

	recipient := user.Recipient(ch)

	for {
		if d.limiter != nil {
			// A limiter failure says nothing about deliverability; the
			// job must come back rather than terminalize with zero
			// attempts.
			if err := d.limiter.Wait(ctx, ch); err != nil {
				return outcome, fmt.Errorf("rate limiter wait failed for channel %s: %w", ch, err)
			}
		}

		start := d.now()
		err := adapter.Attempt(ctx, recipient, title, body)
		if d.metrics != nil {
			d.metrics.ObserveAttemptDuration(ch.String(), d.now().Sub(start))
			d.metrics.IncDeliveryAttempt(ch.String(), err == nil)
		}
		outcome.Attempts++

		if err == nil {
			outcome.Delivered = true
			logger.Info("channel delivered",
				zap.String("channel", ch.String()),
				zap.Int("attempts", outcome.Attempts),
			)
			return outcome, nil
		}

		outcome.LastError = err.Error()
		logger.Warn("delivery attempt failed",
			zap.String("channel", ch.String()),
			zap.Int("attempt", outcome.Attempts),
			zap.Error(err),
		)

		if !d.policy.Allow(outcome.Attempts) {
			logger.Warn("channel exhausted",
				zap.String("channel", ch.String()),
				zap.Int("attempts", outcome.Attempts),
			)
			return outcome, nil
		}

		if d.metrics != nil {
			d.metrics.IncRetryWait(ch.String())
		}
		if err := d.sleep(ctx, d.policy.Delay(outcome.Attempts)); err != nil {
			return outcome, nil
		}
	}
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

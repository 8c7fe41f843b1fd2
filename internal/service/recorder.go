package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-worker/internal/domain"
	"github.com/kursadbilgin/notify-worker/internal/observability"
	"github.com/kursadbilgin/notify-worker/internal/repository"
	"go.uber.org/zap"
)

const (
	statusWriteRetries    = 3
	statusWriteRetryDelay = 100 * time.Millisecond
)

// StatusRecorder persists the terminal result of a dispatched job. The
// terminal status write is the job's commit point: a returned error
// means nothing durable happened and the job must be redelivered.
type StatusRecorder struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	logger        *zap.Logger
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
}

func NewStatusRecorder(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	logger *zap.Logger,
) (*StatusRecorder, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StatusRecorder{
		notifications: notifications,
		attempts:      attempts,
		logger:        logger,
		now:           time.Now,
		sleep:         sleepWithContext,
	}, nil
}

// Record writes the per-channel audit rows and then the terminal status.
// The audit write is best effort; the status write is retried a few
// times before giving up.
func (r *StatusRecorder) Record(ctx context.Context, notificationID int64, result domain.DispatchResult) error {
	logger := observability.JobLogger(r.logger, ctx, notificationID)

	if r.attempts != nil {
		if err := r.attempts.RecordOutcomes(ctx, notificationID, result.Outcomes); err != nil {
			logger.Warn("failed to record channel outcomes", zap.Error(err))
		}
	}

	var lastErr error
	for i := 0; i < statusWriteRetries; i++ {
		if i > 0 {
			if err := r.sleep(ctx, statusWriteRetryDelay); err != nil {
				break
			}
		}

		var err error
		if result.Status == domain.StatusSent {
			err = r.notifications.MarkSent(ctx, notificationID, result.RetryCount, r.now().UTC())
		} else {
			err = r.notifications.MarkFailed(ctx, notificationID, result.RetryCount)
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}

		lastErr = err
		logger.Warn("terminal status write failed",
			zap.String("status", result.Status.String()),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
	}

	return fmt.Errorf("failed to record terminal status for notification %d: %w", notificationID, lastErr)
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kursadbilgin/notify-worker/internal/domain"
	"github.com/kursadbilgin/notify-worker/internal/observability"
	"github.com/kursadbilgin/notify-worker/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// JobDispatcher runs one delivery job to a conclusive result.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job queue.DeliveryJob) (domain.DispatchResult, error)
}

// OutcomeRecorder persists a job's terminal result.
type OutcomeRecorder interface {
	Record(ctx context.Context, notificationID int64, result domain.DispatchResult) error
}

// WorkerService owns the consumption loop: it pulls delivery jobs off
// the work queue, dispatches them, and records their terminal status.
// The loop outlives every individual job failure; only context
// cancellation stops it.
type WorkerService struct {
	consumer    queue.Consumer
	dispatcher  JobDispatcher
	recorder    OutcomeRecorder
	deadLetter  queue.DeadLetterer
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewWorkerService(
	consumer queue.Consumer,
	dispatcher JobDispatcher,
	recorder OutcomeRecorder,
	deadLetter queue.DeadLetterer,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("queue consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		consumer:    consumer,
		dispatcher:  dispatcher,
		recorder:    recorder,
		deadLetter:  deadLetter,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start blocks until ctx is canceled or a consumer fails permanently.
func (s *WorkerService) Start(ctx context.Context) error {
	s.logger.Info("starting delivery workers",
		zap.String("queue", queue.WorkQueue),
		zap.Int("concurrency", s.concurrency),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 1; i <= s.concurrency; i++ {
		workerID := i
		group.Go(func() error {
			logger := s.logger.With(zap.Int("workerId", workerID))
			logger.Info("worker started")
			defer logger.Info("worker stopped")

			return s.consumer.Consume(groupCtx, queue.WorkQueue, s.processJob)
		})
	}

	return group.Wait()
}

// processJob is the failure boundary for a single job. A nil return acks
// the message; an error nacks it back onto the queue. Panics are
// contained here so one poisonous job cannot take the loop down.
func (s *WorkerService) processJob(ctx context.Context, job queue.DeliveryJob) (err error) {
	logger := observability.JobLogger(s.logger, ctx, job.NotificationID).With(
		zap.Int64("userId", job.UserID),
	)

	s.metrics.IncJobsInFlight()
	defer s.metrics.DecJobsInFlight()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while processing job", zap.Any("panic", rec))
			err = s.divertPanicked(ctx, job, rec)
		}
	}()

	logger.Info("processing job", zap.Strings("types", job.Types))

	result, err := s.dispatcher.Dispatch(ctx, job)
	if err != nil {
		logger.Error("dispatch did not complete", zap.Error(err))
		return fmt.Errorf("failed to dispatch notification %d: %w", job.NotificationID, err)
	}

	if err := s.recorder.Record(ctx, job.NotificationID, result); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The notification row was deleted upstream; redelivery
			// could never succeed.
			logger.Warn("notification record missing, dropping job")
			s.metrics.IncJobProcessed("orphaned")
			return nil
		}
		logger.Error("failed to record job result", zap.Error(err))
		return fmt.Errorf("failed to record result for notification %d: %w", job.NotificationID, err)
	}

	s.metrics.IncJobProcessed(result.Status.String())
	logger.Info("job completed",
		zap.String("status", result.Status.String()),
		zap.Int("retryCount", result.RetryCount),
	)
	return nil
}

// divertPanicked parks a poison job on the DLQ so reconciliation can see
// it; the record stays "pending" but is no longer invisible. Without a
// dead-letterer (or when the divert fails) the job is nacked instead, so
// it is never silently acked away.
func (s *WorkerService) divertPanicked(ctx context.Context, job queue.DeliveryJob, rec any) error {
	if s.deadLetter == nil {
		return fmt.Errorf("job for notification %d panicked: %v", job.NotificationID, rec)
	}

	body, err := json.Marshal(job)
	if err != nil {
		body = []byte(job.String())
	}

	reason := fmt.Sprintf("panic: %v", rec)
	if err := s.deadLetter.DeadLetter(ctx, queue.WorkQueue, body, reason); err != nil {
		return fmt.Errorf("job for notification %d panicked and dead-letter failed: %w", job.NotificationID, err)
	}

	s.metrics.IncDeadLettered()
	s.metrics.IncJobProcessed("panic")
	return nil
}

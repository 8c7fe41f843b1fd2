package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-worker/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQConsumer pulls delivery jobs one at a time and acknowledges
// each only after its handler returns, so a crash mid-job leads to
// redelivery instead of a lost job.
type RabbitMQConsumer struct {
	client     *RabbitMQ
	deadLetter DeadLetterer
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func NewRabbitMQConsumer(client *RabbitMQ, deadLetter DeadLetterer, logger *zap.Logger) *RabbitMQConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:     client,
		deadLetter: deadLetter,
		logger:     logger,
	}
}

func (c *RabbitMQConsumer) SetMetrics(metrics *observability.Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
}

// Consume runs the consumption loop until context cancellation,
// reconnecting with capped exponential backoff on broker failures.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("consumer connection lost, reconnecting",
			zap.String("queue", queue),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	// Prefetch 1: one job is fully dispatched before the next arrives.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.handleDelivery(ctx, queue, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, queue string, d amqp.Delivery, handler MessageHandler) error {
	ctx = observability.WithCorrelationID(ctx, deliveryCorrelationID(d))
	logger := observability.WithContextLogger(c.logger, ctx)

	var job DeliveryJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		logger.Warn("dead-lettering message: invalid JSON", zap.Error(err))
		return c.divertAndAck(ctx, queue, d, fmt.Sprintf("invalid json: %v", err))
	}

	if err := job.Validate(); err != nil {
		logger.Warn("dead-lettering message: validation failed",
			zap.Int64("notificationId", job.NotificationID),
			zap.Error(err),
		)
		return c.divertAndAck(ctx, queue, d, fmt.Sprintf("invalid payload: %v", err))
	}

	if err := handler(ctx, job); err != nil {
		logger.Error("job handler failed, requeueing",
			zap.Int64("notificationId", job.NotificationID),
			zap.Error(err),
		)
		if nackErr := d.Nack(false, true); nackErr != nil {
			return fmt.Errorf("handler failed and nack failed: %w", nackErr)
		}
		return nil
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}

	return nil
}

func (c *RabbitMQConsumer) divertAndAck(ctx context.Context, queue string, d amqp.Delivery, reason string) error {
	if c.deadLetter != nil {
		if err := c.deadLetter.DeadLetter(ctx, queue, d.Body, reason); err != nil {
			// Keep the message on the broker; redelivery retries the divert.
			if nackErr := d.Nack(false, true); nackErr != nil {
				return fmt.Errorf("dead-letter failed and nack failed: %w", nackErr)
			}
			return nil
		}
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack dead-lettered delivery: %w", err)
	}
	c.metrics.IncDeadLettered()
	return nil
}

func deliveryCorrelationID(d amqp.Delivery) string {
	if id := strings.TrimSpace(d.CorrelationId); id != "" {
		return id
	}
	if id := strings.TrimSpace(d.MessageId); id != "" {
		return id
	}
	return uuid.NewString()
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

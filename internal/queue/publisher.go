package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQPublisher publishes payloads to dead-letter queues. The worker
// never enqueues new jobs; publishing work jobs belongs to the intake
// service.
type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

// DeadLetter moves a payload to the dead-letter queue for the given work
// queue, preserving the original body and recording the reason in a
// header.
func (p *RabbitMQPublisher) DeadLetter(ctx context.Context, queue string, body []byte, reason string) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	dlqName := DLQName(queue)
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers: amqp.Table{
			"x-dead-letter-reason": reason,
			"x-origin-queue":       queue,
		},
		Body: body,
	}

	if err := ch.PublishWithContext(ctx, "", dlqName, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish to dlq %q: %w", dlqName, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

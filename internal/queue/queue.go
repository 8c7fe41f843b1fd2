package queue

import (
	"context"
	"fmt"
)

// WorkQueue is the inbound queue delivery jobs arrive on.
const WorkQueue = "notifications"

// DLQName returns the dead-letter queue name for a work queue,
// e.g. dlq.notifications.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// MessageHandler handles a consumed delivery job.
type MessageHandler func(ctx context.Context, job DeliveryJob) error

// Consumer consumes delivery jobs from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// DeadLetterer diverts payloads that can never be processed off the work
// queue so they remain available for reconciliation.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, queue string, body []byte, reason string) error
}

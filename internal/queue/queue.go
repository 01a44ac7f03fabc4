package queue

import (
	"context"
	"fmt"
)

// Publisher publishes payment event messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg PaymentEventMessage) error
	Close() error
}

// RequestPublisher enqueues payment requests, used both by the swap
// lifecycle service and by the retry scanner to re-attempt temporary
// failures.
type RequestPublisher interface {
	PublishRequest(ctx context.Context, msg PaymentRequestMessage) error
}

const (
	// EventsQueue receives terminal payment outcomes for the swap
	// lifecycle service.
	EventsQueue = "payments.events"
	// RequestsQueue carries invoices the swap lifecycle service wants
	// paid.
	RequestsQueue = "payments.requests"
)

// DLQName returns the dead-letter queue name, e.g. dlq.payments.events.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

package queue

import (
	"context"
)

// Publisher publishes dispatch messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DispatchMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg DispatchMessage) error

// Consumer consumes dispatch messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// DispatchQueue carries one message per accepted video event.
	DispatchQueue = "push.dispatch"

	dispatchRoutingKey = "push.dispatch"
)

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.push.dispatch.
func DLQName(queue string) string {
	return "dlq." + queue
}

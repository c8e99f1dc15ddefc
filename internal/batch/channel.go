package batch

import "context"

// DeliveryChannel receives flushed digests. Implementations must be safe for
// concurrent use; the engine treats failures as retryable and requeues the
// digest at the head of the recipient's batch.
type DeliveryChannel interface {
	Deliver(ctx context.Context, recipientKey string, digest []Notification) error
}

// ChannelFunc adapts a function to the DeliveryChannel interface.
type ChannelFunc func(ctx context.Context, recipientKey string, digest []Notification) error

func (f ChannelFunc) Deliver(ctx context.Context, recipientKey string, digest []Notification) error {
	return f(ctx, recipientKey, digest)
}

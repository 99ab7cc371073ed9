package queue

import "context"

const (
	// ExchangeName is the direct exchange failed deliveries are published to.
	ExchangeName = "mailer"
	// FailedQueueName holds failed recipients for a later retry pass.
	FailedQueueName = "mailer.failed"
	// FailedRoutingKey binds FailedQueueName to ExchangeName.
	FailedRoutingKey = "failed"
)

// FailurePublisher hands exhausted recipients off to the broker.
type FailurePublisher interface {
	PublishFailure(ctx context.Context, msg FailureMessage) error
	Close() error
}

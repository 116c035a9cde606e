package notification

import (
	"context"
	"fmt"
)

// AlertPublisher publishes an encoded event for an account.
// Implemented by the Redis store's alert writers.
type AlertPublisher interface {
	Publish(ctx context.Context, accountID string, payload []byte) error
}

// RedisNotifier forwards events to an AlertPublisher (Redis stream + PubSub).
type RedisNotifier struct {
	pub AlertPublisher
}

// NewRedisNotifier creates a notifier backed by pub.
func NewRedisNotifier(pub AlertPublisher) *RedisNotifier {
	return &RedisNotifier{pub: pub}
}

func (r *RedisNotifier) Name() string { return "redis" }

func (r *RedisNotifier) Send(ctx context.Context, alert Alert) error {
	payload, err := alert.Event.JSON()
	if err != nil {
		return fmt.Errorf("redis: marshal: %w", err)
	}
	return r.pub.Publish(ctx, alert.Event.AccountID, payload)
}

package outbox

import (
	"context"
	"time"
)

// Repository persists outbox events. Save and SaveAll run inside the writer's
// transaction; the rest serve the relay.
type Repository interface {
	Save(ctx context.Context, event *OutboxEvent) error
	SaveAll(ctx context.Context, events []*OutboxEvent) error

	// FindUnpublished returns retryable unpublished events, oldest first
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string) error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error

	// DeletePublished purges events relayed longer than olderThan ago
	DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error)

	GetByID(ctx context.Context, eventID string) (*OutboxEvent, error)
	FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error)
}

package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rental-platform/rental-service/pkg/outbox"
)

// CollectionName holds events written alongside rental aggregates
const CollectionName = "outbox_events"

// publishedTTL lets Mongo expire relayed events the publisher has not purged yet
const publishedTTL = 7 * 24 * time.Hour

var oldestFirst = bson.D{{Key: "createdAt", Value: 1}}

// Repository stores outbox events in MongoDB. Writes made with a session
// context join the caller's transaction.
type Repository struct {
	coll *mongo.Collection
}

var _ outbox.Repository = (*Repository)(nil)

func NewRepository(db *mongo.Database) *Repository {
	return &Repository{coll: db.Collection(CollectionName)}
}

func (r *Repository) Save(ctx context.Context, event *outbox.OutboxEvent) error {
	if _, err := r.coll.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to save outbox event %s: %w", event.ID, err)
	}
	return nil
}

func (r *Repository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(events))
	for _, event := range events {
		docs = append(docs, event)
	}
	if _, err := r.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to save %d outbox events: %w", len(events), err)
	}
	return nil
}

// FindUnpublished returns pending events that still have retries left, oldest first
func (r *Repository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	pending := bson.M{
		"publishedAt": bson.M{"$exists": false},
		"$or": bson.A{
			bson.M{"retryCount": bson.M{"$lt": outbox.DefaultMaxRetries}},
			bson.M{"retryCount": bson.M{"$exists": false}},
		},
	}
	return r.find(ctx, pending, options.Find().SetSort(oldestFirst).SetLimit(int64(limit)))
}

func (r *Repository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	return r.find(ctx, bson.M{"aggregateId": aggregateID}, options.Find().SetSort(oldestFirst))
}

func (r *Repository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*outbox.OutboxEvent, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*outbox.OutboxEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode outbox events: %w", err)
	}
	return events, nil
}

// GetByID returns nil when the event does not exist
func (r *Repository) GetByID(ctx context.Context, eventID string) (*outbox.OutboxEvent, error) {
	var event outbox.OutboxEvent
	err := r.coll.FindOne(ctx, bson.M{"_id": eventID}).Decode(&event)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load outbox event %s: %w", eventID, err)
	}
	return &event, nil
}

func (r *Repository) MarkPublished(ctx context.Context, eventID string) error {
	return r.update(ctx, eventID, bson.M{"$set": bson.M{"publishedAt": time.Now().UTC()}})
}

// IncrementRetry records a failed relay attempt and its cause
func (r *Repository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	return r.update(ctx, eventID, bson.M{
		"$inc": bson.M{"retryCount": 1},
		"$set": bson.M{"lastError": errorMsg},
	})
}

func (r *Repository) update(ctx context.Context, eventID string, update bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": eventID}, update)
	if err != nil {
		return fmt.Errorf("failed to update outbox event %s: %w", eventID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("outbox event %s not found", eventID)
	}
	return nil
}

// DeletePublished purges events relayed more than olderThan ago
func (r *Repository) DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{
		"publishedAt": bson.M{"$exists": true, "$lt": time.Now().UTC().Add(-olderThan)},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge published outbox events: %w", err)
	}
	return res.DeletedCount, nil
}

func indexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_pending"),
		},
		{
			Keys:    bson.D{{Key: "aggregateId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_aggregate"),
		},
		{
			// Unpublished events have no publishedAt and never expire
			Keys:    bson.D{{Key: "publishedAt", Value: 1}},
			Options: options.Index().SetName("idx_published_ttl").SetExpireAfterSeconds(int32(publishedTTL.Seconds())),
		},
	}
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels()); err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	return nil
}

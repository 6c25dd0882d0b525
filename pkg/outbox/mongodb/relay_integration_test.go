//go:build integration

package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rental-platform/rental-service/pkg/cloudevents"
	"github.com/rental-platform/rental-service/pkg/kafka"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
	"github.com/rental-platform/rental-service/pkg/outbox"
	testutil "github.com/rental-platform/rental-service/pkg/testing"
)

func TestRelay_MongoToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := testutil.Context(t, 4*time.Minute)

	env, err := testutil.NewTestEnvironment(ctx, true)
	require.NoError(t, err)
	defer env.Close(context.Background())

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(env.MongoDB.DirectURI()))
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	repo := NewRepository(client.Database("rental_relay"))
	require.NoError(t, repo.EnsureIndexes(ctx))
	require.NoError(t, kafka.EnsureTopics(ctx, env.Kafka.Brokers, kafka.DefaultTopicConfigs(), 1))

	ce := cloudevents.NewEventFactory(cloudevents.SourceReturns).
		CreateEvent(ctx, cloudevents.DepositReleased, "return/ret-1", map[string]string{"amount": "25.00"})
	event, err := outbox.Record("ret-1", "return", ce)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, event))

	cfg := kafka.DefaultConfig()
	cfg.Brokers = env.Kafka.Brokers
	m := metrics.New(metrics.DefaultConfig("rental-test"))
	logger := logging.NewNop()
	producer := kafka.NewProductionProducer(cfg, m, logger)
	defer producer.Close()

	publisher := outbox.NewPublisher(repo, producer, logger, m, &outbox.PublisherConfig{
		PollInterval: 100 * time.Millisecond,
		BatchSize:    10,
	})
	require.NoError(t, publisher.Start(ctx))
	defer publisher.Stop()

	testutil.Eventually(t, func() bool {
		stored, err := repo.GetByID(ctx, event.ID)
		return err == nil && stored != nil && stored.IsPublished()
	}, time.Minute, 200*time.Millisecond, "outbox event to be relayed")

	assert.Equal(t, 1, publisher.Stats().Published)
	pending, err := repo.FindUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

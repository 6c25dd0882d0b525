package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/internal/infrastructure/memory"
	mongoRepo "github.com/rental-platform/rental-service/internal/infrastructure/mongodb"
	"github.com/rental-platform/rental-service/internal/infrastructure/seed"
	"github.com/rental-platform/rental-service/pkg/contracts/asyncapi"
	"github.com/rental-platform/rental-service/pkg/idempotency"
	"github.com/rental-platform/rental-service/pkg/kafka"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
	"github.com/rental-platform/rental-service/pkg/mongodb"
	"github.com/rental-platform/rental-service/pkg/outbox"
	"github.com/rental-platform/rental-service/pkg/resilience"
)

const (
	backendMongoDB = "mongodb"
	backendMemory  = "memory"
)

// backend is the storage the services run on plus what main needs to serve and stop it
type backend struct {
	uow      domain.UnitOfWork
	keys     idempotency.KeyRepository
	ready    func(ctx context.Context) error
	breakers *resilience.CircuitBreakerRegistry
	relay    *outbox.Publisher
	closers  []func()
}

// relayStatus reports the outbox relay; the memory backend has none
func (b *backend) relayStatus() map[string]any {
	if b.relay == nil {
		return map[string]any{"running": false}
	}
	return map[string]any{
		"running": b.relay.IsRunning(),
		"stats":   b.relay.Stats(),
	}
}

// Close releases resources in reverse order of acquisition
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, config *Config, m *metrics.Metrics, logger *logging.Logger) (*backend, error) {
	switch config.StorageBackend {
	case backendMongoDB:
		return openMongoBackend(ctx, config, m, logger)
	case backendMemory:
		return openMemoryBackend(ctx, config, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", config.StorageBackend)
	}
}

// openMemoryBackend keeps all state in process. Domain events are collected by the
// store and never relayed to Kafka.
func openMemoryBackend(ctx context.Context, config *Config, logger *logging.Logger) (*backend, error) {
	store := memory.NewStore()
	if err := loadReferenceData(ctx, config, store, logger); err != nil {
		return nil, err
	}
	logger.Warn("Using in-memory storage; state is lost on restart and events are not published")

	return &backend{
		uow:      store,
		keys:     idempotency.NewMemoryKeyRepository(),
		ready:    func(context.Context) error { return nil },
		breakers: resilience.NewCircuitBreakerRegistry(logger.Logger),
	}, nil
}

// openMongoBackend connects MongoDB and Kafka and starts the outbox relay between them
func openMongoBackend(ctx context.Context, config *Config, m *metrics.Metrics, logger *logging.Logger) (*backend, error) {
	b := &backend{breakers: resilience.NewCircuitBreakerRegistry(logger.Logger)}

	client, err := mongodb.NewProductionClient(ctx, config.MongoDB, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	b.closers = append(b.closers, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.WithError(err).Error("Failed to close MongoDB client")
		}
	})
	b.breakers.Register(client.Breaker())
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	store := mongoRepo.NewStore(client, logger)
	if err := store.EnsureIndexes(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	// Initialize idempotency indexes
	if err := idempotency.InitializeIndexes(ctx, client.Database()); err != nil {
		logger.WithError(err).Warn("Failed to initialize idempotency indexes")
	} else {
		logger.Info("Idempotency indexes initialized")
	}

	if err := loadReferenceData(ctx, config, store, logger); err != nil {
		b.Close()
		return nil, err
	}

	producer := kafka.NewProductionProducer(config.Kafka, m, logger)
	b.closers = append(b.closers, func() {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Error("Failed to close Kafka producer")
		}
	})
	b.breakers.Register(producer.Breaker())
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	publisherConfig := outbox.DefaultPublisherConfig()
	publisherConfig.PollInterval = config.OutboxPollInterval
	if config.ValidateEvents {
		contract, err := asyncapi.New()
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to load event contract: %w", err)
		}
		publisherConfig.Contract = contract
		logger.Info("Outbox events are checked against the event contract")
	}
	publisher := outbox.NewPublisher(store.Outbox(), producer, logger, m, publisherConfig)
	if err := publisher.Start(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to start outbox publisher: %w", err)
	}
	b.closers = append(b.closers, func() {
		if err := publisher.Stop(); err != nil {
			logger.WithError(err).Error("Failed to stop outbox publisher")
		}
	})
	logger.Info("Outbox publisher started")

	b.uow = store
	b.keys = idempotency.NewMongoKeyRepository(client.Database())
	b.relay = publisher
	b.ready = func(ctx context.Context) error {
		if !publisher.IsRunning() {
			return fmt.Errorf("outbox publisher is not running")
		}
		return client.HealthCheck(ctx)
	}
	return b, nil
}

func loadReferenceData(ctx context.Context, config *Config, sink seed.Sink, logger *logging.Logger) error {
	if config.ReferenceDataFile == "" {
		return nil
	}
	data, err := seed.LoadFile(ctx, config.ReferenceDataFile, sink)
	if err != nil {
		return err
	}
	logger.Info("Reference data loaded",
		"file", config.ReferenceDataFile,
		"customers", len(data.Customers),
		"locations", len(data.Locations),
		"skus", len(data.SKUs),
	)
	return nil
}

package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	mongoRepo "github.com/rental-platform/rental-service/internal/infrastructure/mongodb"
	"github.com/rental-platform/rental-service/internal/infrastructure/seed"
	"github.com/rental-platform/rental-service/pkg/idempotency"
	"github.com/rental-platform/rental-service/pkg/kafka"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
	"github.com/rental-platform/rental-service/pkg/mongodb"
)

// Schema tool: creates collections, indexes and Kafka topics and optionally loads reference data

var (
	mongoURI          = flag.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	dbName            = flag.String("db", "rental_db", "Database name")
	seedFile          = flag.String("seed", "", "Reference data YAML file to upsert (optional)")
	skipIndexes       = flag.Bool("skip-indexes", false, "Skip collection and index creation")
	kafkaBrokers      = flag.String("kafka-brokers", "", "Comma separated brokers; topics are created when set")
	replicationFactor = flag.Int("replication-factor", 0, "Override topic replication factor (0 keeps defaults)")
)

func main() {
	flag.Parse()

	log.Printf("Starting rental schema migration...")
	log.Printf("MongoDB URI: %s", *mongoURI)
	log.Printf("Database: %s", *dbName)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	config := mongodb.DefaultConfig()
	config.URI = *mongoURI
	config.Database = *dbName
	config.MinPoolSize = 1

	client, err := mongodb.NewClient(ctx, config)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Close(context.Background())
	log.Println("Connected to MongoDB successfully")

	logger := logging.NewNop()
	instrumented := mongodb.NewInstrumentedClient(client, metrics.New(metrics.DefaultConfig("rental-migrate")), logger)
	store := mongoRepo.NewStore(instrumented, logger)

	if !*skipIndexes {
		if err := store.EnsureIndexes(ctx); err != nil {
			log.Fatalf("Failed to create store indexes: %v", err)
		}
		log.Println("Store collections and indexes ready")

		if err := idempotency.InitializeIndexes(ctx, instrumented.Database()); err != nil {
			log.Fatalf("Failed to create idempotency indexes: %v", err)
		}
		log.Println("Idempotency indexes ready")
	}

	if *seedFile != "" {
		data, err := seed.LoadFile(ctx, *seedFile, store)
		if err != nil {
			log.Fatalf("Failed to load reference data: %v", err)
		}
		log.Printf("Reference data upserted: %d customers, %d locations, %d skus",
			len(data.Customers), len(data.Locations), len(data.SKUs))
	}

	if *kafkaBrokers != "" {
		brokers := strings.Split(*kafkaBrokers, ",")
		if err := kafka.EnsureTopics(ctx, brokers, kafka.DefaultTopicConfigs(), *replicationFactor); err != nil {
			log.Fatalf("Failed to create Kafka topics: %v", err)
		}
		log.Printf("Kafka topics ready on %s", *kafkaBrokers)
	}

	log.Println("Migration completed successfully!")
}

package kafka

import (
	"strings"
	"time"
)

// Config holds Kafka producer configuration
type Config struct {
	Brokers  []string
	ClientID string

	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // 0: no ack, 1: leader ack, -1: all replicas ack
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:  []string{"localhost:9092"},
		ClientID: "rental-service",

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
		WriteTimeout: 10 * time.Second,
	}
}

// Topics contains all rental Kafka topic names
var Topics = struct {
	TransactionEvents string
	InventoryEvents   string
	ReturnEvents      string
}{
	TransactionEvents: "rental.transactions.events",
	InventoryEvents:   "rental.inventory.events",
	ReturnEvents:      "rental.returns.events",
}

// TopicForEventType routes an event type to the topic that carries it
func TopicForEventType(eventType string) string {
	switch {
	case strings.HasPrefix(eventType, "rental.inventory."):
		return Topics.InventoryEvents
	case strings.HasPrefix(eventType, "rental.return."):
		return Topics.ReturnEvents
	default:
		return Topics.TransactionEvents
	}
}

// TopicConfig holds configuration for a Kafka topic
type TopicConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
}

// DefaultTopicConfigs returns default configurations for rental topics
func DefaultTopicConfigs() []TopicConfig {
	const week = 7 * 24 * 60 * 60 * 1000
	return []TopicConfig{
		{Name: Topics.TransactionEvents, Partitions: 6, ReplicationFactor: 3, RetentionMs: 4 * week},
		{Name: Topics.InventoryEvents, Partitions: 6, ReplicationFactor: 3, RetentionMs: week},
		{Name: Topics.ReturnEvents, Partitions: 3, ReplicationFactor: 3, RetentionMs: 4 * week},
	}
}

package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// topicAdmin is the subset of *kafka.Conn topic provisioning needs
type topicAdmin interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	Close() error
}

// EnsureTopics creates the given topics on the cluster controller. Topics that
// already exist are left untouched. A positive replicationFactor overrides the
// per-topic value, which lets single-broker environments reuse the defaults.
func EnsureTopics(ctx context.Context, brokers []string, topics []TopicConfig, replicationFactor int) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}
	admin, err := dialController(ctx, brokers[0])
	if err != nil {
		return err
	}
	defer admin.Close()
	return createTopics(admin, topics, replicationFactor)
}

func dialController(ctx context.Context, broker string) (topicAdmin, error) {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker %s: %w", broker, err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return nil, fmt.Errorf("failed to find controller: %w", err)
	}

	var dialer kafka.Dialer
	controllerConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to dial controller: %w", err)
	}
	return controllerConn, nil
}

func createTopics(admin topicAdmin, topics []TopicConfig, replicationFactor int) error {
	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		rf := t.ReplicationFactor
		if replicationFactor > 0 {
			rf = replicationFactor
		}
		cfg := kafka.TopicConfig{
			Topic:             t.Name,
			NumPartitions:     t.Partitions,
			ReplicationFactor: rf,
		}
		if t.RetentionMs > 0 {
			cfg.ConfigEntries = []kafka.ConfigEntry{{
				ConfigName:  "retention.ms",
				ConfigValue: strconv.FormatInt(t.RetentionMs, 10),
			}}
		}
		configs = append(configs, cfg)
	}

	if err := admin.CreateTopics(configs...); err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}
	return nil
}

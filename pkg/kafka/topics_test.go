package kafka

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdmin struct {
	created []kafka.TopicConfig
	err     error
}

func (a *fakeAdmin) CreateTopics(topics ...kafka.TopicConfig) error {
	a.created = append(a.created, topics...)
	return a.err
}

func (a *fakeAdmin) Close() error { return nil }

func TestCreateTopics(t *testing.T) {
	admin := &fakeAdmin{}
	require.NoError(t, createTopics(admin, DefaultTopicConfigs(), 0))

	require.Len(t, admin.created, 3)
	first := admin.created[0]
	assert.Equal(t, Topics.TransactionEvents, first.Topic)
	assert.Equal(t, 6, first.NumPartitions)
	assert.Equal(t, 3, first.ReplicationFactor)
	require.Len(t, first.ConfigEntries, 1)
	assert.Equal(t, "retention.ms", first.ConfigEntries[0].ConfigName)
	assert.Equal(t, "2419200000", first.ConfigEntries[0].ConfigValue)
}

func TestCreateTopics_ReplicationOverride(t *testing.T) {
	admin := &fakeAdmin{}
	topics := []TopicConfig{{Name: "adhoc", Partitions: 1, ReplicationFactor: 3}}
	require.NoError(t, createTopics(admin, topics, 1))

	require.Len(t, admin.created, 1)
	assert.Equal(t, 1, admin.created[0].ReplicationFactor)
	assert.Empty(t, admin.created[0].ConfigEntries)
}

func TestCreateTopics_Error(t *testing.T) {
	admin := &fakeAdmin{err: stderrors.New("not controller")}
	err := createTopics(admin, DefaultTopicConfigs(), 0)
	assert.Error(t, err)
}

func TestEnsureTopics_NoBrokers(t *testing.T) {
	assert.Error(t, EnsureTopics(context.Background(), nil, DefaultTopicConfigs(), 1))
}

package outbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rental-platform/rental-service/pkg/cloudevents"
	"github.com/rental-platform/rental-service/pkg/kafka"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Save(ctx context.Context, event *OutboxEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockRepository) SaveAll(ctx context.Context, events []*OutboxEvent) error {
	return m.Called(ctx, events).Error(0)
}

func (m *MockRepository) FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockRepository) MarkPublished(ctx context.Context, eventID string) error {
	return m.Called(ctx, eventID).Error(0)
}

func (m *MockRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	return m.Called(ctx, eventID, errorMsg).Error(0)
}

func (m *MockRepository) DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, eventID string) (*OutboxEvent, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*OutboxEvent), args.Error(1)
}

func (m *MockRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error) {
	args := m.Called(ctx, aggregateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.RentalCloudEvent) error {
	return m.Called(ctx, topic, event).Error(0)
}

func (m *MockProducer) PublishBatch(ctx context.Context, topic string, events []*cloudevents.RentalCloudEvent) error {
	return m.Called(ctx, topic, events).Error(0)
}

func (m *MockProducer) Close() error {
	return m.Called().Error(0)
}

var _ kafka.EventPublisher = (*MockProducer)(nil)

func newOutboxEvent(t *testing.T, eventType, subject string) *OutboxEvent {
	t.Helper()
	ce := cloudevents.NewEventFactory(cloudevents.SourceTransactions).
		CreateEvent(context.Background(), eventType, subject, map[string]string{"transactionId": subject})
	event, err := Record(subject, "Transaction", ce)
	require.NoError(t, err)
	return event
}

func newTestPublisher(repo Repository, producer kafka.EventPublisher) *Publisher {
	return NewPublisher(repo, producer, logging.NewNop(), metrics.New(metrics.DefaultConfig("rental-test")), &PublisherConfig{
		PollInterval: 5 * time.Millisecond,
		BatchSize:    10,
	})
}

func TestPublisher_ProcessOnce(t *testing.T) {
	ctx := context.Background()
	ok := newOutboxEvent(t, cloudevents.TransactionCreated, "txn-1")
	bad := newOutboxEvent(t, cloudevents.TransactionConfirmed, "txn-2")

	repo := new(MockRepository)
	producer := new(MockProducer)
	repo.On("FindUnpublished", ctx, 10).Return([]*OutboxEvent{ok, bad}, nil)
	producer.On("PublishEvent", ctx, kafka.Topics.TransactionEvents, mock.MatchedBy(func(e *cloudevents.RentalCloudEvent) bool {
		return e.Subject == "txn-1"
	})).Return(nil)
	producer.On("PublishEvent", ctx, kafka.Topics.TransactionEvents, mock.MatchedBy(func(e *cloudevents.RentalCloudEvent) bool {
		return e.Subject == "txn-2"
	})).Return(errors.New("broker down"))
	repo.On("MarkPublished", ctx, ok.ID).Return(nil)
	repo.On("IncrementRetry", ctx, bad.ID, mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "broker down")
	})).Return(nil)

	p := newTestPublisher(repo, producer)
	assert.Equal(t, 1, p.ProcessOnce(ctx))
	assert.Equal(t, RelayStats{Published: 1, Failed: 1}, p.Stats())

	repo.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestPublisher_ProcessOnce_Empty(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	producer := new(MockProducer)
	repo.On("FindUnpublished", ctx, 10).Return([]*OutboxEvent{}, nil)

	p := newTestPublisher(repo, producer)
	assert.Zero(t, p.ProcessOnce(ctx))
	producer.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublisher_ProcessOnce_FindError(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	repo.On("FindUnpublished", ctx, 10).Return(nil, errors.New("mongo down"))

	p := newTestPublisher(repo, new(MockProducer))
	assert.Zero(t, p.ProcessOnce(ctx))
}

func TestPublisher_CorruptPayloadCountsAsFailure(t *testing.T) {
	ctx := context.Background()
	event := newOutboxEvent(t, cloudevents.StockAdjusted, "sku-1")
	event.Payload = []byte("{not json")

	repo := new(MockRepository)
	producer := new(MockProducer)
	repo.On("FindUnpublished", ctx, 10).Return([]*OutboxEvent{event}, nil)
	repo.On("IncrementRetry", ctx, event.ID, mock.AnythingOfType("string")).Return(nil)

	p := newTestPublisher(repo, producer)
	assert.Zero(t, p.ProcessOnce(ctx))
	producer.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestPublisher_StartStop(t *testing.T) {
	repo := new(MockRepository)
	producer := new(MockProducer)
	event := newOutboxEvent(t, cloudevents.ReturnInitiated, "ret-1")

	repo.On("FindUnpublished", mock.Anything, 10).Return([]*OutboxEvent{event}, nil).Once()
	repo.On("FindUnpublished", mock.Anything, 10).Return([]*OutboxEvent{}, nil)
	producer.On("PublishEvent", mock.Anything, event.Topic, mock.Anything).Return(nil).Once()
	repo.On("MarkPublished", mock.Anything, event.ID).Return(nil).Once()

	p := newTestPublisher(repo, producer)
	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(context.Background()))

	require.Eventually(t, func() bool {
		return p.Stats().Published == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.Error(t, p.Stop())
	producer.AssertExpectations(t)
}

func TestOutboxEvent_ShouldRetry(t *testing.T) {
	event := newOutboxEvent(t, cloudevents.TransactionCreated, "txn-1")
	assert.True(t, event.ShouldRetry())

	event.RetryCount = event.MaxRetries
	assert.False(t, event.ShouldRetry())

	now := time.Now()
	event.RetryCount = 0
	event.PublishedAt = &now
	assert.True(t, event.IsPublished())
	assert.False(t, event.ShouldRetry())

	ce, err := event.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, cloudevents.TransactionCreated, ce.Type)
	assert.Equal(t, "txn-1", ce.Subject)
}

func TestPublisher_ProcessOnce_SkipsExhaustedEvents(t *testing.T) {
	ctx := context.Background()
	event := newOutboxEvent(t, cloudevents.ReturnInitiated, "ret-1")
	event.RetryCount = event.MaxRetries

	repo := new(MockRepository)
	producer := new(MockProducer)
	repo.On("FindUnpublished", ctx, 10).Return([]*OutboxEvent{event}, nil)

	p := newTestPublisher(repo, producer)
	assert.Zero(t, p.ProcessOnce(ctx))
	assert.Equal(t, RelayStats{}, p.Stats())
	producer.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything, mock.Anything)
}

type MockContract struct {
	mock.Mock
}

func (m *MockContract) ValidateRentalEvent(event *cloudevents.RentalCloudEvent) error {
	return m.Called(event).Error(0)
}

func TestPublisher_ContractViolationIsNotPublished(t *testing.T) {
	ctx := context.Background()
	event := newOutboxEvent(t, cloudevents.LowStockAlert, "sl-9")

	repo := new(MockRepository)
	producer := new(MockProducer)
	contract := new(MockContract)
	repo.On("FindUnpublished", ctx, 10).Return([]*OutboxEvent{event}, nil)
	contract.On("ValidateRentalEvent", mock.Anything).Return(errors.New("missing reorderPoint"))
	repo.On("IncrementRetry", ctx, event.ID, mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "violates contract")
	})).Return(nil)

	p := NewPublisher(repo, producer, logging.NewNop(), nil, &PublisherConfig{BatchSize: 10, Contract: contract})
	assert.Zero(t, p.ProcessOnce(ctx))
	assert.Equal(t, RelayStats{Failed: 1}, p.Stats())
	producer.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

package asyncapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rental-platform/rental-service/pkg/cloudevents"
	"github.com/rental-platform/rental-service/pkg/kafka"
)

var allEventTypes = []string{
	cloudevents.TransactionCreated,
	cloudevents.TransactionUpdated,
	cloudevents.PaymentRecorded,
	cloudevents.TransactionConfirmed,
	cloudevents.RentalPickedUp,
	cloudevents.RentalExtended,
	cloudevents.TransactionCompleted,
	cloudevents.TransactionCancelled,
	cloudevents.TransactionRefunded,
	cloudevents.TransactionDeleted,
	cloudevents.UnitStatusChanged,
	cloudevents.StockAdjusted,
	cloudevents.LowStockAlert,
	cloudevents.ReturnInitiated,
	cloudevents.ReturnProcessed,
	cloudevents.InspectionCompleted,
	cloudevents.ReturnFinalized,
	cloudevents.DepositReleased,
	cloudevents.DepositReleaseReversed,
}

func TestEmbeddedContractCoversEveryEventType(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	assert.Len(t, v.GetSupportedEventTypes(), len(allEventTypes))
	for _, eventType := range allEventTypes {
		assert.True(t, v.HasSchema(eventType), eventType)

		channel, ok := v.ChannelFor(eventType)
		require.True(t, ok, eventType)
		assert.Equal(t, kafka.TopicForEventType(eventType), channel, eventType)
	}
}

func TestValidateRentalEvent(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	factory := cloudevents.NewEventFactory(cloudevents.SourceInventory)

	t.Run("valid stock adjustment", func(t *testing.T) {
		event := factory.CreateEvent(context.Background(), cloudevents.StockAdjusted, "sku-1", map[string]interface{}{
			"skuId":             "sku-1",
			"locationId":        "loc-1",
			"movement":          "RESERVE",
			"quantity":          2,
			"quantityOnHand":    10,
			"quantityAvailable": 8,
			"quantityReserved":  2,
			"quantityOnRent":    0,
			"adjustedAt":        "2024-03-01T10:00:00Z",
		})
		assert.NoError(t, v.ValidateRentalEvent(event))
	})

	t.Run("negative bucket is rejected", func(t *testing.T) {
		event := factory.CreateEvent(context.Background(), cloudevents.StockAdjusted, "sku-1", map[string]interface{}{
			"skuId":             "sku-1",
			"locationId":        "loc-1",
			"movement":          "RESERVE",
			"quantity":          2,
			"quantityOnHand":    10,
			"quantityAvailable": -1,
			"quantityReserved":  2,
			"quantityOnRent":    0,
			"adjustedAt":        "2024-03-01T10:00:00Z",
		})
		assert.Error(t, v.ValidateRentalEvent(event))
	})

	t.Run("unknown movement is rejected", func(t *testing.T) {
		event := factory.CreateEvent(context.Background(), cloudevents.StockAdjusted, "sku-1", map[string]interface{}{
			"skuId":             "sku-1",
			"locationId":        "loc-1",
			"movement":          "TELEPORT",
			"quantity":          1,
			"quantityOnHand":    1,
			"quantityAvailable": 1,
			"quantityReserved":  0,
			"quantityOnRent":    0,
			"adjustedAt":        "2024-03-01T10:00:00Z",
		})
		assert.Error(t, v.ValidateRentalEvent(event))
	})
}

func TestValidateEventMoneyFormat(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	base := func(amount string) CloudEvent {
		return CloudEvent{
			SpecVersion: "1.0",
			Type:        cloudevents.PaymentRecorded,
			Source:      cloudevents.SourceTransactions,
			ID:          "evt-1",
			Data: map[string]interface{}{
				"transactionId": "txn-1",
				"amount":        amount,
				"method":        "CASH",
				"paidAmount":    amount,
				"paymentStatus": "PAID",
				"recordedAt":    "2024-03-01T10:00:00Z",
			},
		}
	}

	assert.NoError(t, v.ValidateEvent(base("100.00")))
	assert.Error(t, v.ValidateEvent(base("100")))
	assert.Error(t, v.ValidateEvent(base("100.005")))
}

func TestTransactionUpdatedAcceptsBothShapes(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	fieldsChanged := []byte(`{"specversion":"1.0","type":"rental.transaction.updated","source":"/rental/rental-service/transactions","id":"e1",
		"data":{"transactionId":"txn-1","fields":["notes"],"updatedAt":"2024-03-01T10:00:00Z"}}`)
	statusMoved := []byte(`{"specversion":"1.0","type":"rental.transaction.updated","source":"/rental/rental-service/transactions","id":"e2",
		"data":{"transactionId":"txn-1","transactionType":"SALE","fromStatus":"CONFIRMED","toStatus":"IN_PROGRESS","changedAt":"2024-03-01T10:00:00Z"}}`)
	neither := []byte(`{"specversion":"1.0","type":"rental.transaction.updated","source":"/rental/rental-service/transactions","id":"e3",
		"data":{"transactionId":"txn-1"}}`)

	assert.NoError(t, v.ValidateEventJSON(fieldsChanged))
	assert.NoError(t, v.ValidateEventJSON(statusMoved))
	assert.Error(t, v.ValidateEventJSON(neither))
}

func TestValidateEventEnvelope(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	data := map[string]interface{}{"transactionId": "txn-1", "deletedAt": "2024-03-01T10:00:00Z"}

	assert.Error(t, v.ValidateEvent(CloudEvent{SpecVersion: "1.0", Source: "s", ID: "1", Data: data}))
	assert.Error(t, v.ValidateEvent(CloudEvent{SpecVersion: "0.3", Type: cloudevents.TransactionDeleted, Source: "s", ID: "1", Data: data}))
	assert.Error(t, v.ValidateEvent(CloudEvent{SpecVersion: "1.0", Type: "rental.unknown", Source: "s", ID: "1", Data: data}))
	assert.Error(t, v.ValidateEvent(CloudEvent{SpecVersion: "1.0", Type: cloudevents.TransactionDeleted, Source: "s", ID: "1"}))
	assert.NoError(t, v.ValidateEvent(CloudEvent{SpecVersion: "1.0", Type: cloudevents.TransactionDeleted, Source: "s", ID: "1", Data: data}))
}

func TestMessagesNeedNames(t *testing.T) {
	_, err := NewEventValidatorFromBytes([]byte(`
asyncapi: 3.0.0
info: {title: t, version: "1"}
components:
  messages:
    Nameless:
      payload: {type: object}
`))
	assert.Error(t, err)
}

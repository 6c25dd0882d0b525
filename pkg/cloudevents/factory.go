package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rental-platform/rental-service/pkg/logging"
)

// EventFactory creates CloudEvents for rental domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new RentalCloudEvent with the given parameters.
// Correlation and actor ids are lifted from the context when present.
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *RentalCloudEvent {
	event := &RentalCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
	}

	if ctx != nil {
		event.CorrelationID = logging.CorrelationIDFromContext(ctx)
		event.ActorID = logging.UserIDFromContext(ctx)
	}

	return event
}

package kafka

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/rental-platform/rental-service/pkg/cloudevents"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
	"github.com/rental-platform/rental-service/pkg/tracing"
)

// InstrumentedProducer opens a producer span per publish and records publish
// metrics and log lines. Events without a traceparent inherit the producer span.
type InstrumentedProducer struct {
	producer EventPublisher
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

func NewInstrumentedProducer(producer EventPublisher, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	return &InstrumentedProducer{
		producer: producer,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("rental-kafka-producer"),
	}
}

func (p *InstrumentedProducer) start(ctx context.Context, name, topic string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		semconv.MessagingSystemKey.String("kafka"),
		semconv.MessagingDestinationNameKey.String(topic),
		semconv.MessagingOperationKey.String("publish"),
	)
	return p.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindProducer), trace.WithAttributes(attrs...))
}

func eventAttributes(event *cloudevents.RentalCloudEvent) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("messaging.message_id", event.ID),
		attribute.String("messaging.kafka.event_type", event.Type),
	}
	for key, value := range map[string]string{
		"rental.correlation_id": event.CorrelationID,
		"rental.transaction_id": event.TransactionID,
		"rental.location_id":    event.LocationID,
		"rental.subject":        event.Subject,
	} {
		if value != "" {
			attrs = append(attrs, attribute.String(key, value))
		}
	}
	return attrs
}

func finish(span trace.Span, err error, elapsed time.Duration) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.Int64("messaging.duration_ms", elapsed.Milliseconds()))
	span.SetStatus(codes.Ok, "")
}

func (p *InstrumentedProducer) record(ctx context.Context, topic, eventType string, ok bool, elapsed time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, eventType, ok, elapsed)
	}
	if p.logger != nil {
		p.logger.KafkaPublish(ctx, topic, eventType, ok, elapsed)
	}
}

func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.RentalCloudEvent) error {
	begin := time.Now()
	ctx, span := p.start(ctx, "kafka.publish", topic, eventAttributes(event)...)
	defer span.End()

	if event.TraceParent == "" {
		event.WithTraceContext(tracing.TraceParent(ctx))
	}

	err := p.producer.PublishEvent(ctx, topic, event)
	elapsed := time.Since(begin)
	p.record(ctx, topic, event.Type, err == nil, elapsed)
	finish(span, err, elapsed)
	return err
}

// PublishBatch writes events in one request; each event counts toward the
// publish metrics with an equal share of the batch latency.
func (p *InstrumentedProducer) PublishBatch(ctx context.Context, topic string, events []*cloudevents.RentalCloudEvent) error {
	if len(events) == 0 {
		return nil
	}
	begin := time.Now()
	ctx, span := p.start(ctx, "kafka.publish.batch", topic, attribute.Int("messaging.batch_size", len(events)))
	defer span.End()

	for _, event := range events {
		if event.TraceParent == "" {
			event.WithTraceContext(tracing.TraceParent(ctx))
		}
	}

	err := p.producer.PublishBatch(ctx, topic, events)
	elapsed := time.Since(begin)
	if p.metrics != nil {
		share := elapsed / time.Duration(len(events))
		for _, event := range events {
			p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, share)
		}
	}
	finish(span, err, elapsed)
	return err
}

func (p *InstrumentedProducer) Close() error {
	return p.producer.Close()
}

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// OperationAttributes tags a unit-of-work span with its operation and attempt count
func OperationAttributes(operation string, attempts int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("rental.operation", operation),
		attribute.Int("rental.attempts", attempts),
	}
}

// TracedOperation runs operation inside an internal child span. The error is
// returned unchanged and also recorded on the span.
func TracedOperation[T any](ctx context.Context, tracer trace.Tracer, spanName string, operation func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	result, err := operation(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// TraceParent renders the span context of ctx as W3C traceparent and tracestate
// values. Both are empty when ctx carries no sampled or remote span.
func TraceParent(ctx context.Context) (traceparent, tracestate string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.Get("traceparent"), carrier.Get("tracestate")
}

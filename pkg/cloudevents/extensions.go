package cloudevents

// CloudEvents extension attribute names used in message headers
const (
	ExtCorrelationID = "rentalcorrelationid"
	ExtTransactionID = "rentaltransactionid"
	ExtLocationID    = "rentallocationid"
	ExtActorID       = "rentalactorid"
)

// WithTransaction sets the transaction and location extensions and returns the event
func (e *RentalCloudEvent) WithTransaction(transactionID, locationID string) *RentalCloudEvent {
	e.TransactionID = transactionID
	e.LocationID = locationID
	return e
}

// WithTraceContext sets W3C trace context and returns the event
func (e *RentalCloudEvent) WithTraceContext(traceParent, traceState string) *RentalCloudEvent {
	e.TraceParent = traceParent
	e.TraceState = traceState
	return e
}

// ExtensionHeaders returns the non-empty extension attributes keyed by name
func (e *RentalCloudEvent) ExtensionHeaders() map[string]string {
	headers := make(map[string]string, 6)
	set := func(k, v string) {
		if v != "" {
			headers[k] = v
		}
	}
	set(ExtCorrelationID, e.CorrelationID)
	set(ExtTransactionID, e.TransactionID)
	set(ExtLocationID, e.LocationID)
	set(ExtActorID, e.ActorID)
	set("traceparent", e.TraceParent)
	set("tracestate", e.TraceState)
	for k, v := range e.Extensions {
		if s, ok := v.(string); ok {
			set(k, s)
		}
	}
	return headers
}

package cloudevents

import (
	"time"
)

// EventType constants for rental domain events
const (
	// Transaction events
	TransactionCreated   = "rental.transaction.created"
	TransactionUpdated   = "rental.transaction.updated"
	PaymentRecorded      = "rental.transaction.payment-recorded"
	TransactionConfirmed = "rental.transaction.confirmed"
	RentalPickedUp       = "rental.transaction.picked-up"
	RentalExtended       = "rental.transaction.extended"
	TransactionCompleted = "rental.transaction.completed"
	TransactionCancelled = "rental.transaction.cancelled"
	TransactionRefunded  = "rental.transaction.refunded"
	TransactionDeleted   = "rental.transaction.deleted"

	// Inventory events
	UnitStatusChanged = "rental.inventory.unit-status-changed"
	StockAdjusted     = "rental.inventory.stock-adjusted"
	LowStockAlert     = "rental.inventory.low-stock-alert"

	// Return events
	ReturnInitiated        = "rental.return.initiated"
	ReturnProcessed        = "rental.return.processed"
	InspectionCompleted    = "rental.return.inspection-completed"
	ReturnFinalized        = "rental.return.finalized"
	DepositReleased        = "rental.return.deposit-released"
	DepositReleaseReversed = "rental.return.deposit-release-reversed"
)

// Source constants for event sources
const (
	SourceTransactions = "/rental/rental-service/transactions"
	SourceInventory    = "/rental/rental-service/inventory"
	SourceReturns      = "/rental/rental-service/returns"
)

// RentalCloudEvent represents a CloudEvents v1.0 compliant event for the rental platform
type RentalCloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	// Rental-specific extensions
	CorrelationID string `json:"rentalcorrelationid,omitempty"`
	TransactionID string `json:"rentaltransactionid,omitempty"`
	LocationID    string `json:"rentallocationid,omitempty"`
	ActorID       string `json:"rentalactorid,omitempty"`

	// W3C trace context
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

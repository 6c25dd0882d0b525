package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// TransactionCreatedEvent is published when a transaction is booked or recorded
type TransactionCreatedEvent struct {
	TransactionID     string            `json:"transactionId"`
	TransactionNumber string            `json:"transactionNumber"`
	TransactionType   TransactionType   `json:"transactionType"`
	Status            TransactionStatus `json:"status"`
	CustomerID        string            `json:"customerId,omitempty"`
	LocationID        string            `json:"locationId"`
	TotalAmount       Money             `json:"totalAmount"`
	LineCount         int               `json:"lineCount"`
	CreatedAt         time.Time         `json:"createdAt"`
}

func (e *TransactionCreatedEvent) EventType() string     { return "rental.transaction.created" }
func (e *TransactionCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// TransactionUpdatedEvent is published when editable header fields change
type TransactionUpdatedEvent struct {
	TransactionID string    `json:"transactionId"`
	Fields        []string  `json:"fields"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (e *TransactionUpdatedEvent) EventType() string     { return "rental.transaction.updated" }
func (e *TransactionUpdatedEvent) OccurredAt() time.Time { return e.UpdatedAt }

// PaymentRecordedEvent is published for every accepted payment
type PaymentRecordedEvent struct {
	TransactionID string        `json:"transactionId"`
	Amount        Money         `json:"amount"`
	Method        PaymentMethod `json:"method"`
	Reference     string        `json:"reference,omitempty"`
	PaidAmount    Money         `json:"paidAmount"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	RecordedAt    time.Time     `json:"recordedAt"`
}

func (e *PaymentRecordedEvent) EventType() string     { return "rental.transaction.payment-recorded" }
func (e *PaymentRecordedEvent) OccurredAt() time.Time { return e.RecordedAt }

// TransactionStatusChangedEvent is published on every header status move.
// Its event type follows the target status.
type TransactionStatusChangedEvent struct {
	TransactionID   string            `json:"transactionId"`
	TransactionType TransactionType   `json:"transactionType"`
	FromStatus      TransactionStatus `json:"fromStatus"`
	ToStatus        TransactionStatus `json:"toStatus"`
	Reason          string            `json:"reason,omitempty"`
	ChangedAt       time.Time         `json:"changedAt"`
}

func (e *TransactionStatusChangedEvent) EventType() string {
	switch e.ToStatus {
	case TransactionConfirmed:
		return "rental.transaction.confirmed"
	case TransactionInProgress:
		if e.TransactionType == TransactionRental {
			return "rental.transaction.picked-up"
		}
		return "rental.transaction.updated"
	case TransactionCompleted:
		return "rental.transaction.completed"
	case TransactionCancelled:
		return "rental.transaction.cancelled"
	default:
		return "rental.transaction.updated"
	}
}
func (e *TransactionStatusChangedEvent) OccurredAt() time.Time { return e.ChangedAt }

// RentalExtendedEvent is published when a rental end date moves out
type RentalExtendedEvent struct {
	TransactionID   string    `json:"transactionId"`
	PreviousEndDate time.Time `json:"previousEndDate"`
	NewEndDate      time.Time `json:"newEndDate"`
	ExtraDays       int       `json:"extraDays"`
	ExtensionCharge Money     `json:"extensionCharge"`
	ExtendedAt      time.Time `json:"extendedAt"`
}

func (e *RentalExtendedEvent) EventType() string     { return "rental.transaction.extended" }
func (e *RentalExtendedEvent) OccurredAt() time.Time { return e.ExtendedAt }

// TransactionRefundedEvent is published for every refund
type TransactionRefundedEvent struct {
	TransactionID  string        `json:"transactionId"`
	Amount         Money         `json:"amount"`
	RefundedAmount Money         `json:"refundedAmount"`
	PaymentStatus  PaymentStatus `json:"paymentStatus"`
	Reason         string        `json:"reason,omitempty"`
	RefundedAt     time.Time     `json:"refundedAt"`
}

func (e *TransactionRefundedEvent) EventType() string     { return "rental.transaction.refunded" }
func (e *TransactionRefundedEvent) OccurredAt() time.Time { return e.RefundedAt }

// TransactionDeletedEvent is published on soft delete
type TransactionDeletedEvent struct {
	TransactionID string    `json:"transactionId"`
	DeletedAt     time.Time `json:"deletedAt"`
}

func (e *TransactionDeletedEvent) EventType() string     { return "rental.transaction.deleted" }
func (e *TransactionDeletedEvent) OccurredAt() time.Time { return e.DeletedAt }

// UnitStatusChangedEvent is published on every inventory unit status write
type UnitStatusChangedEvent struct {
	UnitID        string          `json:"unitId"`
	SKUID         string          `json:"skuId"`
	LocationID    string          `json:"locationId"`
	FromStatus    InventoryStatus `json:"fromStatus"`
	ToStatus      InventoryStatus `json:"toStatus"`
	TransactionID string          `json:"transactionId,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	ChangedAt     time.Time       `json:"changedAt"`
}

func (e *UnitStatusChangedEvent) EventType() string     { return "rental.inventory.unit-status-changed" }
func (e *UnitStatusChangedEvent) OccurredAt() time.Time { return e.ChangedAt }

// StockAdjustedEvent is published after every StockLevel movement
type StockAdjustedEvent struct {
	SKUID             string        `json:"skuId"`
	LocationID        string        `json:"locationId"`
	Movement          StockMovement `json:"movement"`
	Quantity          int           `json:"quantity"`
	QuantityOnHand    int           `json:"quantityOnHand"`
	QuantityAvailable int           `json:"quantityAvailable"`
	QuantityReserved  int           `json:"quantityReserved"`
	QuantityOnRent    int           `json:"quantityOnRent"`
	AdjustedAt        time.Time     `json:"adjustedAt"`
}

func (e *StockAdjustedEvent) EventType() string     { return "rental.inventory.stock-adjusted" }
func (e *StockAdjustedEvent) OccurredAt() time.Time { return e.AdjustedAt }

// LowStockAlertEvent is published when available stock drops to the reorder point
type LowStockAlertEvent struct {
	SKUID             string    `json:"skuId"`
	LocationID        string    `json:"locationId"`
	QuantityAvailable int       `json:"quantityAvailable"`
	ReorderPoint      int       `json:"reorderPoint"`
	SuggestedQuantity int       `json:"suggestedQuantity"`
	AlertedAt         time.Time `json:"alertedAt"`
}

func (e *LowStockAlertEvent) EventType() string     { return "rental.inventory.low-stock-alert" }
func (e *LowStockAlertEvent) OccurredAt() time.Time { return e.AlertedAt }

// ReturnInitiatedEvent is published when a rental return is opened
type ReturnInitiatedEvent struct {
	ReturnID      string     `json:"returnId"`
	TransactionID string     `json:"transactionId"`
	ReturnType    ReturnType `json:"returnType"`
	LineCount     int        `json:"lineCount"`
	InitiatedAt   time.Time  `json:"initiatedAt"`
}

func (e *ReturnInitiatedEvent) EventType() string     { return "rental.return.initiated" }
func (e *ReturnInitiatedEvent) OccurredAt() time.Time { return e.InitiatedAt }

// ReturnProcessedEvent is published after returned quantities are applied
type ReturnProcessedEvent struct {
	ReturnID         string       `json:"returnId"`
	TransactionID    string       `json:"transactionId"`
	QuantityReturned int          `json:"quantityReturned"`
	Status           ReturnStatus `json:"status"`
	ProcessedAt      time.Time    `json:"processedAt"`
}

func (e *ReturnProcessedEvent) EventType() string     { return "rental.return.processed" }
func (e *ReturnProcessedEvent) OccurredAt() time.Time { return e.ProcessedAt }

// InspectionCompletedEvent is published when an inspection reaches a decision
type InspectionCompletedEvent struct {
	InspectionID    string           `json:"inspectionId"`
	ReturnID        string           `json:"returnId"`
	Status          InspectionStatus `json:"status"`
	DamageFound     bool             `json:"damageFound"`
	TotalDamageCost Money            `json:"totalDamageCost"`
	CompletedAt     time.Time        `json:"completedAt"`
}

func (e *InspectionCompletedEvent) EventType() string     { return "rental.return.inspection-completed" }
func (e *InspectionCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// ReturnFinalizedEvent is published when a return is closed
type ReturnFinalizedEvent struct {
	ReturnID            string    `json:"returnId"`
	TransactionID       string    `json:"transactionId"`
	TotalLateFee        Money     `json:"totalLateFee"`
	TotalDamageFee      Money     `json:"totalDamageFee"`
	TotalCleaningFee    Money     `json:"totalCleaningFee"`
	TotalReplacementFee Money     `json:"totalReplacementFee"`
	Forced              bool      `json:"forced"`
	FinalizedAt         time.Time `json:"finalizedAt"`
}

func (e *ReturnFinalizedEvent) EventType() string     { return "rental.return.finalized" }
func (e *ReturnFinalizedEvent) OccurredAt() time.Time { return e.FinalizedAt }

// DepositReleasedEvent is published when the deposit is settled
type DepositReleasedEvent struct {
	ReturnID        string    `json:"returnId"`
	TransactionID   string    `json:"transactionId"`
	OriginalDeposit Money     `json:"originalDeposit"`
	ReleaseAmount   Money     `json:"releaseAmount"`
	WithheldAmount  Money     `json:"withheldAmount"`
	ReleasedAt      time.Time `json:"releasedAt"`
}

func (e *DepositReleasedEvent) EventType() string     { return "rental.return.deposit-released" }
func (e *DepositReleasedEvent) OccurredAt() time.Time { return e.ReleasedAt }

// DepositReleaseReversedEvent is published when a release is undone
type DepositReleaseReversedEvent struct {
	ReturnID       string    `json:"returnId"`
	TransactionID  string    `json:"transactionId"`
	ReversedAmount Money     `json:"reversedAmount"`
	Reason         string    `json:"reason"`
	ReversedAt     time.Time `json:"reversedAt"`
}

func (e *DepositReleaseReversedEvent) EventType() string {
	return "rental.return.deposit-release-reversed"
}
func (e *DepositReleaseReversedEvent) OccurredAt() time.Time { return e.ReversedAt }

// eventRecorder is embedded by aggregates to collect pending events
type eventRecorder struct {
	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// AddDomainEvent queues an event for the outbox
func (r *eventRecorder) AddDomainEvent(event DomainEvent) {
	r.DomainEvents = append(r.DomainEvents, event)
}

// ClearDomainEvents drops queued events after they were persisted
func (r *eventRecorder) ClearDomainEvents() {
	r.DomainEvents = nil
}

// GetDomainEvents returns the queued events
func (r *eventRecorder) GetDomainEvents() []DomainEvent {
	return r.DomainEvents
}

package application

import (
	"time"

	"github.com/rental-platform/rental-service/internal/domain"
)

// TransactionLineInput describes one requested product line.
// A nil UnitPrice uses the catalog sale price, or rate per day times rental days for rentals.
type TransactionLineInput struct {
	SKUID              string
	Description        string
	Quantity           int
	UnitPrice          *domain.Money
	DailyRate          *domain.Money
	DiscountPercentage domain.Percentage
	DiscountAmount     domain.Money
	TaxRate            domain.Percentage
	UnitIDs            []string
}

// CreateTransactionCommand represents the command to book a sale or rental
type CreateTransactionCommand struct {
	TransactionType domain.TransactionType
	CustomerID      string
	LocationID      string
	TransactionDate time.Time
	RentalStartDate *time.Time
	RentalEndDate   *time.Time
	// DepositAmount overrides the sum of catalog security deposits when set
	DepositAmount  *domain.Money
	Lines          []TransactionLineInput
	HeaderDiscount domain.Money
	TaxRate        domain.Percentage
	AutoReserve    bool
	Notes          string
	CreatedBy      string
}

// ProcessPaymentCommand represents the command to take a payment
type ProcessPaymentCommand struct {
	TransactionID string
	Amount        domain.Money
	Method        domain.PaymentMethod
	Reference     string
	ProcessedBy   string
}

// PickupRentalCommand represents the command to hand rented units to the customer.
// No UnitIDs means every unit reserved for the rental.
type PickupRentalCommand struct {
	TransactionID  string
	UnitIDs        []string
	ConditionNotes string
	PickedUpBy     string
}

// ExtendRentalCommand represents the command to move a rental end date
type ExtendRentalCommand struct {
	TransactionID     string
	NewEndDate        time.Time
	AdditionalPayment *domain.Money
	PaymentMethod     domain.PaymentMethod
	PaymentReference  string
	ExtendedBy        string
}

// CancelTransactionCommand represents the command to cancel a transaction
type CancelTransactionCommand struct {
	TransactionID    string
	Reason           string
	ReleaseInventory bool
	CancelledBy      string
}

// DeleteTransactionCommand represents the command to soft delete a transaction
type DeleteTransactionCommand struct {
	TransactionID string
	DeletedBy     string
}

// RefundTransactionCommand represents the command to refund a completed transaction
type RefundTransactionCommand struct {
	TransactionID string
	Amount        domain.Money
	Method        domain.PaymentMethod
	Reason        string
	RefundedBy    string
}

// UpdateTransactionCommand represents the command to edit a draft or pending transaction
type UpdateTransactionCommand struct {
	TransactionID   string
	Notes           *string
	CustomerID      *string
	RentalStartDate *time.Time
	RentalEndDate   *time.Time
	UpdatedBy       string
}

// RecordCompletedSaleCommand represents a walk-in sale paid in full at the counter
type RecordCompletedSaleCommand struct {
	CustomerID       string
	LocationID       string
	Lines            []TransactionLineInput
	HeaderDiscount   domain.Money
	TaxRate          domain.Percentage
	PaymentMethod    domain.PaymentMethod
	PaymentReference string
	Notes            string
	SoldBy           string
}

// FulfillSaleCommand represents the command to hand over a confirmed sale
type FulfillSaleCommand struct {
	TransactionID string
	FulfilledBy   string
}

// PurchaseLineInput describes stock bought from a supplier
type PurchaseLineInput struct {
	SKUID         string
	Description   string
	Quantity      int
	UnitCost      domain.Money
	TaxRate       domain.Percentage
	SerialNumbers []string
	// Condition of received units, A when empty
	ConditionGrade domain.ConditionGrade
}

// RecordCompletedPurchaseCommand represents goods received and paid for
type RecordCompletedPurchaseCommand struct {
	SupplierID       string
	LocationID       string
	Lines            []PurchaseLineInput
	PaymentMethod    domain.PaymentMethod
	PaymentReference string
	Notes            string
	ReceivedBy       string
}

// BatchPurchaseItem is a new catalog item bought in the same purchase
type BatchPurchaseItem struct {
	Item           domain.NewCatalogItem
	Quantity       int
	UnitCost       domain.Money
	SerialNumbers  []string
	ConditionGrade domain.ConditionGrade
}

// CreateBatchPurchaseCommand creates catalog items and the purchase that stocks them
type CreateBatchPurchaseCommand struct {
	SupplierID       string
	LocationID       string
	NewItems         []BatchPurchaseItem
	ExistingLines    []PurchaseLineInput
	PaymentMethod    domain.PaymentMethod
	PaymentReference string
	Notes            string
	ValidateOnly     bool
	CreatedBy        string
}

// CompleteReturnCommand returns everything still out on a rental in one call
type CompleteReturnCommand struct {
	TransactionID  string
	ReturnDate     time.Time
	ConditionGrade domain.ConditionGrade
	LateFeePolicy  domain.LateFeePolicy
	Notes          string
	ReturnedBy     string
}

// GetTransactionQuery represents the query to get a transaction by id or number
type GetTransactionQuery struct {
	ID     string
	Number string
}

// ListTransactionsQuery represents the query to list transactions with pagination
type ListTransactionsQuery struct {
	TransactionType domain.TransactionType
	Status          domain.TransactionStatus
	PaymentStatus   domain.PaymentStatus
	CustomerID      string
	LocationID      string
	From            *time.Time
	To              *time.Time
	IncludeDeleted  bool
	SortBy          string
	Descending      bool
	Limit           int
	Offset          int
}

// CustomerHistoryQuery represents the query for a customer's transactions and totals
type CustomerHistoryQuery struct {
	CustomerID string
	Limit      int
}

// OverdueRentalsQuery represents the query for rentals past their end date
type OverdueRentalsQuery struct {
	AsOf       time.Time
	LocationID string
}

// ReturnLineRequest asks for a quantity of a transaction line, or one unit, back
type ReturnLineRequest struct {
	TransactionLineID string
	UnitID            string
	Quantity          int
}

// InitiateReturnCommand opens a return. No lines means everything still out.
type InitiateReturnCommand struct {
	TransactionID string
	ReturnDate    time.Time
	Lines         []ReturnLineRequest
	Notes         string
	ProcessedBy   string
}

// CalculateLateFeeCommand stores the late fee of a return
type CalculateLateFeeCommand struct {
	ReturnID     string
	Policy       domain.LateFeePolicy
	CalculatedBy string
}

// ProjectLateFeeQuery computes the late fee a rental would owe if returned at AsOf
type ProjectLateFeeQuery struct {
	TransactionID string
	AsOf          time.Time
	Policy        domain.LateFeePolicy
}

// ReturnLineUpdate is the outcome of one line in a return session
type ReturnLineUpdate struct {
	ReturnLineID     string
	QuantityReturned int
	ConditionGrade   domain.ConditionGrade
	Notes            string
}

// ProcessPartialReturnCommand records units received back in a session
type ProcessPartialReturnCommand struct {
	ReturnID    string
	Lines       []ReturnLineUpdate
	ProcessedBy string
}

// ValidatePartialReturnQuery checks a return session without recording it
type ValidatePartialReturnQuery struct {
	ReturnID string
	Lines    []ReturnLineUpdate
}

// DamageFindingInput is one damage noted by an inspector
type DamageFindingInput struct {
	ItemDescription   string
	DamageDescription string
	Severity          domain.DamageSeverity
	EstimatedCost     domain.Money
	Photos            []string
}

// LineAssessment is the inspector verdict for one return line
type LineAssessment struct {
	ReturnLineID   string
	ConditionGrade domain.ConditionGrade
	Notes          string
	Findings       []DamageFindingInput
}

// AssessDamageCommand records an inspection of return lines
type AssessDamageCommand struct {
	ReturnID    string
	InspectorID string
	Assessments []LineAssessment
	Notes       string
}

// ApproveInspectionCommand approves a completed inspection
type ApproveInspectionCommand struct {
	InspectionID string
	Notes        string
	ApprovedBy   string
}

// RejectInspectionCommand rejects a completed inspection
type RejectInspectionCommand struct {
	InspectionID string
	Reason       string
	RejectedBy   string
}

// SetLineFeesCommand adjusts the fees of one return line. Nil fields are left alone.
type SetLineFeesCommand struct {
	ReturnID       string
	ReturnLineID   string
	DamageFee      *domain.Money
	CleaningFee    *domain.Money
	ReplacementFee *domain.Money
	UpdatedBy      string
}

// FinalizeReturnCommand completes a return
type FinalizeReturnCommand struct {
	ReturnID      string
	ForceFinalize bool
	FinalizedBy   string
}

// ReleaseDepositCommand settles the rental deposit against a completed return
type ReleaseDepositCommand struct {
	ReturnID   string
	ReleasedBy string
}

// ReverseDepositReleaseCommand undoes a deposit release
type ReverseDepositReleaseCommand struct {
	ReturnID   string
	Reason     string
	ReversedBy string
}

// RegisterUnitCommand registers a physical unit and counts it into stock
type RegisterUnitCommand struct {
	InventoryCode  string
	SerialNumber   string
	SKUID          string
	LocationID     string
	Status         domain.InventoryStatus
	ConditionGrade domain.ConditionGrade
	PurchaseCost   domain.Money
	PurchaseDate   *time.Time
	CreatedBy      string
}

// ReceiveStockCommand represents the command to receive bulk stock
type ReceiveStockCommand struct {
	SKUID      string
	LocationID string
	Quantity   int
	Reference  string
	ReceivedBy string
}

// TransferCommand moves stock between locations. The same shape starts, completes and cancels a transfer.
type TransferCommand struct {
	SKUID          string
	FromLocationID string
	ToLocationID   string
	Quantity       int
	UnitIDs        []string
	TransferredBy  string
}

// DamageStockCommand moves stock into or out of the damaged bucket
type DamageStockCommand struct {
	SKUID      string
	LocationID string
	Quantity   int
	UnitIDs    []string
	Reason     string
	By         string
}

// UpdateReorderLevelsCommand changes replenishment thresholds
type UpdateReorderLevelsCommand struct {
	SKUID           string
	LocationID      string
	ReorderPoint    int
	ReorderQuantity int
	MaximumStock    *int
	UpdatedBy       string
}

// InspectUnitCommand records an inspection of a unit
type InspectUnitCommand struct {
	UnitID         string
	ConditionGrade domain.ConditionGrade
	Notes          string
	InspectedBy    string
}

// RetireUnitCommand takes a unit out of service
type RetireUnitCommand struct {
	UnitID    string
	Reason    string
	RetiredBy string
}

// UpdateUnitValueCommand sets the book value of a unit
type UpdateUnitValueCommand struct {
	UnitID       string
	CurrentValue domain.Money
	UpdatedBy    string
}

// AvailabilityQuery checks whether Quantity can be booked. No LocationID checks every location.
type AvailabilityQuery struct {
	SKUID      string
	LocationID string
	Quantity   int
}

// ListUnitsQuery represents the query to list units
type ListUnitsQuery struct {
	SKUID      string
	LocationID string
	Status     domain.InventoryStatus
	ActiveOnly bool
	Limit      int
	Offset     int
}

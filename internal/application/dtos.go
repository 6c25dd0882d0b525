package application

import (
	"time"

	"github.com/rental-platform/rental-service/internal/domain"
)

// TransactionDTO represents a transaction in responses
type TransactionDTO struct {
	ID                string               `json:"id"`
	TransactionNumber string               `json:"transactionNumber"`
	TransactionType   string               `json:"transactionType"`
	Status            string               `json:"status"`
	PaymentStatus     string               `json:"paymentStatus"`
	CustomerID        string               `json:"customerId,omitempty"`
	SupplierID        string               `json:"supplierId,omitempty"`
	LocationID        string               `json:"locationId"`
	TransactionDate   time.Time            `json:"transactionDate"`
	RentalStartDate   *time.Time           `json:"rentalStartDate,omitempty"`
	RentalEndDate     *time.Time           `json:"rentalEndDate,omitempty"`
	RentalDays        int                  `json:"rentalDays,omitempty"`
	DepositAmount     domain.Money         `json:"depositAmount"`
	Subtotal          domain.Money         `json:"subtotal"`
	DiscountAmount    domain.Money         `json:"discountAmount"`
	TaxAmount         domain.Money         `json:"taxAmount"`
	TotalAmount       domain.Money         `json:"totalAmount"`
	PaidAmount        domain.Money         `json:"paidAmount"`
	RefundedAmount    domain.Money         `json:"refundedAmount"`
	BalanceDue        domain.Money         `json:"balanceDue"`
	InventoryReserved bool                 `json:"inventoryReserved"`
	Lines             []TransactionLineDTO `json:"lines"`
	Payments          []PaymentDTO         `json:"payments"`
	Notes             string               `json:"notes,omitempty"`
	IsDeleted         bool                 `json:"isDeleted"`
	Version           int64                `json:"version"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
	CreatedBy         string               `json:"createdBy,omitempty"`
}

// TransactionLineDTO represents a transaction line
type TransactionLineDTO struct {
	ID                 string            `json:"id"`
	LineNumber         int               `json:"lineNumber"`
	LineType           string            `json:"lineType"`
	SKUID              string            `json:"skuId,omitempty"`
	Description        string            `json:"description,omitempty"`
	UnitIDs            []string          `json:"unitIds,omitempty"`
	Quantity           int               `json:"quantity"`
	UnitPrice          domain.Money      `json:"unitPrice"`
	DailyRate          domain.Money      `json:"dailyRate"`
	DiscountPercentage domain.Percentage `json:"discountPercentage"`
	DiscountAmount     domain.Money      `json:"discountAmount"`
	TaxRate            domain.Percentage `json:"taxRate"`
	TaxAmount          domain.Money      `json:"taxAmount"`
	LineTotal          domain.Money      `json:"lineTotal"`
	ReturnedQuantity   int               `json:"returnedQuantity"`
	RemainingQuantity  int               `json:"remainingQuantity"`
	RentalStartDate    *time.Time        `json:"rentalStartDate,omitempty"`
	RentalEndDate      *time.Time        `json:"rentalEndDate,omitempty"`
	RentalDays         int               `json:"rentalDays,omitempty"`
}

// PaymentDTO represents a payment or refund entry
type PaymentDTO struct {
	ID         string       `json:"id"`
	Kind       string       `json:"kind"`
	Method     string       `json:"method"`
	Amount     domain.Money `json:"amount"`
	Reference  string       `json:"reference,omitempty"`
	Notes      string       `json:"notes,omitempty"`
	RecordedAt time.Time    `json:"recordedAt"`
	RecordedBy string       `json:"recordedBy,omitempty"`
}

// TransactionListDTO is one page of transactions
type TransactionListDTO struct {
	Transactions []TransactionDTO `json:"transactions"`
	Total        int64            `json:"total"`
}

// CustomerSummaryDTO aggregates a customer's transactions
type CustomerSummaryDTO struct {
	CustomerID        string         `json:"customerId"`
	TransactionCount  int            `json:"transactionCount"`
	CountByType       map[string]int `json:"countByType"`
	TotalSpent        domain.Money   `json:"totalSpent"`
	TotalPaid         domain.Money   `json:"totalPaid"`
	TotalRefunded     domain.Money   `json:"totalRefunded"`
	OutstandingAmount domain.Money   `json:"outstandingAmount"`
	ActiveRentals     int            `json:"activeRentals"`
	OverdueRentals    int            `json:"overdueRentals"`
	LastTransactionAt *time.Time     `json:"lastTransactionAt,omitempty"`
}

// CustomerHistoryDTO is a customer summary with recent transactions
type CustomerHistoryDTO struct {
	Summary      CustomerSummaryDTO `json:"summary"`
	Transactions []TransactionDTO   `json:"transactions"`
}

// OverdueRentalDTO is a rental past its end date
type OverdueRentalDTO struct {
	TransactionID     string    `json:"transactionId"`
	TransactionNumber string    `json:"transactionNumber"`
	CustomerID        string    `json:"customerId"`
	LocationID        string    `json:"locationId"`
	RentalEndDate     time.Time `json:"rentalEndDate"`
	DaysOverdue       int       `json:"daysOverdue"`
	OutstandingUnits  int       `json:"outstandingUnits"`
}

// BatchPurchaseResultDTO is the outcome of a batch purchase
type BatchPurchaseResultDTO struct {
	IsValid     bool               `json:"isValid"`
	Errors      []string           `json:"errors,omitempty"`
	Transaction *TransactionDTO    `json:"transaction,omitempty"`
	CreatedSKUs []domain.SKUInfo   `json:"createdSkus,omitempty"`
	Units       []InventoryUnitDTO `json:"units,omitempty"`
}

// InventoryUnitDTO represents an inventory unit
type InventoryUnitDTO struct {
	ID                  string            `json:"id"`
	InventoryCode       string            `json:"inventoryCode"`
	SerialNumber        string            `json:"serialNumber,omitempty"`
	SKUID               string            `json:"skuId"`
	LocationID          string            `json:"locationId"`
	Status              string            `json:"status"`
	ConditionGrade      string            `json:"conditionGrade"`
	PurchaseCost        domain.Money      `json:"purchaseCost"`
	CurrentValue        domain.Money      `json:"currentValue"`
	HeldByTransactionID string            `json:"heldByTransactionId,omitempty"`
	RentalCount         int               `json:"rentalCount"`
	TotalRentalDays     int               `json:"totalRentalDays"`
	LastInspectionDate  *time.Time        `json:"lastInspectionDate,omitempty"`
	RequiresInspection  bool              `json:"requiresInspection"`
	IsActive            bool              `json:"isActive"`
	Notes               string            `json:"notes,omitempty"`
	Movements           []UnitMovementDTO `json:"movements,omitempty"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// UnitMovementDTO represents one unit history entry
type UnitMovementDTO struct {
	FromStatus     string    `json:"fromStatus,omitempty"`
	ToStatus       string    `json:"toStatus,omitempty"`
	FromLocationID string    `json:"fromLocationId,omitempty"`
	ToLocationID   string    `json:"toLocationId,omitempty"`
	TransactionID  string    `json:"transactionId,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	MovedAt        time.Time `json:"movedAt"`
	MovedBy        string    `json:"movedBy,omitempty"`
}

// StockLevelDTO represents stock of one SKU at one location
type StockLevelDTO struct {
	SKUID             string     `json:"skuId"`
	LocationID        string     `json:"locationId"`
	QuantityOnHand    int        `json:"quantityOnHand"`
	QuantityAvailable int        `json:"quantityAvailable"`
	QuantityReserved  int        `json:"quantityReserved"`
	QuantityInTransit int        `json:"quantityInTransit"`
	QuantityDamaged   int        `json:"quantityDamaged"`
	QuantityOnRent    int        `json:"quantityOnRent"`
	ReorderPoint      int        `json:"reorderPoint"`
	ReorderQuantity   int        `json:"reorderQuantity"`
	MaximumStock      *int       `json:"maximumStock,omitempty"`
	NeedsReorder      bool       `json:"needsReorder"`
	SuggestedOrder    int        `json:"suggestedOrderQuantity"`
	LastMovementAt    *time.Time `json:"lastMovementAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// SKUStockDTO is the stock of a SKU across locations
type SKUStockDTO struct {
	SKUID          string          `json:"skuId"`
	TotalAvailable int             `json:"totalAvailable"`
	Locations      []StockLevelDTO `json:"locations"`
}

// AvailabilityDTO is the result of an availability check
type AvailabilityDTO struct {
	SKUID      string `json:"skuId"`
	LocationID string `json:"locationId,omitempty"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
	CanFulfill bool   `json:"canFulfill"`
	Shortfall  int    `json:"shortfall"`
}

// UnitListDTO is one page of units
type UnitListDTO struct {
	Units []InventoryUnitDTO `json:"units"`
	Total int64              `json:"total"`
}

// RentalReturnDTO represents a rental return
type RentalReturnDTO struct {
	ID                    string                `json:"id"`
	RentalTransactionID   string                `json:"rentalTransactionId"`
	ReturnDate            time.Time             `json:"returnDate"`
	ExpectedReturnDate    time.Time             `json:"expectedReturnDate"`
	DaysLate              int                   `json:"daysLate"`
	ReturnType            string                `json:"returnType"`
	ReturnStatus          string                `json:"returnStatus"`
	TotalLateFee          domain.Money          `json:"totalLateFee"`
	TotalDamageFee        domain.Money          `json:"totalDamageFee"`
	TotalCleaningFee      domain.Money          `json:"totalCleaningFee"`
	TotalReplacementFee   domain.Money          `json:"totalReplacementFee"`
	TotalFees             domain.Money          `json:"totalFees"`
	DepositReleased       bool                  `json:"depositReleased"`
	DepositReleaseAmount  domain.Money          `json:"depositReleaseAmount"`
	DepositWithheldAmount domain.Money          `json:"depositWithheldAmount"`
	DepositReleaseDate    *time.Time            `json:"depositReleaseDate,omitempty"`
	DepositReversalReason string                `json:"depositReversalReason,omitempty"`
	DepositReversedBy     string                `json:"depositReversedBy,omitempty"`
	DepositReversedAt     *time.Time            `json:"depositReversedAt,omitempty"`
	ProcessedBy           string                `json:"processedBy,omitempty"`
	FinalizedBy           string                `json:"finalizedBy,omitempty"`
	FinalizedAt           *time.Time            `json:"finalizedAt,omitempty"`
	Notes                 string                `json:"notes,omitempty"`
	Lines                 []RentalReturnLineDTO `json:"lines"`
	Version               int64                 `json:"version"`
	CreatedAt             time.Time             `json:"createdAt"`
	UpdatedAt             time.Time             `json:"updatedAt"`
}

// RentalReturnLineDTO represents a return line
type RentalReturnLineDTO struct {
	ID                string       `json:"id"`
	TransactionLineID string       `json:"transactionLineId"`
	InventoryUnitID   string       `json:"inventoryUnitId,omitempty"`
	ReturnedUnitIDs   []string     `json:"returnedUnitIds,omitempty"`
	OriginalQuantity  int          `json:"originalQuantity"`
	ReturnedQuantity  int          `json:"returnedQuantity"`
	DamagedQuantity   int          `json:"damagedQuantity"`
	RemainingQuantity int          `json:"remainingQuantity"`
	ConditionGrade    string       `json:"conditionGrade"`
	LateFee           domain.Money `json:"lateFee"`
	DamageFee         domain.Money `json:"damageFee"`
	CleaningFee       domain.Money `json:"cleaningFee"`
	ReplacementFee    domain.Money `json:"replacementFee"`
	TotalFees         domain.Money `json:"totalFees"`
	IsProcessed       bool         `json:"isProcessed"`
	Notes             string       `json:"notes,omitempty"`
}

// LateFeeDTO is a late fee calculation
type LateFeeDTO struct {
	ReturnID      string           `json:"returnId,omitempty"`
	TransactionID string           `json:"transactionId"`
	AsOf          time.Time        `json:"asOf"`
	DaysLate      int              `json:"daysLate"`
	Policy        string           `json:"policy"`
	TotalLateFee  domain.Money     `json:"totalLateFee"`
	Lines         []LineLateFeeDTO `json:"lines"`
	Projected     bool             `json:"projected"`
}

// LineLateFeeDTO is the late fee share of one line
type LineLateFeeDTO struct {
	LineID   string       `json:"lineId"`
	Quantity int          `json:"quantity"`
	LateFee  domain.Money `json:"lateFee"`
}

// PartialReturnViolationDTO is one problem found by a return dry run
type PartialReturnViolationDTO struct {
	ReturnLineID string `json:"returnLineId"`
	Reason       string `json:"reason"`
}

// PartialReturnSummaryDTO summarizes a return dry run
type PartialReturnSummaryDTO struct {
	LinesChecked    int `json:"linesChecked"`
	TotalQuantity   int `json:"totalQuantity"`
	LinesCompleting int `json:"linesCompleting"`
	RemainingAfter  int `json:"remainingAfter"`
	DamagedQuantity int `json:"damagedQuantity"`
}

// PartialReturnValidationDTO is the result of ValidatePartialReturn
type PartialReturnValidationDTO struct {
	IsValid    bool                        `json:"isValid"`
	Violations []PartialReturnViolationDTO `json:"violations"`
	Summary    PartialReturnSummaryDTO     `json:"summary"`
}

// InspectionReportDTO represents an inspection report
type InspectionReportDTO struct {
	ID              string             `json:"id"`
	ReturnID        string             `json:"returnId"`
	InspectorID     string             `json:"inspectorId"`
	InspectionDate  time.Time          `json:"inspectionDate"`
	Status          string             `json:"inspectionStatus"`
	DamageFound     bool               `json:"damageFound"`
	Findings        []DamageFindingDTO `json:"damageFindings"`
	AssessedLineIDs []string           `json:"assessedLineIds"`
	TotalDamageCost domain.Money       `json:"totalDamageCost"`
	ApprovedBy      string             `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time         `json:"approvedAt,omitempty"`
	RejectionReason string             `json:"rejectionReason,omitempty"`
	Notes           string             `json:"notes,omitempty"`
}

// DamageFindingDTO represents one damage finding
type DamageFindingDTO struct {
	ID                string       `json:"id"`
	ReturnLineID      string       `json:"returnLineId"`
	ItemDescription   string       `json:"itemDescription"`
	DamageDescription string       `json:"damageDescription"`
	Severity          string       `json:"severity"`
	EstimatedCost     domain.Money `json:"estimatedCost"`
	Photos            []string     `json:"photos,omitempty"`
}

// InventoryChangeDTO is one inventory write a finalization would make
type InventoryChangeDTO struct {
	UnitID     string `json:"unitId,omitempty"`
	SKUID      string `json:"skuId"`
	LocationID string `json:"locationId"`
	FromStatus string `json:"fromStatus,omitempty"`
	ToStatus   string `json:"toStatus,omitempty"`
	Quantity   int    `json:"quantity"`
}

// FinalizationPreviewDTO reports what FinalizeReturn would do
type FinalizationPreviewDTO struct {
	ReturnID         string               `json:"returnId"`
	CanFinalize      bool                 `json:"canFinalize"`
	RequiresForce    bool                 `json:"requiresForce"`
	BlockingReasons  []string             `json:"blockingReasons"`
	TotalLateFee     domain.Money         `json:"totalLateFee"`
	TotalDamageFee   domain.Money         `json:"totalDamageFee"`
	TotalOtherFees   domain.Money         `json:"totalOtherFees"`
	TotalFees        domain.Money         `json:"totalFees"`
	InventoryChanges []InventoryChangeDTO `json:"inventoryChanges"`
	CompletesRental  bool                 `json:"completesRental"`
}

// DepositReleaseDTO is the settlement of a deposit
type DepositReleaseDTO struct {
	ReturnID        string       `json:"returnId"`
	TransactionID   string       `json:"transactionId"`
	OriginalDeposit domain.Money `json:"originalDeposit"`
	TotalFees       domain.Money `json:"totalFees"`
	ReleaseAmount   domain.Money `json:"releaseAmount"`
	WithheldAmount  domain.Money `json:"withheldAmount"`
	CanRelease      bool         `json:"canRelease"`
	Released        bool         `json:"released"`
	ReleasedAt      *time.Time   `json:"releasedAt,omitempty"`
}

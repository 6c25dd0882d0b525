package domain

import (
	"context"
	"time"
)

// Repositories save aggregates with optimistic concurrency: a Version of zero inserts,
// anything else updates only while the stored version still matches and then
// increments it. A lost race returns ErrConcurrentModification.
// Finders return nil, nil when nothing matches.

// TransactionFilter narrows transaction listings
type TransactionFilter struct {
	TransactionType TransactionType
	Status          TransactionStatus
	PaymentStatus   PaymentStatus
	CustomerID      string
	LocationID      string
	From            *time.Time
	To              *time.Time
	IncludeDeleted  bool
	SortField       string
	SortDescending  bool
	Offset          int
	Limit           int
}

// TransactionRepository defines the interface for transaction persistence
type TransactionRepository interface {
	Save(ctx context.Context, t *TransactionHeader) error
	FindByID(ctx context.Context, id string) (*TransactionHeader, error)
	FindByNumber(ctx context.Context, number string) (*TransactionHeader, error)
	List(ctx context.Context, filter TransactionFilter) ([]*TransactionHeader, int64, error)
	FindOverdueRentals(ctx context.Context, asOf time.Time, locationID string) ([]*TransactionHeader, error)
}

// UnitFilter narrows inventory unit listings
type UnitFilter struct {
	SKUID      string
	LocationID string
	Status     InventoryStatus
	ActiveOnly bool
	Offset     int
	Limit      int
}

// InventoryUnitRepository defines the interface for inventory unit persistence
type InventoryUnitRepository interface {
	Save(ctx context.Context, u *InventoryUnit) error
	FindByID(ctx context.Context, id string) (*InventoryUnit, error)
	FindByIDs(ctx context.Context, ids []string) ([]*InventoryUnit, error)
	FindBySerialNumber(ctx context.Context, serial string) (*InventoryUnit, error)
	FindByTransaction(ctx context.Context, transactionID string) ([]*InventoryUnit, error)
	// FindAvailable returns up to limit active units of the SKU at the location in status, oldest first
	FindAvailable(ctx context.Context, skuID, locationID string, status InventoryStatus, limit int) ([]*InventoryUnit, error)
	List(ctx context.Context, filter UnitFilter) ([]*InventoryUnit, int64, error)
}

// StockLevelRepository defines the interface for stock level persistence
type StockLevelRepository interface {
	Save(ctx context.Context, s *StockLevel) error
	FindBySKUAndLocation(ctx context.Context, skuID, locationID string) (*StockLevel, error)
	FindBySKU(ctx context.Context, skuID string) ([]*StockLevel, error)
	FindLowStock(ctx context.Context, locationID string) ([]*StockLevel, error)
}

// RentalReturnRepository defines the interface for rental return persistence
type RentalReturnRepository interface {
	Save(ctx context.Context, r *RentalReturn) error
	FindByID(ctx context.Context, id string) (*RentalReturn, error)
	FindByTransaction(ctx context.Context, transactionID string) ([]*RentalReturn, error)
}

// InspectionReportRepository defines the interface for inspection report persistence
type InspectionReportRepository interface {
	Save(ctx context.Context, r *InspectionReport) error
	FindByID(ctx context.Context, id string) (*InspectionReport, error)
	FindByReturn(ctx context.Context, returnID string) ([]*InspectionReport, error)
}

// TransactionNumberGenerator issues <PREFIX>-<LOCATION>-<YYYYMMDD>-<SEQ> numbers
// from an atomic per (type, location) counter
type TransactionNumberGenerator interface {
	Next(ctx context.Context, txnType TransactionType, locationCode string, date time.Time) (string, error)
}

// ReferenceData bundles the directory and catalog records owned by other services.
// Stores accept it to seed their read-only lookups.
type ReferenceData struct {
	Customers []CustomerInfo
	Locations []LocationInfo
	SKUs      []SKUInfo
}

// CustomerInfo is the slice of customer data the rental core needs
type CustomerInfo struct {
	ID            string `bson:"_id" json:"id"`
	Name          string `bson:"name" json:"name"`
	IsActive      bool   `bson:"isActive" json:"isActive"`
	IsBlacklisted bool   `bson:"isBlacklisted" json:"isBlacklisted"`
}

// CustomerDirectory reads customers owned by the customer service
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id string) (*CustomerInfo, error)
}

// LocationInfo is the slice of location data the rental core needs
type LocationInfo struct {
	ID       string `bson:"_id" json:"id"`
	Code     string `bson:"code" json:"code"`
	Name     string `bson:"name" json:"name"`
	IsActive bool   `bson:"isActive" json:"isActive"`
}

// LocationDirectory reads locations owned by the location service
type LocationDirectory interface {
	GetLocation(ctx context.Context, id string) (*LocationInfo, error)
}

// SKUInfo is the slice of catalog data the rental core needs
type SKUInfo struct {
	ID               string `bson:"_id" json:"id"`
	SKUCode          string `bson:"skuCode" json:"skuCode"`
	Name             string `bson:"name" json:"name"`
	ItemMasterID     string `bson:"itemMasterId" json:"itemMasterId"`
	IsActive         bool   `bson:"isActive" json:"isActive"`
	IsSaleable       bool   `bson:"isSaleable" json:"isSaleable"`
	IsRentable       bool   `bson:"isRentable" json:"isRentable"`
	MinRentalDays    int    `bson:"minRentalDays" json:"minRentalDays"`
	MaxRentalDays    int    `bson:"maxRentalDays,omitempty" json:"maxRentalDays,omitempty"`
	SalePrice        Money  `bson:"salePrice" json:"salePrice"`
	RentalRatePerDay Money  `bson:"rentalRatePerDay" json:"rentalRatePerDay"`
	SecurityDeposit  Money  `bson:"securityDeposit" json:"securityDeposit"`
	TracksUnits      bool   `bson:"tracksUnits" json:"tracksUnits"`
}

// AllowsRentalDays checks the SKU rental day bounds. A zero maximum is unbounded.
func (s *SKUInfo) AllowsRentalDays(days int) bool {
	if s.MinRentalDays > 0 && days < s.MinRentalDays {
		return false
	}
	return s.MaxRentalDays <= 0 || days <= s.MaxRentalDays
}

// NewCatalogItem describes an item master plus SKU created by a batch purchase
type NewCatalogItem struct {
	ItemName         string
	ItemCode         string
	SKUCode          string
	Description      string
	CategoryID       string
	BrandID          string
	IsSaleable       bool
	IsRentable       bool
	MinRentalDays    int
	MaxRentalDays    int
	SalePrice        Money
	RentalRatePerDay Money
	SecurityDeposit  Money
	TracksUnits      bool
	CreatedBy        string
}

// Validate checks the rental day bounds and pricing of a new item
func (n NewCatalogItem) Validate() error {
	if n.ItemName == "" {
		return NewValidationError("itemName", "is required")
	}
	if n.SKUCode == "" {
		return NewValidationError("skuCode", "is required")
	}
	if n.MinRentalDays < 0 || n.MaxRentalDays < 0 {
		return NewValidationError("rentalDays", "cannot be negative")
	}
	if n.MaxRentalDays > 0 && n.MaxRentalDays < n.MinRentalDays {
		return NewValidationError("maxRentalDays", "must be greater than or equal to minRentalDays")
	}
	if n.IsRentable && !n.RentalRatePerDay.IsPositive() {
		return NewValidationError("rentalRatePerDay", "is required for rentable items")
	}
	if n.SalePrice.IsNegative() || n.RentalRatePerDay.IsNegative() || n.SecurityDeposit.IsNegative() {
		return NewValidationError("price", "cannot be negative")
	}
	return nil
}

// Catalog reads SKUs and creates catalog entries inside a unit of work
type Catalog interface {
	GetSKU(ctx context.Context, id string) (*SKUInfo, error)
	FindSKUByCode(ctx context.Context, code string) (*SKUInfo, error)
	CreateItems(ctx context.Context, items []NewCatalogItem) ([]*SKUInfo, error)
}

// Repositories is the set of ports available inside one unit of work
type Repositories struct {
	Transactions TransactionRepository
	Units        InventoryUnitRepository
	StockLevels  StockLevelRepository
	Returns      RentalReturnRepository
	Inspections  InspectionReportRepository
	Numbers      TransactionNumberGenerator
	Customers    CustomerDirectory
	Locations    LocationDirectory
	Catalog      Catalog
}

// UnitOfWork runs fn atomically: every write made through repos commits when
// fn returns nil and is discarded on error or panic.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

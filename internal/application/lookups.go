package application

import (
	"context"
	"fmt"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/errors"
)

func loadTransaction(ctx context.Context, repos domain.Repositories, id string) (*domain.TransactionHeader, error) {
	txn, err := repos.Transactions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if txn == nil || txn.IsDeleted {
		return nil, errors.ErrNotFoundWithID("transaction", id)
	}
	return txn, nil
}

func loadRental(ctx context.Context, repos domain.Repositories, id string) (*domain.TransactionHeader, error) {
	txn, err := loadTransaction(ctx, repos, id)
	if err != nil {
		return nil, err
	}
	if !txn.IsRental() {
		return nil, errors.ErrValidation("transaction is not a rental").WithDetail("transactionId", id)
	}
	return txn, nil
}

func loadReturn(ctx context.Context, repos domain.Repositories, id string) (*domain.RentalReturn, error) {
	ret, err := repos.Returns.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get rental return: %w", err)
	}
	if ret == nil {
		return nil, errors.ErrNotFoundWithID("rental return", id)
	}
	return ret, nil
}

func loadInspection(ctx context.Context, repos domain.Repositories, id string) (*domain.InspectionReport, error) {
	report, err := repos.Inspections.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get inspection report: %w", err)
	}
	if report == nil {
		return nil, errors.ErrNotFoundWithID("inspection report", id)
	}
	return report, nil
}

// loadSKU treats inactive SKUs as missing
func loadSKU(ctx context.Context, repos domain.Repositories, id string) (*domain.SKUInfo, error) {
	sku, err := repos.Catalog.GetSKU(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get sku: %w", err)
	}
	if sku == nil || !sku.IsActive {
		return nil, errors.ErrNotFoundWithID("sku", id)
	}
	return sku, nil
}

// activeCustomer fails for missing, inactive and blacklisted customers
func activeCustomer(ctx context.Context, repos domain.Repositories, id string) (*domain.CustomerInfo, error) {
	if id == "" {
		return nil, errors.ErrValidation("customerId is required")
	}
	customer, err := repos.Customers.GetCustomer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if customer == nil || !customer.IsActive {
		return nil, errors.ErrNotFoundWithID("customer", id)
	}
	if customer.IsBlacklisted {
		return nil, errors.ErrValidation("customer is blacklisted").WithDetail("customerId", id)
	}
	return customer, nil
}

func activeLocation(ctx context.Context, repos domain.Repositories, id string) (*domain.LocationInfo, error) {
	if id == "" {
		return nil, errors.ErrValidation("locationId is required")
	}
	location, err := repos.Locations.GetLocation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	if location == nil || !location.IsActive {
		return nil, errors.ErrNotFoundWithID("location", id)
	}
	return location, nil
}

// skuCache memoizes catalog lookups within one unit of work
type skuCache struct {
	ctx   context.Context
	repos domain.Repositories
	skus  map[string]*domain.SKUInfo
}

func newSKUCache(ctx context.Context, repos domain.Repositories) *skuCache {
	return &skuCache{ctx: ctx, repos: repos, skus: make(map[string]*domain.SKUInfo)}
}

func (c *skuCache) get(id string) (*domain.SKUInfo, error) {
	if sku, ok := c.skus[id]; ok {
		return sku, nil
	}
	sku, err := loadSKU(c.ctx, c.repos, id)
	if err != nil {
		return nil, err
	}
	c.skus[id] = sku
	return sku, nil
}

// tracksUnits reports unit-level tracking for a SKU
func (c *skuCache) tracksUnits(id string) (bool, error) {
	sku, err := c.get(id)
	if err != nil {
		return false, err
	}
	return sku.TracksUnits, nil
}

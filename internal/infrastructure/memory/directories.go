package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/errors"
)

func duplicateKey(entity, field, value string) error {
	return errors.ErrConflict(entity + " " + field + " already exists").WithDetail(field, value)
}

// numberGenerator keeps one counter per (type, location), staged with the unit of work
type numberGenerator struct {
	tx *storeTx
}

func (g *numberGenerator) Next(_ context.Context, txnType domain.TransactionType, locationCode string, date time.Time) (string, error) {
	if locationCode == "" {
		return "", fmt.Errorf("location code is required: %w", domain.ErrValidation)
	}
	key := string(txnType) + "|" + locationCode
	n, ok := g.tx.counters[key]
	if !ok {
		n = g.tx.store.counters[key]
	}
	n++
	g.tx.counters[key] = n
	return fmt.Sprintf("%s-%s-%s-%06d", txnType.NumberPrefix(), strings.ToUpper(locationCode), date.Format("20060102"), n), nil
}

type customerDirectory struct {
	store *Store
}

func (d *customerDirectory) GetCustomer(_ context.Context, id string) (*domain.CustomerInfo, error) {
	c, ok := d.store.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

type locationDirectory struct {
	store *Store
}

func (d *locationDirectory) GetLocation(_ context.Context, id string) (*domain.LocationInfo, error) {
	l, ok := d.store.locations[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// catalog reads seeded SKUs and stages SKUs created by batch purchases
type catalog struct {
	tx *storeTx
}

func (c *catalog) lookup(id string) (domain.SKUInfo, bool) {
	if sku, ok := c.tx.skus[id]; ok {
		return sku, true
	}
	sku, ok := c.tx.store.skus[id]
	return sku, ok
}

func (c *catalog) GetSKU(_ context.Context, id string) (*domain.SKUInfo, error) {
	sku, ok := c.lookup(id)
	if !ok {
		return nil, nil
	}
	return &sku, nil
}

func (c *catalog) FindSKUByCode(_ context.Context, code string) (*domain.SKUInfo, error) {
	for _, skus := range []map[string]domain.SKUInfo{c.tx.skus, c.tx.store.skus} {
		for _, sku := range skus {
			if strings.EqualFold(sku.SKUCode, code) {
				found := sku
				return &found, nil
			}
		}
	}
	return nil, nil
}

func (c *catalog) CreateItems(ctx context.Context, items []domain.NewCatalogItem) ([]*domain.SKUInfo, error) {
	created := make([]*domain.SKUInfo, 0, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, err
		}
		existing, err := c.FindSKUByCode(ctx, item.SKUCode)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, duplicateKey("sku", "skuCode", item.SKUCode)
		}
		sku := domain.SKUInfo{
			ID:               domain.NewID(),
			SKUCode:          item.SKUCode,
			Name:             item.ItemName,
			ItemMasterID:     domain.NewID(),
			IsActive:         true,
			IsSaleable:       item.IsSaleable,
			IsRentable:       item.IsRentable,
			MinRentalDays:    item.MinRentalDays,
			MaxRentalDays:    item.MaxRentalDays,
			SalePrice:        item.SalePrice,
			RentalRatePerDay: item.RentalRatePerDay,
			SecurityDeposit:  item.SecurityDeposit,
			TracksUnits:      item.TracksUnits,
		}
		c.tx.skus[sku.ID] = sku
		out := sku
		created = append(created, &out)
	}
	return created, nil
}

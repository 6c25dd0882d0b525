package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/errors"
	pkgmongo "github.com/rental-platform/rental-service/pkg/mongodb"
)

// numberGenerator draws transaction numbers from one $inc counter per (type, location).
// The counter document is written inside the unit of work, so an aborted booking gives its number back.
type numberGenerator struct {
	coll *pkgmongo.InstrumentedCollection
}

type counter struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

func (g *numberGenerator) Next(ctx context.Context, txnType domain.TransactionType, locationCode string, date time.Time) (string, error) {
	if locationCode == "" {
		return "", fmt.Errorf("location code is required: %w", domain.ErrValidation)
	}
	code := strings.ToUpper(locationCode)
	var out counter
	err := g.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": string(txnType) + "|" + code},
		pkgmongo.IncrementCounter("seq", 1),
		&out,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	if err != nil {
		return "", fmt.Errorf("failed to increment transaction counter: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s-%06d", txnType.NumberPrefix(), code, date.Format("20060102"), out.Seq), nil
}

type customerDirectory struct {
	coll *pkgmongo.InstrumentedCollection
}

func (d *customerDirectory) GetCustomer(ctx context.Context, id string) (*domain.CustomerInfo, error) {
	var c domain.CustomerInfo
	if err := d.coll.FindOne(ctx, bson.M{"_id": id}, &c); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

type locationDirectory struct {
	coll *pkgmongo.InstrumentedCollection
}

func (d *locationDirectory) GetLocation(ctx context.Context, id string) (*domain.LocationInfo, error) {
	var l domain.LocationInfo
	if err := d.coll.FindOne(ctx, bson.M{"_id": id}, &l); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

type catalog struct {
	coll *pkgmongo.InstrumentedCollection
}

func (c *catalog) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*domain.SKUInfo, error) {
	var sku domain.SKUInfo
	if err := c.coll.FindOne(ctx, filter, &sku, opts...); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find sku: %w", err)
	}
	return &sku, nil
}

func (c *catalog) GetSKU(ctx context.Context, id string) (*domain.SKUInfo, error) {
	return c.findOne(ctx, bson.M{"_id": id})
}

func (c *catalog) FindSKUByCode(ctx context.Context, code string) (*domain.SKUInfo, error) {
	return c.findOne(ctx, bson.M{"skuCode": code}, options.FindOne().SetCollation(caseInsensitive))
}

func (c *catalog) CreateItems(ctx context.Context, items []domain.NewCatalogItem) ([]*domain.SKUInfo, error) {
	created := make([]*domain.SKUInfo, 0, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, err
		}
		sku := &domain.SKUInfo{
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
		if _, err := c.coll.InsertOne(ctx, sku); err != nil {
			if pkgmongo.IsDuplicateKey(err) {
				return nil, errors.ErrConflict("sku skuCode already exists").WithDetail("skuCode", item.SKUCode)
			}
			return nil, fmt.Errorf("failed to create sku: %w", err)
		}
		created = append(created, sku)
	}
	return created, nil
}

// PutReferenceData upserts directory and catalog records by id. It runs outside
// the unit of work since these collections are owned by other services.
func (s *Store) PutReferenceData(ctx context.Context, data *domain.ReferenceData) error {
	upsert := options.Replace().SetUpsert(true)
	for _, c := range data.Customers {
		if _, err := s.customers.ReplaceOne(ctx, bson.M{"_id": c.ID}, c, upsert); err != nil {
			return fmt.Errorf("failed to upsert customer %s: %w", c.ID, err)
		}
	}
	for _, l := range data.Locations {
		if _, err := s.locations.ReplaceOne(ctx, bson.M{"_id": l.ID}, l, upsert); err != nil {
			return fmt.Errorf("failed to upsert location %s: %w", l.ID, err)
		}
	}
	for _, sku := range data.SKUs {
		if _, err := s.skus.ReplaceOne(ctx, bson.M{"_id": sku.ID}, sku, upsert); err != nil {
			if pkgmongo.IsDuplicateKey(err) {
				return errors.ErrConflict("sku skuCode already exists").WithDetail("skuCode", sku.SKUCode)
			}
			return fmt.Errorf("failed to upsert sku %s: %w", sku.ID, err)
		}
	}
	return nil
}

package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rental-platform/rental-service/internal/domain"
	pkgmongo "github.com/rental-platform/rental-service/pkg/mongodb"
)

type transactionRepository struct {
	c  *versioned[domain.TransactionHeader]
	tx *session
}

func (r *transactionRepository) Save(ctx context.Context, t *domain.TransactionHeader) error {
	return r.c.save(ctx, r.tx, t)
}

func (r *transactionRepository) FindByID(ctx context.Context, id string) (*domain.TransactionHeader, error) {
	return r.c.findOne(ctx, bson.M{"_id": id})
}

func (r *transactionRepository) FindByNumber(ctx context.Context, number string) (*domain.TransactionHeader, error) {
	return r.c.findOne(ctx, bson.M{"transactionNumber": number})
}

func (r *transactionRepository) List(ctx context.Context, f domain.TransactionFilter) ([]*domain.TransactionHeader, int64, error) {
	filter := transactionFilter(f)
	total, err := r.c.count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	field := f.SortField
	if field == "" {
		field = "transactionDate"
	}
	sort := pkgmongo.SortAscending(field)
	if f.SortDescending {
		sort = pkgmongo.SortDescending(field)
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})
	opts := options.Find().SetSort(sort)
	if field == "totalAmount" {
		// amounts are stored as decimal strings
		opts.SetCollation(&options.Collation{Locale: "en", NumericOrdering: true})
	}

	rows, err := r.c.findMany(ctx, filter, pkgmongo.Window(opts, f.Offset, f.Limit))
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func transactionFilter(f domain.TransactionFilter) bson.M {
	filter := bson.M{}
	if !f.IncludeDeleted {
		filter["isDeleted"] = false
	}
	if f.TransactionType != "" {
		filter["transactionType"] = f.TransactionType
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.PaymentStatus != "" {
		filter["paymentStatus"] = f.PaymentStatus
	}
	if f.CustomerID != "" {
		filter["customerId"] = f.CustomerID
	}
	if f.LocationID != "" {
		filter["locationId"] = f.LocationID
	}
	if f.From != nil || f.To != nil {
		dates := bson.M{}
		if f.From != nil {
			dates["$gte"] = *f.From
		}
		if f.To != nil {
			dates["$lte"] = *f.To
		}
		filter["transactionDate"] = dates
	}
	return filter
}

func (r *transactionRepository) FindOverdueRentals(ctx context.Context, asOf time.Time, locationID string) ([]*domain.TransactionHeader, error) {
	filter := bson.M{
		"isDeleted":       false,
		"transactionType": domain.TransactionRental,
		"status":          domain.TransactionInProgress,
		"rentalEndDate":   bson.M{"$lt": asOf},
	}
	if locationID != "" {
		filter["locationId"] = locationID
	}
	rows, err := r.c.findMany(ctx, filter, options.Find().SetSort(pkgmongo.SortAscending("rentalEndDate")))
	if err != nil {
		return nil, err
	}
	overdue := rows[:0]
	for _, t := range rows {
		if t.IsOverdue(asOf) {
			overdue = append(overdue, t)
		}
	}
	return overdue, nil
}

type unitRepository struct {
	c  *versioned[domain.InventoryUnit]
	tx *session
}

func (r *unitRepository) Save(ctx context.Context, u *domain.InventoryUnit) error {
	return r.c.save(ctx, r.tx, u)
}

func (r *unitRepository) FindByID(ctx context.Context, id string) (*domain.InventoryUnit, error) {
	return r.c.findOne(ctx, bson.M{"_id": id})
}

func (r *unitRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.InventoryUnit, error) {
	return r.c.findMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetSort(pkgmongo.SortAscending("_id")))
}

func (r *unitRepository) FindBySerialNumber(ctx context.Context, serial string) (*domain.InventoryUnit, error) {
	if serial == "" {
		return nil, nil
	}
	return r.c.findOne(ctx, bson.M{"serialNumber": serial}, options.FindOne().SetCollation(caseInsensitive))
}

func (r *unitRepository) FindByTransaction(ctx context.Context, transactionID string) ([]*domain.InventoryUnit, error) {
	return r.c.findMany(ctx, bson.M{"heldByTransactionId": transactionID}, options.Find().SetSort(pkgmongo.SortAscending("_id")))
}

func (r *unitRepository) FindAvailable(ctx context.Context, skuID, locationID string, status domain.InventoryStatus, limit int) ([]*domain.InventoryUnit, error) {
	filter := bson.M{"isActive": true, "skuId": skuID, "locationId": locationID, "status": status}
	return r.c.findMany(ctx, filter, pkgmongo.Window(options.Find().SetSort(oldestFirst()), 0, limit))
}

func (r *unitRepository) List(ctx context.Context, f domain.UnitFilter) ([]*domain.InventoryUnit, int64, error) {
	filter := bson.M{}
	if f.ActiveOnly {
		filter["isActive"] = true
	}
	if f.SKUID != "" {
		filter["skuId"] = f.SKUID
	}
	if f.LocationID != "" {
		filter["locationId"] = f.LocationID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	total, err := r.c.count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.c.findMany(ctx, filter, pkgmongo.Window(options.Find().SetSort(oldestFirst()), f.Offset, f.Limit))
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func oldestFirst() bson.D {
	return bson.D{{Key: "createdAt", Value: 1}, {Key: "inventoryCode", Value: 1}}
}

type stockLevelRepository struct {
	c  *versioned[domain.StockLevel]
	tx *session
}

func (r *stockLevelRepository) Save(ctx context.Context, s *domain.StockLevel) error {
	return r.c.save(ctx, r.tx, s)
}

func (r *stockLevelRepository) FindBySKUAndLocation(ctx context.Context, skuID, locationID string) (*domain.StockLevel, error) {
	return r.c.findOne(ctx, bson.M{"skuId": skuID, "locationId": locationID})
}

func (r *stockLevelRepository) FindBySKU(ctx context.Context, skuID string) ([]*domain.StockLevel, error) {
	return r.c.findMany(ctx, bson.M{"skuId": skuID}, options.Find().SetSort(pkgmongo.SortAscending("locationId")))
}

func (r *stockLevelRepository) FindLowStock(ctx context.Context, locationID string) ([]*domain.StockLevel, error) {
	filter := bson.M{
		"isActive":     true,
		"reorderPoint": bson.M{"$gt": 0},
		"$expr":        bson.M{"$lte": bson.A{"$quantityAvailable", "$reorderPoint"}},
	}
	if locationID != "" {
		filter["locationId"] = locationID
	}
	sort := bson.D{{Key: "locationId", Value: 1}, {Key: "skuId", Value: 1}}
	rows, err := r.c.findMany(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	low := rows[:0]
	for _, s := range rows {
		if s.NeedsReorder() {
			low = append(low, s)
		}
	}
	return low, nil
}

type returnRepository struct {
	c  *versioned[domain.RentalReturn]
	tx *session
}

func (r *returnRepository) Save(ctx context.Context, ret *domain.RentalReturn) error {
	return r.c.save(ctx, r.tx, ret)
}

func (r *returnRepository) FindByID(ctx context.Context, id string) (*domain.RentalReturn, error) {
	return r.c.findOne(ctx, bson.M{"_id": id})
}

func (r *returnRepository) FindByTransaction(ctx context.Context, transactionID string) ([]*domain.RentalReturn, error) {
	return r.c.findMany(ctx, bson.M{"rentalTransactionId": transactionID}, options.Find().SetSort(pkgmongo.SortAscending("createdAt")))
}

type inspectionRepository struct {
	c  *versioned[domain.InspectionReport]
	tx *session
}

func (r *inspectionRepository) Save(ctx context.Context, report *domain.InspectionReport) error {
	return r.c.save(ctx, r.tx, report)
}

func (r *inspectionRepository) FindByID(ctx context.Context, id string) (*domain.InspectionReport, error) {
	return r.c.findOne(ctx, bson.M{"_id": id})
}

func (r *inspectionRepository) FindByReturn(ctx context.Context, returnID string) ([]*domain.InspectionReport, error) {
	return r.c.findMany(ctx, bson.M{"returnId": returnID}, options.Find().SetSort(pkgmongo.SortAscending("inspectionDate")))
}

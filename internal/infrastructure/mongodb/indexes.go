package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Unique index names. Duplicate key errors are matched on these.
const (
	indexTransactionNumber = "uniq_transactionNumber"
	indexUnitSerial        = "uniq_serialNumber"
	indexUnitCode          = "uniq_inventoryCode"
	indexStockSKULocation  = "uniq_skuId_locationId"
	indexSKUCode           = "uniq_skuCode"
)

func indexModels() map[string][]mongo.IndexModel {
	hasSerial := bson.M{"serialNumber": bson.M{"$gt": ""}}
	return map[string][]mongo.IndexModel{
		CollectionTransactions: {
			{Keys: bson.D{{Key: "transactionNumber", Value: 1}}, Options: options.Index().SetName(indexTransactionNumber).SetUnique(true)},
			{Keys: bson.D{{Key: "customerId", Value: 1}, {Key: "transactionDate", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "transactionType", Value: 1}, {Key: "rentalEndDate", Value: 1}}},
			{Keys: bson.D{{Key: "locationId", Value: 1}, {Key: "transactionDate", Value: -1}}},
		},
		CollectionUnits: {
			{
				Keys: bson.D{{Key: "serialNumber", Value: 1}},
				Options: options.Index().SetName(indexUnitSerial).SetUnique(true).
					SetPartialFilterExpression(hasSerial).SetCollation(caseInsensitive),
			},
			{Keys: bson.D{{Key: "inventoryCode", Value: 1}}, Options: options.Index().SetName(indexUnitCode).SetUnique(true)},
			{Keys: bson.D{{Key: "skuId", Value: 1}, {Key: "locationId", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "heldByTransactionId", Value: 1}}},
		},
		CollectionStockLevels: {
			{Keys: bson.D{{Key: "skuId", Value: 1}, {Key: "locationId", Value: 1}}, Options: options.Index().SetName(indexStockSKULocation).SetUnique(true)},
			{Keys: bson.D{{Key: "locationId", Value: 1}, {Key: "reorderPoint", Value: 1}}},
		},
		CollectionReturns: {
			{Keys: bson.D{{Key: "rentalTransactionId", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "returnStatus", Value: 1}}},
		},
		CollectionInspections: {
			{Keys: bson.D{{Key: "returnId", Value: 1}, {Key: "inspectionDate", Value: 1}}},
		},
		CollectionSKUs: {
			{Keys: bson.D{{Key: "skuCode", Value: 1}}, Options: options.Index().SetName(indexSKUCode).SetUnique(true).SetCollation(caseInsensitive)},
		},
	}
}

// EnsureIndexes creates the collections and indexes the store relies on. Collections
// must exist before the first transaction writes to them.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	db := s.client.Database()
	existing, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}
	for _, name := range []string{
		CollectionTransactions, CollectionUnits, CollectionStockLevels, CollectionReturns,
		CollectionInspections, CollectionCounters, CollectionCustomers, CollectionLocations, CollectionSKUs,
	} {
		if have[name] {
			continue
		}
		if err := db.CreateCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}

	for name, models := range indexModels() {
		if err := s.client.Collection(name).CreateIndexes(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return s.outbox.EnsureIndexes(ctx)
}

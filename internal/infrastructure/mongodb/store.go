package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/cloudevents"
	"github.com/rental-platform/rental-service/pkg/logging"
	pkgmongo "github.com/rental-platform/rental-service/pkg/mongodb"
	"github.com/rental-platform/rental-service/pkg/outbox"
	outboxMongo "github.com/rental-platform/rental-service/pkg/outbox/mongodb"
)

// Collection names
const (
	CollectionTransactions = "transactions"
	CollectionUnits        = "inventory_units"
	CollectionStockLevels  = "stock_levels"
	CollectionReturns      = "rental_returns"
	CollectionInspections  = "inspection_reports"
	CollectionCounters     = "transaction_counters"
	CollectionCustomers    = "customers"
	CollectionLocations    = "locations"
	CollectionSKUs         = "skus"
)

// Client is the slice of the shared MongoDB client the store needs. Both the
// instrumented and the circuit breaker clients satisfy it.
type Client interface {
	Collection(name string) *pkgmongo.InstrumentedCollection
	Database() *mongo.Database
	WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error
}

// Store implements domain.UnitOfWork on MongoDB multi-document transactions.
// Domain events raised by saved aggregates are written to the outbox in the same transaction.
type Store struct {
	client Client
	outbox *outboxMongo.Repository
	logger *logging.Logger

	transactions *versioned[domain.TransactionHeader]
	units        *versioned[domain.InventoryUnit]
	stock        *versioned[domain.StockLevel]
	returns      *versioned[domain.RentalReturn]
	inspections  *versioned[domain.InspectionReport]

	counters  *pkgmongo.InstrumentedCollection
	customers *pkgmongo.InstrumentedCollection
	locations *pkgmongo.InstrumentedCollection
	skus      *pkgmongo.InstrumentedCollection

	factories map[string]*cloudevents.EventFactory
}

// NewStore creates a Store. Indexes are managed by EnsureIndexes.
func NewStore(client Client, logger *logging.Logger) *Store {
	return &Store{
		client: client,
		outbox: outboxMongo.NewRepository(client.Database()),
		logger: logger.WithComponent("mongodb-store"),
		transactions: &versioned[domain.TransactionHeader]{
			coll:          client.Collection(CollectionTransactions),
			aggregateType: "transaction",
			id:            func(t *domain.TransactionHeader) string { return t.ID },
			version:       func(t *domain.TransactionHeader) *int64 { return &t.Version },
			uniques:       map[string]string{indexTransactionNumber: "transactionNumber"},
		},
		units: &versioned[domain.InventoryUnit]{
			coll:          client.Collection(CollectionUnits),
			aggregateType: "inventory unit",
			id:            func(u *domain.InventoryUnit) string { return u.ID },
			version:       func(u *domain.InventoryUnit) *int64 { return &u.Version },
			uniques: map[string]string{
				indexUnitSerial: "serialNumber",
				indexUnitCode:   "inventoryCode",
			},
		},
		stock: &versioned[domain.StockLevel]{
			coll:          client.Collection(CollectionStockLevels),
			aggregateType: "stock level",
			id:            func(s *domain.StockLevel) string { return s.ID },
			version:       func(s *domain.StockLevel) *int64 { return &s.Version },
			uniques:       map[string]string{indexStockSKULocation: "skuId+locationId"},
		},
		returns: &versioned[domain.RentalReturn]{
			coll:          client.Collection(CollectionReturns),
			aggregateType: "rental return",
			id:            func(r *domain.RentalReturn) string { return r.ID },
			version:       func(r *domain.RentalReturn) *int64 { return &r.Version },
		},
		inspections: &versioned[domain.InspectionReport]{
			coll:          client.Collection(CollectionInspections),
			aggregateType: "inspection report",
			id:            func(r *domain.InspectionReport) string { return r.ID },
			version:       func(r *domain.InspectionReport) *int64 { return &r.Version },
		},
		counters:  client.Collection(CollectionCounters),
		customers: client.Collection(CollectionCustomers),
		locations: client.Collection(CollectionLocations),
		skus:      client.Collection(CollectionSKUs),
		factories: map[string]*cloudevents.EventFactory{
			"transaction":       cloudevents.NewEventFactory(cloudevents.SourceTransactions),
			"inventory unit":    cloudevents.NewEventFactory(cloudevents.SourceInventory),
			"stock level":       cloudevents.NewEventFactory(cloudevents.SourceInventory),
			"rental return":     cloudevents.NewEventFactory(cloudevents.SourceReturns),
			"inspection report": cloudevents.NewEventFactory(cloudevents.SourceReturns),
		},
	}
}

// Outbox exposes the outbox repository for the publisher
func (s *Store) Outbox() *outboxMongo.Repository {
	return s.outbox
}

// Execute implements domain.UnitOfWork. The driver may run fn more than once on
// transient transaction errors, so staged state is rebuilt on every attempt.
func (s *Store) Execute(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return s.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		tx := &session{store: s}
		if err := fn(sessCtx, tx.repositories()); err != nil {
			return err
		}
		return tx.flushOutbox(sessCtx)
	})
}

// pendingEvent is a domain event waiting for the outbox
type pendingEvent struct {
	aggregateType string
	aggregateID   string
	event         domain.DomainEvent
}

// session is the state of one transaction attempt
type session struct {
	store  *Store
	events []pendingEvent
}

func (tx *session) collect(aggregateType, aggregateID string, events []domain.DomainEvent) {
	for _, e := range events {
		tx.events = append(tx.events, pendingEvent{aggregateType: aggregateType, aggregateID: aggregateID, event: e})
	}
}

func (tx *session) flushOutbox(ctx context.Context) error {
	if len(tx.events) == 0 {
		return nil
	}
	records := make([]*outbox.OutboxEvent, 0, len(tx.events))
	for _, p := range tx.events {
		factory := tx.store.factories[p.aggregateType]
		ce := factory.CreateEvent(ctx, p.event.EventType(), p.aggregateType+"/"+p.aggregateID, p.event)
		ce.Time = p.event.OccurredAt().UTC()
		if p.aggregateType == "transaction" {
			ce.TransactionID = p.aggregateID
		}
		record, err := outbox.Record(p.aggregateID, p.aggregateType, ce)
		if err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		records = append(records, record)
	}
	return tx.store.outbox.SaveAll(ctx, records)
}

func (tx *session) repositories() domain.Repositories {
	s := tx.store
	return domain.Repositories{
		Transactions: &transactionRepository{c: s.transactions, tx: tx},
		Units:        &unitRepository{c: s.units, tx: tx},
		StockLevels:  &stockLevelRepository{c: s.stock, tx: tx},
		Returns:      &returnRepository{c: s.returns, tx: tx},
		Inspections:  &inspectionRepository{c: s.inspections, tx: tx},
		Numbers:      &numberGenerator{coll: s.counters},
		Customers:    &customerDirectory{coll: s.customers},
		Locations:    &locationDirectory{coll: s.locations},
		Catalog:      &catalog{coll: s.skus},
	}
}

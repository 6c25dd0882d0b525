package memory

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rental-platform/rental-service/internal/domain"
)

// Store is a process-local implementation of every persistence port. Units of work
// are serialized on one mutex; writes are staged and applied only on commit.
type Store struct {
	mu sync.Mutex

	transactions *table[domain.TransactionHeader]
	units        *table[domain.InventoryUnit]
	stock        *table[domain.StockLevel]
	returns      *table[domain.RentalReturn]
	inspections  *table[domain.InspectionReport]

	counters  map[string]int64
	customers map[string]domain.CustomerInfo
	locations map[string]domain.LocationInfo
	skus      map[string]domain.SKUInfo
	events    []domain.DomainEvent
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		transactions: newTable("transaction",
			func(t *domain.TransactionHeader) string { return t.ID },
			func(t *domain.TransactionHeader) *int64 { return &t.Version }),
		units: newTable("inventory unit",
			func(u *domain.InventoryUnit) string { return u.ID },
			func(u *domain.InventoryUnit) *int64 { return &u.Version }),
		stock: newTable("stock level",
			func(s *domain.StockLevel) string { return s.ID },
			func(s *domain.StockLevel) *int64 { return &s.Version }),
		returns: newTable("rental return",
			func(r *domain.RentalReturn) string { return r.ID },
			func(r *domain.RentalReturn) *int64 { return &r.Version }),
		inspections: newTable("inspection report",
			func(r *domain.InspectionReport) string { return r.ID },
			func(r *domain.InspectionReport) *int64 { return &r.Version }),
		counters:  make(map[string]int64),
		customers: make(map[string]domain.CustomerInfo),
		locations: make(map[string]domain.LocationInfo),
		skus:      make(map[string]domain.SKUInfo),
	}
}

// AddCustomer seeds the customer directory
func (s *Store) AddCustomer(c domain.CustomerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

// AddLocation seeds the location directory
func (s *Store) AddLocation(l domain.LocationInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[l.ID] = l
}

// AddSKU seeds the catalog
func (s *Store) AddSKU(sku domain.SKUInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skus[sku.ID] = sku
}

// PutReferenceData replaces directory and catalog records by id
func (s *Store) PutReferenceData(_ context.Context, data *domain.ReferenceData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range data.Customers {
		s.customers[c.ID] = c
	}
	for _, l := range data.Locations {
		s.locations[l.ID] = l
	}
	for _, sku := range data.SKUs {
		s.skus[sku.ID] = sku
	}
	return nil
}

// Events returns the domain events committed so far, oldest first
func (s *Store) Events() []domain.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DomainEvent(nil), s.events...)
}

// Execute implements domain.UnitOfWork
func (s *Store) Execute(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.begin()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit of work panicked: %v\n%s", r, debug.Stack())
		}
	}()

	if err := fn(ctx, tx.repositories()); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// storeTx is the staged state of one unit of work
type storeTx struct {
	store *Store

	transactions *tableTx[domain.TransactionHeader]
	units        *tableTx[domain.InventoryUnit]
	stock        *tableTx[domain.StockLevel]
	returns      *tableTx[domain.RentalReturn]
	inspections  *tableTx[domain.InspectionReport]

	counters map[string]int64
	skus     map[string]domain.SKUInfo
	events   []domain.DomainEvent
}

func (s *Store) begin() *storeTx {
	tx := &storeTx{
		store:    s,
		counters: make(map[string]int64),
		skus:     make(map[string]domain.SKUInfo),
	}
	tx.transactions = s.transactions.begin(&tx.events)
	tx.units = s.units.begin(&tx.events)
	tx.stock = s.stock.begin(&tx.events)
	tx.returns = s.returns.begin(&tx.events)
	tx.inspections = s.inspections.begin(&tx.events)
	return tx
}

func (tx *storeTx) commit() {
	tx.transactions.commit()
	tx.units.commit()
	tx.stock.commit()
	tx.returns.commit()
	tx.inspections.commit()
	for key, n := range tx.counters {
		tx.store.counters[key] = n
	}
	for id, sku := range tx.skus {
		tx.store.skus[id] = sku
	}
	tx.store.events = append(tx.store.events, tx.events...)
}

func (tx *storeTx) repositories() domain.Repositories {
	return domain.Repositories{
		Transactions: &transactionRepository{tx: tx.transactions},
		Units:        &unitRepository{tx: tx.units},
		StockLevels:  &stockLevelRepository{tx: tx.stock},
		Returns:      &returnRepository{tx: tx.returns},
		Inspections:  &inspectionRepository{tx: tx.inspections},
		Numbers:      &numberGenerator{tx: tx},
		Customers:    &customerDirectory{store: tx.store},
		Locations:    &locationDirectory{store: tx.store},
		Catalog:      &catalog{tx: tx},
	}
}

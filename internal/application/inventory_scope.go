package application

import (
	"context"
	"fmt"
	"sort"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/rental-platform/rental-service/pkg/metrics"
)

// inventoryScope caches the stock levels and units one unit of work touches so
// every aggregate is loaded once and saved once, in a stable order.
type inventoryScope struct {
	ctx     context.Context
	repos   domain.Repositories
	by      string
	metrics *metrics.Metrics

	levels     map[string]*domain.StockLevel
	units      map[string]*domain.InventoryUnit
	dirtyStock map[string]bool
	dirtyUnits map[string]bool
	movements  map[domain.StockMovement]int
}

func newInventoryScope(ctx context.Context, repos domain.Repositories, by string, m *metrics.Metrics) *inventoryScope {
	return &inventoryScope{
		ctx:        ctx,
		repos:      repos,
		by:         by,
		metrics:    m,
		levels:     make(map[string]*domain.StockLevel),
		units:      make(map[string]*domain.InventoryUnit),
		dirtyStock: make(map[string]bool),
		dirtyUnits: make(map[string]bool),
		movements:  make(map[domain.StockMovement]int),
	}
}

func stockKey(skuID, locationID string) string {
	return skuID + "|" + locationID
}

// stock returns the level for (sku, location). A missing level is created when create is set, nil otherwise.
func (s *inventoryScope) stock(skuID, locationID string, create bool) (*domain.StockLevel, error) {
	key := stockKey(skuID, locationID)
	if level, ok := s.levels[key]; ok {
		return level, nil
	}
	level, err := s.repos.StockLevels.FindBySKUAndLocation(s.ctx, skuID, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stock level: %w", err)
	}
	if level == nil {
		if !create {
			return nil, nil
		}
		level, err = domain.NewStockLevel(skuID, locationID, s.by)
		if err != nil {
			return nil, err
		}
	}
	s.levels[key] = level
	return level, nil
}

// available is the quantity available at a location, zero when no level exists
func (s *inventoryScope) available(skuID, locationID string) (int, error) {
	level, err := s.stock(skuID, locationID, false)
	if err != nil || level == nil {
		return 0, err
	}
	return level.QuantityAvailable, nil
}

// adjust applies one StockLevel operation. A missing level cannot supply stock.
func (s *inventoryScope) adjust(skuID, locationID string, movement domain.StockMovement, q int, op func(*domain.StockLevel) error) error {
	creates := movement == domain.MovementReceive
	level, err := s.stock(skuID, locationID, creates)
	if err != nil {
		return err
	}
	if level == nil {
		return &domain.InsufficientStockError{SKUID: skuID, LocationID: locationID, Requested: q, Available: 0}
	}
	if err := op(level); err != nil {
		return err
	}
	s.dirtyStock[stockKey(skuID, locationID)] = true
	s.movements[movement] += q
	return nil
}

// unit loads a unit by id. Unknown ids are not found errors.
func (s *inventoryScope) unit(id string) (*domain.InventoryUnit, error) {
	if u, ok := s.units[id]; ok {
		return u, nil
	}
	u, err := s.repos.Units.FindByID(s.ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory unit: %w", err)
	}
	if u == nil {
		return nil, errors.ErrNotFoundWithID("inventory unit", id)
	}
	s.units[id] = u
	return u, nil
}

// track registers a new or externally loaded unit with the scope
func (s *inventoryScope) track(u *domain.InventoryUnit) *domain.InventoryUnit {
	if existing, ok := s.units[u.ID]; ok {
		return existing
	}
	s.units[u.ID] = u
	return u
}

// transition moves a unit and marks it for saving
func (s *inventoryScope) transition(u *domain.InventoryUnit, to domain.InventoryStatus, transactionID, reason string) error {
	from := u.Status
	if err := u.TransitionTo(to, transactionID, reason, s.by); err != nil {
		return err
	}
	s.dirtyUnits[u.ID] = true
	s.metrics.RecordStateTransition("inventory_unit", string(from), string(to))
	return nil
}

// touch marks a unit changed outside a status transition
func (s *inventoryScope) touch(u *domain.InventoryUnit) {
	s.units[u.ID] = u
	s.dirtyUnits[u.ID] = true
}

// flush saves every changed level and unit
func (s *inventoryScope) flush() error {
	for _, key := range sortedKeys(s.dirtyStock) {
		if err := s.repos.StockLevels.Save(s.ctx, s.levels[key]); err != nil {
			return fmt.Errorf("failed to save stock level: %w", err)
		}
	}
	for _, id := range sortedKeys(s.dirtyUnits) {
		if err := s.repos.Units.Save(s.ctx, s.units[id]); err != nil {
			return fmt.Errorf("failed to save inventory unit: %w", err)
		}
	}
	for movement, q := range s.movements {
		s.metrics.RecordInventoryMovement(string(movement), q)
	}
	s.dirtyStock = make(map[string]bool)
	s.dirtyUnits = make(map[string]bool)
	s.movements = make(map[domain.StockMovement]int)
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// checkAvailability fails with InsufficientStock when the lines ask for more than
// a location has available, summing lines of the same SKU
func (s *inventoryScope) checkAvailability(locationID string, lines []*domain.TransactionLine) error {
	requested := make(map[string]int)
	order := make([]string, 0)
	for _, l := range lines {
		if _, seen := requested[l.SKUID]; !seen {
			order = append(order, l.SKUID)
		}
		requested[l.SKUID] += l.Quantity
	}
	for _, skuID := range order {
		available, err := s.available(skuID, locationID)
		if err != nil {
			return err
		}
		if available < requested[skuID] {
			return &domain.InsufficientStockError{SKUID: skuID, LocationID: locationID, Requested: requested[skuID], Available: available}
		}
	}
	return nil
}

// reserveLine holds stock for a line and, for unit-tracked SKUs, the units themselves
func (s *inventoryScope) reserveLine(txn *domain.TransactionHeader, line *domain.TransactionLine, tracksUnits bool) error {
	if err := s.adjust(line.SKUID, txn.LocationID, domain.MovementReserve, line.Quantity, func(level *domain.StockLevel) error {
		return level.Reserve(line.Quantity, s.by)
	}); err != nil {
		return err
	}
	if !tracksUnits {
		return nil
	}
	return s.holdUnits(txn, line)
}

// sellLine removes a line's quantity straight from available stock. Tracked
// units pass through the reserved status on their way to SOLD.
func (s *inventoryScope) sellLine(txn *domain.TransactionHeader, line *domain.TransactionLine, tracksUnits bool) error {
	if err := s.adjust(line.SKUID, txn.LocationID, domain.MovementSellFromAvailable, line.Quantity, func(level *domain.StockLevel) error {
		return level.SellFromAvailable(line.Quantity, s.by)
	}); err != nil {
		return err
	}
	if !tracksUnits {
		return nil
	}
	if err := s.holdUnits(txn, line); err != nil {
		return err
	}
	return s.markSold(txn, line)
}

// confirmLine completes a reserved sale line
func (s *inventoryScope) confirmLine(txn *domain.TransactionHeader, line *domain.TransactionLine) error {
	if err := s.adjust(line.SKUID, txn.LocationID, domain.MovementConfirmSale, line.Quantity, func(level *domain.StockLevel) error {
		return level.ConfirmSale(line.Quantity, s.by)
	}); err != nil {
		return err
	}
	return s.markSold(txn, line)
}

func (s *inventoryScope) markSold(txn *domain.TransactionHeader, line *domain.TransactionLine) error {
	for _, id := range line.UnitIDs {
		u, err := s.unit(id)
		if err != nil {
			return err
		}
		if err := s.transition(u, domain.UnitSold, txn.ID, "sold on "+txn.TransactionNumber); err != nil {
			return err
		}
	}
	return nil
}

// holdUnits moves the named or oldest available units of a line into the
// reserved status of the transaction type and records them on the line
func (s *inventoryScope) holdUnits(txn *domain.TransactionHeader, line *domain.TransactionLine) error {
	availableStatus := domain.AvailableStatusFor(txn.TransactionType)
	units := make([]*domain.InventoryUnit, 0, line.Quantity)
	for _, id := range line.UnitIDs {
		u, err := s.unit(id)
		if err != nil {
			return err
		}
		if u.SKUID != line.SKUID || u.LocationID != txn.LocationID || u.Status != availableStatus || !u.IsActive {
			return domain.NewLineValidationError(line.LineNumber, "unitIds",
				fmt.Sprintf("unit %s is not %s for sku %s at this location", u.ID, availableStatus, line.SKUID))
		}
		units = append(units, u)
	}

	if missing := line.Quantity - len(units); missing > 0 {
		candidates, err := s.repos.Units.FindAvailable(s.ctx, line.SKUID, txn.LocationID, availableStatus, line.Quantity+len(s.units))
		if err != nil {
			return fmt.Errorf("failed to find available units: %w", err)
		}
		for _, c := range candidates {
			if missing == 0 {
				break
			}
			u := s.track(c)
			if u.Status != availableStatus || containsUnit(units, u.ID) {
				continue
			}
			if txn.IsRental() && !u.IsRentable() {
				continue
			}
			units = append(units, u)
			missing--
		}
		if missing > 0 {
			return &domain.InsufficientStockError{
				SKUID: line.SKUID, LocationID: txn.LocationID, Requested: line.Quantity, Available: line.Quantity - missing,
			}
		}
	}

	ids := make([]string, 0, len(units))
	reserved := domain.ReservedStatusFor(txn.TransactionType)
	for _, u := range units {
		if err := s.transition(u, reserved, txn.ID, "reserved for "+txn.TransactionNumber); err != nil {
			return err
		}
		ids = append(ids, u.ID)
	}
	line.UnitIDs = ids
	return nil
}

func containsUnit(units []*domain.InventoryUnit, id string) bool {
	for _, u := range units {
		if u.ID == id {
			return true
		}
	}
	return false
}

// releaseLine gives back everything a line still holds. Reserved stock returns to
// available; rented stock comes back through the rental return path.
func (s *inventoryScope) releaseLine(txn *domain.TransactionHeader, line *domain.TransactionLine, pickedUp bool, reason string) error {
	if len(line.UnitIDs) == 0 {
		if pickedUp {
			if q := line.RemainingQuantity(); q > 0 {
				return s.adjust(line.SKUID, txn.LocationID, domain.MovementRentalReturn, q, func(level *domain.StockLevel) error {
					return level.ReceiveRentalReturn(q, false, s.by)
				})
			}
			return nil
		}
		return s.adjust(line.SKUID, txn.LocationID, domain.MovementReleaseReservation, line.Quantity, func(level *domain.StockLevel) error {
			return level.ReleaseReservation(line.Quantity, s.by)
		})
	}

	reserved, rented := 0, 0
	for _, id := range line.UnitIDs {
		u, err := s.unit(id)
		if err != nil {
			return err
		}
		if !u.IsHeldBy(txn.ID) {
			continue
		}
		switch u.Status {
		case domain.UnitRented:
			rented++
			if err := s.transition(u, domain.UnitAvailableRent, txn.ID, reason); err != nil {
				return err
			}
		default:
			reserved++
			if err := s.transition(u, domain.AvailableStatusFor(txn.TransactionType), txn.ID, reason); err != nil {
				return err
			}
		}
	}
	if reserved > 0 {
		if err := s.adjust(line.SKUID, txn.LocationID, domain.MovementReleaseReservation, reserved, func(level *domain.StockLevel) error {
			return level.ReleaseReservation(reserved, s.by)
		}); err != nil {
			return err
		}
	}
	if rented > 0 {
		return s.adjust(line.SKUID, txn.LocationID, domain.MovementRentalReturn, rented, func(level *domain.StockLevel) error {
			return level.ReceiveRentalReturn(rented, false, s.by)
		})
	}
	return nil
}

// receiveReturned takes q units of a rental line back from the customer.
// unitIDs names the tracked units coming back, and may be empty for bulk lines.
func (s *inventoryScope) receiveReturned(txn *domain.TransactionHeader, line *domain.TransactionLine, unitIDs []string, q int, grade domain.ConditionGrade, notes string) error {
	damaged := grade == domain.GradeD
	for _, id := range unitIDs {
		u, err := s.unit(id)
		if err != nil {
			return err
		}
		if !u.IsHeldBy(txn.ID) || u.Status != domain.UnitRented {
			return domain.NewValidationError("inventoryUnitId", fmt.Sprintf("unit %s is not rented under %s", id, txn.TransactionNumber))
		}
		if err := u.RecordInspection(grade, notes, s.by); err != nil {
			return err
		}
		u.IncrementRentalStats(line.RentalDays)
		to := domain.UnitAvailableRent
		if damaged {
			to = domain.UnitDamaged
		}
		if err := s.transition(u, to, txn.ID, "returned"); err != nil {
			return err
		}
	}
	return s.adjust(line.SKUID, txn.LocationID, domain.MovementRentalReturn, q, func(level *domain.StockLevel) error {
		return level.ReceiveRentalReturn(q, damaged, s.by)
	})
}

// rentedUnits lists the units of a line still rented under txn, skipping excluded ids
func (s *inventoryScope) rentedUnits(txn *domain.TransactionHeader, line *domain.TransactionLine, exclude map[string]bool) ([]string, error) {
	ids := make([]string, 0, len(line.UnitIDs))
	for _, id := range line.UnitIDs {
		if exclude[id] {
			continue
		}
		u, err := s.unit(id)
		if err != nil {
			return nil, err
		}
		if u.IsHeldBy(txn.ID) && u.Status == domain.UnitRented {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

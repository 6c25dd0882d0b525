package application

import (
	"context"
	"fmt"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
)

// InventoryApplicationService handles stock and unit operations outside transactions
type InventoryApplicationService struct {
	exec    *Executor
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewInventoryApplicationService creates a new InventoryApplicationService
func NewInventoryApplicationService(exec *Executor, m *metrics.Metrics, logger *logging.Logger) *InventoryApplicationService {
	return &InventoryApplicationService{
		exec:    exec,
		metrics: m,
		logger:  logger.WithComponent("inventory-service"),
	}
}

// RegisterUnit registers a physical unit of a unit-tracked SKU and counts it into stock
func (s *InventoryApplicationService) RegisterUnit(ctx context.Context, cmd RegisterUnitCommand) (*InventoryUnitDTO, error) {
	var unit *domain.InventoryUnit
	err := s.exec.Run(ctx, "register_unit", func(ctx context.Context, repos domain.Repositories) error {
		sku, err := loadSKU(ctx, repos, cmd.SKUID)
		if err != nil {
			return err
		}
		if !sku.TracksUnits {
			return errors.ErrValidation("sku does not track individual units").WithDetail("skuId", sku.ID)
		}
		if _, err := activeLocation(ctx, repos, cmd.LocationID); err != nil {
			return err
		}
		if cmd.SerialNumber != "" {
			existing, err := repos.Units.FindBySerialNumber(ctx, cmd.SerialNumber)
			if err != nil {
				return fmt.Errorf("failed to check serial number: %w", err)
			}
			if existing != nil {
				return errors.ErrConflict("serial number already registered").WithDetail("serialNumber", cmd.SerialNumber)
			}
		}

		status := cmd.Status
		if status == "" {
			status = domain.UnitAvailableSale
			if sku.IsRentable {
				status = domain.UnitAvailableRent
			}
		}
		unit, err = domain.NewInventoryUnit(domain.NewUnitParams{
			InventoryCode:  cmd.InventoryCode,
			SerialNumber:   cmd.SerialNumber,
			SKUID:          sku.ID,
			LocationID:     cmd.LocationID,
			Status:         status,
			ConditionGrade: cmd.ConditionGrade,
			PurchaseCost:   cmd.PurchaseCost,
			PurchaseDate:   cmd.PurchaseDate,
			CreatedBy:      cmd.CreatedBy,
		})
		if err != nil {
			return err
		}

		scope := newInventoryScope(ctx, repos, cmd.CreatedBy, s.metrics)
		if err := scope.adjust(sku.ID, unit.LocationID, domain.MovementReceive, 1, func(level *domain.StockLevel) error {
			return level.ReceiveStock(1, cmd.CreatedBy)
		}); err != nil {
			return err
		}
		if unit.Status == domain.UnitInTransit {
			if err := scope.adjust(sku.ID, unit.LocationID, domain.MovementTransferOut, 1, func(level *domain.StockLevel) error {
				return level.TransferOut(1, cmd.CreatedBy)
			}); err != nil {
				return err
			}
		}
		scope.touch(unit)
		return scope.flush()
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Registered inventory unit", "unitId", unit.ID, "skuId", unit.SKUID, "locationId", unit.LocationID, "status", unit.Status)
	return ToInventoryUnitDTO(unit), nil
}

// ReceiveStock receives bulk stock of a SKU that is not tracked per unit
func (s *InventoryApplicationService) ReceiveStock(ctx context.Context, cmd ReceiveStockCommand) (*StockLevelDTO, error) {
	if cmd.Quantity <= 0 {
		return nil, errors.ErrValidation("quantity must be positive")
	}

	var level *domain.StockLevel
	err := s.exec.Run(ctx, "receive_stock", func(ctx context.Context, repos domain.Repositories) error {
		sku, err := loadSKU(ctx, repos, cmd.SKUID)
		if err != nil {
			return err
		}
		if sku.TracksUnits {
			return errors.ErrValidation("unit-tracked stock is received by registering units").WithDetail("skuId", sku.ID)
		}
		if _, err := activeLocation(ctx, repos, cmd.LocationID); err != nil {
			return err
		}
		scope := newInventoryScope(ctx, repos, cmd.ReceivedBy, s.metrics)
		if err := scope.adjust(sku.ID, cmd.LocationID, domain.MovementReceive, cmd.Quantity, func(l *domain.StockLevel) error {
			return l.ReceiveStock(cmd.Quantity, cmd.ReceivedBy)
		}); err != nil {
			return err
		}
		level, _ = scope.stock(sku.ID, cmd.LocationID, false)
		return scope.flush()
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Received stock", "skuId", cmd.SKUID, "locationId", cmd.LocationID, "quantity", cmd.Quantity, "reference", cmd.Reference)
	return ToStockLevelDTO(level), nil
}

// transferUnits resolves the units named by a tracked stock command. Every unit must be
// of the SKU, at the location and in one of the allowed statuses.
func transferUnits(scope *inventoryScope, skuID, locationID string, ids []string, quantity int, allowed ...domain.InventoryStatus) ([]*domain.InventoryUnit, error) {
	if len(ids) == 0 {
		return nil, domain.NewValidationError("unitIds", "are required for unit-tracked skus")
	}
	if quantity != 0 && quantity != len(ids) {
		return nil, domain.NewValidationError("quantity", fmt.Sprintf("must match the %d units named", len(ids)))
	}
	units := make([]*domain.InventoryUnit, 0, len(ids))
	for _, id := range ids {
		u, err := scope.unit(id)
		if err != nil {
			return nil, err
		}
		if containsUnit(units, u.ID) {
			return nil, domain.NewValidationError("unitIds", "unit "+u.ID+" is listed more than once")
		}
		ok := false
		for _, status := range allowed {
			if u.Status == status {
				ok = true
				break
			}
		}
		if u.SKUID != skuID || u.LocationID != locationID || !ok {
			return nil, domain.NewValidationError("unitIds",
				fmt.Sprintf("unit %s is %s at %s, not a %s unit at %s", u.ID, u.Status, u.LocationID, skuID, locationID))
		}
		units = append(units, u)
	}
	return units, nil
}

// transferQuantity resolves the quantity of a stock command for either tracking mode
func transferQuantity(sku *domain.SKUInfo, quantity int, unitIDs []string) (int, error) {
	if sku.TracksUnits {
		if len(unitIDs) == 0 {
			return 0, domain.NewValidationError("unitIds", "are required for unit-tracked skus")
		}
		return len(unitIDs), nil
	}
	if len(unitIDs) > 0 {
		return 0, domain.NewValidationError("unitIds", "sku does not track individual units")
	}
	if quantity <= 0 {
		return 0, domain.NewValidationError("quantity", "must be positive")
	}
	return quantity, nil
}

func (s *InventoryApplicationService) checkTransfer(ctx context.Context, repos domain.Repositories, cmd TransferCommand) (*domain.SKUInfo, int, error) {
	if cmd.FromLocationID == cmd.ToLocationID {
		return nil, 0, errors.ErrValidation("source and destination locations must differ")
	}
	sku, err := loadSKU(ctx, repos, cmd.SKUID)
	if err != nil {
		return nil, 0, err
	}
	if _, err := activeLocation(ctx, repos, cmd.FromLocationID); err != nil {
		return nil, 0, err
	}
	if _, err := activeLocation(ctx, repos, cmd.ToLocationID); err != nil {
		return nil, 0, err
	}
	q, err := transferQuantity(sku, cmd.Quantity, cmd.UnitIDs)
	if err != nil {
		return nil, 0, err
	}
	return sku, q, nil
}

// StartTransfer takes stock at the source location out of availability and into transit
func (s *InventoryApplicationService) StartTransfer(ctx context.Context, cmd TransferCommand) (*StockLevelDTO, error) {
	var level *domain.StockLevel
	err := s.exec.Run(ctx, "start_transfer", func(ctx context.Context, repos domain.Repositories) error {
		sku, q, err := s.checkTransfer(ctx, repos, cmd)
		if err != nil {
			return err
		}
		scope := newInventoryScope(ctx, repos, cmd.TransferredBy, s.metrics)
		if sku.TracksUnits {
			units, err := transferUnits(scope, sku.ID, cmd.FromLocationID, cmd.UnitIDs, cmd.Quantity,
				domain.UnitAvailableRent, domain.UnitAvailableSale)
			if err != nil {
				return err
			}
			for _, u := range units {
				if err := scope.transition(u, domain.UnitInTransit, "", "transfer to "+cmd.ToLocationID); err != nil {
					return err
				}
			}
		}
		if err := scope.adjust(sku.ID, cmd.FromLocationID, domain.MovementTransferOut, q, func(l *domain.StockLevel) error {
			return l.TransferOut(q, cmd.TransferredBy)
		}); err != nil {
			return err
		}
		level, _ = scope.stock(sku.ID, cmd.FromLocationID, false)
		return scope.flush()
	})
	if err != nil {
		return nil, err
	}

	s.logInventoryEvent(ctx, "inventory.transfer_started", cmd)
	return ToStockLevelDTO(level), nil
}

// CompleteTransfer lands in-transit stock at the destination
func (s *InventoryApplicationService) CompleteTransfer(ctx context.Context, cmd TransferCommand) (*StockLevelDTO, error) {
	var level *domain.StockLevel
	err := s.exec.Run(ctx, "complete_transfer", func(ctx context.Context, repos domain.Repositories) error {
		sku, q, err := s.checkTransfer(ctx, repos, cmd)
		if err != nil {
			return err
		}
		scope := newInventoryScope(ctx, repos, cmd.TransferredBy, s.metrics)
		if sku.TracksUnits {
			units, err := transferUnits(scope, sku.ID, cmd.FromLocationID, cmd.UnitIDs, cmd.Quantity, domain.UnitInTransit)
			if err != nil {
				return err
			}
			for _, u := range units {
				if err := scope.transition(u, u.StatusBeforeTransit(), "", "transfer from "+cmd.FromLocationID); err != nil {
					return err
				}
				if err := u.UpdateLocation(cmd.ToLocationID, cmd.TransferredBy); err != nil {
					return err
				}
			}
		}
		if err := scope.adjust(sku.ID, cmd.FromLocationID, domain.MovementDispatchTransfer, q, func(l *domain.StockLevel) error {
			return l.DispatchTransfer(q, cmd.TransferredBy)
		}); err != nil {
			return err
		}
		if err := scope.adjust(sku.ID, cmd.ToLocationID, domain.MovementReceive, q, func(l *domain.StockLevel) error {
			return l.ReceiveStock(q, cmd.TransferredBy)
		}); err != nil {
			return err
		}
		level, _ = scope.stock(sku.ID, cmd.ToLocationID, false)
		return scope.flush()
	})
	if err != nil {
		return nil, err
	}

	s.logInventoryEvent(ctx, "inventory.transfer_completed", cmd)
	return ToStockLevelDTO(level), nil
}

// CancelTransfer returns in-transit stock to availability at the source
func (s *InventoryApplicationService) CancelTransfer(ctx context.Context, cmd TransferCommand) (*StockLevelDTO, error) {
	var level *domain.StockLevel
	err := s.exec.Run(ctx, "cancel_transfer", func(ctx context.Context, repos domain.Repositories) error {
		sku, q, err := s.checkTransfer(ctx, repos, cmd)
		if err != nil {
			return err
		}
		scope := newInventoryScope(ctx, repos, cmd.TransferredBy, s.metrics)
		if sku.TracksUnits {
			units, err := transferUnits(scope, sku.ID, cmd.FromLocationID, cmd.UnitIDs, cmd.Quantity, domain.UnitInTransit)
			if err != nil {
				return err
			}
			for _, u := range units {
				if err := scope.transition(u, u.StatusBeforeTransit(), "", "transfer cancelled"); err != nil {
					return err
				}
			}
		}
		if err := scope.adjust(sku.ID, cmd.FromLocationID, domain.MovementTransferIn, q, func(l *domain.StockLevel) error {
			return l.TransferIn(q, cmd.TransferredBy)
		}); err != nil {
			return err
		}
		level, _ = scope.stock(sku.ID, cmd.FromLocationID, false)
		return scope.flush()
	})
	if err != nil {
		return nil, err
	}

	s.logInventoryEvent(ctx, "inventory.transfer_cancelled", cmd)
	return ToStockLevelDTO(level), nil
}

func (s *InventoryApplicationService) logInventoryEvent(ctx context.Context, eventType string, cmd TransferCommand) {
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  eventType,
		EntityType: "stock_level",
		EntityID:   cmd.SKUID,
		Action:     "transfer",
		RelatedIDs: map[string]string{"fromLocationId": cmd.FromLocationID, "toLocationId": cmd.ToLocationID},
		Data:       map[string]any{"quantity": cmd.Quantity, "unitIds": cmd.UnitIDs},
	})
}

// MarkDamaged moves available stock into the damaged bucket
func (s *InventoryApplicationService) MarkDamaged(ctx context.Context, cmd DamageStockCommand) (*StockLevelDTO, error) {
	return s.damageOperation(ctx, "mark_damaged", cmd, func(scope *inventoryScope, sku *domain.SKUInfo, q int) error {
		if sku.TracksUnits {
			units, err := transferUnits(scope, sku.ID, cmd.LocationID, cmd.UnitIDs, cmd.Quantity,
				domain.UnitAvailableRent, domain.UnitAvailableSale)
			if err != nil {
				return err
			}
			for _, u := range units {
				if err := scope.transition(u, domain.UnitDamaged, "", cmd.Reason); err != nil {
					return err
				}
			}
		}
		return scope.adjust(sku.ID, cmd.LocationID, domain.MovementMarkDamaged, q, func(l *domain.StockLevel) error {
			return l.MarkDamaged(q, cmd.By)
		})
	})
}

// RepairDamaged returns repaired bulk stock to availability. Damaged units have no way back.
func (s *InventoryApplicationService) RepairDamaged(ctx context.Context, cmd DamageStockCommand) (*StockLevelDTO, error) {
	return s.damageOperation(ctx, "repair_damaged", cmd, func(scope *inventoryScope, sku *domain.SKUInfo, q int) error {
		if sku.TracksUnits {
			return errors.ErrValidation("damaged units cannot be repaired, write them off instead").WithDetail("skuId", sku.ID)
		}
		return scope.adjust(sku.ID, cmd.LocationID, domain.MovementRepairDamaged, q, func(l *domain.StockLevel) error {
			return l.RepairDamaged(q, cmd.By)
		})
	})
}

// WriteOffDamaged removes damaged stock from the books and retires damaged units
func (s *InventoryApplicationService) WriteOffDamaged(ctx context.Context, cmd DamageStockCommand) (*StockLevelDTO, error) {
	return s.damageOperation(ctx, "write_off_damaged", cmd, func(scope *inventoryScope, sku *domain.SKUInfo, q int) error {
		if sku.TracksUnits {
			units, err := transferUnits(scope, sku.ID, cmd.LocationID, cmd.UnitIDs, cmd.Quantity, domain.UnitDamaged)
			if err != nil {
				return err
			}
			for _, u := range units {
				if err := retire(scope, u, cmd.Reason); err != nil {
					return err
				}
			}
		}
		return scope.adjust(sku.ID, cmd.LocationID, domain.MovementWriteOffDamaged, q, func(l *domain.StockLevel) error {
			return l.WriteOffDamaged(q, cmd.By)
		})
	})
}

// RetireUnit takes a unit out of service for good. Available and damaged units leave the
// stock counters; sold units are only closed out. Units held by a transaction or in transit
// must be released or received first.
func (s *InventoryApplicationService) RetireUnit(ctx context.Context, cmd RetireUnitCommand) (*InventoryUnitDTO, error) {
	if cmd.Reason == "" {
		return nil, errors.ErrValidation("reason is required")
	}

	var (
		unit *domain.InventoryUnit
		from domain.InventoryStatus
	)
	err := s.exec.Run(ctx, "retire_unit", func(ctx context.Context, repos domain.Repositories) error {
		scope := newInventoryScope(ctx, repos, cmd.RetiredBy, s.metrics)
		var err error
		if unit, err = scope.unit(cmd.UnitID); err != nil {
			return err
		}
		from = unit.Status

		var op func(*domain.StockLevel) error
		movement := domain.MovementRetire
		switch from {
		case domain.UnitAvailableRent, domain.UnitAvailableSale:
			op = func(l *domain.StockLevel) error { return l.Retire(1, cmd.RetiredBy) }
		case domain.UnitDamaged:
			movement = domain.MovementWriteOffDamaged
			op = func(l *domain.StockLevel) error { return l.WriteOffDamaged(1, cmd.RetiredBy) }
		case domain.UnitSold, domain.UnitRetired:
		default:
			return domain.NewValidationError("status",
				fmt.Sprintf("unit %s is %s, release it from its transaction or transfer first", unit.ID, from))
		}

		if err := retire(scope, unit, cmd.Reason); err != nil {
			return err
		}
		if op != nil {
			if err := scope.adjust(unit.SKUID, unit.LocationID, movement, 1, op); err != nil {
				return err
			}
		}
		return scope.flush()
	})
	if err != nil {
		return nil, err
	}

	s.logger.Audit(ctx, "retire", "inventory_unit", unit.ID, cmd.RetiredBy, map[string]any{
		"fromStatus": string(from),
		"reason":     cmd.Reason,
	})
	return ToInventoryUnitDTO(unit), nil
}

// retire moves a unit to RETIRED and soft deletes it
func retire(scope *inventoryScope, u *domain.InventoryUnit, reason string) error {
	if err := scope.transition(u, domain.UnitRetired, "", reason); err != nil {
		return err
	}
	return u.Deactivate(scope.by)
}

func (s *InventoryApplicationService) damageOperation(ctx context.Context, op string, cmd DamageStockCommand,
	apply func(scope *inventoryScope, sku *domain.SKUInfo, q int) error) (*StockLevelDTO, error) {
	var level *domain.StockLevel
	err := s.exec.Run(ctx, op, func(ctx context.Context, repos domain.Repositories) error {
		sku, err := loadSKU(ctx, repos, cmd.SKUID)
		if err != nil {
			return err
		}
		q, err := transferQuantity(sku, cmd.Quantity, cmd.UnitIDs)
		if err != nil {
			return err
		}
		scope := newInventoryScope(ctx, repos, cmd.By, s.metrics)
		if err := apply(scope, sku, q); err != nil {
			return err
		}
		level, _ = scope.stock(sku.ID, cmd.LocationID, false)
		return scope.flush()
	})
	if err != nil {
		return nil, err
	}

	s.logger.Audit(ctx, op, "stock_level", cmd.SKUID, cmd.By, map[string]any{
		"locationId": cmd.LocationID,
		"quantity":   cmd.Quantity,
		"unitIds":    cmd.UnitIDs,
		"reason":     cmd.Reason,
	})
	return ToStockLevelDTO(level), nil
}

// UpdateReorderLevels changes the replenishment thresholds of a stock level
func (s *InventoryApplicationService) UpdateReorderLevels(ctx context.Context, cmd UpdateReorderLevelsCommand) (*StockLevelDTO, error) {
	var level *domain.StockLevel
	err := s.exec.Run(ctx, "update_reorder_levels", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if level, err = loadStockLevel(ctx, repos, cmd.SKUID, cmd.LocationID); err != nil {
			return err
		}
		if err := level.UpdateReorderLevels(cmd.ReorderPoint, cmd.ReorderQuantity, cmd.MaximumStock, cmd.UpdatedBy); err != nil {
			return err
		}
		if err := repos.StockLevels.Save(ctx, level); err != nil {
			return fmt.Errorf("failed to save stock level: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ToStockLevelDTO(level), nil
}

func loadStockLevel(ctx context.Context, repos domain.Repositories, skuID, locationID string) (*domain.StockLevel, error) {
	level, err := repos.StockLevels.FindBySKUAndLocation(ctx, skuID, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stock level: %w", err)
	}
	if level == nil {
		return nil, errors.ErrNotFound("stock level").WithDetails(map[string]string{
			"skuId":      skuID,
			"locationId": locationID,
		})
	}
	return level, nil
}

// InspectUnit records an inspection. A grade D result takes an available unit out of stock.
func (s *InventoryApplicationService) InspectUnit(ctx context.Context, cmd InspectUnitCommand) (*InventoryUnitDTO, error) {
	var unit *domain.InventoryUnit
	err := s.exec.Run(ctx, "inspect_unit", func(ctx context.Context, repos domain.Repositories) error {
		scope := newInventoryScope(ctx, repos, cmd.InspectedBy, s.metrics)
		var err error
		if unit, err = scope.unit(cmd.UnitID); err != nil {
			return err
		}
		if err := unit.RecordInspection(cmd.ConditionGrade, cmd.Notes, cmd.InspectedBy); err != nil {
			return err
		}
		scope.touch(unit)
		if cmd.ConditionGrade == domain.GradeD && (unit.Status == domain.UnitAvailableRent || unit.Status == domain.UnitAvailableSale) {
			if err := scope.transition(unit, domain.UnitDamaged, "", "failed inspection"); err != nil {
				return err
			}
			if err := scope.adjust(unit.SKUID, unit.LocationID, domain.MovementMarkDamaged, 1, func(l *domain.StockLevel) error {
				return l.MarkDamaged(1, cmd.InspectedBy)
			}); err != nil {
				return err
			}
		}
		return scope.flush()
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Inspected inventory unit", "unitId", unit.ID, "grade", unit.ConditionGrade, "status", unit.Status)
	return ToInventoryUnitDTO(unit), nil
}

// UpdateUnitValue sets the book value of a unit
func (s *InventoryApplicationService) UpdateUnitValue(ctx context.Context, cmd UpdateUnitValueCommand) (*InventoryUnitDTO, error) {
	var unit *domain.InventoryUnit
	err := s.exec.Run(ctx, "update_unit_value", func(ctx context.Context, repos domain.Repositories) error {
		scope := newInventoryScope(ctx, repos, cmd.UpdatedBy, s.metrics)
		var err error
		if unit, err = scope.unit(cmd.UnitID); err != nil {
			return err
		}
		if err := unit.UpdateValue(cmd.CurrentValue, cmd.UpdatedBy); err != nil {
			return err
		}
		scope.touch(unit)
		return scope.flush()
	})
	if err != nil {
		return nil, err
	}
	return ToInventoryUnitDTO(unit), nil
}

// GetUnit retrieves a unit by id
func (s *InventoryApplicationService) GetUnit(ctx context.Context, id string) (*InventoryUnitDTO, error) {
	var unit *domain.InventoryUnit
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		unit, err = newInventoryScope(ctx, repos, "", s.metrics).unit(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToInventoryUnitDTO(unit), nil
}

// ListUnits lists units with filters and pagination
func (s *InventoryApplicationService) ListUnits(ctx context.Context, query ListUnitsQuery) (*UnitListDTO, error) {
	var (
		units []*domain.InventoryUnit
		total int64
	)
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		units, total, err = repos.Units.List(ctx, domain.UnitFilter{
			SKUID:      query.SKUID,
			LocationID: query.LocationID,
			Status:     query.Status,
			ActiveOnly: query.ActiveOnly,
			Offset:     query.Offset,
			Limit:      clampLimit(query.Limit),
		})
		if err != nil {
			return fmt.Errorf("failed to list inventory units: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &UnitListDTO{Units: ToInventoryUnitDTOs(units), Total: total}, nil
}

// GetStockLevel retrieves the stock of a SKU at a location
func (s *InventoryApplicationService) GetStockLevel(ctx context.Context, skuID, locationID string) (*StockLevelDTO, error) {
	var level *domain.StockLevel
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		level, err = loadStockLevel(ctx, repos, skuID, locationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToStockLevelDTO(level), nil
}

// GetSKUStock retrieves the stock of a SKU across all locations
func (s *InventoryApplicationService) GetSKUStock(ctx context.Context, skuID string) (*SKUStockDTO, error) {
	var levels []*domain.StockLevel
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := loadSKU(ctx, repos, skuID); err != nil {
			return err
		}
		var err error
		if levels, err = repos.StockLevels.FindBySKU(ctx, skuID); err != nil {
			return fmt.Errorf("failed to get stock levels: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &SKUStockDTO{
		SKUID:          skuID,
		TotalAvailable: domain.TotalAvailable(levels),
		Locations:      ToStockLevelDTOs(levels),
	}, nil
}

// LowStock lists stock levels at or below their reorder point. No location lists every location.
func (s *InventoryApplicationService) LowStock(ctx context.Context, locationID string) ([]StockLevelDTO, error) {
	var levels []*domain.StockLevel
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if levels, err = repos.StockLevels.FindLowStock(ctx, locationID); err != nil {
			return fmt.Errorf("failed to get low stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ToStockLevelDTOs(levels), nil
}

// CheckAvailability reports whether a quantity of a SKU can be booked
func (s *InventoryApplicationService) CheckAvailability(ctx context.Context, query AvailabilityQuery) (*AvailabilityDTO, error) {
	if query.Quantity <= 0 {
		return nil, errors.ErrValidation("quantity must be positive")
	}

	available := 0
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := loadSKU(ctx, repos, query.SKUID); err != nil {
			return err
		}
		if query.LocationID != "" {
			var err error
			available, err = newInventoryScope(ctx, repos, "", s.metrics).available(query.SKUID, query.LocationID)
			return err
		}
		levels, err := repos.StockLevels.FindBySKU(ctx, query.SKUID)
		if err != nil {
			return fmt.Errorf("failed to get stock levels: %w", err)
		}
		available = domain.TotalAvailable(levels)
		return nil
	})
	if err != nil {
		return nil, err
	}

	shortfall := query.Quantity - available
	if shortfall < 0 {
		shortfall = 0
	}
	return &AvailabilityDTO{
		SKUID:      query.SKUID,
		LocationID: query.LocationID,
		Requested:  query.Quantity,
		Available:  available,
		CanFulfill: shortfall == 0,
		Shortfall:  shortfall,
	}, nil
}

package domain

import (
	"fmt"
	"time"
)

// StockMovement names a StockLevel operation
type StockMovement string

const (
	MovementReserve            StockMovement = "RESERVE"
	MovementReleaseReservation StockMovement = "RELEASE_RESERVATION"
	MovementConfirmSale        StockMovement = "CONFIRM_SALE"
	MovementSellFromAvailable  StockMovement = "SELL_FROM_AVAILABLE"
	MovementReceive            StockMovement = "RECEIVE"
	MovementMarkDamaged        StockMovement = "MARK_DAMAGED"
	MovementRepairDamaged      StockMovement = "REPAIR_DAMAGED"
	MovementWriteOffDamaged    StockMovement = "WRITE_OFF_DAMAGED"
	MovementRetire             StockMovement = "RETIRE"
	MovementTransferOut        StockMovement = "TRANSFER_OUT"
	MovementTransferIn         StockMovement = "TRANSFER_IN"
	MovementDispatchTransfer   StockMovement = "DISPATCH_TRANSFER"
	MovementRentOut            StockMovement = "RENT_OUT"
	MovementRentalReturn       StockMovement = "RENTAL_RETURN"
)

// StockLevel is the counter aggregate for one SKU at one location.
// QuantityOnRent tracks units out with customers and is not part of the on-hand sum.
type StockLevel struct {
	ID                string     `bson:"_id" json:"id"`
	SKUID             string     `bson:"skuId" json:"skuId"`
	LocationID        string     `bson:"locationId" json:"locationId"`
	QuantityOnHand    int        `bson:"quantityOnHand" json:"quantityOnHand"`
	QuantityAvailable int        `bson:"quantityAvailable" json:"quantityAvailable"`
	QuantityReserved  int        `bson:"quantityReserved" json:"quantityReserved"`
	QuantityInTransit int        `bson:"quantityInTransit" json:"quantityInTransit"`
	QuantityDamaged   int        `bson:"quantityDamaged" json:"quantityDamaged"`
	QuantityOnRent    int        `bson:"quantityOnRent" json:"quantityOnRent"`
	ReorderPoint      int        `bson:"reorderPoint" json:"reorderPoint"`
	ReorderQuantity   int        `bson:"reorderQuantity" json:"reorderQuantity"`
	MaximumStock      *int       `bson:"maximumStock,omitempty" json:"maximumStock,omitempty"`
	LastMovementAt    *time.Time `bson:"lastMovementAt,omitempty" json:"lastMovementAt,omitempty"`
	Version           int64      `bson:"version" json:"version"`
	AuditInfo         `bson:",inline"`
	eventRecorder
}

// NewStockLevel creates an empty StockLevel for (skuID, locationID)
func NewStockLevel(skuID, locationID, by string) (*StockLevel, error) {
	if skuID == "" {
		return nil, NewValidationError("skuId", "is required")
	}
	if locationID == "" {
		return nil, NewValidationError("locationId", "is required")
	}
	return &StockLevel{
		ID:         NewID(),
		SKUID:      skuID,
		LocationID: locationID,
		AuditInfo:  NewAuditInfo(by),
	}, nil
}

// CheckInvariant verifies on_hand = available + reserved + damaged + in_transit and non-negativity
func (s *StockLevel) CheckInvariant() error {
	buckets := []struct {
		name  string
		value int
	}{
		{"quantityOnHand", s.QuantityOnHand},
		{"quantityAvailable", s.QuantityAvailable},
		{"quantityReserved", s.QuantityReserved},
		{"quantityInTransit", s.QuantityInTransit},
		{"quantityDamaged", s.QuantityDamaged},
		{"quantityOnRent", s.QuantityOnRent},
	}
	for _, b := range buckets {
		if b.value < 0 {
			return &InvariantViolationError{Aggregate: "stock level", ID: s.ID, Detail: fmt.Sprintf("%s is negative (%d)", b.name, b.value)}
		}
	}
	sum := s.QuantityAvailable + s.QuantityReserved + s.QuantityDamaged + s.QuantityInTransit
	if s.QuantityOnHand != sum {
		return &InvariantViolationError{
			Aggregate: "stock level",
			ID:        s.ID,
			Detail: fmt.Sprintf("on hand %d != available %d + reserved %d + damaged %d + in transit %d",
				s.QuantityOnHand, s.QuantityAvailable, s.QuantityReserved, s.QuantityDamaged, s.QuantityInTransit),
		}
	}
	return nil
}

// move validates q against the source bucket, applies fn and re-verifies the invariant.
// A negative source skips the availability check.
func (s *StockLevel) move(movement StockMovement, q, source int, by string, fn func()) error {
	if q <= 0 {
		return &ValidationError{Field: "quantity", Message: fmt.Sprintf("%s quantity must be positive, got %d", movement, q)}
	}
	if source >= 0 && source < q {
		return &InsufficientStockError{SKUID: s.SKUID, LocationID: s.LocationID, Requested: q, Available: source}
	}

	wasLow := s.NeedsReorder()
	fn()
	if err := s.CheckInvariant(); err != nil {
		return err
	}

	now := Now()
	s.LastMovementAt = &now
	s.Touch(by)
	s.AddDomainEvent(&StockAdjustedEvent{
		SKUID:             s.SKUID,
		LocationID:        s.LocationID,
		Movement:          movement,
		Quantity:          q,
		QuantityOnHand:    s.QuantityOnHand,
		QuantityAvailable: s.QuantityAvailable,
		QuantityReserved:  s.QuantityReserved,
		QuantityOnRent:    s.QuantityOnRent,
		AdjustedAt:        now,
	})
	if !wasLow && s.ReorderPoint > 0 && s.NeedsReorder() {
		s.AddDomainEvent(&LowStockAlertEvent{
			SKUID:             s.SKUID,
			LocationID:        s.LocationID,
			QuantityAvailable: s.QuantityAvailable,
			ReorderPoint:      s.ReorderPoint,
			SuggestedQuantity: s.SuggestedOrderQuantity(),
			AlertedAt:         now,
		})
	}
	return nil
}

// Reserve moves q from available to reserved
func (s *StockLevel) Reserve(q int, by string) error {
	return s.move(MovementReserve, q, s.QuantityAvailable, by, func() {
		s.QuantityAvailable -= q
		s.QuantityReserved += q
	})
}

// ReleaseReservation moves q from reserved back to available
func (s *StockLevel) ReleaseReservation(q int, by string) error {
	return s.move(MovementReleaseReservation, q, s.QuantityReserved, by, func() {
		s.QuantityReserved -= q
		s.QuantityAvailable += q
	})
}

// ConfirmSale removes q reserved units from the location
func (s *StockLevel) ConfirmSale(q int, by string) error {
	return s.move(MovementConfirmSale, q, s.QuantityReserved, by, func() {
		s.QuantityReserved -= q
		s.QuantityOnHand -= q
	})
}

// SellFromAvailable removes q available units for a sale that skipped reservation
func (s *StockLevel) SellFromAvailable(q int, by string) error {
	return s.move(MovementSellFromAvailable, q, s.QuantityAvailable, by, func() {
		s.QuantityAvailable -= q
		s.QuantityOnHand -= q
	})
}

// ReceiveStock adds q units to on hand and available
func (s *StockLevel) ReceiveStock(q int, by string) error {
	return s.move(MovementReceive, q, -1, by, func() {
		s.QuantityOnHand += q
		s.QuantityAvailable += q
	})
}

// MarkDamaged moves q from available to damaged
func (s *StockLevel) MarkDamaged(q int, by string) error {
	return s.move(MovementMarkDamaged, q, s.QuantityAvailable, by, func() {
		s.QuantityAvailable -= q
		s.QuantityDamaged += q
	})
}

// RepairDamaged moves q from damaged back to available
func (s *StockLevel) RepairDamaged(q int, by string) error {
	return s.move(MovementRepairDamaged, q, s.QuantityDamaged, by, func() {
		s.QuantityDamaged -= q
		s.QuantityAvailable += q
	})
}

// WriteOffDamaged removes q damaged units
func (s *StockLevel) WriteOffDamaged(q int, by string) error {
	return s.move(MovementWriteOffDamaged, q, s.QuantityDamaged, by, func() {
		s.QuantityDamaged -= q
		s.QuantityOnHand -= q
	})
}

// Retire removes q available units from the books
func (s *StockLevel) Retire(q int, by string) error {
	return s.move(MovementRetire, q, s.QuantityAvailable, by, func() {
		s.QuantityAvailable -= q
		s.QuantityOnHand -= q
	})
}

// TransferOut moves q from available to in transit
func (s *StockLevel) TransferOut(q int, by string) error {
	return s.move(MovementTransferOut, q, s.QuantityAvailable, by, func() {
		s.QuantityAvailable -= q
		s.QuantityInTransit += q
	})
}

// TransferIn moves q from in transit back to available
func (s *StockLevel) TransferIn(q int, by string) error {
	return s.move(MovementTransferIn, q, s.QuantityInTransit, by, func() {
		s.QuantityInTransit -= q
		s.QuantityAvailable += q
	})
}

// DispatchTransfer removes q in-transit units that left for another location
func (s *StockLevel) DispatchTransfer(q int, by string) error {
	return s.move(MovementDispatchTransfer, q, s.QuantityInTransit, by, func() {
		s.QuantityInTransit -= q
		s.QuantityOnHand -= q
	})
}

// RentOut hands q reserved units to a customer
func (s *StockLevel) RentOut(q int, by string) error {
	return s.move(MovementRentOut, q, s.QuantityReserved, by, func() {
		s.QuantityReserved -= q
		s.QuantityOnHand -= q
		s.QuantityOnRent += q
	})
}

// ReceiveRentalReturn takes q units back from rent into available, or into damaged
func (s *StockLevel) ReceiveRentalReturn(q int, damaged bool, by string) error {
	return s.move(MovementRentalReturn, q, s.QuantityOnRent, by, func() {
		s.QuantityOnRent -= q
		s.QuantityOnHand += q
		if damaged {
			s.QuantityDamaged += q
		} else {
			s.QuantityAvailable += q
		}
	})
}

// UpdateReorderLevels changes the replenishment thresholds
func (s *StockLevel) UpdateReorderLevels(point, quantity int, maximum *int, by string) error {
	if point < 0 {
		return NewValidationError("reorderPoint", "cannot be negative")
	}
	if quantity < 0 {
		return NewValidationError("reorderQuantity", "cannot be negative")
	}
	if maximum != nil && *maximum < point {
		return NewValidationError("maximumStock", "must be greater than or equal to the reorder point")
	}
	s.ReorderPoint = point
	s.ReorderQuantity = quantity
	s.MaximumStock = maximum
	s.Touch(by)
	return nil
}

// NeedsReorder is true once available stock is at or below the reorder point
func (s *StockLevel) NeedsReorder() bool {
	return s.QuantityAvailable <= s.ReorderPoint
}

// SuggestedOrderQuantity is the reorder quantity, capped so on hand never exceeds the maximum
func (s *StockLevel) SuggestedOrderQuantity() int {
	if !s.NeedsReorder() {
		return 0
	}
	if s.MaximumStock == nil {
		return s.ReorderQuantity
	}
	room := *s.MaximumStock - s.QuantityOnHand
	if room < 0 {
		room = 0
	}
	if room < s.ReorderQuantity {
		return room
	}
	return s.ReorderQuantity
}

// CanFulfill reports whether q units are available
func (s *StockLevel) CanFulfill(q int) bool {
	return s.QuantityAvailable >= q
}

// TotalAvailable sums available quantity across locations
func TotalAvailable(levels []*StockLevel) int {
	total := 0
	for _, l := range levels {
		total += l.QuantityAvailable
	}
	return total
}

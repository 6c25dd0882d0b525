package domain

import (
	"strings"
	"time"
)

// InventoryStatus is the lifecycle status of a single physical unit
type InventoryStatus string

const (
	UnitAvailableSale InventoryStatus = "AVAILABLE_SALE"
	UnitAvailableRent InventoryStatus = "AVAILABLE_RENT"
	UnitReservedSale  InventoryStatus = "RESERVED_SALE"
	UnitReservedRent  InventoryStatus = "RESERVED_RENT"
	UnitRented        InventoryStatus = "RENTED"
	UnitSold          InventoryStatus = "SOLD"
	UnitInTransit     InventoryStatus = "IN_TRANSIT"
	UnitDamaged       InventoryStatus = "DAMAGED"
	UnitRetired       InventoryStatus = "RETIRED"
)

// inventoryTransitions lists every legal status move. SOLD and DAMAGED can only be retired; RETIRED is final.
var inventoryTransitions = map[InventoryStatus][]InventoryStatus{
	UnitAvailableSale: {UnitReservedSale, UnitInTransit, UnitDamaged, UnitRetired},
	UnitAvailableRent: {UnitReservedRent, UnitInTransit, UnitDamaged, UnitRetired},
	UnitReservedSale:  {UnitSold, UnitAvailableSale, UnitDamaged, UnitRetired},
	UnitReservedRent:  {UnitRented, UnitAvailableRent, UnitDamaged, UnitRetired},
	UnitRented:        {UnitAvailableRent, UnitDamaged, UnitRetired},
	UnitInTransit:     {UnitAvailableSale, UnitAvailableRent, UnitDamaged, UnitRetired},
	UnitSold:          {UnitRetired},
	UnitDamaged:       {UnitRetired},
	UnitRetired:       {},
}

func (s InventoryStatus) String() string { return string(s) }

// IsValid checks if the status is known
func (s InventoryStatus) IsValid() bool {
	_, ok := inventoryTransitions[s]
	return ok
}

// CanTransitionTo reports whether the table allows s -> to
func (s InventoryStatus) CanTransitionTo(to InventoryStatus) bool {
	for _, allowed := range inventoryTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsHeld reports statuses in which the unit is bound to a transaction
func (s InventoryStatus) IsHeld() bool {
	return s == UnitReservedSale || s == UnitReservedRent || s == UnitRented
}

// ConditionGrade grades the physical condition of a unit, A best
type ConditionGrade string

const (
	GradeA ConditionGrade = "A"
	GradeB ConditionGrade = "B"
	GradeC ConditionGrade = "C"
	GradeD ConditionGrade = "D"
)

// IsValid checks if the grade is known
func (g ConditionGrade) IsValid() bool {
	switch g {
	case GradeA, GradeB, GradeC, GradeD:
		return true
	default:
		return false
	}
}

// UnitMovement is one entry of the append-only unit history
type UnitMovement struct {
	ID             string          `bson:"id" json:"id"`
	FromStatus     InventoryStatus `bson:"fromStatus,omitempty" json:"fromStatus,omitempty"`
	ToStatus       InventoryStatus `bson:"toStatus,omitempty" json:"toStatus,omitempty"`
	FromLocationID string          `bson:"fromLocationId,omitempty" json:"fromLocationId,omitempty"`
	ToLocationID   string          `bson:"toLocationId,omitempty" json:"toLocationId,omitempty"`
	TransactionID  string          `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	Reason         string          `bson:"reason,omitempty" json:"reason,omitempty"`
	MovedAt        time.Time       `bson:"movedAt" json:"movedAt"`
	MovedBy        string          `bson:"movedBy,omitempty" json:"movedBy,omitempty"`
}

// InventoryUnit is a single trackable physical item
type InventoryUnit struct {
	ID                  string          `bson:"_id" json:"id"`
	InventoryCode       string          `bson:"inventoryCode" json:"inventoryCode"`
	SerialNumber        string          `bson:"serialNumber,omitempty" json:"serialNumber,omitempty"`
	SKUID               string          `bson:"skuId" json:"skuId"`
	LocationID          string          `bson:"locationId" json:"locationId"`
	Status              InventoryStatus `bson:"status" json:"status"`
	ConditionGrade      ConditionGrade  `bson:"conditionGrade" json:"conditionGrade"`
	PurchaseCost        Money           `bson:"purchaseCost" json:"purchaseCost"`
	PurchaseDate        *time.Time      `bson:"purchaseDate,omitempty" json:"purchaseDate,omitempty"`
	CurrentValue        Money           `bson:"currentValue" json:"currentValue"`
	Notes               string          `bson:"notes,omitempty" json:"notes,omitempty"`
	HeldByTransactionID string          `bson:"heldByTransactionId,omitempty" json:"heldByTransactionId,omitempty"`
	RentalCount         int             `bson:"rentalCount" json:"rentalCount"`
	TotalRentalDays     int             `bson:"totalRentalDays" json:"totalRentalDays"`
	LastInspectionDate  *time.Time      `bson:"lastInspectionDate,omitempty" json:"lastInspectionDate,omitempty"`
	Movements           []UnitMovement  `bson:"movements" json:"movements"`
	Version             int64           `bson:"version" json:"version"`
	AuditInfo           `bson:",inline"`
	eventRecorder
}

// NewUnitParams holds the inputs for registering a unit
type NewUnitParams struct {
	InventoryCode  string
	SerialNumber   string
	SKUID          string
	LocationID     string
	Status         InventoryStatus
	ConditionGrade ConditionGrade
	PurchaseCost   Money
	PurchaseDate   *time.Time
	CreatedBy      string
}

// NewInventoryUnit registers a unit in an initial available or in-transit status
func NewInventoryUnit(p NewUnitParams) (*InventoryUnit, error) {
	if strings.TrimSpace(p.InventoryCode) == "" {
		return nil, NewValidationError("inventoryCode", "is required")
	}
	if p.SKUID == "" {
		return nil, NewValidationError("skuId", "is required")
	}
	if p.LocationID == "" {
		return nil, NewValidationError("locationId", "is required")
	}
	if p.Status == "" {
		p.Status = UnitAvailableRent
	}
	switch p.Status {
	case UnitAvailableSale, UnitAvailableRent, UnitInTransit:
	default:
		return nil, NewValidationError("status", "initial status must be AVAILABLE_SALE, AVAILABLE_RENT or IN_TRANSIT")
	}
	if p.ConditionGrade == "" {
		p.ConditionGrade = GradeA
	}
	if !p.ConditionGrade.IsValid() {
		return nil, NewValidationError("conditionGrade", "must be one of A, B, C, D")
	}
	if p.PurchaseCost.IsNegative() {
		return nil, NewValidationError("purchaseCost", "cannot be negative")
	}

	unit := &InventoryUnit{
		ID:             NewID(),
		InventoryCode:  strings.TrimSpace(p.InventoryCode),
		SerialNumber:   strings.TrimSpace(p.SerialNumber),
		SKUID:          p.SKUID,
		LocationID:     p.LocationID,
		Status:         p.Status,
		ConditionGrade: p.ConditionGrade,
		PurchaseCost:   p.PurchaseCost,
		PurchaseDate:   p.PurchaseDate,
		CurrentValue:   p.PurchaseCost,
		Movements:      make([]UnitMovement, 0),
		AuditInfo:      NewAuditInfo(p.CreatedBy),
	}
	unit.Movements = append(unit.Movements, UnitMovement{
		ID:           NewID(),
		ToStatus:     p.Status,
		ToLocationID: p.LocationID,
		Reason:       "registered",
		MovedAt:      unit.CreatedAt,
		MovedBy:      p.CreatedBy,
	})
	return unit, nil
}

// TransitionTo moves the unit to a new status and records the movement.
// Reserved and rented statuses bind the unit to transactionID; other statuses release it.
func (u *InventoryUnit) TransitionTo(to InventoryStatus, transactionID, reason, by string) error {
	if !u.Status.CanTransitionTo(to) {
		return invalidTransition("inventory unit", u.ID, u.Status, to)
	}

	from := u.Status
	now := Now()
	u.Status = to
	switch {
	case to.IsHeld():
		u.HeldByTransactionID = transactionID
	case to == UnitSold:
		if transactionID == "" {
			transactionID = u.HeldByTransactionID
		}
		u.HeldByTransactionID = ""
	default:
		u.HeldByTransactionID = ""
	}

	u.Movements = append(u.Movements, UnitMovement{
		ID:            NewID(),
		FromStatus:    from,
		ToStatus:      to,
		TransactionID: transactionID,
		Reason:        reason,
		MovedAt:       now,
		MovedBy:       by,
	})
	u.Touch(by)

	u.AddDomainEvent(&UnitStatusChangedEvent{
		UnitID:        u.ID,
		SKUID:         u.SKUID,
		LocationID:    u.LocationID,
		FromStatus:    from,
		ToStatus:      to,
		TransactionID: transactionID,
		Reason:        reason,
		ChangedAt:     now,
	})
	return nil
}

// StatusBeforeTransit is the available status the unit left when it went in transit
func (u *InventoryUnit) StatusBeforeTransit() InventoryStatus {
	for i := len(u.Movements) - 1; i >= 0; i-- {
		m := u.Movements[i]
		if m.ToStatus == UnitInTransit && m.FromStatus != "" {
			return m.FromStatus
		}
	}
	return UnitAvailableRent
}

// IsHeldBy reports whether the unit is reserved or rented under transactionID
func (u *InventoryUnit) IsHeldBy(transactionID string) bool {
	return u.Status.IsHeld() && u.HeldByTransactionID == transactionID
}

// IsRentable reports whether the unit can be reserved for a rental
func (u *InventoryUnit) IsRentable() bool {
	return u.IsActive && u.Status == UnitAvailableRent && u.ConditionGrade != GradeD
}

// IsSaleable reports whether the unit can be reserved for a sale
func (u *InventoryUnit) IsSaleable() bool {
	return u.IsActive && u.Status == UnitAvailableSale
}

// RequiresInspection is true for damaged or grade D units
func (u *InventoryUnit) RequiresInspection() bool {
	return u.Status == UnitDamaged || u.ConditionGrade == GradeD
}

// RecordInspection stamps an inspection with its resulting grade
func (u *InventoryUnit) RecordInspection(grade ConditionGrade, note, by string) error {
	if err := u.UpdateCondition(grade, note, by); err != nil {
		return err
	}
	now := Now()
	u.LastInspectionDate = &now
	return nil
}

// UpdateCondition changes the grade and optionally appends a note
func (u *InventoryUnit) UpdateCondition(grade ConditionGrade, note, by string) error {
	if !grade.IsValid() {
		return NewValidationError("conditionGrade", "must be one of A, B, C, D")
	}
	u.ConditionGrade = grade
	if note = strings.TrimSpace(note); note != "" {
		if u.Notes != "" {
			u.Notes += "\n"
		}
		u.Notes += note
	}
	u.Touch(by)
	return nil
}

// UpdateLocation relocates a unit that is not bound to a transaction
func (u *InventoryUnit) UpdateLocation(locationID, by string) error {
	if locationID == "" {
		return NewValidationError("locationId", "is required")
	}
	if u.Status.IsHeld() {
		return NewValidationError("locationId", "unit is held by transaction "+u.HeldByTransactionID)
	}
	if locationID == u.LocationID {
		return nil
	}
	u.Movements = append(u.Movements, UnitMovement{
		ID:             NewID(),
		FromLocationID: u.LocationID,
		ToLocationID:   locationID,
		Reason:         "relocated",
		MovedAt:        Now(),
		MovedBy:        by,
	})
	u.LocationID = locationID
	u.Touch(by)
	return nil
}

// IncrementRentalStats counts a completed rental of the given length
func (u *InventoryUnit) IncrementRentalStats(days int) {
	if days < 0 {
		days = 0
	}
	u.RentalCount++
	u.TotalRentalDays += days
}

// UpdateValue sets the current book value
func (u *InventoryUnit) UpdateValue(value Money, by string) error {
	if value.IsNegative() {
		return NewValidationError("currentValue", "cannot be negative")
	}
	u.CurrentValue = value
	u.Touch(by)
	return nil
}

// Deactivate soft deletes the unit. History is kept.
func (u *InventoryUnit) Deactivate(by string) error {
	if u.Status.IsHeld() {
		return NewValidationError("status", "cannot deactivate a unit held by a transaction")
	}
	u.IsActive = false
	u.Touch(by)
	return nil
}

// AvailableStatusFor is the available status for units used by a transaction type
func AvailableStatusFor(t TransactionType) InventoryStatus {
	if t == TransactionRental {
		return UnitAvailableRent
	}
	return UnitAvailableSale
}

// ReservedStatusFor is the reserved status for units used by a transaction type
func ReservedStatusFor(t TransactionType) InventoryStatus {
	if t == TransactionRental {
		return UnitReservedRent
	}
	return UnitReservedSale
}

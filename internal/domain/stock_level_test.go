package domain

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStock(t *testing.T, available int) *StockLevel {
	t.Helper()
	s, err := NewStockLevel("sku-1", "loc-1", "tester")
	require.NoError(t, err)
	if available > 0 {
		require.NoError(t, s.ReceiveStock(available, "tester"))
	}
	s.ClearDomainEvents()
	return s
}

func TestStockLevelOperations(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(s *StockLevel)
		op        func(s *StockLevel) error
		available int
		reserved  int
		onHand    int
		damaged   int
		inTransit int
		onRent    int
	}{
		{
			name:      "reserve",
			op:        func(s *StockLevel) error { return s.Reserve(2, "u") },
			available: 8, reserved: 2, onHand: 10,
		},
		{
			name:      "release reservation",
			setup:     func(s *StockLevel) { _ = s.Reserve(3, "u") },
			op:        func(s *StockLevel) error { return s.ReleaseReservation(2, "u") },
			available: 9, reserved: 1, onHand: 10,
		},
		{
			name:      "confirm sale",
			setup:     func(s *StockLevel) { _ = s.Reserve(3, "u") },
			op:        func(s *StockLevel) error { return s.ConfirmSale(3, "u") },
			available: 7, reserved: 0, onHand: 7,
		},
		{
			name:      "sell from available",
			op:        func(s *StockLevel) error { return s.SellFromAvailable(4, "u") },
			available: 6, onHand: 6,
		},
		{
			name:      "mark damaged",
			op:        func(s *StockLevel) error { return s.MarkDamaged(1, "u") },
			available: 9, damaged: 1, onHand: 10,
		},
		{
			name:      "repair damaged",
			setup:     func(s *StockLevel) { _ = s.MarkDamaged(2, "u") },
			op:        func(s *StockLevel) error { return s.RepairDamaged(1, "u") },
			available: 9, damaged: 1, onHand: 10,
		},
		{
			name:      "write off damaged",
			setup:     func(s *StockLevel) { _ = s.MarkDamaged(2, "u") },
			op:        func(s *StockLevel) error { return s.WriteOffDamaged(2, "u") },
			available: 8, onHand: 8,
		},
		{
			name:      "retire",
			op:        func(s *StockLevel) error { return s.Retire(3, "u") },
			available: 7, onHand: 7,
		},
		{
			name:      "transfer out",
			op:        func(s *StockLevel) error { return s.TransferOut(3, "u") },
			available: 7, inTransit: 3, onHand: 10,
		},
		{
			name:      "transfer in",
			setup:     func(s *StockLevel) { _ = s.TransferOut(3, "u") },
			op:        func(s *StockLevel) error { return s.TransferIn(3, "u") },
			available: 10, onHand: 10,
		},
		{
			name:      "dispatch transfer",
			setup:     func(s *StockLevel) { _ = s.TransferOut(3, "u") },
			op:        func(s *StockLevel) error { return s.DispatchTransfer(3, "u") },
			available: 7, onHand: 7,
		},
		{
			name:      "rent out",
			setup:     func(s *StockLevel) { _ = s.Reserve(2, "u") },
			op:        func(s *StockLevel) error { return s.RentOut(2, "u") },
			available: 8, onHand: 8, onRent: 2,
		},
		{
			name: "receive rental return in good condition",
			setup: func(s *StockLevel) {
				_ = s.Reserve(2, "u")
				_ = s.RentOut(2, "u")
			},
			op:        func(s *StockLevel) error { return s.ReceiveRentalReturn(2, false, "u") },
			available: 10, onHand: 10,
		},
		{
			name: "receive damaged rental return",
			setup: func(s *StockLevel) {
				_ = s.Reserve(2, "u")
				_ = s.RentOut(2, "u")
			},
			op:        func(s *StockLevel) error { return s.ReceiveRentalReturn(1, true, "u") },
			available: 8, damaged: 1, onHand: 9, onRent: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStock(t, 10)
			if tt.setup != nil {
				tt.setup(s)
			}

			require.NoError(t, tt.op(s))
			assert.Equal(t, tt.available, s.QuantityAvailable, "available")
			assert.Equal(t, tt.reserved, s.QuantityReserved, "reserved")
			assert.Equal(t, tt.onHand, s.QuantityOnHand, "on hand")
			assert.Equal(t, tt.damaged, s.QuantityDamaged, "damaged")
			assert.Equal(t, tt.inTransit, s.QuantityInTransit, "in transit")
			assert.Equal(t, tt.onRent, s.QuantityOnRent, "on rent")
			assert.NoError(t, s.CheckInvariant())
		})
	}
}

func TestStockLevelInsufficientStock(t *testing.T) {
	s := newStock(t, 1)

	err := s.Reserve(2, "u")

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, "sku-1", stockErr.SKUID)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 1, s.QuantityAvailable)
	assert.Equal(t, 0, s.QuantityReserved)
	assert.Empty(t, s.DomainEvents)
}

func TestStockLevelRejectsNonPositiveQuantity(t *testing.T) {
	s := newStock(t, 5)

	for _, q := range []int{0, -3} {
		err := s.Reserve(q, "u")
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.Equal(t, 5, s.QuantityAvailable)
}

func TestStockLevelCheckInvariant(t *testing.T) {
	s := newStock(t, 5)
	s.QuantityOnHand = 7

	err := s.CheckInvariant()

	var violation *InvariantViolationError
	require.True(t, errors.As(err, &violation))
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestStockLevelInvariantHoldsUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := newStock(t, 20)

	ops := []func(q int) error{
		func(q int) error { return s.Reserve(q, "u") },
		func(q int) error { return s.ReleaseReservation(q, "u") },
		func(q int) error { return s.ConfirmSale(q, "u") },
		func(q int) error { return s.SellFromAvailable(q, "u") },
		func(q int) error { return s.ReceiveStock(q, "u") },
		func(q int) error { return s.MarkDamaged(q, "u") },
		func(q int) error { return s.RepairDamaged(q, "u") },
		func(q int) error { return s.WriteOffDamaged(q, "u") },
		func(q int) error { return s.Retire(q, "u") },
		func(q int) error { return s.TransferOut(q, "u") },
		func(q int) error { return s.TransferIn(q, "u") },
		func(q int) error { return s.DispatchTransfer(q, "u") },
		func(q int) error { return s.RentOut(q, "u") },
		func(q int) error { return s.ReceiveRentalReturn(q, rng.Intn(2) == 0, "u") },
	}

	for i := 0; i < 2000; i++ {
		err := ops[rng.Intn(len(ops))](rng.Intn(6) + 1)
		if err != nil {
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}
		require.NoError(t, s.CheckInvariant(), "iteration %d", i)
	}
}

func TestStockLevelReorder(t *testing.T) {
	s := newStock(t, 100)
	maximum := 150
	require.NoError(t, s.UpdateReorderLevels(20, 50, &maximum, "u"))

	require.NoError(t, s.Reserve(85, "u"))
	assert.True(t, s.NeedsReorder())
	assert.Equal(t, 50, s.SuggestedOrderQuantity())

	var alert *LowStockAlertEvent
	for _, e := range s.DomainEvents {
		if a, ok := e.(*LowStockAlertEvent); ok {
			alert = a
		}
	}
	require.NotNil(t, alert)
	assert.Equal(t, 15, alert.QuantityAvailable)

	maximum = 120
	require.NoError(t, s.UpdateReorderLevels(20, 50, &maximum, "u"))
	assert.Equal(t, 20, s.SuggestedOrderQuantity())

	require.NoError(t, s.UpdateReorderLevels(20, 50, nil, "u"))
	require.NoError(t, s.ReleaseReservation(85, "u"))
	assert.False(t, s.NeedsReorder())
	assert.Equal(t, 0, s.SuggestedOrderQuantity())
}

func TestStockLevelUpdateReorderLevelsValidation(t *testing.T) {
	s := newStock(t, 0)
	low := 5

	assert.ErrorIs(t, s.UpdateReorderLevels(-1, 10, nil, "u"), ErrValidation)
	assert.ErrorIs(t, s.UpdateReorderLevels(1, -10, nil, "u"), ErrValidation)
	assert.ErrorIs(t, s.UpdateReorderLevels(10, 10, &low, "u"), ErrValidation)
}

func TestTotalAvailable(t *testing.T) {
	a := newStock(t, 3)
	b := newStock(t, 4)
	assert.Equal(t, 7, TotalAvailable([]*StockLevel{a, b}))
}

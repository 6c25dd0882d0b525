package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReturn(t *testing.T, returnDate time.Time, quantities ...int) *RentalReturn {
	t.Helper()
	r, err := NewRentalReturn(NewRentalReturnParams{
		RentalTransactionID: "txn-1",
		ReturnDate:          returnDate,
		ExpectedReturnDate:  rentalEnd,
		ProcessedBy:         "clerk",
	})
	require.NoError(t, err)
	for i, q := range quantities {
		line, err := NewRentalReturnLine(r.ID, "txn-line-"+string(rune('a'+i)), "", q)
		require.NoError(t, err)
		require.NoError(t, r.AddLine(line))
	}
	return r
}

func TestNewRentalReturnLine(t *testing.T) {
	tests := []struct {
		name        string
		unitID      string
		quantity    int
		expectError bool
	}{
		{name: "bulk line", quantity: 3},
		{name: "unit line", unitID: "unit-1", quantity: 1},
		{name: "unit line with quantity above one", unitID: "unit-1", quantity: 2, expectError: true},
		{name: "zero quantity", quantity: 0, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := NewRentalReturnLine("ret-1", "txn-line-1", tt.unitID, tt.quantity)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, GradeA, line.ConditionGrade)
			assert.Equal(t, tt.quantity, line.RemainingQuantity())
		})
	}
}

func TestRentalReturnLineQuantities(t *testing.T) {
	line, err := NewRentalReturnLine("ret-1", "txn-line-1", "", 4)
	require.NoError(t, err)

	require.NoError(t, line.RecordReturned(3, "clerk"))
	assert.Equal(t, 1, line.RemainingQuantity())

	assert.ErrorIs(t, line.RecordReturned(2, "clerk"), ErrValidation)
	assert.ErrorIs(t, line.SetReturnedQuantity(5, "clerk"), ErrValidation)
	assert.ErrorIs(t, line.SetReturnedQuantity(-1, "clerk"), ErrValidation)
	assert.Equal(t, 3, line.ReturnedQuantity)
}

func TestRentalReturnLineFees(t *testing.T) {
	line, err := NewRentalReturnLine("ret-1", "txn-line-1", "", 1)
	require.NoError(t, err)

	require.NoError(t, line.SetLateFee(MustMoney("10"), "clerk"))
	require.NoError(t, line.SetDamageFee(MustMoney("25"), "clerk"))
	require.NoError(t, line.SetCleaningFee(MustMoney("5"), "clerk"))
	require.NoError(t, line.SetReplacementFee(MustMoney("0"), "clerk"))
	assert.Equal(t, "40.00", line.TotalFees().String())

	assert.ErrorIs(t, line.SetDamageFee(MustMoney("-1"), "clerk"), ErrValidation)
	assert.Equal(t, "25.00", line.DamageFee.String())
}

func TestRentalReturnAddLine(t *testing.T) {
	r := newTestReturn(t, rentalEnd)
	first, err := NewRentalReturnLine(r.ID, "txn-line-1", "unit-1", 1)
	require.NoError(t, err)
	require.NoError(t, r.AddLine(first))

	dup, err := NewRentalReturnLine(r.ID, "txn-line-1", "unit-1", 1)
	require.NoError(t, err)
	assert.ErrorIs(t, r.AddLine(dup), ErrValidation)

	require.NoError(t, r.BeginInspection("clerk"))
	other, err := NewRentalReturnLine(r.ID, "txn-line-1", "unit-2", 1)
	require.NoError(t, err)
	assert.ErrorIs(t, r.AddLine(other), ErrNotEditable)
	assert.Len(t, r.Lines, 1)
}

func TestRentalReturnStatusTable(t *testing.T) {
	tests := []struct {
		from    ReturnStatus
		to      ReturnStatus
		allowed bool
	}{
		{ReturnInitiated, ReturnInInspection, true},
		{ReturnInitiated, ReturnCompleted, false},
		{ReturnInInspection, ReturnPartiallyCompleted, true},
		{ReturnInInspection, ReturnCompleted, true},
		{ReturnPartiallyCompleted, ReturnInInspection, true},
		{ReturnCompleted, ReturnInInspection, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestRentalReturnDaysLate(t *testing.T) {
	tests := []struct {
		name       string
		returnDate time.Time
		expected   int
	}{
		{"early", rentalEnd.AddDate(0, 0, -1), 0},
		{"on time later that day", rentalEnd.Add(20 * time.Hour), 0},
		{"three days late", rentalEnd.AddDate(0, 0, 3), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReturn(t, tt.returnDate, 1)
			assert.Equal(t, tt.expected, r.DaysLate())
			assert.Equal(t, tt.expected > 0, r.IsLate())
		})
	}
}

func TestRentalReturnPendingQuantity(t *testing.T) {
	r := newTestReturn(t, rentalEnd, 3)
	require.NoError(t, r.Lines[0].RecordReturned(1, "clerk"))
	assert.Equal(t, 2, r.PendingQuantity("txn-line-a"))
	assert.Equal(t, 0, r.PendingQuantity("txn-line-z"))
}

func TestApplyLateFees(t *testing.T) {
	r := newTestReturn(t, rentalEnd.AddDate(0, 0, 2), 1, 1)

	result := CalculateLateFees(r.DaysLate(), LateFeePolicy{Kind: LateFeeFixedDaily, DailyRate: MustMoney("5")},
		[]LateFeeLine{{Quantity: 1}, {Quantity: 1}})
	require.NoError(t, r.ApplyLateFees(result, "clerk"))
	assert.Equal(t, "10.00", r.TotalLateFee.String())
	assert.Equal(t, "5.00", r.Lines[1].LateFee.String())

	assert.ErrorIs(t, r.ApplyLateFees(LateFeeResult{PerLine: []Money{ZeroMoney()}}, "clerk"), ErrValidation)
}

func TestFinalize(t *testing.T) {
	t.Run("blocked by outstanding lines", func(t *testing.T) {
		r := newTestReturn(t, rentalEnd, 2)
		err := r.Finalize(false, "clerk")
		var validationErr *ValidationError
		require.True(t, errors.As(err, &validationErr))
		assert.Contains(t, validationErr.Message, "2 of 2 units outstanding")
		assert.NotEmpty(t, r.FinalizationBlockers())
		assert.Equal(t, ReturnInitiated, r.ReturnStatus)
	})

	t.Run("forced", func(t *testing.T) {
		r := newTestReturn(t, rentalEnd, 2)
		require.NoError(t, r.Finalize(true, "manager"))
		assert.Equal(t, ReturnCompleted, r.ReturnStatus)
		assert.True(t, r.AllLinesProcessed())
		assert.Equal(t, "manager", r.FinalizedBy)

		finalized := r.DomainEvents[len(r.DomainEvents)-1].(*ReturnFinalizedEvent)
		assert.True(t, finalized.Forced)

		assert.ErrorIs(t, r.Finalize(true, "manager"), ErrInvalidStateTransition)
	})

	t.Run("all lines processed", func(t *testing.T) {
		r := newTestReturn(t, rentalEnd, 1)
		require.NoError(t, r.Lines[0].RecordReturned(1, "clerk"))
		r.Lines[0].MarkProcessed("clerk")
		require.NoError(t, r.BeginInspection("clerk"))
		require.NoError(t, r.Finalize(false, "clerk"))
		assert.Equal(t, ReturnCompleted, r.ReturnStatus)
	})
}

// TestDepositSettlement covers a late and damaged return against a 100 deposit
func TestDepositSettlement(t *testing.T) {
	r := newTestReturn(t, rentalEnd.AddDate(0, 0, 1), 1)
	line := r.Lines[0]
	require.NoError(t, line.RecordReturned(1, "clerk"))
	require.NoError(t, line.SetLateFee(MustMoney("10"), "clerk"))
	require.NoError(t, line.SetDamageFee(MustMoney("25"), "clerk"))

	_, err := r.ReleaseDeposit(MustMoney("100"), "clerk")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	line.MarkProcessed("clerk")
	require.NoError(t, r.Finalize(false, "clerk"))
	assert.True(t, r.CanReleaseDeposit())

	split, err := r.ReleaseDeposit(MustMoney("100"), "clerk")
	require.NoError(t, err)
	assert.Equal(t, "65.00", split.ReleaseAmount.String())
	assert.Equal(t, "35.00", split.WithheldAmount.String())
	assert.True(t, r.DepositReleased)
	assert.False(t, r.CanReleaseDeposit())

	_, err = r.ReleaseDeposit(MustMoney("100"), "clerk")
	assert.ErrorIs(t, err, ErrDepositAlreadyReleased)

	assert.ErrorIs(t, r.ReverseDepositRelease("  ", "manager"), ErrValidation)
	require.NoError(t, r.ReverseDepositRelease("fee dispute", "manager"))
	assert.False(t, r.DepositReleased)
	assert.True(t, r.DepositReleaseAmount.IsZero())
	assert.Equal(t, "manager", r.DepositReversedBy)

	reversed := r.DomainEvents[len(r.DomainEvents)-1].(*DepositReleaseReversedEvent)
	assert.Equal(t, "65.00", reversed.ReversedAmount.String())

	assert.ErrorIs(t, r.ReverseDepositRelease("again", "manager"), ErrDepositNotReleased)
}

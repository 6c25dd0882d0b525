package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	rentalStart = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	rentalEnd   = time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)
)

// newTestRental builds a DRAFT rental of 2 units at 20/day for 5 days with a 50 deposit
func newTestRental(t *testing.T) *TransactionHeader {
	t.Helper()
	start, end := rentalStart, rentalEnd
	txn, err := NewTransaction(NewTransactionParams{
		TransactionNumber: "REN-MAIN-20260110-000001",
		TransactionType:   TransactionRental,
		CustomerID:        "cust-1",
		LocationID:        "loc-1",
		RentalStartDate:   &start,
		RentalEndDate:     &end,
		DepositAmount:     MustMoney("50"),
		CreatedBy:         "clerk",
	})
	require.NoError(t, err)

	line, err := NewProductLine(txn.NextLineNumber(), ProductLineParams{
		SKUID: "sku-1", Quantity: 2, UnitPrice: MustMoney("100"), DailyRate: MustMoney("20"),
		RentalStartDate: &start, RentalEndDate: &end,
	})
	require.NoError(t, err)
	require.NoError(t, txn.AddLine(line))
	return txn
}

func newTestSale(t *testing.T) *TransactionHeader {
	t.Helper()
	txn, err := NewTransaction(NewTransactionParams{
		TransactionNumber: "SAL-MAIN-20260110-000001",
		TransactionType:   TransactionSale,
		CustomerID:        "cust-1",
		LocationID:        "loc-1",
		CreatedBy:         "clerk",
	})
	require.NoError(t, err)
	line, err := NewProductLine(1, ProductLineParams{SKUID: "sku-1", Quantity: 2, UnitPrice: MustMoney("100")})
	require.NoError(t, err)
	require.NoError(t, txn.AddLine(line))
	return txn
}

// TestNewTransaction tests header validation
func TestNewTransaction(t *testing.T) {
	start, end := rentalStart, rentalEnd
	tests := []struct {
		name        string
		params      NewTransactionParams
		expectError bool
	}{
		{
			name:   "sale",
			params: NewTransactionParams{TransactionNumber: "N", TransactionType: TransactionSale, CustomerID: "c", LocationID: "l"},
		},
		{
			name:   "purchase without customer",
			params: NewTransactionParams{TransactionNumber: "N", TransactionType: TransactionPurchase, SupplierID: "s", LocationID: "l"},
		},
		{
			name:        "sale without customer",
			params:      NewTransactionParams{TransactionNumber: "N", TransactionType: TransactionSale, LocationID: "l"},
			expectError: true,
		},
		{
			name:        "rental without dates",
			params:      NewTransactionParams{TransactionNumber: "N", TransactionType: TransactionRental, CustomerID: "c", LocationID: "l"},
			expectError: true,
		},
		{
			name: "rental ending before it starts",
			params: NewTransactionParams{
				TransactionNumber: "N", TransactionType: TransactionRental, CustomerID: "c", LocationID: "l",
				RentalStartDate: &end, RentalEndDate: &start,
			},
			expectError: true,
		},
		{
			name:        "unknown type",
			params:      NewTransactionParams{TransactionNumber: "N", TransactionType: "LEASE", CustomerID: "c", LocationID: "l"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn, err := NewTransaction(tt.params)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TransactionDraft, txn.Status)
			assert.Equal(t, PaymentPending, txn.PaymentStatus)
		})
	}
}

func TestTransactionStatusTable(t *testing.T) {
	tests := []struct {
		from    TransactionStatus
		to      TransactionStatus
		allowed bool
	}{
		{TransactionDraft, TransactionPending, true},
		{TransactionDraft, TransactionConfirmed, false},
		{TransactionPending, TransactionConfirmed, true},
		{TransactionConfirmed, TransactionInProgress, true},
		{TransactionConfirmed, TransactionCompleted, false},
		{TransactionInProgress, TransactionCompleted, true},
		{TransactionInProgress, TransactionCancelled, true},
		{TransactionCompleted, TransactionCancelled, false},
		{TransactionCancelled, TransactionDraft, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
	assert.True(t, TransactionCompleted.IsTerminal())
	assert.True(t, TransactionCancelled.IsTerminal())
	assert.False(t, TransactionInProgress.IsTerminal())
}

func TestHeaderAdjustments(t *testing.T) {
	txn := newTestSale(t)
	line, err := NewProductLine(2, ProductLineParams{
		SKUID: "sku-2", Quantity: 3, UnitPrice: MustMoney("100"),
		DiscountPercentage: MustPercentage("10"), TaxRate: MustPercentage("8"),
	})
	require.NoError(t, err)
	require.NoError(t, txn.AddLine(line))

	require.NoError(t, txn.ApplyHeaderAdjustments(MustMoney("50"), MustPercentage("10")))

	assert.Len(t, txn.Lines, 4)
	assert.Equal(t, "500.00", txn.Subtotal.String())
	assert.Equal(t, "80.00", txn.DiscountAmount.String())
	assert.Equal(t, "65.76", txn.TaxAmount.String())
	assert.Equal(t, "485.76", txn.TotalAmount.String())

	assert.ErrorIs(t, txn.ApplyHeaderAdjustments(MustMoney("10000"), Percentage{}), ErrValidation)
}

func TestAdvanceTo(t *testing.T) {
	txn := newTestSale(t)

	require.NoError(t, txn.AdvanceTo(TransactionCompleted, "recorded", "clerk"))
	assert.Equal(t, TransactionCompleted, txn.Status)
	assert.Len(t, txn.DomainEvents, 4)

	err := txn.AdvanceTo(TransactionConfirmed, "back", "clerk")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestRecordPaymentConfirmsSale(t *testing.T) {
	txn := newTestSale(t)

	require.NoError(t, txn.RecordPayment(MustMoney("120"), PaymentCash, "", "clerk"))
	assert.Equal(t, PaymentPartiallyPaid, txn.PaymentStatus)
	assert.Equal(t, "80.00", txn.BalanceDue().String())

	confirmed, err := txn.ConfirmIfPaid("clerk")
	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.Equal(t, TransactionDraft, txn.Status)

	require.NoError(t, txn.RecordPayment(MustMoney("80"), PaymentCreditCard, "auth-42", "clerk"))
	assert.Equal(t, PaymentPaid, txn.PaymentStatus)
	assert.True(t, txn.BalanceDue().IsZero())

	confirmed, err = txn.ConfirmIfPaid("clerk")
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Equal(t, TransactionConfirmed, txn.Status)
	assert.Len(t, txn.Payments, 2)
}

func TestRentalConfirmsOnceDepositIsCovered(t *testing.T) {
	txn := newTestRental(t)

	require.NoError(t, txn.RecordPayment(MustMoney("40"), PaymentCash, "", "clerk"))
	assert.False(t, txn.SatisfiesConfirmationPolicy())

	require.NoError(t, txn.RecordPayment(MustMoney("10"), PaymentCash, "", "clerk"))
	assert.True(t, txn.SatisfiesConfirmationPolicy())

	confirmed, err := txn.ConfirmIfPaid("clerk")
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Equal(t, PaymentPartiallyPaid, txn.PaymentStatus)
}

func TestRecordPaymentValidation(t *testing.T) {
	txn := newTestSale(t)

	assert.ErrorIs(t, txn.RecordPayment(ZeroMoney(), PaymentCash, "", "clerk"), ErrValidation)
	assert.ErrorIs(t, txn.RecordPayment(MustMoney("10"), "BARTER", "", "clerk"), ErrValidation)

	require.NoError(t, txn.Cancel("customer left", "clerk"))
	assert.ErrorIs(t, txn.RecordPayment(MustMoney("10"), PaymentCash, "", "clerk"), ErrInvalidStateTransition)
	assert.True(t, txn.PaidAmount.IsZero())
}

func TestRefund(t *testing.T) {
	txn := newTestSale(t)
	require.NoError(t, txn.RecordPayment(MustMoney("200"), PaymentCash, "", "clerk"))

	assert.ErrorIs(t, txn.Refund(MustMoney("10"), PaymentCash, "early", "clerk"), ErrInvalidStateTransition)

	require.NoError(t, txn.AdvanceTo(TransactionCompleted, "fulfilled", "clerk"))

	require.NoError(t, txn.Refund(MustMoney("50"), PaymentCash, "scratched", "clerk"))
	assert.Equal(t, PaymentPaid, txn.PaymentStatus)
	assert.Equal(t, "50.00", txn.RefundedAmount.String())

	err := txn.Refund(MustMoney("200"), PaymentCash, "too much", "clerk")
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "amount", validationErr.Field)

	require.NoError(t, txn.Refund(MustMoney("150"), "", "returned", "clerk"))
	assert.Equal(t, PaymentRefunded, txn.PaymentStatus)
	assert.Equal(t, PaymentCash, txn.Payments[len(txn.Payments)-1].Method)
}

func TestCancel(t *testing.T) {
	t.Run("unpaid", func(t *testing.T) {
		txn := newTestSale(t)
		require.NoError(t, txn.Cancel("changed mind", "clerk"))
		assert.Equal(t, TransactionCancelled, txn.Status)
		assert.Equal(t, PaymentCancelled, txn.PaymentStatus)
	})

	t.Run("partially paid", func(t *testing.T) {
		txn := newTestRental(t)
		require.NoError(t, txn.RecordPayment(MustMoney("50"), PaymentCash, "", "clerk"))
		require.NoError(t, txn.Cancel("changed mind", "clerk"))
		assert.Equal(t, PaymentRefunded, txn.PaymentStatus)
		assert.Equal(t, "50.00", txn.RefundedAmount.String())
	})

	t.Run("completed", func(t *testing.T) {
		txn := newTestSale(t)
		require.NoError(t, txn.AdvanceTo(TransactionCompleted, "", "clerk"))
		assert.ErrorIs(t, txn.Cancel("late", "clerk"), ErrInvalidStateTransition)
	})
}

func TestSoftDelete(t *testing.T) {
	txn := newTestSale(t)
	require.NoError(t, txn.SoftDelete("clerk"))
	assert.True(t, txn.IsDeleted)
	assert.NotNil(t, txn.DeletedAt)

	confirmed := newTestSale(t)
	require.NoError(t, confirmed.AdvanceTo(TransactionConfirmed, "", "clerk"))
	err := confirmed.SoftDelete("clerk")
	var transitionErr *InvalidStateTransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, "DELETED", transitionErr.To)
	assert.False(t, confirmed.IsDeleted)
}

func TestUpdate(t *testing.T) {
	txn := newTestRental(t)
	notes := "deliver to back door"
	newEnd := rentalEnd.AddDate(0, 0, 2)

	require.NoError(t, txn.Update(TransactionUpdate{Notes: &notes, RentalEndDate: &newEnd}, "clerk"))
	assert.Equal(t, notes, txn.Notes)
	assert.Equal(t, 7, txn.RentalDays())
	assert.Equal(t, 7, txn.Lines[0].RentalDays)
	assert.Equal(t, "140.00", txn.Lines[0].UnitPrice.String())
	assert.Equal(t, "280.00", txn.TotalAmount.String())

	require.NoError(t, txn.AdvanceTo(TransactionConfirmed, "", "clerk"))
	err := txn.Update(TransactionUpdate{Notes: &notes}, "clerk")
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestExtendRental(t *testing.T) {
	txn := newTestRental(t)
	newEnd := rentalEnd.AddDate(0, 0, 2)

	_, err := txn.ExtendRental(newEnd, "clerk")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	require.NoError(t, txn.RecordPayment(MustMoney("200"), PaymentCash, "", "clerk"))
	_, err = txn.ConfirmIfPaid("clerk")
	require.NoError(t, err)
	require.NoError(t, txn.Lines[0].ProcessReturn(1, rentalEnd))

	charge, err := txn.ExtendRental(newEnd, "clerk")
	require.NoError(t, err)
	assert.Equal(t, "40.00", charge.String())
	assert.Equal(t, "240.00", txn.TotalAmount.String())
	assert.Equal(t, PaymentPartiallyPaid, txn.PaymentStatus)
	assert.Equal(t, LineExtension, txn.Lines[len(txn.Lines)-1].LineType)
	assert.Equal(t, newEnd, *txn.RentalEndDate)

	_, err = txn.ExtendRental(rentalEnd, "clerk")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPaymentTransitions(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		allowed  bool
	}{
		{PaymentPending, PaymentPaid, true},
		{PaymentPaid, PaymentPartiallyPaid, true},
		{PaymentPaid, PaymentPending, false},
		{PaymentRefunded, PaymentPaid, false},
		{PaymentCancelled, PaymentPartiallyPaid, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestIsOverdue(t *testing.T) {
	txn := newTestRental(t)
	require.NoError(t, txn.AdvanceTo(TransactionInProgress, "picked up", "clerk"))

	assert.False(t, txn.IsOverdue(rentalEnd))
	assert.True(t, txn.IsOverdue(rentalEnd.AddDate(0, 0, 1)))
}

func TestStatusChangedEventTypes(t *testing.T) {
	txn := newTestRental(t)
	require.NoError(t, txn.AdvanceTo(TransactionInProgress, "", "clerk"))

	types := make([]string, 0, len(txn.DomainEvents))
	for _, e := range txn.DomainEvents {
		types = append(types, e.EventType())
	}
	assert.Equal(t, []string{
		"rental.transaction.updated",
		"rental.transaction.confirmed",
		"rental.transaction.picked-up",
	}, types)
}

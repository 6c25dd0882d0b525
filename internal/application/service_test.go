package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/internal/infrastructure/memory"
	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
)

const (
	locMain   = "loc-1"
	locEast   = "loc-2"
	custOK    = "cust-1"
	custBlack = "cust-2"
	skuChair  = "sku-chair"
	skuTent   = "sku-tent"
	clerk     = "clerk"
)

type harness struct {
	store        *memory.Store
	transactions *TransactionApplicationService
	returns      *ReturnApplicationService
	inventory    *InventoryApplicationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	store.AddLocation(domain.LocationInfo{ID: locMain, Code: "MAIN", Name: "Main store", IsActive: true})
	store.AddLocation(domain.LocationInfo{ID: locEast, Code: "EAST", Name: "East depot", IsActive: true})
	store.AddCustomer(domain.CustomerInfo{ID: custOK, Name: "Ada", IsActive: true})
	store.AddCustomer(domain.CustomerInfo{ID: custBlack, Name: "Mallory", IsActive: true, IsBlacklisted: true})
	store.AddSKU(domain.SKUInfo{
		ID: skuChair, SKUCode: "CHAIR", Name: "Folding chair", IsActive: true,
		IsSaleable: true, IsRentable: true,
		SalePrice:        domain.MustMoney("40.00"),
		RentalRatePerDay: domain.MustMoney("5.00"),
		SecurityDeposit:  domain.MustMoney("10.00"),
	})
	store.AddSKU(domain.SKUInfo{
		ID: skuTent, SKUCode: "TENT", Name: "Party tent", IsActive: true,
		IsRentable: true, TracksUnits: true,
		RentalRatePerDay: domain.MustMoney("20.00"),
		SecurityDeposit:  domain.MustMoney("50.00"),
	})

	m := metrics.New(metrics.DefaultConfig("rental-test"))
	logger := logging.NewNop()
	exec := NewExecutor(store, 3, m, logger)
	return &harness{
		store:        store,
		transactions: NewTransactionApplicationService(exec, m, logger),
		returns:      NewReturnApplicationService(exec, m, logger),
		inventory:    NewInventoryApplicationService(exec, m, logger),
	}
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 10, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func (h *harness) receiveChairs(t *testing.T, loc string, q int) {
	t.Helper()
	_, err := h.inventory.ReceiveStock(context.Background(), ReceiveStockCommand{
		SKUID: skuChair, LocationID: loc, Quantity: q, ReceivedBy: clerk,
	})
	require.NoError(t, err)
}

func (h *harness) registerTents(t *testing.T, codes ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(codes))
	for _, code := range codes {
		u, err := h.inventory.RegisterUnit(context.Background(), RegisterUnitCommand{
			InventoryCode: code, SerialNumber: "SN-" + code, SKUID: skuTent, LocationID: locMain,
			PurchaseCost: domain.MustMoney("300.00"), CreatedBy: clerk,
		})
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}
	return ids
}

func (h *harness) stock(t *testing.T, sku, loc string) *StockLevelDTO {
	t.Helper()
	level, err := h.inventory.GetStockLevel(context.Background(), sku, loc)
	require.NoError(t, err)
	return level
}

func (h *harness) bookRental(t *testing.T, lines []TransactionLineInput, deposit *domain.Money) *TransactionDTO {
	t.Helper()
	txn, err := h.transactions.CreateTransaction(context.Background(), CreateTransactionCommand{
		TransactionType: domain.TransactionRental,
		CustomerID:      custOK,
		LocationID:      locMain,
		TransactionDate: day(1),
		RentalStartDate: ptr(day(1)),
		RentalEndDate:   ptr(day(10)),
		DepositAmount:   deposit,
		Lines:           lines,
		AutoReserve:     true,
		CreatedBy:       clerk,
	})
	require.NoError(t, err)
	return txn
}

// startRental books, pays in full and picks up a rental
func (h *harness) startRental(t *testing.T, lines []TransactionLineInput, deposit *domain.Money) *TransactionDTO {
	t.Helper()
	ctx := context.Background()
	txn := h.bookRental(t, lines, deposit)
	txn, err := h.transactions.ProcessPayment(ctx, ProcessPaymentCommand{
		TransactionID: txn.ID, Amount: txn.TotalAmount, Method: domain.PaymentCash, ProcessedBy: clerk,
	})
	require.NoError(t, err)
	require.Equal(t, string(domain.TransactionConfirmed), txn.Status)

	txn, err = h.transactions.PickupRental(ctx, PickupRentalCommand{TransactionID: txn.ID, PickedUpBy: clerk})
	require.NoError(t, err)
	require.Equal(t, string(domain.TransactionInProgress), txn.Status)
	return txn
}

func requireCode(t *testing.T, err error, code string) *errors.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}

func TestCreateRental_ReservesStock(t *testing.T) {
	h := newHarness(t)
	h.receiveChairs(t, locMain, 3)

	txn := h.bookRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 2}}, nil)

	assert.Equal(t, string(domain.TransactionPending), txn.Status)
	assert.True(t, txn.InventoryReserved)
	assert.Equal(t, "REN-MAIN-20240301-000001", txn.TransactionNumber)
	assert.Equal(t, 10, txn.RentalDays)
	// 2 chairs x 5.00 x 10 days
	assert.Equal(t, "100.00", txn.TotalAmount.String())
	assert.Equal(t, "20.00", txn.DepositAmount.String())

	level := h.stock(t, skuChair, locMain)
	assert.Equal(t, 1, level.QuantityAvailable)
	assert.Equal(t, 2, level.QuantityReserved)
	assert.Equal(t, 3, level.QuantityOnHand)
}

func TestCreateRental_InsufficientStockLeavesNothingBehind(t *testing.T) {
	h := newHarness(t)
	h.receiveChairs(t, locMain, 1)

	_, err := h.transactions.CreateTransaction(context.Background(), CreateTransactionCommand{
		TransactionType: domain.TransactionRental,
		CustomerID:      custOK,
		LocationID:      locMain,
		RentalStartDate: ptr(day(1)),
		RentalEndDate:   ptr(day(3)),
		Lines:           []TransactionLineInput{{SKUID: skuChair, Quantity: 2}},
		AutoReserve:     true,
		CreatedBy:       clerk,
	})

	appErr := requireCode(t, err, errors.CodeInsufficientStock)
	assert.Equal(t, "2", appErr.Details["requested"])
	assert.Equal(t, "1", appErr.Details["available"])

	level := h.stock(t, skuChair, locMain)
	assert.Equal(t, 1, level.QuantityAvailable)
	assert.Equal(t, 0, level.QuantityReserved)

	list, err := h.transactions.ListTransactions(context.Background(), ListTransactionsQuery{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestCreateTransaction_BlacklistedCustomerRejected(t *testing.T) {
	h := newHarness(t)
	h.receiveChairs(t, locMain, 3)

	_, err := h.transactions.CreateTransaction(context.Background(), CreateTransactionCommand{
		TransactionType: domain.TransactionSale,
		CustomerID:      custBlack,
		LocationID:      locMain,
		Lines:           []TransactionLineInput{{SKUID: skuChair, Quantity: 1}},
		CreatedBy:       clerk,
	})

	appErr := requireCode(t, err, errors.CodeValidationError)
	assert.Equal(t, custBlack, appErr.Details["customerId"])
}

func TestCreateRental_NonRentableSKURejected(t *testing.T) {
	h := newHarness(t)
	h.store.AddSKU(domain.SKUInfo{ID: "sku-paint", SKUCode: "PAINT", Name: "Paint", IsActive: true, IsSaleable: true})

	_, err := h.transactions.CreateTransaction(context.Background(), CreateTransactionCommand{
		TransactionType: domain.TransactionRental,
		CustomerID:      custOK,
		LocationID:      locMain,
		RentalStartDate: ptr(day(1)),
		RentalEndDate:   ptr(day(2)),
		Lines:           []TransactionLineInput{{SKUID: "sku-paint", Quantity: 1}},
		CreatedBy:       clerk,
	})

	appErr := requireCode(t, err, errors.CodeValidationError)
	assert.Equal(t, "1", appErr.Details["lineNumber"])
}

func TestCancelConfirmedRental_ReleasesUnits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	unitIDs := h.registerTents(t, "TENT-001", "TENT-002")

	txn := h.bookRental(t, []TransactionLineInput{{SKUID: skuTent, Quantity: 2}}, nil)
	txn, err := h.transactions.ProcessPayment(ctx, ProcessPaymentCommand{
		TransactionID: txn.ID, Amount: txn.TotalAmount, Method: domain.PaymentCreditCard, ProcessedBy: clerk,
	})
	require.NoError(t, err)
	require.Equal(t, string(domain.TransactionConfirmed), txn.Status)
	assert.ElementsMatch(t, unitIDs, txn.Lines[0].UnitIDs)

	for _, id := range unitIDs {
		u, err := h.inventory.GetUnit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, string(domain.UnitReservedRent), u.Status)
		assert.Equal(t, txn.ID, u.HeldByTransactionID)
	}

	txn, err = h.transactions.CancelTransaction(ctx, CancelTransactionCommand{
		TransactionID: txn.ID, Reason: "customer changed plans", ReleaseInventory: true, CancelledBy: clerk,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.TransactionCancelled), txn.Status)
	assert.Equal(t, string(domain.PaymentRefunded), txn.PaymentStatus)
	assert.False(t, txn.InventoryReserved)

	for _, id := range unitIDs {
		u, err := h.inventory.GetUnit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, string(domain.UnitAvailableRent), u.Status)
		assert.Empty(t, u.HeldByTransactionID)
	}
	level := h.stock(t, skuTent, locMain)
	assert.Equal(t, 2, level.QuantityAvailable)
	assert.Equal(t, 0, level.QuantityReserved)
}

func TestPickupRental_UnitAlreadyOutIsInvalidTransition(t *testing.T) {
	h := newHarness(t)
	unitIDs := h.registerTents(t, "TENT-001", "TENT-002")
	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuTent, Quantity: 1}}, nil)
	require.Len(t, txn.Lines[0].UnitIDs, 1)
	rented := txn.Lines[0].UnitIDs[0]
	other := unitIDs[0]
	if other == rented {
		other = unitIDs[1]
	}

	_, err := h.transactions.PickupRental(context.Background(), PickupRentalCommand{
		TransactionID: txn.ID, UnitIDs: []string{rented}, PickedUpBy: clerk,
	})
	requireCode(t, err, errors.CodeInvalidStateTransition)

	_, err = h.transactions.PickupRental(context.Background(), PickupRentalCommand{
		TransactionID: txn.ID, UnitIDs: []string{other}, PickedUpBy: clerk,
	})
	requireCode(t, err, errors.CodeValidationError)
}

func TestCancelRental_RefusedWhileReturnOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receiveChairs(t, locMain, 2)
	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 2}}, nil)

	ret, err := h.returns.InitiateReturn(ctx, InitiateReturnCommand{TransactionID: txn.ID, ReturnDate: day(5), ProcessedBy: clerk})
	require.NoError(t, err)

	_, err = h.transactions.CancelTransaction(ctx, CancelTransactionCommand{
		TransactionID: txn.ID, Reason: "lost contract", ReleaseInventory: true, CancelledBy: clerk,
	})
	appErr := requireCode(t, err, errors.CodeConflict)
	assert.Equal(t, ret.ID, appErr.Details["returnId"])

	got, err := h.transactions.GetTransaction(ctx, GetTransactionQuery{ID: txn.ID})
	require.NoError(t, err)
	assert.Equal(t, string(domain.TransactionInProgress), got.Status)
	assert.Equal(t, 2, h.stock(t, skuChair, locMain).QuantityOnRent)
}

func TestCancelCompletedTransaction_IsInvalidTransition(t *testing.T) {
	h := newHarness(t)
	h.receiveChairs(t, locMain, 2)

	sale, err := h.transactions.RecordCompletedSale(context.Background(), RecordCompletedSaleCommand{
		CustomerID: custOK, LocationID: locMain,
		Lines:         []TransactionLineInput{{SKUID: skuChair, Quantity: 1}},
		PaymentMethod: domain.PaymentCash, SoldBy: clerk,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.TransactionCompleted), sale.Status)
	assert.Equal(t, 1, h.stock(t, skuChair, locMain).QuantityAvailable)

	_, err = h.transactions.CancelTransaction(context.Background(), CancelTransactionCommand{
		TransactionID: sale.ID, Reason: "too late", CancelledBy: clerk,
	})
	requireCode(t, err, errors.CodeInvalidStateTransition)
}

func TestPartialReturns_CompleteRentalOnLastLine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receiveChairs(t, locMain, 5)
	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 5}}, nil)
	lineID := txn.Lines[0].ID

	level := h.stock(t, skuChair, locMain)
	require.Equal(t, 5, level.QuantityOnRent)

	first, err := h.returns.InitiateReturn(ctx, InitiateReturnCommand{
		TransactionID: txn.ID, ReturnDate: day(8),
		Lines:       []ReturnLineRequest{{TransactionLineID: lineID, Quantity: 3}},
		ProcessedBy: clerk,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.ReturnPartial), first.ReturnType)

	first, err = h.returns.ProcessPartialReturn(ctx, ProcessPartialReturnCommand{
		ReturnID:    first.ID,
		Lines:       []ReturnLineUpdate{{ReturnLineID: first.Lines[0].ID, QuantityReturned: 3, ConditionGrade: domain.GradeA}},
		ProcessedBy: clerk,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.ReturnPartiallyCompleted), first.ReturnStatus)

	got, err := h.transactions.GetTransaction(ctx, GetTransactionQuery{ID: txn.ID})
	require.NoError(t, err)
	assert.Equal(t, string(domain.TransactionInProgress), got.Status)
	assert.Equal(t, 2, got.Lines[0].RemainingQuantity)

	level = h.stock(t, skuChair, locMain)
	assert.Equal(t, 3, level.QuantityAvailable)
	assert.Equal(t, 2, level.QuantityOnRent)

	second, err := h.returns.InitiateReturn(ctx, InitiateReturnCommand{TransactionID: txn.ID, ReturnDate: day(9), ProcessedBy: clerk})
	require.NoError(t, err)
	require.Len(t, second.Lines, 1)
	assert.Equal(t, 2, second.Lines[0].OriginalQuantity)
	assert.Equal(t, string(domain.ReturnFull), second.ReturnType)

	_, err = h.returns.ProcessPartialReturn(ctx, ProcessPartialReturnCommand{
		ReturnID:    second.ID,
		Lines:       []ReturnLineUpdate{{ReturnLineID: second.Lines[0].ID, QuantityReturned: 2}},
		ProcessedBy: clerk,
	})
	require.NoError(t, err)

	got, err = h.transactions.GetTransaction(ctx, GetTransactionQuery{ID: txn.ID})
	require.NoError(t, err)
	assert.Equal(t, string(domain.TransactionCompleted), got.Status)
	assert.False(t, got.InventoryReserved)

	level = h.stock(t, skuChair, locMain)
	assert.Equal(t, 5, level.QuantityAvailable)
	assert.Equal(t, 0, level.QuantityOnRent)

	returns, err := h.returns.ListReturns(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, returns, 2)
}

func TestInitiateReturn_RejectsMoreThanIsOut(t *testing.T) {
	h := newHarness(t)
	h.receiveChairs(t, locMain, 2)
	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 2}}, nil)

	_, err := h.returns.InitiateReturn(context.Background(), InitiateReturnCommand{
		TransactionID: txn.ID,
		Lines:         []ReturnLineRequest{{TransactionLineID: txn.Lines[0].ID, Quantity: 3}},
		ProcessedBy:   clerk,
	})
	requireCode(t, err, errors.CodeValidationError)
}

func TestInitiateReturn_RequiresRentalInProgress(t *testing.T) {
	h := newHarness(t)
	h.receiveChairs(t, locMain, 2)
	txn := h.bookRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 1}}, nil)

	_, err := h.returns.InitiateReturn(context.Background(), InitiateReturnCommand{TransactionID: txn.ID, ProcessedBy: clerk})
	requireCode(t, err, errors.CodeInvalidStateTransition)
}

func TestValidatePartialReturn_DoesNotMutate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receiveChairs(t, locMain, 4)
	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 4}}, nil)
	ret, err := h.returns.InitiateReturn(ctx, InitiateReturnCommand{TransactionID: txn.ID, ProcessedBy: clerk})
	require.NoError(t, err)
	lineID := ret.Lines[0].ID

	result, err := h.returns.ValidatePartialReturn(ctx, ValidatePartialReturnQuery{
		ReturnID: ret.ID,
		Lines:    []ReturnLineUpdate{{ReturnLineID: lineID, QuantityReturned: 3, ConditionGrade: domain.GradeD}},
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, 3, result.Summary.TotalQuantity)
	assert.Equal(t, 3, result.Summary.DamagedQuantity)
	assert.Equal(t, 1, result.Summary.RemainingAfter)

	result, err = h.returns.ValidatePartialReturn(ctx, ValidatePartialReturnQuery{
		ReturnID: ret.ID,
		Lines:    []ReturnLineUpdate{{ReturnLineID: lineID, QuantityReturned: 5}},
	})
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, lineID, result.Violations[0].ReturnLineID)

	after, err := h.returns.GetReturn(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, ret.Version, after.Version)
	assert.Equal(t, 0, after.Lines[0].ReturnedQuantity)
	assert.Equal(t, 4, h.stock(t, skuChair, locMain).QuantityOnRent)
}

func TestReturnFees_DepositSplit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receiveChairs(t, locMain, 1)
	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 1}}, ptr(domain.MustMoney("100.00")))

	// due on the 10th, back on the 11th
	ret, err := h.returns.InitiateReturn(ctx, InitiateReturnCommand{TransactionID: txn.ID, ReturnDate: day(11), ProcessedBy: clerk})
	require.NoError(t, err)
	assert.Equal(t, 1, ret.DaysLate)
	lineID := ret.Lines[0].ID

	_, err = h.returns.ProcessPartialReturn(ctx, ProcessPartialReturnCommand{
		ReturnID:    ret.ID,
		Lines:       []ReturnLineUpdate{{ReturnLineID: lineID, QuantityReturned: 1, ConditionGrade: domain.GradeB}},
		ProcessedBy: clerk,
	})
	require.NoError(t, err)

	fee, err := h.returns.CalculateLateFee(ctx, CalculateLateFeeCommand{
		ReturnID:     ret.ID,
		Policy:       domain.LateFeePolicy{Kind: domain.LateFeeFixedDaily, DailyRate: domain.MustMoney("10.00")},
		CalculatedBy: clerk,
	})
	require.NoError(t, err)
	assert.Equal(t, "10.00", fee.TotalLateFee.String())

	_, err = h.returns.SetLineFees(ctx, SetLineFeesCommand{
		ReturnID: ret.ID, ReturnLineID: lineID, DamageFee: ptr(domain.MustMoney("25.00")), UpdatedBy: clerk,
	})
	require.NoError(t, err)

	preview, err := h.returns.PreviewDepositRelease(ctx, ret.ID)
	require.NoError(t, err)
	assert.False(t, preview.CanRelease)

	ret, err = h.returns.FinalizeReturn(ctx, FinalizeReturnCommand{ReturnID: ret.ID, FinalizedBy: clerk})
	require.NoError(t, err)
	assert.Equal(t, string(domain.ReturnCompleted), ret.ReturnStatus)
	assert.Equal(t, "35.00", ret.TotalFees.String())

	release, err := h.returns.ReleaseDeposit(ctx, ReleaseDepositCommand{ReturnID: ret.ID, ReleasedBy: clerk})
	require.NoError(t, err)
	assert.Equal(t, "100.00", release.OriginalDeposit.String())
	assert.Equal(t, "65.00", release.ReleaseAmount.String())
	assert.Equal(t, "35.00", release.WithheldAmount.String())

	_, err = h.returns.ReleaseDeposit(ctx, ReleaseDepositCommand{ReturnID: ret.ID, ReleasedBy: clerk})
	requireCode(t, err, errors.CodeConflict)

	reversed, err := h.returns.ReverseDepositRelease(ctx, ReverseDepositReleaseCommand{
		ReturnID: ret.ID, Reason: "fee waived", ReversedBy: "manager",
	})
	require.NoError(t, err)
	assert.False(t, reversed.DepositReleased)
	assert.Equal(t, "fee waived", reversed.DepositReversalReason)
}

func TestFinalizeReturn_UnprocessedLinesNeedForce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	unitIDs := h.registerTents(t, "TENT-001")
	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuTent, Quantity: 1}}, nil)

	ret, err := h.returns.InitiateReturn(ctx, InitiateReturnCommand{
		TransactionID: txn.ID, ReturnDate: day(10),
		Lines:       []ReturnLineRequest{{TransactionLineID: txn.Lines[0].ID, UnitID: unitIDs[0]}},
		ProcessedBy: clerk,
	})
	require.NoError(t, err)

	preview, err := h.returns.PreviewFinalization(ctx, ret.ID)
	require.NoError(t, err)
	assert.False(t, preview.CanFinalize)
	assert.True(t, preview.RequiresForce)
	assert.True(t, preview.CompletesRental)

	_, err = h.returns.FinalizeReturn(ctx, FinalizeReturnCommand{ReturnID: ret.ID, FinalizedBy: clerk})
	require.Error(t, err)

	ret, err = h.returns.FinalizeReturn(ctx, FinalizeReturnCommand{ReturnID: ret.ID, ForceFinalize: true, FinalizedBy: clerk})
	require.NoError(t, err)
	assert.Equal(t, string(domain.ReturnCompleted), ret.ReturnStatus)

	u, err := h.inventory.GetUnit(ctx, unitIDs[0])
	require.NoError(t, err)
	assert.Equal(t, string(domain.UnitAvailableRent), u.Status)
	assert.Equal(t, 1, u.RentalCount)

	got, err := h.transactions.GetTransaction(ctx, GetTransactionQuery{ID: txn.ID})
	require.NoError(t, err)
	assert.Equal(t, string(domain.TransactionCompleted), got.Status)
}

func TestAssessDamage_GradeDDamagesUnit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	unitIDs := h.registerTents(t, "TENT-001")
	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuTent, Quantity: 1}}, nil)

	ret, err := h.returns.InitiateReturn(ctx, InitiateReturnCommand{TransactionID: txn.ID, ReturnDate: day(10), ProcessedBy: clerk})
	require.NoError(t, err)
	lineID := ret.Lines[0].ID
	_, err = h.returns.ProcessPartialReturn(ctx, ProcessPartialReturnCommand{
		ReturnID: ret.ID, Lines: []ReturnLineUpdate{{ReturnLineID: lineID, QuantityReturned: 1}}, ProcessedBy: clerk,
	})
	require.NoError(t, err)

	report, err := h.returns.AssessDamage(ctx, AssessDamageCommand{
		ReturnID:    ret.ID,
		InspectorID: "inspector",
		Assessments: []LineAssessment{{
			ReturnLineID:   lineID,
			ConditionGrade: domain.GradeD,
			Findings: []DamageFindingInput{{
				ItemDescription: "canopy", DamageDescription: "torn seam",
				Severity: domain.SeverityMajor, EstimatedCost: domain.MustMoney("80.00"),
			}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.InspectionCompleted), report.Status)
	assert.True(t, report.DamageFound)
	assert.Equal(t, "80.00", report.TotalDamageCost.String())

	ret, err = h.returns.GetReturn(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, "80.00", ret.TotalDamageFee.String())

	assert.Equal(t, unitIDs, ret.Lines[0].ReturnedUnitIDs)
	assert.Equal(t, 1, ret.Lines[0].DamagedQuantity)

	u, err := h.inventory.GetUnit(ctx, unitIDs[0])
	require.NoError(t, err)
	assert.Equal(t, string(domain.UnitDamaged), u.Status)
	level := h.stock(t, skuTent, locMain)
	assert.Equal(t, 1, level.QuantityDamaged)
	assert.Equal(t, 0, level.QuantityAvailable)

	rejected, err := h.returns.RejectInspection(ctx, RejectInspectionCommand{
		InspectionID: report.ID, Reason: "photos missing", RejectedBy: "manager",
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.InspectionRejected), rejected.Status)

	ret, err = h.returns.GetReturn(ctx, ret.ID)
	require.NoError(t, err)
	assert.True(t, ret.TotalDamageFee.IsZero())
}

func TestAssessDamage_GradeDMovesBulkStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receiveChairs(t, locMain, 3)
	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 3}}, nil)

	ret, err := h.returns.InitiateReturn(ctx, InitiateReturnCommand{TransactionID: txn.ID, ReturnDate: day(10), ProcessedBy: clerk})
	require.NoError(t, err)
	lineID := ret.Lines[0].ID
	_, err = h.returns.ProcessPartialReturn(ctx, ProcessPartialReturnCommand{
		ReturnID: ret.ID, Lines: []ReturnLineUpdate{{ReturnLineID: lineID, QuantityReturned: 3}}, ProcessedBy: clerk,
	})
	require.NoError(t, err)
	require.Equal(t, 3, h.stock(t, skuChair, locMain).QuantityAvailable)

	assess := AssessDamageCommand{
		ReturnID:    ret.ID,
		InspectorID: "inspector",
		Assessments: []LineAssessment{{ReturnLineID: lineID, ConditionGrade: domain.GradeD, Notes: "water damage"}},
	}
	_, err = h.returns.AssessDamage(ctx, assess)
	require.NoError(t, err)

	level := h.stock(t, skuChair, locMain)
	assert.Equal(t, 0, level.QuantityAvailable)
	assert.Equal(t, 3, level.QuantityDamaged)
	assert.Equal(t, 3, level.QuantityOnHand)

	// a second grade D finding must not move the same chairs twice
	_, err = h.returns.AssessDamage(ctx, assess)
	require.NoError(t, err)
	assert.Equal(t, 3, h.stock(t, skuChair, locMain).QuantityDamaged)

	ret, err = h.returns.GetReturn(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, ret.Lines[0].DamagedQuantity)
	assert.Empty(t, ret.Lines[0].ReturnedUnitIDs)
}

func TestCompleteReturn_OneCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receiveChairs(t, locMain, 2)
	h.registerTents(t, "TENT-001")
	txn := h.startRental(t, []TransactionLineInput{
		{SKUID: skuChair, Quantity: 2},
		{SKUID: skuTent, Quantity: 1},
	}, nil)

	ret, err := h.returns.CompleteReturn(ctx, CompleteReturnCommand{
		TransactionID: txn.ID,
		ReturnDate:    day(12),
		LateFeePolicy: domain.LateFeePolicy{Kind: domain.LateFeeFixedDaily, DailyRate: domain.MustMoney("3.00")},
		ReturnedBy:    clerk,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.ReturnCompleted), ret.ReturnStatus)
	assert.Equal(t, string(domain.ReturnFull), ret.ReturnType)
	assert.Equal(t, 2, ret.DaysLate)
	assert.Equal(t, "6.00", ret.TotalLateFee.String())

	got, err := h.transactions.GetTransaction(ctx, GetTransactionQuery{ID: txn.ID})
	require.NoError(t, err)
	assert.Equal(t, string(domain.TransactionCompleted), got.Status)
	assert.Equal(t, 2, h.stock(t, skuChair, locMain).QuantityAvailable)
	assert.Equal(t, 1, h.stock(t, skuTent, locMain).QuantityAvailable)
}

func TestProjectLateFee_IsReadOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receiveChairs(t, locMain, 2)
	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 2}}, nil)

	fee, err := h.returns.ProjectLateFee(ctx, ProjectLateFeeQuery{
		TransactionID: txn.ID,
		AsOf:          day(13),
		Policy:        domain.LateFeePolicy{Kind: domain.LateFeePercentage, Percentage: domain.MustPercentage("50")},
	})
	require.NoError(t, err)
	assert.True(t, fee.Projected)
	assert.Equal(t, 3, fee.DaysLate)
	// 50% of 5.00 x 2 chairs x 3 days
	assert.Equal(t, "15.00", fee.TotalLateFee.String())

	returns, err := h.returns.ListReturns(ctx, txn.ID)
	require.NoError(t, err)
	assert.Empty(t, returns)
}

func TestOverdueRentals(t *testing.T) {
	h := newHarness(t)
	h.receiveChairs(t, locMain, 3)
	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 3}}, nil)

	overdue, err := h.transactions.OverdueRentals(context.Background(), OverdueRentalsQuery{AsOf: day(14)})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, txn.ID, overdue[0].TransactionID)
	assert.Equal(t, 4, overdue[0].DaysOverdue)
	assert.Equal(t, 3, overdue[0].OutstandingUnits)

	overdue, err = h.transactions.OverdueRentals(context.Background(), OverdueRentalsQuery{AsOf: day(10)})
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestExtendRental_ChargesExtraDays(t *testing.T) {
	h := newHarness(t)
	h.receiveChairs(t, locMain, 1)
	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 1}}, nil)
	require.Equal(t, "50.00", txn.TotalAmount.String())

	txn, err := h.transactions.ExtendRental(context.Background(), ExtendRentalCommand{
		TransactionID: txn.ID, NewEndDate: day(12), ExtendedBy: clerk,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, txn.RentalDays)
	assert.Equal(t, "60.00", txn.TotalAmount.String())
	assert.Equal(t, "10.00", txn.BalanceDue.String())
}

func TestTransfer_StartComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receiveChairs(t, locMain, 5)
	cmd := TransferCommand{SKUID: skuChair, FromLocationID: locMain, ToLocationID: locEast, Quantity: 2, TransferredBy: clerk}

	source, err := h.inventory.StartTransfer(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 3, source.QuantityAvailable)
	assert.Equal(t, 2, source.QuantityInTransit)

	dest, err := h.inventory.CompleteTransfer(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, locEast, dest.LocationID)
	assert.Equal(t, 2, dest.QuantityAvailable)

	source = h.stock(t, skuChair, locMain)
	assert.Equal(t, 0, source.QuantityInTransit)
	assert.Equal(t, 3, source.QuantityOnHand)

	stock, err := h.inventory.GetSKUStock(ctx, skuChair)
	require.NoError(t, err)
	assert.Equal(t, 5, stock.TotalAvailable)
	assert.Len(t, stock.Locations, 2)
}

func TestTransfer_TrackedUnitsCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	unitIDs := h.registerTents(t, "TENT-001", "TENT-002")
	cmd := TransferCommand{SKUID: skuTent, FromLocationID: locMain, ToLocationID: locEast, UnitIDs: unitIDs[:1], TransferredBy: clerk}

	_, err := h.inventory.StartTransfer(ctx, cmd)
	require.NoError(t, err)
	u, err := h.inventory.GetUnit(ctx, unitIDs[0])
	require.NoError(t, err)
	assert.Equal(t, string(domain.UnitInTransit), u.Status)

	source, err := h.inventory.CancelTransfer(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 2, source.QuantityAvailable)
	assert.Equal(t, 0, source.QuantityInTransit)

	u, err = h.inventory.GetUnit(ctx, unitIDs[0])
	require.NoError(t, err)
	assert.Equal(t, string(domain.UnitAvailableRent), u.Status)
	assert.Equal(t, locMain, u.LocationID)
}

func TestTransfer_SameLocationRejected(t *testing.T) {
	h := newHarness(t)
	h.receiveChairs(t, locMain, 1)

	_, err := h.inventory.StartTransfer(context.Background(), TransferCommand{
		SKUID: skuChair, FromLocationID: locMain, ToLocationID: locMain, Quantity: 1, TransferredBy: clerk,
	})
	requireCode(t, err, errors.CodeValidationError)
}

func TestRegisterUnit_DuplicateSerialRejected(t *testing.T) {
	h := newHarness(t)
	h.registerTents(t, "TENT-001")

	_, err := h.inventory.RegisterUnit(context.Background(), RegisterUnitCommand{
		InventoryCode: "TENT-009", SerialNumber: "sn-tent-001", SKUID: skuTent, LocationID: locMain, CreatedBy: clerk,
	})
	requireCode(t, err, errors.CodeConflict)
	assert.Equal(t, 1, h.stock(t, skuTent, locMain).QuantityOnHand)
}

func TestDamageLifecycle_Bulk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receiveChairs(t, locMain, 4)
	cmd := DamageStockCommand{SKUID: skuChair, LocationID: locMain, Quantity: 2, Reason: "dropped", By: clerk}

	level, err := h.inventory.MarkDamaged(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 2, level.QuantityAvailable)
	assert.Equal(t, 2, level.QuantityDamaged)

	cmd.Quantity = 1
	level, err = h.inventory.RepairDamaged(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 3, level.QuantityAvailable)

	level, err = h.inventory.WriteOffDamaged(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, level.QuantityDamaged)
	assert.Equal(t, 3, level.QuantityOnHand)
}

func TestWriteOffDamaged_RetiresUnits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	unitIDs := h.registerTents(t, "TENT-001", "TENT-002")
	cmd := DamageStockCommand{SKUID: skuTent, LocationID: locMain, UnitIDs: unitIDs[:1], Reason: "storm", By: clerk}

	_, err := h.inventory.MarkDamaged(ctx, cmd)
	require.NoError(t, err)
	_, err = h.inventory.RepairDamaged(ctx, cmd)
	requireCode(t, err, errors.CodeValidationError)

	level, err := h.inventory.WriteOffDamaged(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, level.QuantityDamaged)
	assert.Equal(t, 1, level.QuantityOnHand)
	assert.Equal(t, 1, level.QuantityAvailable)

	u, err := h.inventory.GetUnit(ctx, unitIDs[0])
	require.NoError(t, err)
	assert.Equal(t, string(domain.UnitRetired), u.Status)
	assert.False(t, u.IsActive)
}

func TestRetireUnit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	unitIDs := h.registerTents(t, "TENT-001", "TENT-002")

	_, err := h.inventory.RetireUnit(ctx, RetireUnitCommand{UnitID: unitIDs[0], RetiredBy: "manager"})
	requireCode(t, err, errors.CodeValidationError)

	u, err := h.inventory.RetireUnit(ctx, RetireUnitCommand{UnitID: unitIDs[0], Reason: "end of life", RetiredBy: "manager"})
	require.NoError(t, err)
	assert.Equal(t, string(domain.UnitRetired), u.Status)
	assert.False(t, u.IsActive)

	level := h.stock(t, skuTent, locMain)
	assert.Equal(t, 1, level.QuantityOnHand)
	assert.Equal(t, 1, level.QuantityAvailable)

	_, err = h.inventory.RetireUnit(ctx, RetireUnitCommand{UnitID: unitIDs[0], Reason: "again", RetiredBy: "manager"})
	requireCode(t, err, errors.CodeInvalidStateTransition)

	txn := h.startRental(t, []TransactionLineInput{{SKUID: skuTent, Quantity: 1}}, nil)
	require.Equal(t, []string{unitIDs[1]}, txn.Lines[0].UnitIDs)
	_, err = h.inventory.RetireUnit(ctx, RetireUnitCommand{UnitID: unitIDs[1], Reason: "lost", RetiredBy: "manager"})
	requireCode(t, err, errors.CodeValidationError)

	u, err = h.inventory.GetUnit(ctx, unitIDs[1])
	require.NoError(t, err)
	assert.Equal(t, string(domain.UnitRented), u.Status)
}

func TestLowStockAndAvailability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receiveChairs(t, locMain, 3)
	h.receiveChairs(t, locEast, 4)

	_, err := h.inventory.UpdateReorderLevels(ctx, UpdateReorderLevelsCommand{
		SKUID: skuChair, LocationID: locMain, ReorderPoint: 5, ReorderQuantity: 10, UpdatedBy: clerk,
	})
	require.NoError(t, err)

	low, err := h.inventory.LowStock(ctx, "")
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, locMain, low[0].LocationID)
	assert.True(t, low[0].NeedsReorder)

	avail, err := h.inventory.CheckAvailability(ctx, AvailabilityQuery{SKUID: skuChair, Quantity: 6})
	require.NoError(t, err)
	assert.True(t, avail.CanFulfill)
	assert.Equal(t, 7, avail.Available)

	avail, err = h.inventory.CheckAvailability(ctx, AvailabilityQuery{SKUID: skuChair, LocationID: locMain, Quantity: 6})
	require.NoError(t, err)
	assert.False(t, avail.CanFulfill)
	assert.Equal(t, 3, avail.Shortfall)
}

func TestCreateBatchPurchase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cmd := CreateBatchPurchaseCommand{
		SupplierID: "supplier-1",
		LocationID: locMain,
		NewItems: []BatchPurchaseItem{{
			Item: domain.NewCatalogItem{
				ItemName: "Heater", SKUCode: "HEATER", IsRentable: true, TracksUnits: true,
				RentalRatePerDay: domain.MustMoney("15.00"),
			},
			Quantity:      2,
			UnitCost:      domain.MustMoney("120.00"),
			SerialNumbers: []string{"H-1", "H-2"},
		}},
		ExistingLines: []PurchaseLineInput{{SKUID: skuChair, Quantity: 10, UnitCost: domain.MustMoney("12.00")}},
		PaymentMethod: domain.PaymentBankTransfer,
		CreatedBy:     clerk,
	}

	check := cmd
	check.ValidateOnly = true
	result, err := h.transactions.CreateBatchPurchase(ctx, check)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Nil(t, result.Transaction)

	result, err = h.transactions.CreateBatchPurchase(ctx, cmd)
	require.NoError(t, err)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, string(domain.TransactionCompleted), result.Transaction.Status)
	assert.Equal(t, "360.00", result.Transaction.TotalAmount.String())
	require.Len(t, result.CreatedSKUs, 1)
	assert.Len(t, result.Units, 2)

	heater := result.CreatedSKUs[0].ID
	assert.Equal(t, 2, h.stock(t, heater, locMain).QuantityAvailable)
	assert.Equal(t, 10, h.stock(t, skuChair, locMain).QuantityAvailable)

	_, err = h.transactions.CreateBatchPurchase(ctx, cmd)
	requireCode(t, err, errors.CodeValidationError)
}

func TestDeletePendingRental_ReleasesReservation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receiveChairs(t, locMain, 2)
	txn := h.bookRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 2}}, nil)

	require.NoError(t, h.transactions.DeleteTransaction(ctx, DeleteTransactionCommand{TransactionID: txn.ID, DeletedBy: clerk}))
	assert.Equal(t, 2, h.stock(t, skuChair, locMain).QuantityAvailable)

	list, err := h.transactions.ListTransactions(ctx, ListTransactionsQuery{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)

	list, err = h.transactions.ListTransactions(ctx, ListTransactionsQuery{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
}

func TestCustomerHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receiveChairs(t, locMain, 5)
	h.startRental(t, []TransactionLineInput{{SKUID: skuChair, Quantity: 1}}, nil)
	_, err := h.transactions.RecordCompletedSale(ctx, RecordCompletedSaleCommand{
		CustomerID: custOK, LocationID: locMain,
		Lines:         []TransactionLineInput{{SKUID: skuChair, Quantity: 1}},
		PaymentMethod: domain.PaymentCash, SoldBy: clerk,
	})
	require.NoError(t, err)

	history, err := h.transactions.CustomerHistory(ctx, CustomerHistoryQuery{CustomerID: custOK})
	require.NoError(t, err)
	assert.Equal(t, 2, history.Summary.TransactionCount)
	assert.Equal(t, 1, history.Summary.ActiveRentals)
	assert.Equal(t, 1, history.Summary.CountByType[string(domain.TransactionSale)])
	assert.Len(t, history.Transactions, 2)
}

package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var transactionSortFields = map[string]bool{
	"transactionDate":   true,
	"transactionNumber": true,
	"totalAmount":       true,
	"createdAt":         true,
	"updatedAt":         true,
}

// TransactionApplicationService handles sale, rental and purchase use cases
type TransactionApplicationService struct {
	exec    *Executor
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewTransactionApplicationService creates a new TransactionApplicationService
func NewTransactionApplicationService(exec *Executor, m *metrics.Metrics, logger *logging.Logger) *TransactionApplicationService {
	return &TransactionApplicationService{
		exec:    exec,
		metrics: m,
		logger:  logger.WithComponent("transaction-service"),
	}
}

// CreateTransaction books a sale or rental. Nothing is written unless every line passes.
func (s *TransactionApplicationService) CreateTransaction(ctx context.Context, cmd CreateTransactionCommand) (*TransactionDTO, error) {
	if cmd.TransactionType != domain.TransactionSale && cmd.TransactionType != domain.TransactionRental {
		return nil, errors.ErrValidation("transactionType must be SALE or RENTAL").
			WithDetail("transactionType", string(cmd.TransactionType))
	}
	if len(cmd.Lines) == 0 {
		return nil, errors.ErrValidation("at least one line is required")
	}

	var txn *domain.TransactionHeader
	err := s.exec.Run(ctx, "create_transaction", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		txn, err = s.book(ctx, repos, cmd)
		return err
	})
	if err != nil {
		s.logger.WithContext(ctx).Warn("Booking rejected", "type", cmd.TransactionType, "customerId", cmd.CustomerID, "error", err)
		return nil, err
	}

	s.metrics.RecordTransactionCreated(string(txn.TransactionType))
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "transaction.created",
		EntityType: "transaction",
		EntityID:   txn.ID,
		Action:     "created",
		RelatedIDs: map[string]string{"customerId": txn.CustomerID, "locationId": txn.LocationID},
		Data: map[string]any{
			"transactionNumber": txn.TransactionNumber,
			"transactionType":   string(txn.TransactionType),
			"status":            string(txn.Status),
			"totalAmount":       txn.TotalAmount.String(),
			"inventoryReserved": txn.InventoryReserved,
		},
	})
	return ToTransactionDTO(txn), nil
}

func (s *TransactionApplicationService) book(ctx context.Context, repos domain.Repositories, cmd CreateTransactionCommand) (*domain.TransactionHeader, error) {
	if _, err := activeCustomer(ctx, repos, cmd.CustomerID); err != nil {
		return nil, err
	}
	txn, err := s.newHeader(ctx, repos, domain.NewTransactionParams{
		TransactionType: cmd.TransactionType,
		CustomerID:      cmd.CustomerID,
		LocationID:      cmd.LocationID,
		TransactionDate: cmd.TransactionDate,
		RentalStartDate: cmd.RentalStartDate,
		RentalEndDate:   cmd.RentalEndDate,
		Notes:           cmd.Notes,
		CreatedBy:       cmd.CreatedBy,
	})
	if err != nil {
		return nil, err
	}

	skus := newSKUCache(ctx, repos)
	deposit, err := addProductLines(txn, skus, cmd.Lines)
	if err != nil {
		return nil, err
	}
	if cmd.DepositAmount != nil {
		if cmd.DepositAmount.IsNegative() {
			return nil, domain.NewValidationError("depositAmount", "cannot be negative")
		}
		deposit = *cmd.DepositAmount
	}
	if txn.IsRental() {
		txn.DepositAmount = deposit
	}

	scope := newInventoryScope(ctx, repos, cmd.CreatedBy, s.metrics)
	if err := scope.checkAvailability(txn.LocationID, txn.ProductLines()); err != nil {
		return nil, err
	}
	if err := txn.ApplyHeaderAdjustments(cmd.HeaderDiscount, cmd.TaxRate); err != nil {
		return nil, err
	}
	txn.MarkCreated()

	if cmd.AutoReserve {
		if err := reserveTransaction(scope, skus, txn, cmd.CreatedBy); err != nil {
			return nil, err
		}
		if err := txn.AdvanceTo(domain.TransactionPending, "inventory reserved", cmd.CreatedBy); err != nil {
			return nil, err
		}
	}

	if err := scope.flush(); err != nil {
		return nil, err
	}
	if err := repos.Transactions.Save(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to save transaction: %w", err)
	}
	return txn, nil
}

// newHeader validates the location and draws the next transaction number
func (s *TransactionApplicationService) newHeader(ctx context.Context, repos domain.Repositories, p domain.NewTransactionParams) (*domain.TransactionHeader, error) {
	location, err := activeLocation(ctx, repos, p.LocationID)
	if err != nil {
		return nil, err
	}
	if p.TransactionDate.IsZero() {
		p.TransactionDate = domain.Now()
	}
	number, err := repos.Numbers.Next(ctx, p.TransactionType, location.Code, p.TransactionDate)
	if err != nil {
		return nil, fmt.Errorf("failed to generate transaction number: %w", err)
	}
	p.TransactionNumber = number
	return domain.NewTransaction(p)
}

// addProductLines prices and appends the requested lines. It returns the sum of
// catalog security deposits for rentals.
func addProductLines(txn *domain.TransactionHeader, skus *skuCache, inputs []TransactionLineInput) (domain.Money, error) {
	deposit := domain.ZeroMoney()
	for _, in := range inputs {
		lineNumber := txn.NextLineNumber()
		sku, err := skus.get(in.SKUID)
		if err != nil {
			return domain.Money{}, withLineNumber(err, lineNumber)
		}
		line, err := priceLine(txn, sku, in, lineNumber)
		if err != nil {
			return domain.Money{}, err
		}
		if err := txn.AddLine(line); err != nil {
			return domain.Money{}, err
		}
		if txn.IsRental() {
			deposit = deposit.Add(sku.SecurityDeposit.MulInt(in.Quantity))
		}
	}
	return deposit, nil
}

// priceLine checks the SKU flags and prices one product line. Rentals cost the
// daily rate times the inclusive rental days unless a unit price is given.
func priceLine(txn *domain.TransactionHeader, sku *domain.SKUInfo, in TransactionLineInput, lineNumber int) (*domain.TransactionLine, error) {
	description := in.Description
	if description == "" {
		description = sku.Name
	}
	params := domain.ProductLineParams{
		SKUID:              sku.ID,
		Description:        description,
		Quantity:           in.Quantity,
		DiscountPercentage: in.DiscountPercentage,
		DiscountAmount:     in.DiscountAmount,
		TaxRate:            in.TaxRate,
		UnitIDs:            in.UnitIDs,
	}

	if txn.IsRental() {
		if !sku.IsRentable {
			return nil, domain.NewLineValidationError(lineNumber, "skuId", "sku "+sku.SKUCode+" is not rentable")
		}
		days := txn.RentalDays()
		if !sku.AllowsRentalDays(days) {
			return nil, domain.NewLineValidationError(lineNumber, "rentalDays",
				fmt.Sprintf("rental of %d days is outside the limits of sku %s", days, sku.SKUCode))
		}
		rate := sku.RentalRatePerDay
		if in.DailyRate != nil {
			rate = *in.DailyRate
		}
		if rate.IsNegative() {
			return nil, domain.NewLineValidationError(lineNumber, "dailyRate", "cannot be negative")
		}
		params.DailyRate = rate
		params.UnitPrice = rate.MulInt(days)
		params.RentalStartDate = txn.RentalStartDate
		params.RentalEndDate = txn.RentalEndDate
	} else {
		if !sku.IsSaleable {
			return nil, domain.NewLineValidationError(lineNumber, "skuId", "sku "+sku.SKUCode+" is not saleable")
		}
		params.UnitPrice = sku.SalePrice
	}
	if in.UnitPrice != nil {
		params.UnitPrice = *in.UnitPrice
	}
	return domain.NewProductLine(lineNumber, params)
}

func withLineNumber(err error, lineNumber int) error {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.WithDetail("lineNumber", strconv.Itoa(lineNumber))
	}
	return err
}

// reserveTransaction holds stock and units for every product line
func reserveTransaction(scope *inventoryScope, skus *skuCache, txn *domain.TransactionHeader, by string) error {
	if txn.InventoryReserved {
		return nil
	}
	for _, line := range txn.ProductLines() {
		tracks, err := skus.tracksUnits(line.SKUID)
		if err != nil {
			return err
		}
		if err := scope.reserveLine(txn, line, tracks); err != nil {
			return err
		}
	}
	txn.MarkInventoryReserved(by)
	return nil
}

// releaseTransaction gives back everything the transaction still holds
func releaseTransaction(scope *inventoryScope, txn *domain.TransactionHeader, pickedUp bool, reason, by string) error {
	for _, line := range txn.ProductLines() {
		if err := scope.releaseLine(txn, line, pickedUp, reason); err != nil {
			return err
		}
	}
	txn.ReleaseInventoryHold(by)
	return nil
}

// ProcessPayment records a payment and confirms the transaction once the payment policy is met
func (s *TransactionApplicationService) ProcessPayment(ctx context.Context, cmd ProcessPaymentCommand) (*TransactionDTO, error) {
	var (
		txn       *domain.TransactionHeader
		from      domain.TransactionStatus
		confirmed bool
	)
	err := s.exec.Run(ctx, "process_payment", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if txn, err = loadTransaction(ctx, repos, cmd.TransactionID); err != nil {
			return err
		}
		if !txn.IsPurchase() {
			if _, err := activeCustomer(ctx, repos, txn.CustomerID); err != nil {
				return err
			}
		}
		from = txn.Status
		if err := txn.RecordPayment(cmd.Amount, cmd.Method, cmd.Reference, cmd.ProcessedBy); err != nil {
			return err
		}
		if confirmed, err = txn.ConfirmIfPaid(cmd.ProcessedBy); err != nil {
			return err
		}
		if err := repos.Transactions.Save(ctx, txn); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(from, txn)
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "transaction.payment_recorded",
		EntityType: "transaction",
		EntityID:   txn.ID,
		Action:     "payment",
		Data: map[string]any{
			"amount":        cmd.Amount.String(),
			"method":        string(cmd.Method),
			"paidAmount":    txn.PaidAmount.String(),
			"paymentStatus": string(txn.PaymentStatus),
			"confirmed":     confirmed,
		},
	})
	return ToTransactionDTO(txn), nil
}

// PickupRental hands reserved units to the customer and starts the rental
func (s *TransactionApplicationService) PickupRental(ctx context.Context, cmd PickupRentalCommand) (*TransactionDTO, error) {
	var (
		txn      *domain.TransactionHeader
		from     domain.TransactionStatus
		pickedUp int
	)
	err := s.exec.Run(ctx, "pickup_rental", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if txn, err = loadRental(ctx, repos, cmd.TransactionID); err != nil {
			return err
		}
		if txn.Status != domain.TransactionConfirmed && txn.Status != domain.TransactionInProgress {
			return &domain.InvalidStateTransitionError{
				Entity: "transaction", ID: txn.ID, From: txn.Status.String(), To: domain.TransactionInProgress.String(),
			}
		}
		from = txn.Status

		scope := newInventoryScope(ctx, repos, cmd.PickedUpBy, s.metrics)
		if err := reserveTransaction(scope, newSKUCache(ctx, repos), txn, cmd.PickedUpBy); err != nil {
			return err
		}
		if pickedUp, err = pickupUnits(scope, txn, cmd); err != nil {
			return err
		}
		if txn.Status == domain.TransactionConfirmed {
			if err := txn.TransitionTo(domain.TransactionInProgress, "picked up", cmd.PickedUpBy); err != nil {
				return err
			}
		}
		if err := scope.flush(); err != nil {
			return err
		}
		if err := repos.Transactions.Save(ctx, txn); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(from, txn)
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "rental.picked_up",
		EntityType: "transaction",
		EntityID:   txn.ID,
		Action:     "pickup",
		RelatedIDs: map[string]string{"customerId": txn.CustomerID},
		Data:       map[string]any{"quantity": pickedUp, "unitIds": cmd.UnitIDs},
	})
	return ToTransactionDTO(txn), nil
}

// pickupUnits moves reserved units to RENTED. Bulk lines go out in full on the first pickup.
func pickupUnits(scope *inventoryScope, txn *domain.TransactionHeader, cmd PickupRentalCommand) (int, error) {
	requested := make(map[string]bool, len(cmd.UnitIDs))
	for _, id := range cmd.UnitIDs {
		requested[id] = true
	}
	matched, pickedUp := 0, 0
	firstPickup := txn.Status == domain.TransactionConfirmed

	for _, line := range txn.ProductLines() {
		if len(line.UnitIDs) == 0 {
			if firstPickup {
				q := line.Quantity
				if err := scope.adjust(line.SKUID, txn.LocationID, domain.MovementRentOut, q, func(level *domain.StockLevel) error {
					return level.RentOut(q, scope.by)
				}); err != nil {
					return 0, err
				}
				pickedUp += q
			}
			continue
		}

		count := 0
		for _, id := range line.UnitIDs {
			if len(requested) > 0 && !requested[id] {
				continue
			}
			u, err := scope.unit(id)
			if err != nil {
				return 0, err
			}
			if len(requested) == 0 && u.Status == domain.UnitRented {
				continue
			}
			if u.Status != domain.UnitReservedRent || !u.IsHeldBy(txn.ID) {
				return 0, &domain.InvalidStateTransitionError{
					Entity: "inventory unit", ID: id, From: u.Status.String(), To: domain.UnitRented.String(),
				}
			}
			if requested[id] {
				matched++
			}
			if err := u.RecordInspection(u.ConditionGrade, cmd.ConditionNotes, scope.by); err != nil {
				return 0, err
			}
			if err := scope.transition(u, domain.UnitRented, txn.ID, "picked up"); err != nil {
				return 0, err
			}
			count++
		}
		if count > 0 {
			if err := scope.adjust(line.SKUID, txn.LocationID, domain.MovementRentOut, count, func(level *domain.StockLevel) error {
				return level.RentOut(count, scope.by)
			}); err != nil {
				return 0, err
			}
			pickedUp += count
		}
	}

	if matched != len(requested) {
		return 0, domain.NewValidationError("unitIds", "some requested units do not belong to rental "+txn.TransactionNumber)
	}
	if pickedUp == 0 {
		return 0, domain.NewValidationError("unitIds", "no reserved units left to pick up")
	}
	return pickedUp, nil
}

// ExtendRental moves the rental end date and charges the extra days
func (s *TransactionApplicationService) ExtendRental(ctx context.Context, cmd ExtendRentalCommand) (*TransactionDTO, error) {
	var (
		txn    *domain.TransactionHeader
		charge domain.Money
	)
	err := s.exec.Run(ctx, "extend_rental", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if txn, err = loadRental(ctx, repos, cmd.TransactionID); err != nil {
			return err
		}
		if charge, err = txn.ExtendRental(cmd.NewEndDate, cmd.ExtendedBy); err != nil {
			return err
		}
		if err := checkRentalDays(ctx, repos, txn); err != nil {
			return err
		}
		if cmd.AdditionalPayment != nil && cmd.AdditionalPayment.IsPositive() {
			if _, err := activeCustomer(ctx, repos, txn.CustomerID); err != nil {
				return err
			}
			if err := txn.RecordPayment(*cmd.AdditionalPayment, cmd.PaymentMethod, cmd.PaymentReference, cmd.ExtendedBy); err != nil {
				return err
			}
		}
		if err := repos.Transactions.Save(ctx, txn); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "rental.extended",
		EntityType: "transaction",
		EntityID:   txn.ID,
		Action:     "extend",
		Data: map[string]any{
			"newEndDate":      cmd.NewEndDate.Format(time.DateOnly),
			"extensionCharge": charge.String(),
			"balanceDue":      txn.BalanceDue().String(),
		},
	})
	return ToTransactionDTO(txn), nil
}

// checkRentalDays re-validates the rental period of lines still out against their SKU limits
func checkRentalDays(ctx context.Context, repos domain.Repositories, txn *domain.TransactionHeader) error {
	days := txn.RentalDays()
	for _, line := range txn.ProductLines() {
		if line.RemainingQuantity() == 0 {
			continue
		}
		sku, err := repos.Catalog.GetSKU(ctx, line.SKUID)
		if err != nil {
			return fmt.Errorf("failed to get sku: %w", err)
		}
		if sku != nil && !sku.AllowsRentalDays(days) {
			return domain.NewLineValidationError(line.LineNumber, "rentalDays",
				fmt.Sprintf("rental of %d days is outside the limits of sku %s", days, sku.SKUCode))
		}
	}
	return nil
}

// refuseWithOpenReturns blocks cancelling a rental while a return of it is still open
func refuseWithOpenReturns(ctx context.Context, repos domain.Repositories, txn *domain.TransactionHeader) error {
	returns, err := repos.Returns.FindByTransaction(ctx, txn.ID)
	if err != nil {
		return fmt.Errorf("failed to list rental returns: %w", err)
	}
	for _, r := range returns {
		if r.ReturnStatus.IsOpen() {
			return errors.ErrConflict("rental "+txn.TransactionNumber+" has an open return, finalize it first").
				WithDetail("returnId", r.ID)
		}
	}
	return nil
}

// CancelTransaction cancels a transaction, optionally giving its inventory back
func (s *TransactionApplicationService) CancelTransaction(ctx context.Context, cmd CancelTransactionCommand) (*TransactionDTO, error) {
	var (
		txn      *domain.TransactionHeader
		from     domain.TransactionStatus
		released bool
	)
	err := s.exec.Run(ctx, "cancel_transaction", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if txn, err = loadTransaction(ctx, repos, cmd.TransactionID); err != nil {
			return err
		}
		from = txn.Status
		pickedUp := txn.Status == domain.TransactionInProgress
		if pickedUp {
			if err := refuseWithOpenReturns(ctx, repos, txn); err != nil {
				return err
			}
		}
		if err := txn.Cancel(cmd.Reason, cmd.CancelledBy); err != nil {
			return err
		}

		scope := newInventoryScope(ctx, repos, cmd.CancelledBy, s.metrics)
		released = cmd.ReleaseInventory && txn.InventoryReserved
		if released {
			if err := releaseTransaction(scope, txn, pickedUp, "cancelled: "+cmd.Reason, cmd.CancelledBy); err != nil {
				return err
			}
		}
		if err := scope.flush(); err != nil {
			return err
		}
		if err := repos.Transactions.Save(ctx, txn); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(from, txn)
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "transaction.cancelled",
		EntityType: "transaction",
		EntityID:   txn.ID,
		Action:     "cancel",
		Data: map[string]any{
			"reason":            cmd.Reason,
			"fromStatus":        string(from),
			"paymentStatus":     string(txn.PaymentStatus),
			"inventoryReleased": released,
		},
	})
	return ToTransactionDTO(txn), nil
}

// DeleteTransaction soft deletes a DRAFT, PENDING or CANCELLED transaction.
// A pending reservation is released first.
func (s *TransactionApplicationService) DeleteTransaction(ctx context.Context, cmd DeleteTransactionCommand) error {
	err := s.exec.Run(ctx, "delete_transaction", func(ctx context.Context, repos domain.Repositories) error {
		txn, err := loadTransaction(ctx, repos, cmd.TransactionID)
		if err != nil {
			return err
		}
		if err := txn.SoftDelete(cmd.DeletedBy); err != nil {
			return err
		}
		scope := newInventoryScope(ctx, repos, cmd.DeletedBy, s.metrics)
		if txn.InventoryReserved && (txn.Status == domain.TransactionDraft || txn.Status == domain.TransactionPending) {
			if err := releaseTransaction(scope, txn, false, "deleted", cmd.DeletedBy); err != nil {
				return err
			}
		}
		if err := scope.flush(); err != nil {
			return err
		}
		if err := repos.Transactions.Save(ctx, txn); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Audit(ctx, "delete", "transaction", cmd.TransactionID, cmd.DeletedBy, nil)
	return nil
}

// RefundTransaction returns money on a completed transaction
func (s *TransactionApplicationService) RefundTransaction(ctx context.Context, cmd RefundTransactionCommand) (*TransactionDTO, error) {
	var txn *domain.TransactionHeader
	err := s.exec.Run(ctx, "refund_transaction", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if txn, err = loadTransaction(ctx, repos, cmd.TransactionID); err != nil {
			return err
		}
		if err := txn.Refund(cmd.Amount, cmd.Method, cmd.Reason, cmd.RefundedBy); err != nil {
			return err
		}
		if err := repos.Transactions.Save(ctx, txn); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "transaction.refunded",
		EntityType: "transaction",
		EntityID:   txn.ID,
		Action:     "refund",
		Data: map[string]any{
			"amount":         cmd.Amount.String(),
			"refundedAmount": txn.RefundedAmount.String(),
			"paymentStatus":  string(txn.PaymentStatus),
			"reason":         cmd.Reason,
		},
	})
	return ToTransactionDTO(txn), nil
}

// UpdateTransaction edits the header of a DRAFT or PENDING transaction
func (s *TransactionApplicationService) UpdateTransaction(ctx context.Context, cmd UpdateTransactionCommand) (*TransactionDTO, error) {
	var txn *domain.TransactionHeader
	err := s.exec.Run(ctx, "update_transaction", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if txn, err = loadTransaction(ctx, repos, cmd.TransactionID); err != nil {
			return err
		}
		if cmd.CustomerID != nil && *cmd.CustomerID != "" {
			if _, err := activeCustomer(ctx, repos, *cmd.CustomerID); err != nil {
				return err
			}
		}
		if err := txn.Update(domain.TransactionUpdate{
			Notes:           cmd.Notes,
			CustomerID:      cmd.CustomerID,
			RentalStartDate: cmd.RentalStartDate,
			RentalEndDate:   cmd.RentalEndDate,
		}, cmd.UpdatedBy); err != nil {
			return err
		}
		if txn.IsRental() {
			if err := checkRentalDays(ctx, repos, txn); err != nil {
				return err
			}
		}
		if err := repos.Transactions.Save(ctx, txn); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Updated transaction", "transactionId", txn.ID, "totalAmount", txn.TotalAmount.String())
	return ToTransactionDTO(txn), nil
}

// RecordCompletedSale books a counter sale that is paid and handed over at once
func (s *TransactionApplicationService) RecordCompletedSale(ctx context.Context, cmd RecordCompletedSaleCommand) (*TransactionDTO, error) {
	if len(cmd.Lines) == 0 {
		return nil, errors.ErrValidation("at least one line is required")
	}

	var txn *domain.TransactionHeader
	err := s.exec.Run(ctx, "record_completed_sale", func(ctx context.Context, repos domain.Repositories) error {
		if _, err := activeCustomer(ctx, repos, cmd.CustomerID); err != nil {
			return err
		}
		var err error
		txn, err = s.newHeader(ctx, repos, domain.NewTransactionParams{
			TransactionType: domain.TransactionSale,
			CustomerID:      cmd.CustomerID,
			LocationID:      cmd.LocationID,
			Notes:           cmd.Notes,
			CreatedBy:       cmd.SoldBy,
		})
		if err != nil {
			return err
		}
		skus := newSKUCache(ctx, repos)
		if _, err := addProductLines(txn, skus, cmd.Lines); err != nil {
			return err
		}
		if err := txn.ApplyHeaderAdjustments(cmd.HeaderDiscount, cmd.TaxRate); err != nil {
			return err
		}

		scope := newInventoryScope(ctx, repos, cmd.SoldBy, s.metrics)
		if err := scope.checkAvailability(txn.LocationID, txn.ProductLines()); err != nil {
			return err
		}
		txn.MarkCreated()
		for _, line := range txn.ProductLines() {
			tracks, err := skus.tracksUnits(line.SKUID)
			if err != nil {
				return err
			}
			if err := scope.sellLine(txn, line, tracks); err != nil {
				return err
			}
		}
		if err := settleInFull(txn, cmd.PaymentMethod, cmd.PaymentReference, "sold at counter", cmd.SoldBy); err != nil {
			return err
		}
		if err := scope.flush(); err != nil {
			return err
		}
		if err := repos.Transactions.Save(ctx, txn); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransactionCreated(string(txn.TransactionType))
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "sale.completed",
		EntityType: "transaction",
		EntityID:   txn.ID,
		Action:     "sold",
		RelatedIDs: map[string]string{"customerId": txn.CustomerID, "locationId": txn.LocationID},
		Data:       map[string]any{"transactionNumber": txn.TransactionNumber, "totalAmount": txn.TotalAmount.String()},
	})
	return ToTransactionDTO(txn), nil
}

// settleInFull pays the whole total and walks the header to COMPLETED
func settleInFull(txn *domain.TransactionHeader, method domain.PaymentMethod, reference, reason, by string) error {
	if txn.TotalAmount.IsPositive() {
		if err := txn.RecordPayment(txn.TotalAmount, method, reference, by); err != nil {
			return err
		}
	}
	return txn.AdvanceTo(domain.TransactionCompleted, reason, by)
}

// FulfillSale hands over the goods of a confirmed sale
func (s *TransactionApplicationService) FulfillSale(ctx context.Context, cmd FulfillSaleCommand) (*TransactionDTO, error) {
	var (
		txn  *domain.TransactionHeader
		from domain.TransactionStatus
	)
	err := s.exec.Run(ctx, "fulfill_sale", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if txn, err = loadTransaction(ctx, repos, cmd.TransactionID); err != nil {
			return err
		}
		if !txn.IsSale() {
			return errors.ErrValidation("transaction is not a sale").WithDetail("transactionId", txn.ID)
		}
		if txn.Status != domain.TransactionConfirmed {
			return &domain.InvalidStateTransitionError{
				Entity: "transaction", ID: txn.ID, From: txn.Status.String(), To: domain.TransactionCompleted.String(),
			}
		}
		from = txn.Status

		scope := newInventoryScope(ctx, repos, cmd.FulfilledBy, s.metrics)
		if err := reserveTransaction(scope, newSKUCache(ctx, repos), txn, cmd.FulfilledBy); err != nil {
			return err
		}
		for _, line := range txn.ProductLines() {
			if err := scope.confirmLine(txn, line); err != nil {
				return err
			}
		}
		txn.ReleaseInventoryHold(cmd.FulfilledBy)
		if err := txn.AdvanceTo(domain.TransactionCompleted, "fulfilled", cmd.FulfilledBy); err != nil {
			return err
		}
		if err := scope.flush(); err != nil {
			return err
		}
		if err := repos.Transactions.Save(ctx, txn); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(from, txn)
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "sale.fulfilled",
		EntityType: "transaction",
		EntityID:   txn.ID,
		Action:     "fulfill",
		RelatedIDs: map[string]string{"customerId": txn.CustomerID},
	})
	return ToTransactionDTO(txn), nil
}

// purchaseParams is the shared input of recorded and batch purchases
type purchaseParams struct {
	SupplierID       string
	LocationID       string
	Lines            []PurchaseLineInput
	PaymentMethod    domain.PaymentMethod
	PaymentReference string
	Notes            string
	By               string
}

// RecordCompletedPurchase books goods received from a supplier and paid for
func (s *TransactionApplicationService) RecordCompletedPurchase(ctx context.Context, cmd RecordCompletedPurchaseCommand) (*TransactionDTO, error) {
	if len(cmd.Lines) == 0 {
		return nil, errors.ErrValidation("at least one line is required")
	}

	var txn *domain.TransactionHeader
	err := s.exec.Run(ctx, "record_completed_purchase", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		txn, _, err = s.purchase(ctx, repos, purchaseParams{
			SupplierID:       cmd.SupplierID,
			LocationID:       cmd.LocationID,
			Lines:            cmd.Lines,
			PaymentMethod:    cmd.PaymentMethod,
			PaymentReference: cmd.PaymentReference,
			Notes:            cmd.Notes,
			By:               cmd.ReceivedBy,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logPurchase(ctx, txn)
	return ToTransactionDTO(txn), nil
}

// purchase creates a completed PURCHASE, receives its stock and registers units for tracked SKUs
func (s *TransactionApplicationService) purchase(ctx context.Context, repos domain.Repositories, p purchaseParams) (*domain.TransactionHeader, []*domain.InventoryUnit, error) {
	if p.SupplierID == "" {
		return nil, nil, domain.NewValidationError("supplierId", "is required")
	}
	txn, err := s.newHeader(ctx, repos, domain.NewTransactionParams{
		TransactionType: domain.TransactionPurchase,
		SupplierID:      p.SupplierID,
		LocationID:      p.LocationID,
		Notes:           p.Notes,
		CreatedBy:       p.By,
	})
	if err != nil {
		return nil, nil, err
	}

	skus := newSKUCache(ctx, repos)
	scope := newInventoryScope(ctx, repos, p.By, s.metrics)
	units := make([]*domain.InventoryUnit, 0)
	for _, in := range p.Lines {
		lineNumber := txn.NextLineNumber()
		sku, err := skus.get(in.SKUID)
		if err != nil {
			return nil, nil, withLineNumber(err, lineNumber)
		}
		description := in.Description
		if description == "" {
			description = sku.Name
		}
		line, err := domain.NewProductLine(lineNumber, domain.ProductLineParams{
			SKUID:       sku.ID,
			Description: description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitCost,
			TaxRate:     in.TaxRate,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := txn.AddLine(line); err != nil {
			return nil, nil, err
		}

		q := in.Quantity
		if err := scope.adjust(sku.ID, txn.LocationID, domain.MovementReceive, q, func(level *domain.StockLevel) error {
			return level.ReceiveStock(q, p.By)
		}); err != nil {
			return nil, nil, err
		}
		if sku.TracksUnits {
			registered, err := registerPurchasedUnits(ctx, repos, scope, txn, line, sku, in)
			if err != nil {
				return nil, nil, err
			}
			units = append(units, registered...)
		} else if len(in.SerialNumbers) > 0 {
			return nil, nil, domain.NewLineValidationError(lineNumber, "serialNumbers", "sku "+sku.SKUCode+" does not track units")
		}
	}

	txn.MarkCreated()
	if err := settleInFull(txn, p.PaymentMethod, p.PaymentReference, "goods received", p.By); err != nil {
		return nil, nil, err
	}
	if err := scope.flush(); err != nil {
		return nil, nil, err
	}
	if err := repos.Transactions.Save(ctx, txn); err != nil {
		return nil, nil, fmt.Errorf("failed to save transaction: %w", err)
	}
	return txn, units, nil
}

func registerPurchasedUnits(ctx context.Context, repos domain.Repositories, scope *inventoryScope, txn *domain.TransactionHeader,
	line *domain.TransactionLine, sku *domain.SKUInfo, in PurchaseLineInput) ([]*domain.InventoryUnit, error) {
	if len(in.SerialNumbers) > in.Quantity {
		return nil, domain.NewLineValidationError(line.LineNumber, "serialNumbers",
			fmt.Sprintf("%d serial numbers for quantity %d", len(in.SerialNumbers), in.Quantity))
	}
	status := domain.UnitAvailableSale
	if sku.IsRentable {
		status = domain.UnitAvailableRent
	}
	grade := in.ConditionGrade
	if grade == "" {
		grade = domain.GradeA
	}
	date := txn.TransactionDate

	units := make([]*domain.InventoryUnit, 0, in.Quantity)
	for i := 0; i < in.Quantity; i++ {
		serial := ""
		if i < len(in.SerialNumbers) {
			serial = strings.TrimSpace(in.SerialNumbers[i])
			existing, err := repos.Units.FindBySerialNumber(ctx, serial)
			if err != nil {
				return nil, fmt.Errorf("failed to check serial number: %w", err)
			}
			if existing != nil {
				return nil, errors.ErrConflict("serial number already registered").WithDetail("serialNumber", serial)
			}
		}
		u, err := domain.NewInventoryUnit(domain.NewUnitParams{
			InventoryCode:  fmt.Sprintf("%s-%s", sku.SKUCode, strings.ToUpper(domain.NewID()[:8])),
			SerialNumber:   serial,
			SKUID:          sku.ID,
			LocationID:     txn.LocationID,
			Status:         status,
			ConditionGrade: grade,
			PurchaseCost:   in.UnitCost,
			PurchaseDate:   &date,
			CreatedBy:      scope.by,
		})
		if err != nil {
			return nil, err
		}
		scope.touch(u)
		line.UnitIDs = append(line.UnitIDs, u.ID)
		units = append(units, u)
	}
	return units, nil
}

// CreateBatchPurchase creates new catalog items and the purchase that stocks them in one unit of work.
// With ValidateOnly nothing is written.
func (s *TransactionApplicationService) CreateBatchPurchase(ctx context.Context, cmd CreateBatchPurchaseCommand) (*BatchPurchaseResultDTO, error) {
	problems := validateBatchShape(cmd)
	if err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		more, err := validateBatchReferences(ctx, repos, cmd)
		problems = append(problems, more...)
		return err
	}); err != nil {
		return nil, err
	}
	if cmd.ValidateOnly {
		return &BatchPurchaseResultDTO{IsValid: len(problems) == 0, Errors: problems}, nil
	}
	if len(problems) > 0 {
		return nil, errors.ErrValidation("batch purchase is invalid").WithDetail("errors", strings.Join(problems, "; "))
	}

	var (
		txn     *domain.TransactionHeader
		created []*domain.SKUInfo
		units   []*domain.InventoryUnit
	)
	err := s.exec.Run(ctx, "create_batch_purchase", func(ctx context.Context, repos domain.Repositories) error {
		if more, err := validateBatchReferences(ctx, repos, cmd); err != nil {
			return err
		} else if len(more) > 0 {
			return errors.ErrValidation("batch purchase is invalid").WithDetail("errors", strings.Join(more, "; "))
		}

		items := make([]domain.NewCatalogItem, 0, len(cmd.NewItems))
		for _, n := range cmd.NewItems {
			item := n.Item
			item.CreatedBy = cmd.CreatedBy
			items = append(items, item)
		}
		var err error
		if created, err = repos.Catalog.CreateItems(ctx, items); err != nil {
			return fmt.Errorf("failed to create catalog items: %w", err)
		}
		if len(created) != len(cmd.NewItems) {
			return errors.ErrInternal("catalog created an unexpected number of items")
		}

		lines := make([]PurchaseLineInput, 0, len(cmd.NewItems)+len(cmd.ExistingLines))
		for i, n := range cmd.NewItems {
			lines = append(lines, PurchaseLineInput{
				SKUID:          created[i].ID,
				Description:    n.Item.ItemName,
				Quantity:       n.Quantity,
				UnitCost:       n.UnitCost,
				SerialNumbers:  n.SerialNumbers,
				ConditionGrade: n.ConditionGrade,
			})
		}
		lines = append(lines, cmd.ExistingLines...)

		txn, units, err = s.purchase(ctx, repos, purchaseParams{
			SupplierID:       cmd.SupplierID,
			LocationID:       cmd.LocationID,
			Lines:            lines,
			PaymentMethod:    cmd.PaymentMethod,
			PaymentReference: cmd.PaymentReference,
			Notes:            cmd.Notes,
			By:               cmd.CreatedBy,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logPurchase(ctx, txn)
	result := &BatchPurchaseResultDTO{
		IsValid:     true,
		Transaction: ToTransactionDTO(txn),
		CreatedSKUs: make([]domain.SKUInfo, 0, len(created)),
		Units:       ToInventoryUnitDTOs(units),
	}
	for _, sku := range created {
		result.CreatedSKUs = append(result.CreatedSKUs, *sku)
	}
	return result, nil
}

// validateBatchShape checks a batch purchase without touching storage
func validateBatchShape(cmd CreateBatchPurchaseCommand) []string {
	problems := make([]string, 0)
	if cmd.SupplierID == "" {
		problems = append(problems, "supplierId is required")
	}
	if cmd.LocationID == "" {
		problems = append(problems, "locationId is required")
	}
	if len(cmd.NewItems)+len(cmd.ExistingLines) == 0 {
		problems = append(problems, "at least one item is required")
	}
	codes := make(map[string]bool, len(cmd.NewItems))
	for i, n := range cmd.NewItems {
		if err := n.Item.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("newItems[%d]: %s", i, err))
		}
		if codes[n.Item.SKUCode] {
			problems = append(problems, fmt.Sprintf("newItems[%d]: duplicate skuCode %s", i, n.Item.SKUCode))
		}
		codes[n.Item.SKUCode] = true
		if n.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("newItems[%d]: quantity must be positive", i))
		}
		if n.UnitCost.IsNegative() {
			problems = append(problems, fmt.Sprintf("newItems[%d]: unitCost cannot be negative", i))
		}
		if len(n.SerialNumbers) > n.Quantity {
			problems = append(problems, fmt.Sprintf("newItems[%d]: more serial numbers than units", i))
		}
		if len(n.SerialNumbers) > 0 && !n.Item.TracksUnits {
			problems = append(problems, fmt.Sprintf("newItems[%d]: serial numbers need unit tracking", i))
		}
	}
	for i, l := range cmd.ExistingLines {
		if l.SKUID == "" {
			problems = append(problems, fmt.Sprintf("existingLines[%d]: skuId is required", i))
		}
		if l.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("existingLines[%d]: quantity must be positive", i))
		}
		if l.UnitCost.IsNegative() {
			problems = append(problems, fmt.Sprintf("existingLines[%d]: unitCost cannot be negative", i))
		}
	}
	return problems
}

// validateBatchReferences checks the location, SKU codes and existing SKUs against storage
func validateBatchReferences(ctx context.Context, repos domain.Repositories, cmd CreateBatchPurchaseCommand) ([]string, error) {
	problems := make([]string, 0)
	if cmd.LocationID != "" {
		if _, err := activeLocation(ctx, repos, cmd.LocationID); err != nil {
			if !errors.IsNotFound(err) {
				return nil, err
			}
			problems = append(problems, "location "+cmd.LocationID+" not found")
		}
	}
	for i, n := range cmd.NewItems {
		if n.Item.SKUCode == "" {
			continue
		}
		existing, err := repos.Catalog.FindSKUByCode(ctx, n.Item.SKUCode)
		if err != nil {
			return nil, fmt.Errorf("failed to check sku code: %w", err)
		}
		if existing != nil {
			problems = append(problems, fmt.Sprintf("newItems[%d]: skuCode %s already exists", i, n.Item.SKUCode))
		}
	}
	for i, l := range cmd.ExistingLines {
		if l.SKUID == "" {
			continue
		}
		if _, err := loadSKU(ctx, repos, l.SKUID); err != nil {
			if !errors.IsNotFound(err) {
				return nil, err
			}
			problems = append(problems, fmt.Sprintf("existingLines[%d]: sku %s not found", i, l.SKUID))
		}
	}
	return problems, nil
}

func (s *TransactionApplicationService) logPurchase(ctx context.Context, txn *domain.TransactionHeader) {
	s.metrics.RecordTransactionCreated(string(txn.TransactionType))
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "purchase.received",
		EntityType: "transaction",
		EntityID:   txn.ID,
		Action:     "received",
		RelatedIDs: map[string]string{"supplierId": txn.SupplierID, "locationId": txn.LocationID},
		Data: map[string]any{
			"transactionNumber": txn.TransactionNumber,
			"lineCount":         len(txn.ProductLines()),
			"totalAmount":       txn.TotalAmount.String(),
		},
	})
}

// GetTransaction retrieves a transaction by id or number
func (s *TransactionApplicationService) GetTransaction(ctx context.Context, query GetTransactionQuery) (*TransactionDTO, error) {
	var txn *domain.TransactionHeader
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if query.ID != "" {
			var err error
			txn, err = loadTransaction(ctx, repos, query.ID)
			return err
		}
		found, err := repos.Transactions.FindByNumber(ctx, query.Number)
		if err != nil {
			return fmt.Errorf("failed to get transaction: %w", err)
		}
		if found == nil || found.IsDeleted {
			return errors.ErrNotFound("transaction").WithDetail("transactionNumber", query.Number)
		}
		txn = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ToTransactionDTO(txn), nil
}

// ListTransactions returns one page of transactions
func (s *TransactionApplicationService) ListTransactions(ctx context.Context, query ListTransactionsQuery) (*TransactionListDTO, error) {
	if query.SortBy != "" && !transactionSortFields[query.SortBy] {
		return nil, errors.ErrValidation("unsupported sort field").WithDetail("sortBy", query.SortBy)
	}
	filter := domain.TransactionFilter{
		TransactionType: query.TransactionType,
		Status:          query.Status,
		PaymentStatus:   query.PaymentStatus,
		CustomerID:      query.CustomerID,
		LocationID:      query.LocationID,
		From:            query.From,
		To:              query.To,
		IncludeDeleted:  query.IncludeDeleted,
		SortField:       query.SortBy,
		SortDescending:  query.Descending,
		Offset:          query.Offset,
		Limit:           clampLimit(query.Limit),
	}

	var (
		txns  []*domain.TransactionHeader
		total int64
	)
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		txns, total, err = repos.Transactions.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &TransactionListDTO{Transactions: ToTransactionDTOs(txns), Total: total}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// CustomerHistory summarizes a customer's transactions and returns the most recent ones
func (s *TransactionApplicationService) CustomerHistory(ctx context.Context, query CustomerHistoryQuery) (*CustomerHistoryDTO, error) {
	var txns []*domain.TransactionHeader
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		customer, err := repos.Customers.GetCustomer(ctx, query.CustomerID)
		if err != nil {
			return fmt.Errorf("failed to get customer: %w", err)
		}
		if customer == nil {
			return errors.ErrNotFoundWithID("customer", query.CustomerID)
		}
		txns, _, err = repos.Transactions.List(ctx, domain.TransactionFilter{
			CustomerID:     query.CustomerID,
			SortField:      "transactionDate",
			SortDescending: true,
		})
		if err != nil {
			return fmt.Errorf("failed to list transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := domain.Now()
	summary := CustomerSummaryDTO{
		CustomerID:        query.CustomerID,
		CountByType:       make(map[string]int),
		TotalSpent:        domain.ZeroMoney(),
		TotalPaid:         domain.ZeroMoney(),
		TotalRefunded:     domain.ZeroMoney(),
		OutstandingAmount: domain.ZeroMoney(),
	}
	for _, t := range txns {
		summary.TransactionCount++
		summary.CountByType[string(t.TransactionType)]++
		summary.TotalPaid = summary.TotalPaid.Add(t.PaidAmount)
		summary.TotalRefunded = summary.TotalRefunded.Add(t.RefundedAmount)
		if t.Status != domain.TransactionCancelled {
			summary.TotalSpent = summary.TotalSpent.Add(t.TotalAmount)
			summary.OutstandingAmount = summary.OutstandingAmount.Add(t.BalanceDue())
		}
		if t.IsRental() && t.Status == domain.TransactionInProgress {
			summary.ActiveRentals++
		}
		if t.IsOverdue(now) {
			summary.OverdueRentals++
		}
		if summary.LastTransactionAt == nil || t.TransactionDate.After(*summary.LastTransactionAt) {
			date := t.TransactionDate
			summary.LastTransactionAt = &date
		}
	}

	recent := txns
	if limit := clampLimit(query.Limit); len(recent) > limit {
		recent = recent[:limit]
	}
	return &CustomerHistoryDTO{Summary: summary, Transactions: ToTransactionDTOs(recent)}, nil
}

// OverdueRentals lists in-progress rentals whose end date is before the as-of date
func (s *TransactionApplicationService) OverdueRentals(ctx context.Context, query OverdueRentalsQuery) ([]OverdueRentalDTO, error) {
	asOf := query.AsOf
	if asOf.IsZero() {
		asOf = domain.Now()
	}

	var txns []*domain.TransactionHeader
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		txns, err = repos.Transactions.FindOverdueRentals(ctx, asOf, query.LocationID)
		if err != nil {
			return fmt.Errorf("failed to find overdue rentals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	overdue := make([]OverdueRentalDTO, 0, len(txns))
	for _, t := range txns {
		if !t.IsOverdue(asOf) {
			continue
		}
		outstanding := 0
		for _, l := range t.ProductLines() {
			outstanding += l.RemainingQuantity()
		}
		overdue = append(overdue, OverdueRentalDTO{
			TransactionID:     t.ID,
			TransactionNumber: t.TransactionNumber,
			CustomerID:        t.CustomerID,
			LocationID:        t.LocationID,
			RentalEndDate:     *t.RentalEndDate,
			DaysOverdue:       domain.DaysLateAt(*t.RentalEndDate, asOf),
			OutstandingUnits:  outstanding,
		})
	}
	return overdue, nil
}

func (s *TransactionApplicationService) recordTransition(from domain.TransactionStatus, txn *domain.TransactionHeader) {
	if from != txn.Status {
		s.metrics.RecordStateTransition("transaction", string(from), string(txn.Status))
	}
}

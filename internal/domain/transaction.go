package domain

import (
	"fmt"
	"strings"
	"time"
)

// TransactionType distinguishes sales, rentals and supplier purchases
type TransactionType string

const (
	TransactionSale     TransactionType = "SALE"
	TransactionRental   TransactionType = "RENTAL"
	TransactionPurchase TransactionType = "PURCHASE"
)

// IsValid checks if the transaction type is known
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionSale, TransactionRental, TransactionPurchase:
		return true
	default:
		return false
	}
}

// NumberPrefix is the transaction number prefix for the type
func (t TransactionType) NumberPrefix() string {
	switch t {
	case TransactionRental:
		return "REN"
	case TransactionPurchase:
		return "PUR"
	default:
		return "SAL"
	}
}

// TransactionStatus is the header lifecycle status
type TransactionStatus string

const (
	TransactionDraft      TransactionStatus = "DRAFT"
	TransactionPending    TransactionStatus = "PENDING"
	TransactionConfirmed  TransactionStatus = "CONFIRMED"
	TransactionInProgress TransactionStatus = "IN_PROGRESS"
	TransactionCompleted  TransactionStatus = "COMPLETED"
	TransactionCancelled  TransactionStatus = "CANCELLED"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionDraft:      {TransactionPending, TransactionCancelled},
	TransactionPending:    {TransactionConfirmed, TransactionCancelled},
	TransactionConfirmed:  {TransactionInProgress, TransactionCancelled},
	TransactionInProgress: {TransactionCompleted, TransactionCancelled},
	TransactionCompleted:  {},
	TransactionCancelled:  {},
}

func (s TransactionStatus) String() string { return string(s) }

// IsValid checks if the status is known
func (s TransactionStatus) IsValid() bool {
	_, ok := transactionTransitions[s]
	return ok
}

// CanTransitionTo reports whether the table allows s -> to
func (s TransactionStatus) CanTransitionTo(to TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports COMPLETED and CANCELLED
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionCompleted || s == TransactionCancelled
}

// PaymentStatus tracks settlement of a transaction
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "PENDING"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid          PaymentStatus = "PAID"
	PaymentRefunded      PaymentStatus = "REFUNDED"
	PaymentCancelled     PaymentStatus = "CANCELLED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:       {PaymentPartiallyPaid, PaymentPaid, PaymentCancelled},
	PaymentPartiallyPaid: {PaymentPaid, PaymentRefunded},
	PaymentPaid:          {PaymentPartiallyPaid, PaymentRefunded},
	PaymentRefunded:      {},
	PaymentCancelled:     {},
}

func (s PaymentStatus) String() string { return string(s) }

// CanTransitionTo reports whether the table allows s -> to
func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PaymentMethod is how money changed hands
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "CASH"
	PaymentCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentDebitCard    PaymentMethod = "DEBIT_CARD"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentCheque       PaymentMethod = "CHEQUE"
	PaymentStoreCredit  PaymentMethod = "STORE_CREDIT"
)

// IsValid checks if the payment method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentBankTransfer, PaymentCheque, PaymentStoreCredit:
		return true
	default:
		return false
	}
}

// PaymentKind separates incoming payments from refunds in the payment history
type PaymentKind string

const (
	PaymentKindPayment PaymentKind = "PAYMENT"
	PaymentKindRefund  PaymentKind = "REFUND"
)

// Payment is one entry of the payment history
type Payment struct {
	ID         string        `bson:"id" json:"id"`
	Kind       PaymentKind   `bson:"kind" json:"kind"`
	Method     PaymentMethod `bson:"method" json:"method"`
	Amount     Money         `bson:"amount" json:"amount"`
	Reference  string        `bson:"reference,omitempty" json:"reference,omitempty"`
	Notes      string        `bson:"notes,omitempty" json:"notes,omitempty"`
	RecordedAt time.Time     `bson:"recordedAt" json:"recordedAt"`
	RecordedBy string        `bson:"recordedBy,omitempty" json:"recordedBy,omitempty"`
}

// TransactionHeader is the aggregate root for sales, rentals and purchases. Lines are embedded.
type TransactionHeader struct {
	ID                string             `bson:"_id" json:"id"`
	TransactionNumber string             `bson:"transactionNumber" json:"transactionNumber"`
	TransactionType   TransactionType    `bson:"transactionType" json:"transactionType"`
	Status            TransactionStatus  `bson:"status" json:"status"`
	PaymentStatus     PaymentStatus      `bson:"paymentStatus" json:"paymentStatus"`
	CustomerID        string             `bson:"customerId,omitempty" json:"customerId,omitempty"`
	SupplierID        string             `bson:"supplierId,omitempty" json:"supplierId,omitempty"`
	LocationID        string             `bson:"locationId" json:"locationId"`
	TransactionDate   time.Time          `bson:"transactionDate" json:"transactionDate"`
	RentalStartDate   *time.Time         `bson:"rentalStartDate,omitempty" json:"rentalStartDate,omitempty"`
	RentalEndDate     *time.Time         `bson:"rentalEndDate,omitempty" json:"rentalEndDate,omitempty"`
	DepositAmount     Money              `bson:"depositAmount" json:"depositAmount"`
	Subtotal          Money              `bson:"subtotal" json:"subtotal"`
	DiscountAmount    Money              `bson:"discountAmount" json:"discountAmount"`
	TaxAmount         Money              `bson:"taxAmount" json:"taxAmount"`
	TotalAmount       Money              `bson:"totalAmount" json:"totalAmount"`
	PaidAmount        Money              `bson:"paidAmount" json:"paidAmount"`
	RefundedAmount    Money              `bson:"refundedAmount" json:"refundedAmount"`
	Payments          []Payment          `bson:"payments" json:"payments"`
	Lines             []*TransactionLine `bson:"lines" json:"lines"`
	Notes             string             `bson:"notes,omitempty" json:"notes,omitempty"`
	InventoryReserved bool               `bson:"inventoryReserved" json:"inventoryReserved"`
	IsDeleted         bool               `bson:"isDeleted" json:"isDeleted"`
	DeletedAt         *time.Time         `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	Version           int64              `bson:"version" json:"version"`
	AuditInfo         `bson:",inline"`
	eventRecorder
}

// NewTransactionParams holds header fields supplied at creation
type NewTransactionParams struct {
	TransactionNumber string
	TransactionType   TransactionType
	CustomerID        string
	SupplierID        string
	LocationID        string
	TransactionDate   time.Time
	RentalStartDate   *time.Time
	RentalEndDate     *time.Time
	DepositAmount     Money
	Notes             string
	CreatedBy         string
}

// NewTransaction creates a DRAFT header with PENDING payment
func NewTransaction(p NewTransactionParams) (*TransactionHeader, error) {
	if strings.TrimSpace(p.TransactionNumber) == "" {
		return nil, NewValidationError("transactionNumber", "is required")
	}
	if !p.TransactionType.IsValid() {
		return nil, NewValidationError("transactionType", "must be SALE, RENTAL or PURCHASE")
	}
	if p.LocationID == "" {
		return nil, NewValidationError("locationId", "is required")
	}
	if p.TransactionType != TransactionPurchase && p.CustomerID == "" {
		return nil, NewValidationError("customerId", "is required")
	}
	if p.TransactionType == TransactionRental {
		if p.RentalStartDate == nil || p.RentalEndDate == nil {
			return nil, NewValidationError("rentalDates", "rental start and end dates are required")
		}
		if p.RentalEndDate.Before(*p.RentalStartDate) {
			return nil, NewValidationError("rentalEndDate", "must not be before the start date")
		}
	}
	if p.DepositAmount.IsNegative() {
		return nil, NewValidationError("depositAmount", "cannot be negative")
	}
	if p.TransactionDate.IsZero() {
		p.TransactionDate = Now()
	}

	return &TransactionHeader{
		ID:                NewID(),
		TransactionNumber: p.TransactionNumber,
		TransactionType:   p.TransactionType,
		Status:            TransactionDraft,
		PaymentStatus:     PaymentPending,
		CustomerID:        p.CustomerID,
		SupplierID:        p.SupplierID,
		LocationID:        p.LocationID,
		TransactionDate:   p.TransactionDate,
		RentalStartDate:   p.RentalStartDate,
		RentalEndDate:     p.RentalEndDate,
		DepositAmount:     p.DepositAmount,
		Payments:          make([]Payment, 0),
		Lines:             make([]*TransactionLine, 0),
		Notes:             p.Notes,
		AuditInfo:         NewAuditInfo(p.CreatedBy),
	}, nil
}

func (t *TransactionHeader) IsRental() bool   { return t.TransactionType == TransactionRental }
func (t *TransactionHeader) IsSale() bool     { return t.TransactionType == TransactionSale }
func (t *TransactionHeader) IsPurchase() bool { return t.TransactionType == TransactionPurchase }

// RentalDays is the inclusive rental period length
func (t *TransactionHeader) RentalDays() int {
	if t.RentalStartDate == nil || t.RentalEndDate == nil {
		return 0
	}
	return RentalDays(*t.RentalStartDate, *t.RentalEndDate)
}

// NextLineNumber returns the number for the next appended line
func (t *TransactionHeader) NextLineNumber() int {
	highest := 0
	for _, l := range t.Lines {
		if l.LineNumber > highest {
			highest = l.LineNumber
		}
	}
	return highest + 1
}

// AddLine appends a priced line and recalculates totals
func (t *TransactionHeader) AddLine(line *TransactionLine) error {
	for _, l := range t.Lines {
		if l.LineNumber == line.LineNumber {
			return NewLineValidationError(line.LineNumber, "lineNumber", "is already used")
		}
	}
	t.Lines = append(t.Lines, line)
	t.RecalculateTotals()
	return nil
}

// ApplyHeaderAdjustments adds a header DISCOUNT line and a TAX line computed on subtotal minus discount
func (t *TransactionHeader) ApplyHeaderAdjustments(discount Money, taxRate Percentage) error {
	if discount.IsNegative() {
		return NewValidationError("discountAmount", "cannot be negative")
	}
	if !taxRate.InRange() {
		return NewValidationError("taxRate", "must be between 0 and 100")
	}
	base := ZeroMoney()
	for _, l := range t.Lines {
		if l.LineType == LineProduct || l.LineType == LineExtension {
			base = base.Add(l.LineTotal)
		}
	}
	if discount.GreaterThan(base) {
		return NewValidationError("discountAmount", "exceeds the transaction subtotal")
	}
	if discount.IsPositive() {
		line, err := NewAdjustmentLine(t.NextLineNumber(), LineDiscount, "Header discount", discount)
		if err != nil {
			return err
		}
		if err := t.AddLine(line); err != nil {
			return err
		}
	}
	if !taxRate.IsZero() {
		tax := base.Sub(discount).Percent(taxRate.Decimal())
		line, err := NewAdjustmentLine(t.NextLineNumber(), LineTax, "Tax "+taxRate.String()+"%", tax)
		if err != nil {
			return err
		}
		line.TaxRate = taxRate
		if err := t.AddLine(line); err != nil {
			return err
		}
	}
	return nil
}

// RecalculateTotals derives subtotal, discount, tax and total from the lines
func (t *TransactionHeader) RecalculateTotals() {
	subtotal, discount, tax := ZeroMoney(), ZeroMoney(), ZeroMoney()
	for _, l := range t.Lines {
		switch l.LineType {
		case LineProduct, LineExtension:
			subtotal = subtotal.Add(l.Gross())
			discount = discount.Add(l.DiscountAmount)
			tax = tax.Add(l.TaxAmount)
		case LineDiscount:
			discount = discount.Add(l.LineTotal.Neg())
		case LineTax:
			tax = tax.Add(l.LineTotal)
		}
	}
	t.Subtotal = NewMoney(subtotal.Decimal())
	t.DiscountAmount = discount
	t.TaxAmount = tax
	t.TotalAmount = t.Subtotal.Sub(discount).Add(tax)
}

// LineByID finds a line by id
func (t *TransactionHeader) LineByID(id string) *TransactionLine {
	for _, l := range t.Lines {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// ProductLines returns the PRODUCT lines in order
func (t *TransactionHeader) ProductLines() []*TransactionLine {
	out := make([]*TransactionLine, 0, len(t.Lines))
	for _, l := range t.Lines {
		if l.LineType == LineProduct {
			out = append(out, l)
		}
	}
	return out
}

// AllLinesReturned is true when every product line is fully returned
func (t *TransactionHeader) AllLinesReturned() bool {
	for _, l := range t.ProductLines() {
		if !l.IsFullyReturned() {
			return false
		}
	}
	return true
}

// TransitionTo moves the header status according to the transition table
func (t *TransactionHeader) TransitionTo(to TransactionStatus, reason, by string) error {
	if !t.Status.CanTransitionTo(to) {
		return invalidTransition("transaction", t.ID, t.Status, to)
	}
	from := t.Status
	t.Status = to
	t.Touch(by)
	t.AddDomainEvent(&TransactionStatusChangedEvent{
		TransactionID:   t.ID,
		TransactionType: t.TransactionType,
		FromStatus:      from,
		ToStatus:        to,
		Reason:          reason,
		ChangedAt:       t.UpdatedAt,
	})
	return nil
}

// AdvanceTo walks the linear lifecycle path up to target, one legal step at a time
func (t *TransactionHeader) AdvanceTo(target TransactionStatus, reason, by string) error {
	path := []TransactionStatus{TransactionDraft, TransactionPending, TransactionConfirmed, TransactionInProgress, TransactionCompleted}
	idx := func(s TransactionStatus) int {
		for i, p := range path {
			if p == s {
				return i
			}
		}
		return -1
	}
	from, to := idx(t.Status), idx(target)
	if from < 0 || to < 0 || to < from {
		return invalidTransition("transaction", t.ID, t.Status, target)
	}
	for i := from + 1; i <= to; i++ {
		if err := t.TransitionTo(path[i], reason, by); err != nil {
			return err
		}
	}
	return nil
}

func (t *TransactionHeader) setPaymentStatus(to PaymentStatus) error {
	if t.PaymentStatus == to {
		return nil
	}
	if !t.PaymentStatus.CanTransitionTo(to) {
		return invalidTransition("payment", t.ID, t.PaymentStatus, to)
	}
	t.PaymentStatus = to
	return nil
}

// BalanceDue is what remains to be paid, never negative
func (t *TransactionHeader) BalanceDue() Money {
	return t.TotalAmount.Sub(t.PaidAmount).NonNegative()
}

// RecordPayment accumulates a payment and derives the payment status
func (t *TransactionHeader) RecordPayment(amount Money, method PaymentMethod, reference, by string) error {
	if !amount.IsPositive() {
		return NewValidationError("amount", "must be positive")
	}
	if !method.IsValid() {
		return NewValidationError("method", "unknown payment method")
	}
	if t.Status.IsTerminal() {
		return invalidTransition("payment", t.ID, t.Status, PaymentPaid)
	}

	paid := t.PaidAmount.Add(amount)
	next := PaymentPartiallyPaid
	if paid.GreaterThanOrEqual(t.TotalAmount) {
		next = PaymentPaid
	}
	if err := t.setPaymentStatus(next); err != nil {
		return err
	}
	t.PaidAmount = paid
	now := Now()
	t.Payments = append(t.Payments, Payment{
		ID:         NewID(),
		Kind:       PaymentKindPayment,
		Method:     method,
		Amount:     amount,
		Reference:  reference,
		RecordedAt: now,
		RecordedBy: by,
	})
	t.Touch(by)
	t.AddDomainEvent(&PaymentRecordedEvent{
		TransactionID: t.ID,
		Amount:        amount,
		Method:        method,
		Reference:     reference,
		PaidAmount:    t.PaidAmount,
		PaymentStatus: t.PaymentStatus,
		RecordedAt:    now,
	})
	return nil
}

// SatisfiesConfirmationPolicy is true once fully paid, or for rentals once the deposit is covered
func (t *TransactionHeader) SatisfiesConfirmationPolicy() bool {
	if t.PaymentStatus == PaymentPaid {
		return true
	}
	return t.IsRental() && t.DepositAmount.IsPositive() && t.PaidAmount.GreaterThanOrEqual(t.DepositAmount)
}

// ConfirmIfPaid moves a DRAFT or PENDING header to CONFIRMED when the payment policy is met
func (t *TransactionHeader) ConfirmIfPaid(by string) (bool, error) {
	if t.Status != TransactionDraft && t.Status != TransactionPending {
		return false, nil
	}
	if !t.SatisfiesConfirmationPolicy() {
		return false, nil
	}
	if err := t.AdvanceTo(TransactionConfirmed, "payment received", by); err != nil {
		return false, err
	}
	return true, nil
}

// Refund returns money on a completed transaction
func (t *TransactionHeader) Refund(amount Money, method PaymentMethod, reason, by string) error {
	if t.Status != TransactionCompleted {
		return invalidTransition("transaction", t.ID, t.Status, PaymentRefunded)
	}
	if !amount.IsPositive() {
		return NewValidationError("amount", "must be positive")
	}
	refundable := t.PaidAmount.Sub(t.RefundedAmount)
	if amount.GreaterThan(refundable) {
		return NewValidationError("amount", fmt.Sprintf("refund %s exceeds refundable amount %s", amount, refundable))
	}
	if method == "" {
		method = PaymentCash
	}
	refunded := t.RefundedAmount.Add(amount)
	if refunded.Equal(t.PaidAmount) {
		if err := t.setPaymentStatus(PaymentRefunded); err != nil {
			return err
		}
	}
	t.RefundedAmount = refunded
	now := Now()
	t.Payments = append(t.Payments, Payment{
		ID:         NewID(),
		Kind:       PaymentKindRefund,
		Method:     method,
		Amount:     amount,
		Notes:      reason,
		RecordedAt: now,
		RecordedBy: by,
	})
	t.Touch(by)
	t.AddDomainEvent(&TransactionRefundedEvent{
		TransactionID:  t.ID,
		Amount:         amount,
		RefundedAmount: t.RefundedAmount,
		PaymentStatus:  t.PaymentStatus,
		Reason:         reason,
		RefundedAt:     now,
	})
	return nil
}

// Cancel moves the header to CANCELLED. Anything paid is marked refunded.
func (t *TransactionHeader) Cancel(reason, by string) error {
	if err := t.TransitionTo(TransactionCancelled, reason, by); err != nil {
		return err
	}
	if t.PaidAmount.IsPositive() {
		t.RefundedAmount = t.PaidAmount
		return t.setPaymentStatus(PaymentRefunded)
	}
	return t.setPaymentStatus(PaymentCancelled)
}

// SoftDelete hides the transaction. Only DRAFT, PENDING and CANCELLED transactions can be deleted.
func (t *TransactionHeader) SoftDelete(by string) error {
	switch t.Status {
	case TransactionDraft, TransactionPending, TransactionCancelled:
	default:
		return &InvalidStateTransitionError{Entity: "transaction", ID: t.ID, From: t.Status.String(), To: "DELETED"}
	}
	if t.IsDeleted {
		return nil
	}
	now := Now()
	t.IsDeleted = true
	t.DeletedAt = &now
	t.IsActive = false
	t.Touch(by)
	t.AddDomainEvent(&TransactionDeletedEvent{TransactionID: t.ID, DeletedAt: now})
	return nil
}

// TransactionUpdate carries optional header edits
type TransactionUpdate struct {
	Notes           *string
	CustomerID      *string
	RentalStartDate *time.Time
	RentalEndDate   *time.Time
}

// Update applies header edits while the transaction is DRAFT or PENDING
func (t *TransactionHeader) Update(u TransactionUpdate, by string) error {
	if t.Status != TransactionDraft && t.Status != TransactionPending {
		return fmt.Errorf("transaction %s is %s: %w", t.ID, t.Status, ErrNotEditable)
	}
	fields := make([]string, 0, 4)
	if u.Notes != nil {
		t.Notes = *u.Notes
		fields = append(fields, "notes")
	}
	if u.CustomerID != nil {
		if *u.CustomerID == "" && !t.IsPurchase() {
			return NewValidationError("customerId", "cannot be cleared")
		}
		t.CustomerID = *u.CustomerID
		fields = append(fields, "customerId")
	}
	if u.RentalStartDate != nil || u.RentalEndDate != nil {
		if !t.IsRental() {
			return NewValidationError("rentalDates", "only rentals carry rental dates")
		}
		start, end := *t.RentalStartDate, *t.RentalEndDate
		if u.RentalStartDate != nil {
			start = *u.RentalStartDate
		}
		if u.RentalEndDate != nil {
			end = *u.RentalEndDate
		}
		if end.Before(start) {
			return NewValidationError("rentalEndDate", "must not be before the start date")
		}
		t.RentalStartDate, t.RentalEndDate = &start, &end
		for _, l := range t.ProductLines() {
			s, e := start, end
			l.RentalStartDate, l.RentalEndDate = &s, &e
			l.RentalDays = RentalDays(start, end)
		}
		t.repriceRentalLines()
		fields = append(fields, "rentalDates")
	}
	if len(fields) == 0 {
		return nil
	}
	t.Touch(by)
	t.AddDomainEvent(&TransactionUpdatedEvent{TransactionID: t.ID, Fields: fields, UpdatedAt: t.UpdatedAt})
	return nil
}

// repriceRentalLines recomputes day-rated product lines and header tax after a date change
func (t *TransactionHeader) repriceRentalLines() {
	for _, l := range t.ProductLines() {
		if l.DailyRate.IsPositive() && l.RentalDays > 0 {
			l.UnitPrice = l.DailyRate.MulInt(l.RentalDays)
			l.Calculate()
		}
	}
	base := ZeroMoney()
	for _, l := range t.Lines {
		// discount lines carry negative totals
		if l.LineType == LineProduct || l.LineType == LineExtension || l.LineType == LineDiscount {
			base = base.Add(l.LineTotal)
		}
	}
	for _, l := range t.Lines {
		if l.LineType == LineTax && !l.TaxRate.IsZero() {
			l.UnitPrice = base.Percent(l.TaxRate.Decimal())
			l.Calculate()
		}
	}
	t.RecalculateTotals()
}

// ExtendRental moves the rental end date and charges the extra days on every
// product line that still has units out. Inventory is not touched.
func (t *TransactionHeader) ExtendRental(newEnd time.Time, by string) (Money, error) {
	if !t.IsRental() {
		return Money{}, NewValidationError("transactionType", "only rentals can be extended")
	}
	if t.Status != TransactionConfirmed && t.Status != TransactionInProgress {
		return Money{}, invalidTransition("transaction", t.ID, t.Status, TransactionInProgress)
	}
	if t.RentalEndDate == nil || !truncateToDay(newEnd).After(truncateToDay(*t.RentalEndDate)) {
		return Money{}, NewValidationError("newEndDate", "must be after the current rental end date")
	}

	previous := *t.RentalEndDate
	extraDays := DaysBetween(previous, newEnd)
	charge := ZeroMoney()
	for _, l := range t.ProductLines() {
		if outstanding := l.RemainingQuantity(); outstanding > 0 && l.DailyRate.IsPositive() {
			charge = charge.Add(l.DailyRate.MulInt(extraDays * outstanding))
		}
		end := newEnd
		l.RentalEndDate = &end
		if l.RentalStartDate != nil {
			l.RentalDays = RentalDays(*l.RentalStartDate, end)
		}
	}
	charge = NewMoney(charge.Decimal())

	if charge.IsPositive() {
		desc := fmt.Sprintf("Rental extension %s to %s (%d days)",
			previous.Format("2006-01-02"), newEnd.Format("2006-01-02"), extraDays)
		line, err := NewAdjustmentLine(t.NextLineNumber(), LineExtension, desc, charge)
		if err != nil {
			return Money{}, err
		}
		if err := t.AddLine(line); err != nil {
			return Money{}, err
		}
		// the larger total reopens the balance
		if t.PaymentStatus == PaymentPaid {
			if err := t.setPaymentStatus(PaymentPartiallyPaid); err != nil {
				return Money{}, err
			}
		}
	}
	t.RentalEndDate = &newEnd
	t.Touch(by)
	t.AddDomainEvent(&RentalExtendedEvent{
		TransactionID:   t.ID,
		PreviousEndDate: previous,
		NewEndDate:      newEnd,
		ExtraDays:       extraDays,
		ExtensionCharge: charge,
		ExtendedAt:      t.UpdatedAt,
	})
	return charge, nil
}

// MarkInventoryReserved records that stock and units are held for this transaction
func (t *TransactionHeader) MarkInventoryReserved(by string) {
	t.InventoryReserved = true
	t.Touch(by)
}

// ReleaseInventoryHold clears the reservation flag once held stock went back
func (t *TransactionHeader) ReleaseInventoryHold(by string) {
	t.InventoryReserved = false
	t.Touch(by)
}

// IsOverdue reports an in-progress rental whose end date is before asOf
func (t *TransactionHeader) IsOverdue(asOf time.Time) bool {
	return t.IsRental() && t.Status == TransactionInProgress && t.RentalEndDate != nil &&
		truncateToDay(*t.RentalEndDate).Before(truncateToDay(asOf))
}

// MarkCreated queues the creation event once lines and totals are final
func (t *TransactionHeader) MarkCreated() {
	t.AddDomainEvent(&TransactionCreatedEvent{
		TransactionID:     t.ID,
		TransactionNumber: t.TransactionNumber,
		TransactionType:   t.TransactionType,
		Status:            t.Status,
		CustomerID:        t.CustomerID,
		LocationID:        t.LocationID,
		TotalAmount:       t.TotalAmount,
		LineCount:         len(t.Lines),
		CreatedAt:         t.CreatedAt,
	})
}

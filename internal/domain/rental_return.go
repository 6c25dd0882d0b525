package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ReturnType tells whether a return covers everything still out
type ReturnType string

const (
	ReturnFull    ReturnType = "FULL"
	ReturnPartial ReturnType = "PARTIAL"
)

// ReturnStatus is the rental return lifecycle status
type ReturnStatus string

const (
	ReturnInitiated          ReturnStatus = "INITIATED"
	ReturnInInspection       ReturnStatus = "IN_INSPECTION"
	ReturnPartiallyCompleted ReturnStatus = "PARTIALLY_COMPLETED"
	ReturnCompleted          ReturnStatus = "COMPLETED"
)

var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnInitiated:          {ReturnInInspection},
	ReturnInInspection:       {ReturnPartiallyCompleted, ReturnCompleted},
	ReturnPartiallyCompleted: {ReturnInInspection, ReturnCompleted},
	ReturnCompleted:          {},
}

func (s ReturnStatus) String() string { return string(s) }

// CanTransitionTo reports whether the table allows s -> to
func (s ReturnStatus) CanTransitionTo(to ReturnStatus) bool {
	for _, allowed := range returnTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsOpen is true until the return is completed
func (s ReturnStatus) IsOpen() bool {
	return s != ReturnCompleted
}

// RentalReturnLine is one returned line or unit of a rental
type RentalReturnLine struct {
	ID                string         `bson:"id" json:"id"`
	ReturnID          string         `bson:"returnId" json:"returnId"`
	TransactionLineID string         `bson:"transactionLineId" json:"transactionLineId"`
	InventoryUnitID   string         `bson:"inventoryUnitId,omitempty" json:"inventoryUnitId,omitempty"`
	ReturnedUnitIDs   []string       `bson:"returnedUnitIds,omitempty" json:"returnedUnitIds,omitempty"`
	OriginalQuantity  int            `bson:"originalQuantity" json:"originalQuantity"`
	ReturnedQuantity  int            `bson:"returnedQuantity" json:"returnedQuantity"`
	DamagedQuantity   int            `bson:"damagedQuantity" json:"damagedQuantity"`
	ConditionGrade    ConditionGrade `bson:"conditionGrade" json:"conditionGrade"`
	LateFee           Money          `bson:"lateFee" json:"lateFee"`
	DamageFee         Money          `bson:"damageFee" json:"damageFee"`
	CleaningFee       Money          `bson:"cleaningFee" json:"cleaningFee"`
	ReplacementFee    Money          `bson:"replacementFee" json:"replacementFee"`
	IsProcessed       bool           `bson:"isProcessed" json:"isProcessed"`
	ProcessedAt       *time.Time     `bson:"processedAt,omitempty" json:"processedAt,omitempty"`
	ProcessedBy       string         `bson:"processedBy,omitempty" json:"processedBy,omitempty"`
	Notes             string         `bson:"notes,omitempty" json:"notes,omitempty"`
	UpdatedBy         string         `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
}

// NewRentalReturnLine creates a line expecting quantity units back
func NewRentalReturnLine(returnID, transactionLineID, unitID string, quantity int) (*RentalReturnLine, error) {
	if transactionLineID == "" {
		return nil, NewValidationError("transactionLineId", "is required")
	}
	if quantity <= 0 {
		return nil, NewValidationError("quantity", "must be positive")
	}
	if unitID != "" && quantity != 1 {
		return nil, NewValidationError("quantity", "a unit-level return line covers exactly one unit")
	}
	return &RentalReturnLine{
		ID:                NewID(),
		ReturnID:          returnID,
		TransactionLineID: transactionLineID,
		InventoryUnitID:   unitID,
		OriginalQuantity:  quantity,
		ConditionGrade:    GradeA,
	}, nil
}

// RemainingQuantity is what this line still expects back
func (l *RentalReturnLine) RemainingQuantity() int {
	return l.OriginalQuantity - l.ReturnedQuantity
}

// SetReturnedQuantity sets the absolute returned quantity. The line is unchanged on error.
func (l *RentalReturnLine) SetReturnedQuantity(q int, by string) error {
	if q < 0 {
		return NewValidationError("returnedQuantity", "cannot be negative")
	}
	if q > l.OriginalQuantity {
		return NewValidationError("returnedQuantity",
			fmt.Sprintf("returned quantity %d exceeds original quantity %d", q, l.OriginalQuantity))
	}
	l.ReturnedQuantity = q
	l.UpdatedBy = by
	return nil
}

// RecordReturned adds q units returned in this session
func (l *RentalReturnLine) RecordReturned(q int, by string) error {
	if q < 0 {
		return NewValidationError("quantity", "cannot be negative")
	}
	if q > l.RemainingQuantity() {
		return NewValidationError("quantity",
			fmt.Sprintf("return of %d exceeds remaining quantity %d", q, l.RemainingQuantity()))
	}
	return l.SetReturnedQuantity(l.ReturnedQuantity+q, by)
}

// RecordReceipt notes the tracked units and the quantity taken back into stock on this line.
// damaged is true when they went to the damaged bucket.
func (l *RentalReturnLine) RecordReceipt(unitIDs []string, q int, damaged bool) {
	for _, id := range unitIDs {
		if !slices.Contains(l.ReturnedUnitIDs, id) {
			l.ReturnedUnitIDs = append(l.ReturnedUnitIDs, id)
		}
	}
	if damaged {
		l.RecordDamaged(q)
	}
}

// RecordDamaged counts q returned units moved to the damaged bucket
func (l *RentalReturnLine) RecordDamaged(q int) {
	l.DamagedQuantity = min(l.DamagedQuantity+q, l.ReturnedQuantity)
}

// UndamagedQuantity is what came back on this line and still sits in available stock
func (l *RentalReturnLine) UndamagedQuantity() int {
	return l.ReturnedQuantity - l.DamagedQuantity
}

// UpdateCondition grades the returned goods
func (l *RentalReturnLine) UpdateCondition(grade ConditionGrade, notes, by string) error {
	if !grade.IsValid() {
		return NewValidationError("conditionGrade", "must be one of A, B, C, D")
	}
	l.ConditionGrade = grade
	if notes != "" {
		l.Notes = notes
	}
	l.UpdatedBy = by
	return nil
}

func (l *RentalReturnLine) setFee(field string, target *Money, fee Money, by string) error {
	if fee.IsNegative() {
		return NewValidationError(field, "cannot be negative")
	}
	*target = fee
	l.UpdatedBy = by
	return nil
}

func (l *RentalReturnLine) SetLateFee(fee Money, by string) error {
	return l.setFee("lateFee", &l.LateFee, fee, by)
}

func (l *RentalReturnLine) SetDamageFee(fee Money, by string) error {
	return l.setFee("damageFee", &l.DamageFee, fee, by)
}

func (l *RentalReturnLine) SetCleaningFee(fee Money, by string) error {
	return l.setFee("cleaningFee", &l.CleaningFee, fee, by)
}

func (l *RentalReturnLine) SetReplacementFee(fee Money, by string) error {
	return l.setFee("replacementFee", &l.ReplacementFee, fee, by)
}

// TotalFees sums all fees on the line
func (l *RentalReturnLine) TotalFees() Money {
	return SumMoney(l.LateFee, l.DamageFee, l.CleaningFee, l.ReplacementFee)
}

// MarkProcessed flags the line as done
func (l *RentalReturnLine) MarkProcessed(by string) {
	now := Now()
	l.IsProcessed = true
	l.ProcessedAt = &now
	l.ProcessedBy = by
}

// IsDamaged reports a grade D return
func (l *RentalReturnLine) IsDamaged() bool {
	return l.ConditionGrade == GradeD
}

// RentalReturn is the aggregate root for returning rented goods. Lines are embedded.
type RentalReturn struct {
	ID                    string              `bson:"_id" json:"id"`
	RentalTransactionID   string              `bson:"rentalTransactionId" json:"rentalTransactionId"`
	ReturnDate            time.Time           `bson:"returnDate" json:"returnDate"`
	ExpectedReturnDate    time.Time           `bson:"expectedReturnDate" json:"expectedReturnDate"`
	ReturnType            ReturnType          `bson:"returnType" json:"returnType"`
	ReturnStatus          ReturnStatus        `bson:"returnStatus" json:"returnStatus"`
	TotalLateFee          Money               `bson:"totalLateFee" json:"totalLateFee"`
	TotalDamageFee        Money               `bson:"totalDamageFee" json:"totalDamageFee"`
	TotalCleaningFee      Money               `bson:"totalCleaningFee" json:"totalCleaningFee"`
	TotalReplacementFee   Money               `bson:"totalReplacementFee" json:"totalReplacementFee"`
	DepositReleased       bool                `bson:"depositReleased" json:"depositReleased"`
	DepositReleaseAmount  Money               `bson:"depositReleaseAmount" json:"depositReleaseAmount"`
	DepositWithheldAmount Money               `bson:"depositWithheldAmount" json:"depositWithheldAmount"`
	DepositReleaseDate    *time.Time          `bson:"depositReleaseDate,omitempty" json:"depositReleaseDate,omitempty"`
	DepositReversalReason string              `bson:"depositReversalReason,omitempty" json:"depositReversalReason,omitempty"`
	DepositReversedBy     string              `bson:"depositReversedBy,omitempty" json:"depositReversedBy,omitempty"`
	DepositReversedAt     *time.Time          `bson:"depositReversedAt,omitempty" json:"depositReversedAt,omitempty"`
	ProcessedBy           string              `bson:"processedBy,omitempty" json:"processedBy,omitempty"`
	FinalizedBy           string              `bson:"finalizedBy,omitempty" json:"finalizedBy,omitempty"`
	FinalizedAt           *time.Time          `bson:"finalizedAt,omitempty" json:"finalizedAt,omitempty"`
	Notes                 string              `bson:"notes,omitempty" json:"notes,omitempty"`
	Lines                 []*RentalReturnLine `bson:"lines" json:"lines"`
	Version               int64               `bson:"version" json:"version"`
	AuditInfo             `bson:",inline"`
	eventRecorder
}

// NewRentalReturnParams holds the fields of a new return
type NewRentalReturnParams struct {
	RentalTransactionID string
	ReturnDate          time.Time
	ExpectedReturnDate  time.Time
	ProcessedBy         string
	Notes               string
}

// NewRentalReturn opens an INITIATED return
func NewRentalReturn(p NewRentalReturnParams) (*RentalReturn, error) {
	if p.RentalTransactionID == "" {
		return nil, NewValidationError("rentalTransactionId", "is required")
	}
	if p.ReturnDate.IsZero() {
		p.ReturnDate = Now()
	}
	if p.ExpectedReturnDate.IsZero() {
		return nil, NewValidationError("expectedReturnDate", "is required")
	}
	return &RentalReturn{
		ID:                  NewID(),
		RentalTransactionID: p.RentalTransactionID,
		ReturnDate:          p.ReturnDate,
		ExpectedReturnDate:  p.ExpectedReturnDate,
		ReturnType:          ReturnPartial,
		ReturnStatus:        ReturnInitiated,
		ProcessedBy:         p.ProcessedBy,
		Notes:               strings.TrimSpace(p.Notes),
		Lines:               make([]*RentalReturnLine, 0),
		AuditInfo:           NewAuditInfo(p.ProcessedBy),
	}, nil
}

// AddLine attaches a line while the return is INITIATED
func (r *RentalReturn) AddLine(line *RentalReturnLine) error {
	if r.ReturnStatus != ReturnInitiated {
		return fmt.Errorf("return %s is %s: %w", r.ID, r.ReturnStatus, ErrNotEditable)
	}
	for _, l := range r.Lines {
		if line.InventoryUnitID != "" && l.InventoryUnitID == line.InventoryUnitID {
			return NewValidationError("inventoryUnitId", "unit "+line.InventoryUnitID+" is already on this return")
		}
	}
	line.ReturnID = r.ID
	r.Lines = append(r.Lines, line)
	return nil
}

// LineByID finds a return line
func (r *RentalReturn) LineByID(id string) *RentalReturnLine {
	for _, l := range r.Lines {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// PendingQuantity is the quantity this return still expects for a transaction line
func (r *RentalReturn) PendingQuantity(transactionLineID string) int {
	if !r.ReturnStatus.IsOpen() {
		return 0
	}
	total := 0
	for _, l := range r.Lines {
		if l.TransactionLineID == transactionLineID {
			total += l.RemainingQuantity()
		}
	}
	return total
}

// TransitionTo moves the return status according to the transition table
func (r *RentalReturn) TransitionTo(to ReturnStatus, by string) error {
	if r.ReturnStatus == to {
		return nil
	}
	if !r.ReturnStatus.CanTransitionTo(to) {
		return invalidTransition("rental return", r.ID, r.ReturnStatus, to)
	}
	r.ReturnStatus = to
	r.Touch(by)
	return nil
}

// BeginInspection moves an INITIATED or PARTIALLY_COMPLETED return into inspection
func (r *RentalReturn) BeginInspection(by string) error {
	if r.ReturnStatus == ReturnInInspection {
		return nil
	}
	return r.TransitionTo(ReturnInInspection, by)
}

// DaysLate is max(0, return date - expected date) in whole days
func (r *RentalReturn) DaysLate() int {
	return DaysLateAt(r.ExpectedReturnDate, r.ReturnDate)
}

// IsLate reports a return after the expected date
func (r *RentalReturn) IsLate() bool {
	return r.DaysLate() > 0
}

// DaysLateAt is max(0, at - expected) in whole days
func DaysLateAt(expected, at time.Time) int {
	if d := DaysBetween(expected, at); d > 0 {
		return d
	}
	return 0
}

// ApplyLateFees stores a computed late fee split on the lines and the header
func (r *RentalReturn) ApplyLateFees(result LateFeeResult, by string) error {
	if r.ReturnStatus == ReturnCompleted {
		return fmt.Errorf("return %s is finalized: %w", r.ID, ErrNotEditable)
	}
	if len(result.PerLine) != len(r.Lines) {
		return NewValidationError("lateFees", "fee split does not match the return lines")
	}
	for i, l := range r.Lines {
		if err := l.SetLateFee(result.PerLine[i], by); err != nil {
			return err
		}
	}
	r.RecalculateTotals()
	r.Touch(by)
	return nil
}

// RecalculateTotals sums the line fees into the header
func (r *RentalReturn) RecalculateTotals() {
	late, damage, cleaning, replacement := ZeroMoney(), ZeroMoney(), ZeroMoney(), ZeroMoney()
	for _, l := range r.Lines {
		late = late.Add(l.LateFee)
		damage = damage.Add(l.DamageFee)
		cleaning = cleaning.Add(l.CleaningFee)
		replacement = replacement.Add(l.ReplacementFee)
	}
	r.TotalLateFee = late
	r.TotalDamageFee = damage
	r.TotalCleaningFee = cleaning
	r.TotalReplacementFee = replacement
}

// TotalFees sums every fee category
func (r *RentalReturn) TotalFees() Money {
	return SumMoney(r.TotalLateFee, r.TotalDamageFee, r.TotalCleaningFee, r.TotalReplacementFee)
}

// AllLinesProcessed reports whether every line is done
func (r *RentalReturn) AllLinesProcessed() bool {
	for _, l := range r.Lines {
		if !l.IsProcessed {
			return false
		}
	}
	return len(r.Lines) > 0
}

// FinalizationBlockers lists the reasons the return cannot be finalized without force
func (r *RentalReturn) FinalizationBlockers() []string {
	var reasons []string
	if r.ReturnStatus == ReturnCompleted {
		return append(reasons, "return is already completed")
	}
	for _, l := range r.Lines {
		if !l.IsProcessed {
			reasons = append(reasons, fmt.Sprintf("line %s has %d of %d units outstanding",
				l.ID, l.RemainingQuantity(), l.OriginalQuantity))
		}
	}
	return reasons
}

// Finalize completes the return and freezes the fee totals
func (r *RentalReturn) Finalize(force bool, by string) error {
	if r.ReturnStatus == ReturnCompleted {
		return invalidTransition("rental return", r.ID, r.ReturnStatus, ReturnCompleted)
	}
	if !force && !r.AllLinesProcessed() {
		return NewValidationError("lines", strings.Join(r.FinalizationBlockers(), "; "))
	}
	if r.ReturnStatus == ReturnInitiated {
		if err := r.TransitionTo(ReturnInInspection, by); err != nil {
			return err
		}
	}
	if err := r.TransitionTo(ReturnCompleted, by); err != nil {
		return err
	}
	for _, l := range r.Lines {
		if !l.IsProcessed {
			l.MarkProcessed(by)
		}
	}
	r.RecalculateTotals()
	now := Now()
	r.FinalizedBy = by
	r.FinalizedAt = &now
	r.AddDomainEvent(&ReturnFinalizedEvent{
		ReturnID:            r.ID,
		TransactionID:       r.RentalTransactionID,
		TotalLateFee:        r.TotalLateFee,
		TotalDamageFee:      r.TotalDamageFee,
		TotalCleaningFee:    r.TotalCleaningFee,
		TotalReplacementFee: r.TotalReplacementFee,
		Forced:              force,
		FinalizedAt:         now,
	})
	return nil
}

// CanReleaseDeposit reports whether a deposit release is allowed now
func (r *RentalReturn) CanReleaseDeposit() bool {
	return r.ReturnStatus == ReturnCompleted && !r.DepositReleased
}

// ReleaseDeposit settles deposit against the return fees
func (r *RentalReturn) ReleaseDeposit(deposit Money, by string) (DepositSplit, error) {
	if r.DepositReleased {
		return DepositSplit{}, ErrDepositAlreadyReleased
	}
	if r.ReturnStatus != ReturnCompleted {
		return DepositSplit{}, &InvalidStateTransitionError{
			Entity: "rental return", ID: r.ID, From: r.ReturnStatus.String(), To: "DEPOSIT_RELEASED",
		}
	}
	if deposit.IsNegative() {
		return DepositSplit{}, NewValidationError("deposit", "cannot be negative")
	}

	split := CalculateDepositSplit(deposit, r.TotalFees())
	now := Now()
	r.DepositReleased = true
	r.DepositReleaseAmount = split.ReleaseAmount
	r.DepositWithheldAmount = split.WithheldAmount
	r.DepositReleaseDate = &now
	r.Touch(by)
	r.AddDomainEvent(&DepositReleasedEvent{
		ReturnID:        r.ID,
		TransactionID:   r.RentalTransactionID,
		OriginalDeposit: deposit,
		ReleaseAmount:   split.ReleaseAmount,
		WithheldAmount:  split.WithheldAmount,
		ReleasedAt:      now,
	})
	return split, nil
}

// ReverseDepositRelease undoes a release with an audited reason
func (r *RentalReturn) ReverseDepositRelease(reason, by string) error {
	if !r.DepositReleased {
		return ErrDepositNotReleased
	}
	if strings.TrimSpace(reason) == "" {
		return NewValidationError("reason", "is required")
	}
	reversed := r.DepositReleaseAmount
	now := Now()
	r.DepositReleased = false
	r.DepositReleaseAmount = ZeroMoney()
	r.DepositWithheldAmount = ZeroMoney()
	r.DepositReleaseDate = nil
	r.DepositReversalReason = strings.TrimSpace(reason)
	r.DepositReversedBy = by
	r.DepositReversedAt = &now
	r.Touch(by)
	r.AddDomainEvent(&DepositReleaseReversedEvent{
		ReturnID:       r.ID,
		TransactionID:  r.RentalTransactionID,
		ReversedAmount: reversed,
		Reason:         r.DepositReversalReason,
		ReversedAt:     now,
	})
	return nil
}

// MarkInitiated queues the initiation event once lines are attached
func (r *RentalReturn) MarkInitiated() {
	r.AddDomainEvent(&ReturnInitiatedEvent{
		ReturnID:      r.ID,
		TransactionID: r.RentalTransactionID,
		ReturnType:    r.ReturnType,
		LineCount:     len(r.Lines),
		InitiatedAt:   r.CreatedAt,
	})
}

// MarkProcessed queues the processing event for quantity returned in a session
func (r *RentalReturn) MarkProcessed(quantity int) {
	r.AddDomainEvent(&ReturnProcessedEvent{
		ReturnID:         r.ID,
		TransactionID:    r.RentalTransactionID,
		QuantityReturned: quantity,
		Status:           r.ReturnStatus,
		ProcessedAt:      Now(),
	})
}

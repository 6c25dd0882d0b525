package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
)

// ReturnApplicationService handles the return of rented goods
type ReturnApplicationService struct {
	exec    *Executor
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewReturnApplicationService creates a new ReturnApplicationService
func NewReturnApplicationService(exec *Executor, m *metrics.Metrics, logger *logging.Logger) *ReturnApplicationService {
	return &ReturnApplicationService{
		exec:    exec,
		metrics: m,
		logger:  logger.WithComponent("return-service"),
	}
}

// InitiateReturn opens a return against an in-progress rental
func (s *ReturnApplicationService) InitiateReturn(ctx context.Context, cmd InitiateReturnCommand) (*RentalReturnDTO, error) {
	var ret *domain.RentalReturn
	err := s.exec.Run(ctx, "initiate_return", func(ctx context.Context, repos domain.Repositories) error {
		txn, err := loadRental(ctx, repos, cmd.TransactionID)
		if err != nil {
			return err
		}
		if ret, err = s.initiate(ctx, repos, txn, cmd); err != nil {
			return err
		}
		if err := repos.Returns.Save(ctx, ret); err != nil {
			return fmt.Errorf("failed to save rental return: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "return.initiated",
		EntityType: "rental_return",
		EntityID:   ret.ID,
		Action:     "initiated",
		RelatedIDs: map[string]string{"transactionId": ret.RentalTransactionID},
		Data:       map[string]any{"returnType": string(ret.ReturnType), "lineCount": len(ret.Lines), "daysLate": ret.DaysLate()},
	})
	return ToRentalReturnDTO(ret), nil
}

func (s *ReturnApplicationService) initiate(ctx context.Context, repos domain.Repositories, txn *domain.TransactionHeader, cmd InitiateReturnCommand) (*domain.RentalReturn, error) {
	if txn.Status != domain.TransactionInProgress {
		return nil, &domain.InvalidStateTransitionError{
			Entity: "transaction", ID: txn.ID, From: txn.Status.String(), To: "RETURNING",
		}
	}
	others, err := repos.Returns.FindByTransaction(ctx, txn.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rental returns: %w", err)
	}
	pending := func(lineID string) int {
		total := 0
		for _, r := range others {
			total += r.PendingQuantity(lineID)
		}
		return total
	}
	claimed := claimedUnits(others)

	requests := cmd.Lines
	if len(requests) == 0 {
		for _, l := range txn.ProductLines() {
			if q := l.RemainingQuantity() - pending(l.ID); q > 0 {
				requests = append(requests, ReturnLineRequest{TransactionLineID: l.ID, Quantity: q})
			}
		}
	}

	ret, err := domain.NewRentalReturn(domain.NewRentalReturnParams{
		RentalTransactionID: txn.ID,
		ReturnDate:          cmd.ReturnDate,
		ExpectedReturnDate:  *txn.RentalEndDate,
		ProcessedBy:         cmd.ProcessedBy,
		Notes:               cmd.Notes,
	})
	if err != nil {
		return nil, err
	}

	requested := make(map[string]int)
	for _, req := range requests {
		line := txn.LineByID(req.TransactionLineID)
		if line == nil || line.LineType != domain.LineProduct {
			return nil, errors.ErrNotFoundWithID("transaction line", req.TransactionLineID)
		}
		q := req.Quantity
		if req.UnitID != "" {
			if q == 0 {
				q = 1
			}
			if err := checkReturnableUnit(ctx, repos, txn, line, req.UnitID, claimed); err != nil {
				return nil, err
			}
		}
		requested[line.ID] += q
		if returnable := line.RemainingQuantity() - pending(line.ID); requested[line.ID] > returnable {
			return nil, domain.NewLineValidationError(line.LineNumber, "quantity",
				fmt.Sprintf("return of %d exceeds returnable quantity %d", requested[line.ID], returnable))
		}
		rl, err := domain.NewRentalReturnLine(ret.ID, line.ID, req.UnitID, q)
		if err != nil {
			return nil, err
		}
		if err := ret.AddLine(rl); err != nil {
			return nil, err
		}
	}
	if len(ret.Lines) == 0 {
		return nil, domain.NewValidationError("lines", "nothing left to return on "+txn.TransactionNumber)
	}

	ret.ReturnType = domain.ReturnFull
	for _, l := range txn.ProductLines() {
		if requested[l.ID] != l.RemainingQuantity() {
			ret.ReturnType = domain.ReturnPartial
			break
		}
	}
	ret.MarkInitiated()
	return ret, nil
}

func checkReturnableUnit(ctx context.Context, repos domain.Repositories, txn *domain.TransactionHeader, line *domain.TransactionLine, unitID string, claimed map[string]bool) error {
	onLine := false
	for _, id := range line.UnitIDs {
		if id == unitID {
			onLine = true
			break
		}
	}
	if !onLine {
		return domain.NewLineValidationError(line.LineNumber, "inventoryUnitId", "unit "+unitID+" is not on this line")
	}
	if claimed[unitID] {
		return domain.NewLineValidationError(line.LineNumber, "inventoryUnitId", "unit "+unitID+" is already on an open return")
	}
	u, err := repos.Units.FindByID(ctx, unitID)
	if err != nil {
		return fmt.Errorf("failed to get inventory unit: %w", err)
	}
	if u == nil {
		return errors.ErrNotFoundWithID("inventory unit", unitID)
	}
	if u.Status != domain.UnitRented || !u.IsHeldBy(txn.ID) {
		return domain.NewLineValidationError(line.LineNumber, "inventoryUnitId", "unit "+unitID+" is not out on this rental")
	}
	return nil
}

// claimedUnits lists units named by open return lines that still expect them back
func claimedUnits(returns []*domain.RentalReturn) map[string]bool {
	claimed := make(map[string]bool)
	for _, r := range returns {
		if !r.ReturnStatus.IsOpen() {
			continue
		}
		for _, l := range r.Lines {
			if l.InventoryUnitID != "" && l.RemainingQuantity() > 0 {
				claimed[l.InventoryUnitID] = true
			}
		}
	}
	return claimed
}

// CalculateLateFee computes and stores the late fee of a return
func (s *ReturnApplicationService) CalculateLateFee(ctx context.Context, cmd CalculateLateFeeCommand) (*LateFeeDTO, error) {
	if err := cmd.Policy.Validate(); err != nil {
		return nil, toAppError(err)
	}

	var (
		ret    *domain.RentalReturn
		result domain.LateFeeResult
		lines  []domain.LateFeeLine
	)
	err := s.exec.Run(ctx, "calculate_late_fee", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if ret, err = loadReturn(ctx, repos, cmd.ReturnID); err != nil {
			return err
		}
		txn, err := loadRental(ctx, repos, ret.RentalTransactionID)
		if err != nil {
			return err
		}
		result, lines = applyLateFee(ret, txn, cmd.Policy, cmd.CalculatedBy)
		if err := ret.ApplyLateFees(result, cmd.CalculatedBy); err != nil {
			return err
		}
		if err := repos.Returns.Save(ctx, ret); err != nil {
			return fmt.Errorf("failed to save rental return: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Calculated late fee", "returnId", ret.ID, "daysLate", result.DaysLate, "lateFee", result.Total.String())
	dto := toLateFeeDTO(ret.RentalTransactionID, ret.ReturnDate, cmd.Policy, result, lines)
	dto.ReturnID = ret.ID
	return dto, nil
}

// applyLateFee computes the fee split for a return. Lines weigh by returned quantity, or by the
// original quantity while nothing has come back.
func applyLateFee(ret *domain.RentalReturn, txn *domain.TransactionHeader, policy domain.LateFeePolicy, by string) (domain.LateFeeResult, []domain.LateFeeLine) {
	lines := make([]domain.LateFeeLine, 0, len(ret.Lines))
	for _, l := range ret.Lines {
		q := l.ReturnedQuantity
		if q == 0 {
			q = l.OriginalQuantity
		}
		rate := domain.ZeroMoney()
		if tl := txn.LineByID(l.TransactionLineID); tl != nil {
			rate = tl.DailyRate
		}
		lines = append(lines, domain.LateFeeLine{ReturnLineID: l.ID, Quantity: q, DailyRentalRate: rate})
	}
	return domain.CalculateLateFees(ret.DaysLate(), policy, lines), lines
}

func toLateFeeDTO(transactionID string, asOf time.Time, policy domain.LateFeePolicy, result domain.LateFeeResult, lines []domain.LateFeeLine) *LateFeeDTO {
	dto := &LateFeeDTO{
		TransactionID: transactionID,
		AsOf:          asOf,
		DaysLate:      result.DaysLate,
		Policy:        string(policy.Kind),
		TotalLateFee:  result.Total,
		Lines:         make([]LineLateFeeDTO, 0, len(lines)),
	}
	for i, l := range lines {
		dto.Lines = append(dto.Lines, LineLateFeeDTO{LineID: l.ReturnLineID, Quantity: l.Quantity, LateFee: result.PerLine[i]})
	}
	return dto
}

// ProjectLateFee computes the late fee a rental would owe if everything still out came back at AsOf
func (s *ReturnApplicationService) ProjectLateFee(ctx context.Context, query ProjectLateFeeQuery) (*LateFeeDTO, error) {
	if err := query.Policy.Validate(); err != nil {
		return nil, toAppError(err)
	}
	asOf := query.AsOf
	if asOf.IsZero() {
		asOf = domain.Now()
	}

	var txn *domain.TransactionHeader
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		txn, err = loadRental(ctx, repos, query.TransactionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if txn.RentalEndDate == nil {
		return nil, errors.ErrValidation("rental has no end date").WithDetail("transactionId", txn.ID)
	}

	lines := make([]domain.LateFeeLine, 0)
	for _, l := range txn.ProductLines() {
		if q := l.RemainingQuantity(); q > 0 {
			lines = append(lines, domain.LateFeeLine{ReturnLineID: l.ID, Quantity: q, DailyRentalRate: l.DailyRate})
		}
	}
	result := domain.CalculateLateFees(domain.DaysLateAt(*txn.RentalEndDate, asOf), query.Policy, lines)
	dto := toLateFeeDTO(txn.ID, asOf, query.Policy, result, lines)
	dto.Projected = true
	return dto, nil
}

// ProcessPartialReturn records the units received back in one session
func (s *ReturnApplicationService) ProcessPartialReturn(ctx context.Context, cmd ProcessPartialReturnCommand) (*RentalReturnDTO, error) {
	if len(cmd.Lines) == 0 {
		return nil, errors.ErrValidation("at least one line is required")
	}

	var (
		ret      *domain.RentalReturn
		txn      *domain.TransactionHeader
		from     domain.TransactionStatus
		returned int
	)
	err := s.exec.Run(ctx, "process_partial_return", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if ret, err = loadReturn(ctx, repos, cmd.ReturnID); err != nil {
			return err
		}
		if txn, err = loadRental(ctx, repos, ret.RentalTransactionID); err != nil {
			return err
		}
		from = txn.Status
		scope := newInventoryScope(ctx, repos, cmd.ProcessedBy, s.metrics)
		if returned, err = s.processLines(ctx, repos, scope, ret, txn, cmd.Lines, cmd.ProcessedBy); err != nil {
			return err
		}
		return saveReturnWork(ctx, repos, scope, ret, txn)
	})
	if err != nil {
		return nil, err
	}

	if from != txn.Status {
		s.metrics.RecordStateTransition("transaction", string(from), string(txn.Status))
	}
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "return.processed",
		EntityType: "rental_return",
		EntityID:   ret.ID,
		Action:     "processed",
		RelatedIDs: map[string]string{"transactionId": txn.ID},
		Data: map[string]any{
			"quantityReturned":  returned,
			"returnStatus":      string(ret.ReturnStatus),
			"transactionStatus": string(txn.Status),
		},
	})
	return ToRentalReturnDTO(ret), nil
}

// processLines applies one return session to the return, its units, the stock and the rental
func (s *ReturnApplicationService) processLines(ctx context.Context, repos domain.Repositories, scope *inventoryScope,
	ret *domain.RentalReturn, txn *domain.TransactionHeader, updates []ReturnLineUpdate, by string) (int, error) {
	if !ret.ReturnStatus.IsOpen() {
		return 0, fmt.Errorf("return %s is %s: %w", ret.ID, ret.ReturnStatus, domain.ErrNotEditable)
	}
	if txn.Status != domain.TransactionInProgress {
		return 0, &domain.InvalidStateTransitionError{
			Entity: "transaction", ID: txn.ID, From: txn.Status.String(), To: "RETURNING",
		}
	}
	if violations, _ := checkReturnLines(ret, updates); len(violations) > 0 {
		reasons := make([]string, 0, len(violations))
		for _, v := range violations {
			reasons = append(reasons, v.ReturnLineID+": "+v.Reason)
		}
		return 0, domain.NewValidationError("lines", strings.Join(reasons, "; "))
	}

	exclude, err := unitsClaimedOnTransaction(ctx, repos, txn.ID)
	if err != nil {
		return 0, err
	}

	returned := 0
	for _, upd := range updates {
		rl := ret.LineByID(upd.ReturnLineID)
		tl := txn.LineByID(rl.TransactionLineID)
		if tl == nil {
			return 0, errors.ErrNotFoundWithID("transaction line", rl.TransactionLineID)
		}
		grade := upd.ConditionGrade
		if grade == "" {
			grade = rl.ConditionGrade
		}
		if err := rl.UpdateCondition(grade, upd.Notes, by); err != nil {
			return 0, err
		}

		if q := upd.QuantityReturned; q > 0 {
			if err := rl.RecordReturned(q, by); err != nil {
				return 0, err
			}
			unitIDs, err := unitsComingBack(scope, txn, tl, rl, q, exclude)
			if err != nil {
				return 0, err
			}
			if err := scope.receiveReturned(txn, tl, unitIDs, q, grade, upd.Notes); err != nil {
				return 0, err
			}
			rl.RecordReceipt(unitIDs, q, grade == domain.GradeD)
			if err := tl.ProcessReturn(q, ret.ReturnDate); err != nil {
				return 0, err
			}
			returned += q
		}
		if rl.RemainingQuantity() == 0 && !rl.IsProcessed {
			rl.MarkProcessed(by)
		}
	}

	if err := ret.BeginInspection(by); err != nil {
		return 0, err
	}
	if txn.AllLinesReturned() {
		if err := completeRental(txn, by); err != nil {
			return 0, err
		}
	} else if err := ret.TransitionTo(domain.ReturnPartiallyCompleted, by); err != nil {
		return 0, err
	}
	ret.RecalculateTotals()
	ret.Touch(by)
	ret.MarkProcessed(returned)
	return returned, nil
}

// unitsComingBack picks the units returned on a line: the named unit, or for bulk lines of
// tracked SKUs the first rented units no open return names
func unitsComingBack(scope *inventoryScope, txn *domain.TransactionHeader, tl *domain.TransactionLine,
	rl *domain.RentalReturnLine, q int, exclude map[string]bool) ([]string, error) {
	if rl.InventoryUnitID != "" {
		return []string{rl.InventoryUnitID}, nil
	}
	if len(tl.UnitIDs) == 0 {
		return nil, nil
	}
	rented, err := scope.rentedUnits(txn, tl, exclude)
	if err != nil {
		return nil, err
	}
	if len(rented) < q {
		return nil, domain.NewLineValidationError(tl.LineNumber, "quantity",
			fmt.Sprintf("only %d units are still out on this line", len(rented)))
	}
	picked := rented[:q]
	for _, id := range picked {
		exclude[id] = true
	}
	return picked, nil
}

func unitsClaimedOnTransaction(ctx context.Context, repos domain.Repositories, transactionID string) (map[string]bool, error) {
	returns, err := repos.Returns.FindByTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rental returns: %w", err)
	}
	return claimedUnits(returns), nil
}

// completeRental closes a rental once every line came back
func completeRental(txn *domain.TransactionHeader, by string) error {
	if txn.Status == domain.TransactionCompleted {
		return nil
	}
	txn.ReleaseInventoryHold(by)
	return txn.AdvanceTo(domain.TransactionCompleted, "all items returned", by)
}

func saveReturnWork(ctx context.Context, repos domain.Repositories, scope *inventoryScope, ret *domain.RentalReturn, txn *domain.TransactionHeader) error {
	if err := scope.flush(); err != nil {
		return err
	}
	if err := repos.Transactions.Save(ctx, txn); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	if err := repos.Returns.Save(ctx, ret); err != nil {
		return fmt.Errorf("failed to save rental return: %w", err)
	}
	return nil
}

// checkReturnLines validates a return session without changing anything
func checkReturnLines(ret *domain.RentalReturn, updates []ReturnLineUpdate) ([]PartialReturnViolationDTO, PartialReturnSummaryDTO) {
	violations := make([]PartialReturnViolationDTO, 0)
	summary := PartialReturnSummaryDTO{LinesChecked: len(updates)}
	accepted := make(map[string]int, len(updates))

	for _, upd := range updates {
		rl := ret.LineByID(upd.ReturnLineID)
		switch {
		case rl == nil:
			violations = append(violations, PartialReturnViolationDTO{ReturnLineID: upd.ReturnLineID, Reason: "unknown return line"})
			continue
		case hasKey(accepted, rl.ID):
			violations = append(violations, PartialReturnViolationDTO{ReturnLineID: rl.ID, Reason: "line is listed more than once"})
			continue
		case upd.QuantityReturned < 0:
			violations = append(violations, PartialReturnViolationDTO{ReturnLineID: rl.ID, Reason: "quantity cannot be negative"})
			continue
		case upd.QuantityReturned > rl.RemainingQuantity():
			violations = append(violations, PartialReturnViolationDTO{
				ReturnLineID: rl.ID,
				Reason:       fmt.Sprintf("quantity %d exceeds remaining quantity %d", upd.QuantityReturned, rl.RemainingQuantity()),
			})
			continue
		case upd.ConditionGrade != "" && !upd.ConditionGrade.IsValid():
			violations = append(violations, PartialReturnViolationDTO{ReturnLineID: rl.ID, Reason: "condition grade must be one of A, B, C, D"})
			continue
		}

		accepted[rl.ID] = upd.QuantityReturned
		summary.TotalQuantity += upd.QuantityReturned
		if rl.RemainingQuantity() > 0 && upd.QuantityReturned == rl.RemainingQuantity() {
			summary.LinesCompleting++
		}
		grade := upd.ConditionGrade
		if grade == "" {
			grade = rl.ConditionGrade
		}
		if grade == domain.GradeD {
			summary.DamagedQuantity += upd.QuantityReturned
		}
	}
	for _, l := range ret.Lines {
		summary.RemainingAfter += l.RemainingQuantity() - accepted[l.ID]
	}
	if !ret.ReturnStatus.IsOpen() {
		violations = append(violations, PartialReturnViolationDTO{Reason: "return is already completed"})
	}
	return violations, summary
}

func hasKey(m map[string]int, key string) bool {
	_, ok := m[key]
	return ok
}

// ValidatePartialReturn dry-runs a return session
func (s *ReturnApplicationService) ValidatePartialReturn(ctx context.Context, query ValidatePartialReturnQuery) (*PartialReturnValidationDTO, error) {
	var ret *domain.RentalReturn
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		ret, err = loadReturn(ctx, repos, query.ReturnID)
		return err
	})
	if err != nil {
		return nil, err
	}
	violations, summary := checkReturnLines(ret, query.Lines)
	return &PartialReturnValidationDTO{IsValid: len(violations) == 0, Violations: violations, Summary: summary}, nil
}

// AssessDamage records an inspection of return lines. The inspection completes and its damage
// costs become line damage fees once every line of the return has been assessed.
func (s *ReturnApplicationService) AssessDamage(ctx context.Context, cmd AssessDamageCommand) (*InspectionReportDTO, error) {
	if len(cmd.Assessments) == 0 {
		return nil, errors.ErrValidation("at least one assessment is required")
	}

	var report *domain.InspectionReport
	err := s.exec.Run(ctx, "assess_damage", func(ctx context.Context, repos domain.Repositories) error {
		ret, err := loadReturn(ctx, repos, cmd.ReturnID)
		if err != nil {
			return err
		}
		if !ret.ReturnStatus.IsOpen() {
			return fmt.Errorf("return %s is %s: %w", ret.ID, ret.ReturnStatus, domain.ErrNotEditable)
		}
		txn, err := loadRental(ctx, repos, ret.RentalTransactionID)
		if err != nil {
			return err
		}
		if report, err = openInspection(ctx, repos, ret.ID, cmd.InspectorID); err != nil {
			return err
		}

		scope := newInventoryScope(ctx, repos, cmd.InspectorID, s.metrics)
		for _, a := range cmd.Assessments {
			rl := ret.LineByID(a.ReturnLineID)
			if rl == nil {
				return errors.ErrNotFoundWithID("return line", a.ReturnLineID)
			}
			if a.ConditionGrade != "" {
				if err := rl.UpdateCondition(a.ConditionGrade, a.Notes, cmd.InspectorID); err != nil {
					return err
				}
				if err := gradeReturnedGoods(scope, txn, rl, a.ConditionGrade, a.Notes); err != nil {
					return err
				}
			}
			report.MarkAssessed(rl.ID)
			for _, f := range a.Findings {
				if err := report.AddFinding(domain.DamageFinding{
					ReturnLineID:      rl.ID,
					ItemDescription:   f.ItemDescription,
					DamageDescription: f.DamageDescription,
					Severity:          f.Severity,
					EstimatedCost:     f.EstimatedCost,
					Photos:            f.Photos,
				}); err != nil {
					return err
				}
			}
		}

		lineIDs := make([]string, 0, len(ret.Lines))
		for _, l := range ret.Lines {
			lineIDs = append(lineIDs, l.ID)
		}
		if report.HasAssessedAll(lineIDs) {
			if err := report.Complete(cmd.Notes, cmd.InspectorID); err != nil {
				return err
			}
			costs := report.DamageCostByLine()
			for _, l := range ret.Lines {
				fee, ok := costs[l.ID]
				if !ok {
					fee = domain.ZeroMoney()
				}
				if err := l.SetDamageFee(fee, cmd.InspectorID); err != nil {
					return err
				}
			}
		}
		if err := ret.BeginInspection(cmd.InspectorID); err != nil {
			return err
		}
		ret.RecalculateTotals()
		ret.Touch(cmd.InspectorID)

		if err := scope.flush(); err != nil {
			return err
		}
		if err := repos.Inspections.Save(ctx, report); err != nil {
			return fmt.Errorf("failed to save inspection report: %w", err)
		}
		if err := repos.Returns.Save(ctx, ret); err != nil {
			return fmt.Errorf("failed to save rental return: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "return.damage_assessed",
		EntityType: "inspection_report",
		EntityID:   report.ID,
		Action:     "assessed",
		RelatedIDs: map[string]string{"returnId": report.ReturnID, "inspectorId": report.InspectorID},
		Data: map[string]any{
			"status":          string(report.Status),
			"damageFound":     report.DamageFound,
			"totalDamageCost": report.TotalDamageCost.String(),
		},
	})
	return ToInspectionReportDTO(report), nil
}

// openInspection continues the in-progress inspection of a return, or opens a new one
func openInspection(ctx context.Context, repos domain.Repositories, returnID, inspectorID string) (*domain.InspectionReport, error) {
	reports, err := repos.Inspections.FindByReturn(ctx, returnID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inspection reports: %w", err)
	}
	for _, r := range reports {
		if r.Status == domain.InspectionInProgress {
			return r, nil
		}
	}
	return domain.NewInspectionReport(returnID, inspectorID, domain.Now())
}

// gradeReturnedGoods carries an inspection grade onto goods already back on the shelf.
// Grade D moves them out of available stock into the damaged bucket.
func gradeReturnedGoods(scope *inventoryScope, txn *domain.TransactionHeader, rl *domain.RentalReturnLine, grade domain.ConditionGrade, notes string) error {
	if rl.ReturnedQuantity == 0 {
		return nil
	}
	unitIDs := rl.ReturnedUnitIDs
	if len(unitIDs) == 0 && rl.InventoryUnitID != "" {
		unitIDs = []string{rl.InventoryUnitID}
	}
	if len(unitIDs) == 0 {
		return gradeBulkReturn(scope, txn, rl, grade)
	}

	for _, id := range unitIDs {
		u, err := scope.unit(id)
		if err != nil {
			return err
		}
		if u.Status != domain.UnitAvailableRent {
			continue
		}
		if err := u.RecordInspection(grade, notes, scope.by); err != nil {
			return err
		}
		scope.touch(u)
		if grade != domain.GradeD {
			continue
		}
		if err := scope.transition(u, domain.UnitDamaged, txn.ID, "damaged on inspection"); err != nil {
			return err
		}
		if err := scope.adjust(u.SKUID, u.LocationID, domain.MovementMarkDamaged, 1, func(level *domain.StockLevel) error {
			return level.MarkDamaged(1, scope.by)
		}); err != nil {
			return err
		}
		rl.RecordDamaged(1)
	}
	return nil
}

// gradeBulkReturn moves the still-available part of an untracked line to damaged on grade D.
// Units already rented out again stay where they are.
func gradeBulkReturn(scope *inventoryScope, txn *domain.TransactionHeader, rl *domain.RentalReturnLine, grade domain.ConditionGrade) error {
	if grade != domain.GradeD || rl.UndamagedQuantity() == 0 {
		return nil
	}
	tl := txn.LineByID(rl.TransactionLineID)
	if tl == nil {
		return errors.ErrNotFoundWithID("transaction line", rl.TransactionLineID)
	}
	available, err := scope.available(tl.SKUID, txn.LocationID)
	if err != nil {
		return err
	}
	q := min(rl.UndamagedQuantity(), available)
	if q == 0 {
		return nil
	}
	if err := scope.adjust(tl.SKUID, txn.LocationID, domain.MovementMarkDamaged, q, func(level *domain.StockLevel) error {
		return level.MarkDamaged(q, scope.by)
	}); err != nil {
		return err
	}
	rl.RecordDamaged(q)
	return nil
}

// ApproveInspection approves a completed inspection
func (s *ReturnApplicationService) ApproveInspection(ctx context.Context, cmd ApproveInspectionCommand) (*InspectionReportDTO, error) {
	var report *domain.InspectionReport
	err := s.exec.Run(ctx, "approve_inspection", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if report, err = loadInspection(ctx, repos, cmd.InspectionID); err != nil {
			return err
		}
		if err := report.Approve(cmd.Notes, cmd.ApprovedBy); err != nil {
			return err
		}
		if err := repos.Inspections.Save(ctx, report); err != nil {
			return fmt.Errorf("failed to save inspection report: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Audit(ctx, "approve", "inspection_report", report.ID, cmd.ApprovedBy, map[string]any{"returnId": report.ReturnID})
	return ToInspectionReportDTO(report), nil
}

// RejectInspection rejects a completed inspection and withdraws the damage fees it applied
func (s *ReturnApplicationService) RejectInspection(ctx context.Context, cmd RejectInspectionCommand) (*InspectionReportDTO, error) {
	var report *domain.InspectionReport
	err := s.exec.Run(ctx, "reject_inspection", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if report, err = loadInspection(ctx, repos, cmd.InspectionID); err != nil {
			return err
		}
		if err := report.Reject(cmd.Reason, cmd.RejectedBy); err != nil {
			return err
		}
		ret, err := loadReturn(ctx, repos, report.ReturnID)
		if err != nil {
			return err
		}
		if ret.ReturnStatus.IsOpen() {
			for lineID := range report.DamageCostByLine() {
				if l := ret.LineByID(lineID); l != nil {
					if err := l.SetDamageFee(domain.ZeroMoney(), cmd.RejectedBy); err != nil {
						return err
					}
				}
			}
			ret.RecalculateTotals()
			ret.Touch(cmd.RejectedBy)
			if err := repos.Returns.Save(ctx, ret); err != nil {
				return fmt.Errorf("failed to save rental return: %w", err)
			}
		}
		if err := repos.Inspections.Save(ctx, report); err != nil {
			return fmt.Errorf("failed to save inspection report: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Audit(ctx, "reject", "inspection_report", report.ID, cmd.RejectedBy,
		map[string]any{"returnId": report.ReturnID, "reason": report.RejectionReason})
	return ToInspectionReportDTO(report), nil
}

// SetLineFees adjusts damage, cleaning and replacement fees on an open return line
func (s *ReturnApplicationService) SetLineFees(ctx context.Context, cmd SetLineFeesCommand) (*RentalReturnDTO, error) {
	var ret *domain.RentalReturn
	err := s.exec.Run(ctx, "set_line_fees", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if ret, err = loadReturn(ctx, repos, cmd.ReturnID); err != nil {
			return err
		}
		if !ret.ReturnStatus.IsOpen() {
			return fmt.Errorf("return %s is finalized: %w", ret.ID, domain.ErrNotEditable)
		}
		line := ret.LineByID(cmd.ReturnLineID)
		if line == nil {
			return errors.ErrNotFoundWithID("return line", cmd.ReturnLineID)
		}
		if cmd.DamageFee != nil {
			if err := line.SetDamageFee(*cmd.DamageFee, cmd.UpdatedBy); err != nil {
				return err
			}
		}
		if cmd.CleaningFee != nil {
			if err := line.SetCleaningFee(*cmd.CleaningFee, cmd.UpdatedBy); err != nil {
				return err
			}
		}
		if cmd.ReplacementFee != nil {
			if err := line.SetReplacementFee(*cmd.ReplacementFee, cmd.UpdatedBy); err != nil {
				return err
			}
		}
		ret.RecalculateTotals()
		ret.Touch(cmd.UpdatedBy)
		if err := repos.Returns.Save(ctx, ret); err != nil {
			return fmt.Errorf("failed to save rental return: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Updated return line fees", "returnId", ret.ID, "lineId", cmd.ReturnLineID, "totalFees", ret.TotalFees().String())
	return ToRentalReturnDTO(ret), nil
}

// reconcileStep is the inventory a finalization still has to take back for one return line
type reconcileStep struct {
	returnLine *domain.RentalReturnLine
	txnLine    *domain.TransactionLine
	unitIDs    []string
	quantity   int
	damaged    bool
	grade      domain.ConditionGrade
}

// planReconciliation lists what a finalization must receive back for lines with units still out
func planReconciliation(ctx context.Context, repos domain.Repositories, scope *inventoryScope, ret *domain.RentalReturn, txn *domain.TransactionHeader) ([]reconcileStep, error) {
	exclude, err := unitsClaimedOnTransaction(ctx, repos, txn.ID)
	if err != nil {
		return nil, err
	}
	steps := make([]reconcileStep, 0)
	for _, rl := range ret.Lines {
		q := rl.RemainingQuantity()
		if q == 0 {
			continue
		}
		tl := txn.LineByID(rl.TransactionLineID)
		if tl == nil {
			return nil, errors.ErrNotFoundWithID("transaction line", rl.TransactionLineID)
		}
		if q > tl.RemainingQuantity() {
			q = tl.RemainingQuantity()
		}
		if q == 0 {
			continue
		}

		var unitIDs []string
		switch {
		case rl.InventoryUnitID != "":
			u, err := scope.unit(rl.InventoryUnitID)
			if err != nil {
				return nil, err
			}
			if !u.IsHeldBy(txn.ID) || u.Status != domain.UnitRented {
				continue
			}
			unitIDs = []string{u.ID}
		case len(tl.UnitIDs) > 0:
			rented, err := scope.rentedUnits(txn, tl, exclude)
			if err != nil {
				return nil, err
			}
			if len(rented) < q {
				q = len(rented)
			}
			unitIDs = rented[:q]
			for _, id := range unitIDs {
				exclude[id] = true
			}
		}
		if q == 0 {
			continue
		}
		steps = append(steps, reconcileStep{
			returnLine: rl,
			txnLine:    tl,
			unitIDs:    unitIDs,
			quantity:   q,
			damaged:    rl.IsDamaged(),
			grade:      rl.ConditionGrade,
		})
	}
	return steps, nil
}

// FinalizeReturn completes a return, taking back anything still out on it
func (s *ReturnApplicationService) FinalizeReturn(ctx context.Context, cmd FinalizeReturnCommand) (*RentalReturnDTO, error) {
	var (
		ret        *domain.RentalReturn
		txn        *domain.TransactionHeader
		from       domain.TransactionStatus
		reconciled int
	)
	err := s.exec.Run(ctx, "finalize_return", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if ret, err = loadReturn(ctx, repos, cmd.ReturnID); err != nil {
			return err
		}
		if txn, err = loadRental(ctx, repos, ret.RentalTransactionID); err != nil {
			return err
		}
		from = txn.Status
		scope := newInventoryScope(ctx, repos, cmd.FinalizedBy, s.metrics)
		if reconciled, err = s.finalize(ctx, repos, scope, ret, txn, cmd.ForceFinalize, cmd.FinalizedBy); err != nil {
			return err
		}
		return saveReturnWork(ctx, repos, scope, ret, txn)
	})
	if err != nil {
		return nil, err
	}

	if from != txn.Status {
		s.metrics.RecordStateTransition("transaction", string(from), string(txn.Status))
	}
	s.metrics.RecordReturnFinalized(string(ret.ReturnType))
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "return.finalized",
		EntityType: "rental_return",
		EntityID:   ret.ID,
		Action:     "finalized",
		RelatedIDs: map[string]string{"transactionId": txn.ID},
		Data: map[string]any{
			"forced":             cmd.ForceFinalize,
			"reconciledQuantity": reconciled,
			"totalFees":          ret.TotalFees().String(),
			"transactionStatus":  string(txn.Status),
		},
	})
	return ToRentalReturnDTO(ret), nil
}

func (s *ReturnApplicationService) finalize(ctx context.Context, repos domain.Repositories, scope *inventoryScope,
	ret *domain.RentalReturn, txn *domain.TransactionHeader, force bool, by string) (int, error) {
	steps, err := planReconciliation(ctx, repos, scope, ret, txn)
	if err != nil {
		return 0, err
	}
	if err := ret.Finalize(force, by); err != nil {
		return 0, err
	}

	reconciled := 0
	for _, step := range steps {
		if err := scope.receiveReturned(txn, step.txnLine, step.unitIDs, step.quantity, step.grade, "reconciled on finalization"); err != nil {
			return 0, err
		}
		if err := step.txnLine.ProcessReturn(step.quantity, ret.ReturnDate); err != nil {
			return 0, err
		}
		if err := step.returnLine.SetReturnedQuantity(step.returnLine.ReturnedQuantity+step.quantity, by); err != nil {
			return 0, err
		}
		step.returnLine.RecordReceipt(step.unitIDs, step.quantity, step.damaged)
		reconciled += step.quantity
	}
	if reconciled > 0 {
		s.logger.WithContext(ctx).Warn("Finalization took back units still out",
			"returnId", ret.ID, "quantity", reconciled)
	}
	if txn.Status == domain.TransactionInProgress && txn.AllLinesReturned() {
		if err := completeRental(txn, by); err != nil {
			return 0, err
		}
	}
	return reconciled, nil
}

// PreviewFinalization reports what FinalizeReturn would do without writing
func (s *ReturnApplicationService) PreviewFinalization(ctx context.Context, returnID string) (*FinalizationPreviewDTO, error) {
	var preview *FinalizationPreviewDTO
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		ret, err := loadReturn(ctx, repos, returnID)
		if err != nil {
			return err
		}
		txn, err := loadRental(ctx, repos, ret.RentalTransactionID)
		if err != nil {
			return err
		}
		scope := newInventoryScope(ctx, repos, "", s.metrics)
		steps, err := planReconciliation(ctx, repos, scope, ret, txn)
		if err != nil {
			return err
		}

		ret.RecalculateTotals()
		preview = &FinalizationPreviewDTO{
			ReturnID:         ret.ID,
			CanFinalize:      ret.ReturnStatus.IsOpen() && ret.AllLinesProcessed(),
			RequiresForce:    ret.ReturnStatus.IsOpen() && !ret.AllLinesProcessed(),
			BlockingReasons:  ret.FinalizationBlockers(),
			TotalLateFee:     ret.TotalLateFee,
			TotalDamageFee:   ret.TotalDamageFee,
			TotalOtherFees:   ret.TotalCleaningFee.Add(ret.TotalReplacementFee),
			TotalFees:        ret.TotalFees(),
			InventoryChanges: make([]InventoryChangeDTO, 0),
		}
		if preview.BlockingReasons == nil {
			preview.BlockingReasons = []string{}
		}

		outstanding := make(map[string]int)
		for _, l := range txn.ProductLines() {
			outstanding[l.ID] = l.RemainingQuantity()
		}
		for _, step := range steps {
			outstanding[step.txnLine.ID] -= step.quantity
			to := domain.UnitAvailableRent
			if step.damaged {
				to = domain.UnitDamaged
			}
			for _, id := range step.unitIDs {
				preview.InventoryChanges = append(preview.InventoryChanges, InventoryChangeDTO{
					UnitID: id, SKUID: step.txnLine.SKUID, LocationID: txn.LocationID,
					FromStatus: string(domain.UnitRented), ToStatus: string(to), Quantity: 1,
				})
			}
			if bulk := step.quantity - len(step.unitIDs); bulk > 0 {
				preview.InventoryChanges = append(preview.InventoryChanges, InventoryChangeDTO{
					SKUID: step.txnLine.SKUID, LocationID: txn.LocationID,
					FromStatus: string(domain.UnitRented), ToStatus: string(to), Quantity: bulk,
				})
			}
		}
		preview.CompletesRental = txn.Status == domain.TransactionInProgress
		for _, q := range outstanding {
			if q > 0 {
				preview.CompletesRental = false
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return preview, nil
}

// availableDeposit is the rental deposit not yet settled by other returns of the rental
func availableDeposit(ctx context.Context, repos domain.Repositories, txn *domain.TransactionHeader, returnID string) (domain.Money, error) {
	returns, err := repos.Returns.FindByTransaction(ctx, txn.ID)
	if err != nil {
		return domain.Money{}, fmt.Errorf("failed to list rental returns: %w", err)
	}
	deposit := txn.DepositAmount
	for _, r := range returns {
		if r.ID != returnID && r.DepositReleased {
			deposit = deposit.Sub(r.DepositReleaseAmount.Add(r.DepositWithheldAmount))
		}
	}
	return deposit.NonNegative(), nil
}

// ReleaseDeposit settles the rental deposit against the fees of a completed return
func (s *ReturnApplicationService) ReleaseDeposit(ctx context.Context, cmd ReleaseDepositCommand) (*DepositReleaseDTO, error) {
	var (
		ret   *domain.RentalReturn
		split domain.DepositSplit
	)
	err := s.exec.Run(ctx, "release_deposit", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if ret, err = loadReturn(ctx, repos, cmd.ReturnID); err != nil {
			return err
		}
		txn, err := loadRental(ctx, repos, ret.RentalTransactionID)
		if err != nil {
			return err
		}
		deposit, err := availableDeposit(ctx, repos, txn, ret.ID)
		if err != nil {
			return err
		}
		if split, err = ret.ReleaseDeposit(deposit, cmd.ReleasedBy); err != nil {
			return err
		}
		if err := repos.Returns.Save(ctx, ret); err != nil {
			return fmt.Errorf("failed to save rental return: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := "partial"
	switch {
	case split.WithheldAmount.IsZero():
		outcome = "full"
	case split.ReleaseAmount.IsZero():
		outcome = "withheld"
	}
	s.metrics.RecordDepositRelease(outcome)
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "deposit.released",
		EntityType: "rental_return",
		EntityID:   ret.ID,
		Action:     "deposit_released",
		RelatedIDs: map[string]string{"transactionId": ret.RentalTransactionID},
		Data: map[string]any{
			"originalDeposit": split.OriginalDeposit.String(),
			"releaseAmount":   split.ReleaseAmount.String(),
			"withheldAmount":  split.WithheldAmount.String(),
		},
	})
	return &DepositReleaseDTO{
		ReturnID:        ret.ID,
		TransactionID:   ret.RentalTransactionID,
		OriginalDeposit: split.OriginalDeposit,
		TotalFees:       split.TotalFees,
		ReleaseAmount:   split.ReleaseAmount,
		WithheldAmount:  split.WithheldAmount,
		Released:        true,
		ReleasedAt:      ret.DepositReleaseDate,
	}, nil
}

// PreviewDepositRelease computes the deposit split without releasing anything
func (s *ReturnApplicationService) PreviewDepositRelease(ctx context.Context, returnID string) (*DepositReleaseDTO, error) {
	var dto *DepositReleaseDTO
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		ret, err := loadReturn(ctx, repos, returnID)
		if err != nil {
			return err
		}
		txn, err := loadRental(ctx, repos, ret.RentalTransactionID)
		if err != nil {
			return err
		}
		deposit, err := availableDeposit(ctx, repos, txn, ret.ID)
		if err != nil {
			return err
		}
		ret.RecalculateTotals()
		split := domain.CalculateDepositSplit(deposit, ret.TotalFees())
		if ret.DepositReleased {
			split.ReleaseAmount = ret.DepositReleaseAmount
			split.WithheldAmount = ret.DepositWithheldAmount
		}
		dto = &DepositReleaseDTO{
			ReturnID:        ret.ID,
			TransactionID:   txn.ID,
			OriginalDeposit: split.OriginalDeposit,
			TotalFees:       split.TotalFees,
			ReleaseAmount:   split.ReleaseAmount,
			WithheldAmount:  split.WithheldAmount,
			CanRelease:      ret.CanReleaseDeposit(),
			Released:        ret.DepositReleased,
			ReleasedAt:      ret.DepositReleaseDate,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// ReverseDepositRelease undoes a deposit release
func (s *ReturnApplicationService) ReverseDepositRelease(ctx context.Context, cmd ReverseDepositReleaseCommand) (*RentalReturnDTO, error) {
	var ret *domain.RentalReturn
	err := s.exec.Run(ctx, "reverse_deposit_release", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if ret, err = loadReturn(ctx, repos, cmd.ReturnID); err != nil {
			return err
		}
		if err := ret.ReverseDepositRelease(cmd.Reason, cmd.ReversedBy); err != nil {
			return err
		}
		if err := repos.Returns.Save(ctx, ret); err != nil {
			return fmt.Errorf("failed to save rental return: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordDepositRelease("reversed")
	s.logger.Audit(ctx, "reverse_deposit_release", "rental_return", ret.ID, cmd.ReversedBy,
		map[string]any{"reason": ret.DepositReversalReason})
	return ToRentalReturnDTO(ret), nil
}

// CompleteReturn takes everything still out on a rental back in one call: it opens a return,
// records every line in the given condition, applies the late fee policy and finalizes.
func (s *ReturnApplicationService) CompleteReturn(ctx context.Context, cmd CompleteReturnCommand) (*RentalReturnDTO, error) {
	if cmd.LateFeePolicy.Kind != "" {
		if err := cmd.LateFeePolicy.Validate(); err != nil {
			return nil, toAppError(err)
		}
	}
	grade := cmd.ConditionGrade
	if grade == "" {
		grade = domain.GradeA
	}

	var (
		ret *domain.RentalReturn
		txn *domain.TransactionHeader
	)
	err := s.exec.Run(ctx, "complete_return", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if txn, err = loadRental(ctx, repos, cmd.TransactionID); err != nil {
			return err
		}
		if ret, err = s.initiate(ctx, repos, txn, InitiateReturnCommand{
			TransactionID: cmd.TransactionID,
			ReturnDate:    cmd.ReturnDate,
			Notes:         cmd.Notes,
			ProcessedBy:   cmd.ReturnedBy,
		}); err != nil {
			return err
		}

		updates := make([]ReturnLineUpdate, 0, len(ret.Lines))
		for _, l := range ret.Lines {
			updates = append(updates, ReturnLineUpdate{ReturnLineID: l.ID, QuantityReturned: l.OriginalQuantity, ConditionGrade: grade})
		}
		scope := newInventoryScope(ctx, repos, cmd.ReturnedBy, s.metrics)
		if _, err := s.processLines(ctx, repos, scope, ret, txn, updates, cmd.ReturnedBy); err != nil {
			return err
		}
		if cmd.LateFeePolicy.Kind != "" {
			result, _ := applyLateFee(ret, txn, cmd.LateFeePolicy, cmd.ReturnedBy)
			if err := ret.ApplyLateFees(result, cmd.ReturnedBy); err != nil {
				return err
			}
		}
		if _, err := s.finalize(ctx, repos, scope, ret, txn, false, cmd.ReturnedBy); err != nil {
			return err
		}
		return saveReturnWork(ctx, repos, scope, ret, txn)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStateTransition("transaction", string(domain.TransactionInProgress), string(txn.Status))
	s.metrics.RecordReturnFinalized(string(ret.ReturnType))
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "return.completed",
		EntityType: "rental_return",
		EntityID:   ret.ID,
		Action:     "completed",
		RelatedIDs: map[string]string{"transactionId": txn.ID},
		Data: map[string]any{
			"daysLate":          ret.DaysLate(),
			"totalFees":         ret.TotalFees().String(),
			"transactionStatus": string(txn.Status),
		},
	})
	return ToRentalReturnDTO(ret), nil
}

// GetReturn retrieves a rental return by id
func (s *ReturnApplicationService) GetReturn(ctx context.Context, id string) (*RentalReturnDTO, error) {
	var ret *domain.RentalReturn
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		ret, err = loadReturn(ctx, repos, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToRentalReturnDTO(ret), nil
}

// ListReturns lists the returns of a rental
func (s *ReturnApplicationService) ListReturns(ctx context.Context, transactionID string) ([]RentalReturnDTO, error) {
	var returns []*domain.RentalReturn
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := loadRental(ctx, repos, transactionID); err != nil {
			return err
		}
		var err error
		if returns, err = repos.Returns.FindByTransaction(ctx, transactionID); err != nil {
			return fmt.Errorf("failed to list rental returns: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ToRentalReturnDTOs(returns), nil
}

// GetInspection retrieves an inspection report by id
func (s *ReturnApplicationService) GetInspection(ctx context.Context, id string) (*InspectionReportDTO, error) {
	var report *domain.InspectionReport
	err := s.exec.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		report, err = loadInspection(ctx, repos, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToInspectionReportDTO(report), nil
}

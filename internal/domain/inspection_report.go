package domain

import (
	"strings"
	"time"
)

// InspectionStatus is the inspection report lifecycle status
type InspectionStatus string

const (
	InspectionInProgress InspectionStatus = "IN_PROGRESS"
	InspectionCompleted  InspectionStatus = "COMPLETED"
	InspectionRejected   InspectionStatus = "REJECTED"
	InspectionApproved   InspectionStatus = "APPROVED"
)

var inspectionTransitions = map[InspectionStatus][]InspectionStatus{
	InspectionInProgress: {InspectionCompleted, InspectionRejected},
	InspectionCompleted:  {InspectionApproved, InspectionRejected},
	InspectionApproved:   {},
	InspectionRejected:   {},
}

func (s InspectionStatus) String() string { return string(s) }

// CanTransitionTo reports whether the table allows s -> to
func (s InspectionStatus) CanTransitionTo(to InspectionStatus) bool {
	for _, allowed := range inspectionTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// DamageSeverity grades a damage finding
type DamageSeverity string

const (
	SeverityMinor     DamageSeverity = "MINOR"
	SeverityModerate  DamageSeverity = "MODERATE"
	SeverityMajor     DamageSeverity = "MAJOR"
	SeverityTotalLoss DamageSeverity = "TOTAL_LOSS"
)

// IsValid checks if the severity is known
func (s DamageSeverity) IsValid() bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeverityMajor, SeverityTotalLoss:
		return true
	default:
		return false
	}
}

// DamageFinding is one recorded damage on a returned line
type DamageFinding struct {
	ID                string         `bson:"id" json:"id"`
	ReturnLineID      string         `bson:"returnLineId" json:"returnLineId"`
	ItemDescription   string         `bson:"itemDescription" json:"itemDescription"`
	DamageDescription string         `bson:"damageDescription" json:"damageDescription"`
	Severity          DamageSeverity `bson:"severity" json:"severity"`
	EstimatedCost     Money          `bson:"estimatedCost" json:"estimatedCost"`
	Photos            []string       `bson:"photos,omitempty" json:"photos,omitempty"`
	RecordedAt        time.Time      `bson:"recordedAt" json:"recordedAt"`
}

// InspectionReport records the damage assessment of a return
type InspectionReport struct {
	ID              string           `bson:"_id" json:"id"`
	ReturnID        string           `bson:"returnId" json:"returnId"`
	InspectorID     string           `bson:"inspectorId" json:"inspectorId"`
	InspectionDate  time.Time        `bson:"inspectionDate" json:"inspectionDate"`
	Status          InspectionStatus `bson:"inspectionStatus" json:"inspectionStatus"`
	DamageFound     bool             `bson:"damageFound" json:"damageFound"`
	Findings        []DamageFinding  `bson:"damageFindings" json:"damageFindings"`
	AssessedLineIDs []string         `bson:"assessedLineIds" json:"assessedLineIds"`
	TotalDamageCost Money            `bson:"totalDamageCost" json:"totalDamageCost"`
	ApprovedBy      string           `bson:"approvedBy,omitempty" json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time       `bson:"approvedAt,omitempty" json:"approvedAt,omitempty"`
	ApprovalNotes   string           `bson:"approvalNotes,omitempty" json:"approvalNotes,omitempty"`
	RejectionReason string           `bson:"rejectionReason,omitempty" json:"rejectionReason,omitempty"`
	CompletionNotes string           `bson:"completionNotes,omitempty" json:"completionNotes,omitempty"`
	Notes           string           `bson:"notes,omitempty" json:"notes,omitempty"`
	Version         int64            `bson:"version" json:"version"`
	AuditInfo       `bson:",inline"`
	eventRecorder
}

// NewInspectionReport opens an IN_PROGRESS inspection for a return
func NewInspectionReport(returnID, inspectorID string, inspectionDate time.Time) (*InspectionReport, error) {
	if returnID == "" {
		return nil, NewValidationError("returnId", "is required")
	}
	if inspectorID == "" {
		return nil, NewValidationError("inspectorId", "is required")
	}
	if inspectionDate.IsZero() {
		inspectionDate = Now()
	}
	return &InspectionReport{
		ID:              NewID(),
		ReturnID:        returnID,
		InspectorID:     inspectorID,
		InspectionDate:  inspectionDate,
		Status:          InspectionInProgress,
		Findings:        make([]DamageFinding, 0),
		AssessedLineIDs: make([]string, 0),
		TotalDamageCost: ZeroMoney(),
		AuditInfo:       NewAuditInfo(inspectorID),
	}, nil
}

// AddFinding records a damage finding while the inspection is in progress
func (r *InspectionReport) AddFinding(f DamageFinding) error {
	if r.Status != InspectionInProgress {
		return invalidTransition("inspection", r.ID, r.Status, InspectionInProgress)
	}
	if f.ReturnLineID == "" {
		return NewValidationError("returnLineId", "is required")
	}
	if !f.Severity.IsValid() {
		return NewValidationError("severity", "must be one of MINOR, MODERATE, MAJOR, TOTAL_LOSS")
	}
	if f.EstimatedCost.IsNegative() {
		return NewValidationError("estimatedCost", "cannot be negative")
	}
	if f.ID == "" {
		f.ID = NewID()
	}
	f.RecordedAt = Now()
	r.Findings = append(r.Findings, f)
	r.DamageFound = true
	r.TotalDamageCost = r.CalculateTotalDamageCost()
	r.MarkAssessed(f.ReturnLineID)
	return nil
}

// MarkAssessed records that a return line has been looked at
func (r *InspectionReport) MarkAssessed(returnLineID string) {
	for _, id := range r.AssessedLineIDs {
		if id == returnLineID {
			return
		}
	}
	r.AssessedLineIDs = append(r.AssessedLineIDs, returnLineID)
}

// HasAssessedAll reports whether every given line id was assessed
func (r *InspectionReport) HasAssessedAll(lineIDs []string) bool {
	seen := make(map[string]bool, len(r.AssessedLineIDs))
	for _, id := range r.AssessedLineIDs {
		seen[id] = true
	}
	for _, id := range lineIDs {
		if !seen[id] {
			return false
		}
	}
	return true
}

// CalculateTotalDamageCost sums the estimated cost of all findings
func (r *InspectionReport) CalculateTotalDamageCost() Money {
	total := ZeroMoney()
	for _, f := range r.Findings {
		total = total.Add(f.EstimatedCost)
	}
	return total
}

// DamageCostByLine sums estimated costs per return line
func (r *InspectionReport) DamageCostByLine() map[string]Money {
	costs := make(map[string]Money)
	for _, f := range r.Findings {
		costs[f.ReturnLineID] = costs[f.ReturnLineID].Add(f.EstimatedCost)
	}
	return costs
}

// Complete closes the assessment
func (r *InspectionReport) Complete(notes, by string) error {
	if err := r.transition(InspectionCompleted, by); err != nil {
		return err
	}
	r.DamageFound = len(r.Findings) > 0
	r.TotalDamageCost = r.CalculateTotalDamageCost()
	r.CompletionNotes = notes
	r.addCompletedEvent()
	return nil
}

// Approve signs off a completed inspection
func (r *InspectionReport) Approve(notes, by string) error {
	if err := r.transition(InspectionApproved, by); err != nil {
		return err
	}
	now := Now()
	r.ApprovedBy = by
	r.ApprovedAt = &now
	r.ApprovalNotes = notes
	r.addCompletedEvent()
	return nil
}

// Reject turns the inspection down. A reason is required.
func (r *InspectionReport) Reject(reason, by string) error {
	if strings.TrimSpace(reason) == "" {
		return NewValidationError("reason", "is required")
	}
	if err := r.transition(InspectionRejected, by); err != nil {
		return err
	}
	r.ApprovedBy = by
	r.RejectionReason = strings.TrimSpace(reason)
	r.ApprovalNotes = r.RejectionReason
	r.addCompletedEvent()
	return nil
}

// IsApproved reports an approved inspection
func (r *InspectionReport) IsApproved() bool {
	return r.Status == InspectionApproved
}

func (r *InspectionReport) transition(to InspectionStatus, by string) error {
	if !r.Status.CanTransitionTo(to) {
		return invalidTransition("inspection", r.ID, r.Status, to)
	}
	r.Status = to
	r.Touch(by)
	return nil
}

func (r *InspectionReport) addCompletedEvent() {
	r.AddDomainEvent(&InspectionCompletedEvent{
		InspectionID:    r.ID,
		ReturnID:        r.ReturnID,
		Status:          r.Status,
		DamageFound:     r.DamageFound,
		TotalDamageCost: r.TotalDamageCost,
		CompletedAt:     r.UpdatedAt,
	})
}

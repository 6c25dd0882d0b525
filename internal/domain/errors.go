package domain

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrConcurrentModification = errors.New("aggregate was modified concurrently")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvariantViolation     = errors.New("invariant violation")
	ErrValidation             = errors.New("validation failed")
	ErrCustomerNotFound       = errors.New("customer not found")
	ErrSKUNotFound            = errors.New("sku not found")
	ErrUnitNotFound           = errors.New("inventory unit not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrReturnNotFound         = errors.New("rental return not found")
	ErrInspectionNotFound     = errors.New("inspection report not found")
	ErrStockLevelNotFound     = errors.New("stock level not found")
	ErrDepositAlreadyReleased = errors.New("deposit already released")
	ErrDepositNotReleased     = errors.New("deposit has not been released")
	ErrNotEditable            = errors.New("not editable in its current status")
)

// InsufficientStockError is returned when a bucket would go negative
type InsufficientStockError struct {
	SKUID      string
	LocationID string
	Requested  int
	Available  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sku %s at location %s: requested %d, available %d",
		e.SKUID, e.LocationID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InvalidStateTransitionError is returned when a status table forbids a move
type InvalidStateTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot transition from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// InvariantViolationError signals corrupted aggregate state. It is never retried.
type InvariantViolationError struct {
	Aggregate string
	ID        string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violated on %s %s: %s", e.Aggregate, e.ID, e.Detail)
}

func (e *InvariantViolationError) Is(target error) bool { return target == ErrInvariantViolation }

// ValidationError describes bad input. LineNumber is set when a specific line is at fault.
type ValidationError struct {
	Field      string
	LineNumber int
	Message    string
}

func (e *ValidationError) Error() string {
	switch {
	case e.LineNumber > 0 && e.Field != "":
		return fmt.Sprintf("line %d: %s: %s", e.LineNumber, e.Field, e.Message)
	case e.LineNumber > 0:
		return fmt.Sprintf("line %d: %s", e.LineNumber, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	default:
		return e.Message
	}
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a field-level validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewLineValidationError creates a validation error for a numbered line
func NewLineValidationError(lineNumber int, field, message string) *ValidationError {
	return &ValidationError{LineNumber: lineNumber, Field: field, Message: message}
}

func invalidTransition(entity, id string, from, to fmt.Stringer) error {
	return &InvalidStateTransitionError{Entity: entity, ID: id, From: from.String(), To: to.String()}
}

package application

import (
	stderrors "errors"
	"strconv"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/rental-platform/rental-service/pkg/resilience"
)

// toAppError translates domain errors into API errors. Errors that are already
// AppErrors pass through untouched.
func toAppError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsAppError(err); ok {
		return err
	}

	var (
		validationErr *domain.ValidationError
		stockErr      *domain.InsufficientStockError
		transitionErr *domain.InvalidStateTransitionError
		invariantErr  *domain.InvariantViolationError
	)
	switch {
	case stderrors.As(err, &stockErr):
		return errors.ErrInsufficientStock(stockErr.SKUID, stockErr.LocationID, stockErr.Requested, stockErr.Available).Wrap(err)
	case stderrors.As(err, &transitionErr):
		return errors.ErrInvalidStateTransition(transitionErr.Entity, transitionErr.ID, transitionErr.From, transitionErr.To).Wrap(err)
	case stderrors.As(err, &invariantErr):
		return errors.ErrInvariantViolation(invariantErr.Error()).Wrap(err)
	case stderrors.As(err, &validationErr):
		appErr := errors.ErrValidation(validationErr.Error()).Wrap(err)
		if validationErr.Field != "" {
			appErr.WithDetail("field", validationErr.Field)
		}
		if validationErr.LineNumber > 0 {
			appErr.WithDetail("lineNumber", strconv.Itoa(validationErr.LineNumber))
		}
		return appErr
	case stderrors.Is(err, domain.ErrNotEditable),
		stderrors.Is(err, domain.ErrDepositAlreadyReleased),
		stderrors.Is(err, domain.ErrDepositNotReleased):
		return errors.ErrConflict(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrConcurrentModification):
		return errors.ErrConcurrentModification("resource", "").Wrap(err)
	case stderrors.Is(err, domain.ErrValidation), stderrors.Is(err, domain.ErrInvalidQuantity):
		return errors.ErrValidation(err.Error()).Wrap(err)
	case stderrors.Is(err, resilience.ErrCircuitOpen):
		return errors.ErrServiceUnavailable("storage").Wrap(err)
	}
	return errors.MapDomainError(err)
}

func isInvariantViolation(err error) bool {
	return stderrors.Is(err, domain.ErrInvariantViolation)
}

func isConcurrentModification(err error) bool {
	return stderrors.Is(err, domain.ErrConcurrentModification)
}

package application

import (
	"context"
	"time"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
	"github.com/rental-platform/rental-service/pkg/resilience"
	"github.com/rental-platform/rental-service/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Executor runs application operations inside a unit of work and retries the
// whole operation when an optimistic concurrency check fails.
type Executor struct {
	uow     domain.UnitOfWork
	retry   *resilience.RetryConfig
	metrics *metrics.Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewExecutor creates an Executor. maxAttempts below one falls back to the retry default.
func NewExecutor(uow domain.UnitOfWork, maxAttempts int, m *metrics.Metrics, logger *logging.Logger) *Executor {
	retry := resilience.DefaultRetryConfig()
	if maxAttempts > 0 {
		retry.MaxAttempts = maxAttempts
	}
	retry.Jitter = true
	retry.RetryableErrors = isConcurrentModification
	return &Executor{uow: uow, retry: retry, metrics: m, logger: logger, tracer: otel.Tracer("rental-application")}
}

// Run executes fn atomically. Business errors come back as AppErrors.
func (e *Executor) Run(ctx context.Context, operation string, fn func(ctx context.Context, repos domain.Repositories) error) error {
	start := time.Now()
	log := e.logger.WithContext(ctx).WithOperation(operation)

	cfg := *e.retry
	cfg.OnRetry = func(attempt int, err error) {
		e.metrics.RecordConcurrencyRetry(operation)
		log.Warn("Retrying unit of work after concurrent modification", "attempt", attempt, "error", err)
	}

	_, err := tracing.TracedOperation(ctx, e.tracer, "uow."+operation, func(ctx context.Context) (struct{}, error) {
		attempts := 0
		err := resilience.Retry(ctx, &cfg, func() error {
			attempts++
			return e.uow.Execute(ctx, fn)
		})
		trace.SpanFromContext(ctx).SetAttributes(tracing.OperationAttributes(operation, attempts)...)
		return struct{}{}, err
	})
	e.metrics.RecordUnitOfWork(operation, err == nil, time.Since(start))
	if err == nil {
		return nil
	}

	switch {
	case isInvariantViolation(err):
		e.metrics.RecordInvariantViolation(operation)
		log.WithError(err).Error("Invariant violation aborted unit of work")
	case isConcurrentModification(err):
		log.Warn("Unit of work lost every concurrency retry")
		return errors.ErrConcurrentModification(operation, "").Wrap(err)
	}
	return toAppError(err)
}

// Query runs a read-only fn in a unit of work without retries
func (e *Executor) Query(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return toAppError(e.uow.Execute(ctx, fn))
}

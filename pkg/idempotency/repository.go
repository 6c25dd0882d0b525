package idempotency

import (
	"context"
	"errors"
	"time"
)

// KeyRepository manages idempotency keys for REST APIs.
// Implementations must make AcquireLock atomic.
type KeyRepository interface {
	// AcquireLock inserts the key locked, or locks and returns the existing one.
	// The boolean is true when the key was created by this call.
	AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error)

	// ReleaseLock unlocks a key without storing a response so the request can be retried
	ReleaseLock(ctx context.Context, keyID string) error

	// StoreResponse marks the key completed and caches the response
	StoreResponse(ctx context.Context, keyID string, responseCode int, responseBody []byte, headers map[string]string) error

	// Get retrieves an idempotency key by its key string and service ID
	Get(ctx context.Context, key, serviceID string) (*IdempotencyKey, error)

	// Clean removes keys that expired before the given time and returns how many were deleted
	Clean(ctx context.Context, before time.Time) (int64, error)

	// EnsureIndexes creates the indexes the repository relies on
	EnsureIndexes(ctx context.Context) error
}

var (
	ErrKeyRequired = errors.New("idempotency key is required for this operation")
	ErrKeyInvalid  = errors.New("invalid idempotency key format")
	ErrKeyTooLong  = errors.New("idempotency key exceeds maximum length")

	// ErrNotFound is returned by Get and the lock operations for unknown keys
	ErrNotFound = errors.New("idempotency key not found")
)

package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryKeyRepository is a process-local KeyRepository used with the
// in-memory storage backend and in tests
type MemoryKeyRepository struct {
	mu   sync.Mutex
	keys map[string]*IdempotencyKey // serviceId + "/" + key
	byID map[string]string
}

// NewMemoryKeyRepository creates an empty repository
func NewMemoryKeyRepository() *MemoryKeyRepository {
	return &MemoryKeyRepository{
		keys: make(map[string]*IdempotencyKey),
		byID: make(map[string]string),
	}
}

func scopedKey(serviceID, key string) string {
	return serviceID + "/" + key
}

func cloneKey(k *IdempotencyKey) *IdempotencyKey {
	c := *k
	if k.ResponseBody != nil {
		c.ResponseBody = append([]byte(nil), k.ResponseBody...)
	}
	return &c
}

// AcquireLock implements KeyRepository
func (r *MemoryKeyRepository) AcquireLock(_ context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	sk := scopedKey(key.ServiceID, key.Key)

	existing, ok := r.keys[sk]
	if !ok {
		stored := cloneKey(key)
		stored.LockedAt = &now
		r.keys[sk] = stored
		r.byID[stored.ID] = sk
		return cloneKey(stored), true, nil
	}

	out := cloneKey(existing)
	if !existing.IsCompleted() && existing.LockedAt == nil {
		existing.LockedAt = &now
	}
	return out, false, nil
}

// ReleaseLock implements KeyRepository
func (r *MemoryKeyRepository) ReleaseLock(_ context.Context, keyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if k, ok := r.keys[r.byID[keyID]]; ok {
		k.LockedAt = nil
	}
	return nil
}

// StoreResponse implements KeyRepository
func (r *MemoryKeyRepository) StoreResponse(_ context.Context, keyID string, responseCode int, responseBody []byte, headers map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[r.byID[keyID]]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.ResponseCode = responseCode
	k.ResponseBody = append([]byte(nil), responseBody...)
	k.ResponseHeaders = headers
	k.CompletedAt = &now
	k.LockedAt = nil
	return nil
}

// Get implements KeyRepository
func (r *MemoryKeyRepository) Get(_ context.Context, key, serviceID string) (*IdempotencyKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[scopedKey(serviceID, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneKey(k), nil
}

// Clean implements KeyRepository
func (r *MemoryKeyRepository) Clean(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for sk, k := range r.keys {
		if k.ExpiresAt.Before(before) {
			delete(r.keys, sk)
			delete(r.byID, k.ID)
			n++
		}
	}
	return n, nil
}

// EnsureIndexes implements KeyRepository
func (r *MemoryKeyRepository) EnsureIndexes(context.Context) error {
	return nil
}

package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRepository struct {
	*MemoryKeyRepository
}

func (failingRepository) AcquireLock(context.Context, *IdempotencyKey) (*IdempotencyKey, bool, error) {
	return nil, false, errors.New("connection refused")
}

func testConfig(repo KeyRepository) *Config {
	return DefaultConfig("rental-service", repo)
}

func newRouter(cfg *Config, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(cfg))
	router.POST("/transactions", handler)
	router.GET("/transactions", handler)
	return router
}

func post(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestMiddleware_NoKeyOptional(t *testing.T) {
	calls := 0
	router := newRouter(testConfig(NewMemoryKeyRepository()), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"id": "t-1"})
	})

	w := post(router, "", `{"customerId":"c-1"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_NoKeyRequired(t *testing.T) {
	cfg := testConfig(NewMemoryKeyRepository())
	cfg.RequireKey = true
	router := newRouter(cfg, func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{})
	})

	w := post(router, "", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeKeyRequired, errorCode(t, w))
}

func TestMiddleware_InvalidKey(t *testing.T) {
	router := newRouter(testConfig(NewMemoryKeyRepository()), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{})
	})

	w := post(router, "bad key!", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeKeyInvalid, errorCode(t, w))
}

func TestMiddleware_ReplaysCompletedResponse(t *testing.T) {
	calls := 0
	router := newRouter(testConfig(NewMemoryKeyRepository()), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"id": "t-1", "call": calls})
	})

	first := post(router, "key-1", `{"customerId":"c-1"}`)
	second := post(router, "key-1", `{"customerId":"c-1"}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
}

func TestMiddleware_ParameterMismatch(t *testing.T) {
	router := newRouter(testConfig(NewMemoryKeyRepository()), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{})
	})

	post(router, "key-1", `{"customerId":"c-1"}`)
	w := post(router, "key-1", `{"customerId":"c-2"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, CodeParameterMismatch, errorCode(t, w))
}

func TestMiddleware_ConcurrentRequestRejected(t *testing.T) {
	repo := NewMemoryKeyRepository()
	body := `{"customerId":"c-1"}`
	now := time.Now().UTC()
	_, _, err := repo.AcquireLock(context.Background(), &IdempotencyKey{
		ID:                 "in-flight",
		Key:                "key-1",
		ServiceID:          "rental-service",
		RequestFingerprint: ComputeRequestFingerprint(http.MethodPost, "/transactions", []byte(body)),
		CreatedAt:          now,
		ExpiresAt:          now.Add(time.Hour),
	})
	require.NoError(t, err)

	router := newRouter(testConfig(repo), func(c *gin.Context) {
		t.Fatal("handler must not run while the key is locked")
	})

	w := post(router, "key-1", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeConcurrentRequest, errorCode(t, w))
}

func TestMiddleware_ServerErrorReleasesKey(t *testing.T) {
	calls := 0
	router := newRouter(testConfig(NewMemoryKeyRepository()), func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.JSON(http.StatusInternalServerError, gin.H{})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": "t-1"})
	})

	first := post(router, "key-1", `{}`)
	second := post(router, "key-1", `{}`)

	assert.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, 2, calls)
}

func TestMiddleware_ClientErrorIsCached(t *testing.T) {
	calls := 0
	router := newRouter(testConfig(NewMemoryKeyRepository()), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusConflict, gin.H{"error": gin.H{"code": "INSUFFICIENT_STOCK"}})
	})

	post(router, "key-1", `{}`)
	w := post(router, "key-1", `{}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_StorageFailure(t *testing.T) {
	router := newRouter(testConfig(failingRepository{NewMemoryKeyRepository()}), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{})
	})

	w := post(router, "key-1", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeStorageUnavailable, errorCode(t, w))
}

func TestMiddleware_SkipsReads(t *testing.T) {
	router := newRouter(testConfig(failingRepository{NewMemoryKeyRepository()}), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	req.Header.Set(HeaderIdempotencyKey, "key-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMemoryKeyRepository_Clean(t *testing.T) {
	repo := NewMemoryKeyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, err := repo.AcquireLock(ctx, &IdempotencyKey{ID: "a", Key: "old", ServiceID: "s", ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, _, err = repo.AcquireLock(ctx, &IdempotencyKey{ID: "b", Key: "new", ServiceID: "s", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	n, err := repo.Clean(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.Get(ctx, "old", "s")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Get(ctx, "new", "s")
	assert.NoError(t, err)
}

package idempotency

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/rental-platform/rental-service/pkg/middleware"
)

const (
	// HeaderIdempotencyKey is the HTTP header name for the idempotency key
	HeaderIdempotencyKey = "Idempotency-Key"

	// HeaderReplayed marks a response served from the idempotency cache
	HeaderReplayed = "Idempotent-Replayed"

	// ContextKeyIdempotencyKeyID is the gin context key holding the stored key ID
	ContextKeyIdempotencyKeyID = "idempotencyKeyId"
)

// Error codes returned by the middleware
const (
	CodeKeyRequired        = "IDEMPOTENCY_KEY_REQUIRED"
	CodeKeyInvalid         = "IDEMPOTENCY_KEY_INVALID"
	CodeParameterMismatch  = "IDEMPOTENCY_PARAMETER_MISMATCH"
	CodeConcurrentRequest  = "IDEMPOTENCY_CONCURRENT_REQUEST"
	CodeStorageUnavailable = "IDEMPOTENCY_STORAGE_UNAVAILABLE"
)

// responseWriter wraps gin.ResponseWriter to capture response data
type responseWriter struct {
	gin.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware returns a Gin middleware for idempotency
func Middleware(config *Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.OnlyMutating && !isMutatingMethod(c.Request.Method) {
			c.Next()
			return
		}

		key := NormalizeKey(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			if config.RequireKey {
				middleware.AbortWithAppError(c, errors.NewAppError(CodeKeyRequired,
					"Idempotency-Key header is required for this operation", http.StatusBadRequest))
				return
			}
			c.Next()
			return
		}

		if err := ValidateKey(key, config.MaxKeyLength); err != nil {
			middleware.AbortWithAppError(c, errors.NewAppError(CodeKeyInvalid,
				fmt.Sprintf("Invalid idempotency key: %v", err), http.StatusBadRequest))
			return
		}

		var userID string
		if config.UserIDExtractor != nil {
			userID = config.UserIDExtractor(c)
		}

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}
		fingerprint := ComputeRequestFingerprint(c.Request.Method, c.Request.URL.Path, requestBody)

		processIdempotency(c, config, key, userID, fingerprint)
	}
}

func processIdempotency(c *gin.Context, config *Config, key, userID, fingerprint string) {
	ctx := c.Request.Context()
	logger := config.logger()
	path := c.FullPath()
	startTime := time.Now()
	now := startTime.UTC()

	candidate := &IdempotencyKey{
		ID:                 uuid.New().String(),
		Key:                key,
		UserID:             userID,
		ServiceID:          config.ServiceName,
		RequestPath:        c.Request.URL.Path,
		RequestMethod:      c.Request.Method,
		RequestFingerprint: fingerprint,
		CreatedAt:          now,
		ExpiresAt:          now.Add(config.RetentionPeriod),
	}

	existingKey, isNew, err := config.Repository.AcquireLock(ctx, candidate)
	if err != nil {
		logger.Error("Failed to acquire idempotency lock",
			"error", err,
			"key", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
		)
		config.Metrics.RecordStorageError(config.ServiceName, "acquire_lock")
		middleware.AbortWithAppError(c, errors.NewAppError(CodeStorageUnavailable,
			"Idempotency storage is temporarily unavailable", http.StatusServiceUnavailable))
		return
	}

	config.Metrics.RecordLockAcquisitionDuration(config.ServiceName, path, c.Request.Method, time.Since(startTime).Seconds())

	if !isNew && existingKey.RequestFingerprint != fingerprint {
		logger.Warn("Idempotency parameter mismatch",
			"key", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
		)
		config.Metrics.RecordParameterMismatch(config.ServiceName, path, c.Request.Method)
		middleware.AbortWithAppError(c, errors.NewAppError(CodeParameterMismatch,
			"Request parameters differ from original request with this idempotency key", http.StatusUnprocessableEntity))
		return
	}

	if existingKey.IsCompleted() {
		logger.Info("Idempotency cache hit",
			"key", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
			"statusCode", existingKey.ResponseCode,
		)
		config.Metrics.RecordHit(config.ServiceName, path, c.Request.Method)

		for k, v := range existingKey.ResponseHeaders {
			c.Header(k, v)
		}
		c.Header(HeaderReplayed, "true")
		c.Data(existingKey.ResponseCode, "application/json", existingKey.ResponseBody)
		c.Abort()
		return
	}

	if !isNew && existingKey.IsLocked() {
		lockAge := time.Since(*existingKey.LockedAt)
		if lockAge < config.LockTimeout {
			logger.Warn("Concurrent idempotency request",
				"key", key,
				"service", config.ServiceName,
				"path", c.Request.URL.Path,
				"lockAge", lockAge,
			)
			config.Metrics.RecordConcurrentCollision(config.ServiceName, path, c.Request.Method)
			middleware.AbortWithAppError(c, errors.NewAppError(CodeConcurrentRequest,
				"A request with this idempotency key is currently being processed", http.StatusConflict))
			return
		}

		logger.Info("Stale idempotency lock, proceeding",
			"key", key,
			"service", config.ServiceName,
			"lockAge", lockAge,
		)
	}

	c.Set(ContextKeyIdempotencyKeyID, existingKey.ID)
	config.Metrics.RecordMiss(config.ServiceName, path, c.Request.Method)

	writer := &responseWriter{
		ResponseWriter: c.Writer,
		body:           &bytes.Buffer{},
		statusCode:     http.StatusOK,
	}
	c.Writer = writer

	c.Next()

	// Server errors are not cached; release the key so the client may retry.
	if writer.statusCode >= http.StatusInternalServerError {
		if err := config.Repository.ReleaseLock(ctx, existingKey.ID); err != nil {
			logger.Error("Failed to release idempotency lock", "error", err, "key", key)
			config.Metrics.RecordStorageError(config.ServiceName, "release_lock")
		}
		return
	}

	responseBody := writer.body.Bytes()
	if len(responseBody) > config.MaxResponseSize {
		logger.Warn("Response too large to cache",
			"key", key,
			"size", len(responseBody),
			"maxSize", config.MaxResponseSize,
		)
		responseBody = []byte(fmt.Sprintf(`{"error":{"code":"RESPONSE_NOT_CACHED","message":"response too large to cache"},"size":%d}`, len(responseBody)))
	}

	err = config.Repository.StoreResponse(ctx, existingKey.ID, writer.statusCode, responseBody, extractResponseHeaders(c))
	if err != nil {
		logger.Error("Failed to store idempotency response",
			"error", err,
			"key", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
		)
		config.Metrics.RecordStorageError(config.ServiceName, "store_response")
	}
}

func isMutatingMethod(method string) bool {
	return method == http.MethodPost ||
		method == http.MethodPut ||
		method == http.MethodPatch ||
		method == http.MethodDelete
}

func extractResponseHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string)
	for k, v := range c.Writer.Header() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return headers
}

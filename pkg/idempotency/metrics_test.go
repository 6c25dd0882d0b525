package idempotency

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	cfg := testConfig(NewMemoryKeyRepository())
	cfg.Metrics = NewMetrics(registry)
	router := newRouter(cfg, func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{})
	})

	post(router, "key-1", `{"customerId":"c-1"}`)
	post(router, "key-1", `{"customerId":"c-1"}`)
	post(router, "key-1", `{"customerId":"c-2"}`)

	requests := cfg.Metrics.requests
	assert.Equal(t, 1.0, testutil.ToFloat64(requests.WithLabelValues("rental-service", "/transactions", http.MethodPost, outcomeMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(requests.WithLabelValues("rental-service", "/transactions", http.MethodPost, outcomeHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(requests.WithLabelValues("rental-service", "/transactions", http.MethodPost, outcomeMismatch)))
}

func TestMetrics_StorageErrors(t *testing.T) {
	cfg := testConfig(failingRepository{NewMemoryKeyRepository()})
	cfg.Metrics = NewMetrics(prometheus.NewRegistry())
	router := newRouter(cfg, func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{})
	})

	post(router, "key-1", `{}`)
	assert.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.storageErrors.WithLabelValues("rental-service", "acquire_lock")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHit("s", "/x", http.MethodPost)
		m.RecordLockAcquisitionDuration("s", "/x", http.MethodPost, 0.1)
		m.RecordStorageError("s", "get")
	})
}

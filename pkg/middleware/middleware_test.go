package middleware

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupMinimal(router, DefaultConfig("rental-test", logging.NewNop().Logger))
	return router
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestErrorHandler_RendersAppError(t *testing.T) {
	router := newTestRouter()
	router.POST("/stock", func(c *gin.Context) {
		_ = c.Error(errors.ErrInsufficientStock("sku-1", "loc-main", 4, 1))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/stock", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, errors.CodeInsufficientStock, resp.Error.Code)
	assert.Equal(t, "3", resp.Error.Details["shortfall"])
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "/stock", resp.Path)
}

func TestErrorHandler_PlainErrorIsInternal(t *testing.T) {
	router := newTestRouter()
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(stderrors.New("disk on fire"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.CodeInternalError, decodeError(t, w).Error.Code)
}

func TestCloudEvents_ActorAndCorrelation(t *testing.T) {
	router := newTestRouter()
	var actor, ctxActor, correlation string
	router.GET("/whoami", func(c *gin.Context) {
		actor = GetActorID(c)
		ctxActor = logging.UserIDFromContext(c.Request.Context())
		correlation = GetCorrelationID(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderActorID, "clerk-7")
	req.Header.Set(HeaderCorrelationID, "corr-1")
	router.ServeHTTP(w, req)

	assert.Equal(t, "clerk-7", actor)
	assert.Equal(t, "clerk-7", ctxActor)
	assert.Equal(t, "corr-1", correlation)
	assert.Equal(t, "corr-1", w.Header().Get(HeaderCorrelationID))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, "system", actor)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestReadinessCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	ready := false
	router.GET("/ready", ReadinessCheck("rental-test", func(context.Context) error {
		if !ready {
			return stderrors.New("mongodb unreachable")
		}
		return nil
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "mongodb unreachable")

	ready = true
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestContentType_RejectsNonJSONBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ContentType())
	router.POST("/transactions", func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader("type=SALE"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

type lineRequest struct {
	SKU       string `json:"skuCode" binding:"required,sku"`
	Location  string `json:"locationCode" binding:"required,location_code"`
	Type      string `json:"type" binding:"required,txn_type"`
	UnitPrice string `json:"unitPrice" binding:"decimal_amount"`
	Grade     string `json:"grade" binding:"omitempty,condition_grade"`
	Severity  string `json:"severity" binding:"omitempty,severity"`
}

func bindLine(t *testing.T, body string) *errors.AppError {
	t.Helper()
	InitValidator()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/lines", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	var req lineRequest
	return BindAndValidate(c, &req)
}

func TestBindAndValidate_CustomTags(t *testing.T) {
	assert.Nil(t, bindLine(t, `{"skuCode":"PROJ-4K","locationCode":"MAIN","type":"RENTAL","unitPrice":"12.50","grade":"B","severity":"MINOR"}`))

	appErr := bindLine(t, `{"skuCode":"proj","locationCode":"main-store","type":"LEASE","unitPrice":"1.005","grade":"F","severity":"CATASTROPHIC"}`)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.CodeValidationError, appErr.Code)
	assert.Equal(t, "must be a valid SKU (uppercase alphanumeric with dashes)", appErr.Details["skuCode"])
	assert.Contains(t, appErr.Details, "locationCode")
	assert.Equal(t, "must be one of: SALE, RENTAL, PURCHASE", appErr.Details["type"])
	assert.Contains(t, appErr.Details, "unitPrice")
	assert.Contains(t, appErr.Details, "grade")
	assert.Contains(t, appErr.Details, "severity")

	assert.NotNil(t, bindLine(t, `{"skuCode":"PROJ-4K","locationCode":"MAIN","type":"RENTAL","unitPrice":"-1"}`))

	malformed := bindLine(t, `{"skuCode":`)
	require.NotNil(t, malformed)
	assert.Equal(t, errors.CodeBadRequest, malformed.Code)
}

func TestErrorResponder_RetryableConflictSetsRetryAfter(t *testing.T) {
	router := newTestRouter()
	router.PUT("/stock", func(c *gin.Context) {
		NewErrorResponder(c, nil).RespondWithAppError(errors.ErrConcurrentModification("stock level", "sl-1"))
	})
	router.GET("/missing", func(c *gin.Context) {
		NewErrorResponder(c, nil).RespondWithAppError(errors.ErrNotFound("transaction"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/stock", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))
}

func TestSetup_SecurityHeadersAndNoRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	config := DefaultConfig("rental-test", logging.NewNop().Logger)
	config.RequestTimeout = 0
	Setup(router, config)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "ROUTE_NOT_FOUND", decodeError(t, w).Error.Code)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "tent", SanitizeString("  te\x00nt \n"))
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS([]string{"https://pos.example.com"}))
	router.GET("/api/v1/transactions", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transactions", nil)
	req.Header.Set("Origin", "https://pos.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://pos.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTracingMiddleware_TagsSpanWithRequestScope(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	router := newTestRouter()
	router.Use(TracingMiddleware(DefaultTracingConfig("rental-test")))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/transactions/:transactionId", func(c *gin.Context) {
		SetSpanAttribute(c, "rental.view", "detail")
		c.Status(http.StatusServiceUnavailable)
	})

	req := httptest.NewRequest(http.MethodGet, "/transactions/txn-7", nil)
	req.Header.Set(HeaderActorID, "clerk-1")
	req.Header.Set(HeaderLocationID, "loc-main")
	router.ServeHTTP(httptest.NewRecorder(), req)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1, "health checks are not traced")
	span := spans[0]
	assert.Equal(t, "GET /transactions/:transactionId", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)

	attrs := map[string]string{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "txn-7", attrs["rental.transactionId"])
	assert.Equal(t, "loc-main", attrs["rental.location_id"])
	assert.Equal(t, "clerk-1", attrs["rental.actor_id"])
	assert.Equal(t, "detail", attrs["rental.view"])
}

func TestRecovery_PanicBecomesInternalError(t *testing.T) {
	router := newTestRouter()
	router.GET("/boom", func(c *gin.Context) { panic("nil stock level") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.CodeInternalError, decodeError(t, w).Error.Code)
}

func TestRequestID_EchoesOrGenerates(t *testing.T) {
	router := newTestRouter()
	var seen string
	router.GET("/ping", func(c *gin.Context) {
		seen = GetRequestID(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
	assert.NotEmpty(t, w.Header().Get(HeaderCorrelationID))
}

func TestMetricsMiddleware_LabelsByRoute(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("rental-test"))
	router := newTestRouter()
	router.Use(MetricsMiddleware(m))
	router.GET("/metrics", MetricsEndpoint(m))
	router.GET("/units/:unitId", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/units/u-1", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/units/u-2", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("rental-test", http.MethodGet, "/units/:unitId", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("rental-test", http.MethodGet, "unmatched", "404")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rental_http_requests_total")
}

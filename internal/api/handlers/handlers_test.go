package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rental-platform/rental-service/internal/application"
	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/internal/infrastructure/memory"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
	"github.com/rental-platform/rental-service/pkg/middleware"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	store.AddLocation(domain.LocationInfo{ID: "loc-1", Code: "MAIN", Name: "Main store", IsActive: true})
	store.AddLocation(domain.LocationInfo{ID: "loc-2", Code: "EAST", Name: "East depot", IsActive: true})
	store.AddCustomer(domain.CustomerInfo{ID: "cust-1", Name: "Ada", IsActive: true})
	store.AddSKU(domain.SKUInfo{
		ID: "sku-chair", SKUCode: "CHAIR", Name: "Folding chair", IsActive: true,
		IsSaleable: true, IsRentable: true,
		SalePrice:        domain.MustMoney("40.00"),
		RentalRatePerDay: domain.MustMoney("5.00"),
		SecurityDeposit:  domain.MustMoney("10.00"),
	})

	m := metrics.New(metrics.DefaultConfig("rental-test"))
	logger := logging.NewNop()
	exec := application.NewExecutor(store, 3, m, logger)

	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig("rental-test", logger.Logger))
	v1 := router.Group("/api/v1")
	NewTransactionHandlers(application.NewTransactionApplicationService(exec, m, logger), logger).RegisterRoutes(v1)
	NewReturnHandlers(application.NewReturnApplicationService(exec, m, logger), logger).RegisterRoutes(v1)
	NewInventoryHandlers(application.NewInventoryApplicationService(exec, m, logger), logger).RegisterRoutes(v1)
	return router
}

func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.HeaderActorID, "clerk")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) middleware.APIError {
	t.Helper()
	return decode[middleware.APIErrorResponse](t, rec).Error
}

func receiveChairs(t *testing.T, router *gin.Engine, q int) {
	t.Helper()
	rec := performRequest(router, http.MethodPost, "/api/v1/inventory/stock/receive", map[string]interface{}{
		"skuId": "sku-chair", "locationId": "loc-1", "quantity": q,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func bookRental(t *testing.T, router *gin.Engine, quantity int) application.TransactionDTO {
	t.Helper()
	rec := performRequest(router, http.MethodPost, "/api/v1/transactions", map[string]interface{}{
		"transactionType": "RENTAL",
		"customerId":      "cust-1",
		"locationId":      "loc-1",
		"transactionDate": "2024-03-01T10:00:00Z",
		"rentalStartDate": "2024-03-01T10:00:00Z",
		"rentalEndDate":   "2024-03-10T10:00:00Z",
		"autoReserve":     true,
		"lines":           []map[string]interface{}{{"skuId": "sku-chair", "quantity": quantity}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[application.TransactionDTO](t, rec)
}

func TestRentalLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	receiveChairs(t, router, 5)

	txn := bookRental(t, router, 2)
	assert.Equal(t, "PENDING", txn.Status)
	assert.Equal(t, "100.00", txn.TotalAmount.String())
	assert.Equal(t, "clerk", txn.CreatedBy)

	rec := performRequest(router, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/payments", map[string]string{
		"amount": txn.TotalAmount.String(), "method": "CASH",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CONFIRMED", decode[application.TransactionDTO](t, rec).Status)

	rec = performRequest(router, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/pickup", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "IN_PROGRESS", decode[application.TransactionDTO](t, rec).Status)

	rec = performRequest(router, http.MethodGet,
		"/api/v1/transactions/"+txn.ID+"/late-fee?lateFeeKind=FIXED_DAILY&dailyRate=4.00&asOf=2024-03-12T10:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fee := decode[application.LateFeeDTO](t, rec)
	assert.True(t, fee.Projected)
	assert.Equal(t, "8.00", fee.TotalLateFee.String())

	rec = performRequest(router, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/complete-return", map[string]interface{}{
		"returnDate":    "2024-03-10T10:00:00Z",
		"lateFeePolicy": map[string]string{"kind": "FIXED_DAILY", "dailyRate": "4.00"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ret := decode[application.RentalReturnDTO](t, rec)
	assert.Equal(t, "COMPLETED", ret.ReturnStatus)
	assert.Equal(t, 0, ret.DaysLate)

	rec = performRequest(router, http.MethodGet, "/api/v1/transactions/"+txn.ID+"/returns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]interface{}](t, rec)["count"])

	rec = performRequest(router, http.MethodGet, "/api/v1/inventory/stock/sku-chair/locations/loc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decode[application.StockLevelDTO](t, rec).QuantityAvailable)
}

func TestCreateTransaction_BindingErrorsNameFields(t *testing.T) {
	router := newTestRouter(t)

	rec := performRequest(router, http.MethodPost, "/api/v1/transactions", map[string]interface{}{
		"transactionType": "LEASE",
		"locationId":      "loc-1",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	apiErr := errorBody(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	assert.Contains(t, apiErr.Details, "transactionType")
	assert.Contains(t, apiErr.Details, "customerId")
	assert.Contains(t, apiErr.Details, "lines")
}

func TestCreateTransaction_InsufficientStockIsConflict(t *testing.T) {
	router := newTestRouter(t)
	receiveChairs(t, router, 1)

	rec := performRequest(router, http.MethodPost, "/api/v1/transactions", map[string]interface{}{
		"transactionType": "RENTAL",
		"customerId":      "cust-1",
		"locationId":      "loc-1",
		"rentalStartDate": "2024-03-01T10:00:00Z",
		"rentalEndDate":   "2024-03-03T10:00:00Z",
		"autoReserve":     true,
		"lines":           []map[string]interface{}{{"skuId": "sku-chair", "quantity": 2}},
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	apiErr := errorBody(t, rec)
	assert.Equal(t, "INSUFFICIENT_STOCK", apiErr.Code)
	assert.Equal(t, "1", apiErr.Details["available"])
}

func TestProcessPayment_RejectsMalformedAmount(t *testing.T) {
	router := newTestRouter(t)
	receiveChairs(t, router, 2)
	txn := bookRental(t, router, 1)

	rec := performRequest(router, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/payments", map[string]string{
		"amount": "12.345", "method": "CASH",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec).Details, "amount")
}

func TestGetTransaction_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/api/v1/transactions/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RESOURCE_NOT_FOUND", errorBody(t, rec).Code)
}

func TestListTransactions_Paginates(t *testing.T) {
	router := newTestRouter(t)
	receiveChairs(t, router, 5)
	for i := 0; i < 3; i++ {
		bookRental(t, router, 1)
	}

	rec := performRequest(router, http.MethodGet, "/api/v1/transactions?transactionType=RENTAL&page=2&pageSize=2", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[struct {
		Data       []application.TransactionDTO `json:"data"`
		TotalItems int64                        `json:"totalItems"`
		HasPrev    bool                         `json:"hasPrev"`
		HasNext    bool                         `json:"hasNext"`
	}](t, rec)
	assert.EqualValues(t, 3, page.TotalItems)
	assert.Len(t, page.Data, 1)
	assert.True(t, page.HasPrev)
	assert.False(t, page.HasNext)
}

func TestListTransactions_LocationHeaderScopesResults(t *testing.T) {
	router := newTestRouter(t)
	receiveChairs(t, router, 2)
	bookRental(t, router, 1)

	count := func(path, location string) int64 {
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(middleware.HeaderLocationID, location)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[struct {
			TotalItems int64 `json:"totalItems"`
		}](t, rec).TotalItems
	}

	assert.EqualValues(t, 1, count("/api/v1/transactions", "loc-1"))
	assert.EqualValues(t, 0, count("/api/v1/transactions", "loc-2"))
	assert.EqualValues(t, 1, count("/api/v1/transactions?locationId=loc-1", "loc-2"))
}

func TestCancelTransaction_ReleasesByDefault(t *testing.T) {
	router := newTestRouter(t)
	receiveChairs(t, router, 2)
	txn := bookRental(t, router, 2)

	rec := performRequest(router, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/cancel", map[string]string{
		"reason": "customer changed plans",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CANCELLED", decode[application.TransactionDTO](t, rec).Status)

	rec = performRequest(router, http.MethodGet, "/api/v1/inventory/availability?skuId=sku-chair&locationId=loc-1&quantity=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[application.AvailabilityDTO](t, rec).CanFulfill)
}

func TestCheckAvailability_RequiresQuantity(t *testing.T) {
	router := newTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/api/v1/inventory/availability?skuId=sku-chair", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec).Details, "quantity")
}

func TestTransfer_SameLocationRejectedAtBinding(t *testing.T) {
	router := newTestRouter(t)

	rec := performRequest(router, http.MethodPost, "/api/v1/inventory/transfers", map[string]interface{}{
		"skuId": "sku-chair", "fromLocationId": "loc-1", "toLocationId": "loc-1", "quantity": 1,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec).Details, "toLocationId")
}

func TestTransfer_StartAndComplete(t *testing.T) {
	router := newTestRouter(t)
	receiveChairs(t, router, 4)
	body := map[string]interface{}{
		"skuId": "sku-chair", "fromLocationId": "loc-1", "toLocationId": "loc-2", "quantity": 3,
	}

	rec := performRequest(router, http.MethodPost, "/api/v1/inventory/transfers", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = performRequest(router, http.MethodPost, "/api/v1/inventory/transfers/complete", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = performRequest(router, http.MethodGet, "/api/v1/inventory/stock/sku-chair", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stock := decode[application.SKUStockDTO](t, rec)
	assert.Equal(t, 4, stock.TotalAvailable)
	assert.Len(t, stock.Locations, 2)
}

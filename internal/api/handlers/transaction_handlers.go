package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rental-platform/rental-service/internal/application"
	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/api"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/middleware"
)

// TransactionService is the application surface used by the transaction routes
type TransactionService interface {
	CreateTransaction(ctx context.Context, cmd application.CreateTransactionCommand) (*application.TransactionDTO, error)
	GetTransaction(ctx context.Context, query application.GetTransactionQuery) (*application.TransactionDTO, error)
	ListTransactions(ctx context.Context, query application.ListTransactionsQuery) (*application.TransactionListDTO, error)
	UpdateTransaction(ctx context.Context, cmd application.UpdateTransactionCommand) (*application.TransactionDTO, error)
	DeleteTransaction(ctx context.Context, cmd application.DeleteTransactionCommand) error
	ProcessPayment(ctx context.Context, cmd application.ProcessPaymentCommand) (*application.TransactionDTO, error)
	PickupRental(ctx context.Context, cmd application.PickupRentalCommand) (*application.TransactionDTO, error)
	ExtendRental(ctx context.Context, cmd application.ExtendRentalCommand) (*application.TransactionDTO, error)
	CancelTransaction(ctx context.Context, cmd application.CancelTransactionCommand) (*application.TransactionDTO, error)
	RefundTransaction(ctx context.Context, cmd application.RefundTransactionCommand) (*application.TransactionDTO, error)
	FulfillSale(ctx context.Context, cmd application.FulfillSaleCommand) (*application.TransactionDTO, error)
	RecordCompletedSale(ctx context.Context, cmd application.RecordCompletedSaleCommand) (*application.TransactionDTO, error)
	RecordCompletedPurchase(ctx context.Context, cmd application.RecordCompletedPurchaseCommand) (*application.TransactionDTO, error)
	CreateBatchPurchase(ctx context.Context, cmd application.CreateBatchPurchaseCommand) (*application.BatchPurchaseResultDTO, error)
	CustomerHistory(ctx context.Context, query application.CustomerHistoryQuery) (*application.CustomerHistoryDTO, error)
	OverdueRentals(ctx context.Context, query application.OverdueRentalsQuery) ([]application.OverdueRentalDTO, error)
}

// TransactionHandlers contains handlers for sale, rental and purchase operations
type TransactionHandlers struct {
	service TransactionService
	logger  *logging.Logger
}

// NewTransactionHandlers creates a new TransactionHandlers
func NewTransactionHandlers(service TransactionService, logger *logging.Logger) *TransactionHandlers {
	return &TransactionHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers transaction routes on the router
func (h *TransactionHandlers) RegisterRoutes(router *gin.RouterGroup) {
	txns := router.Group("/transactions")
	{
		txns.POST("", h.CreateTransaction)
		txns.GET("", h.ListTransactions)
		txns.GET("/overdue", h.OverdueRentals)
		txns.GET("/number/:number", h.GetTransactionByNumber)
		txns.GET("/:transactionId", h.GetTransaction)
		txns.PATCH("/:transactionId", h.UpdateTransaction)
		txns.DELETE("/:transactionId", h.DeleteTransaction)
		txns.POST("/:transactionId/payments", h.ProcessPayment)
		txns.POST("/:transactionId/pickup", h.PickupRental)
		txns.POST("/:transactionId/extend", h.ExtendRental)
		txns.POST("/:transactionId/cancel", h.CancelTransaction)
		txns.POST("/:transactionId/refund", h.RefundTransaction)
		txns.POST("/:transactionId/fulfill", h.FulfillSale)
	}

	router.POST("/sales/completed", h.RecordCompletedSale)
	router.POST("/purchases", h.RecordCompletedPurchase)
	router.POST("/purchases/batch", h.CreateBatchPurchase)
	router.GET("/customers/:customerId/history", h.CustomerHistory)
}

type lineRequest struct {
	SKUID              string   `json:"skuId" binding:"required"`
	Description        string   `json:"description" binding:"omitempty,max=500,safe_string"`
	Quantity           int      `json:"quantity" binding:"required,min=1"`
	UnitPrice          *string  `json:"unitPrice" binding:"omitempty,decimal_amount"`
	DailyRate          *string  `json:"dailyRate" binding:"omitempty,decimal_amount"`
	DiscountPercentage string   `json:"discountPercentage"`
	DiscountAmount     string   `json:"discountAmount" binding:"omitempty,decimal_amount"`
	TaxRate            string   `json:"taxRate"`
	UnitIDs            []string `json:"unitIds"`
}

func (a *amounts) lines(reqs []lineRequest) []application.TransactionLineInput {
	lines := make([]application.TransactionLineInput, 0, len(reqs))
	for i, l := range reqs {
		prefix := "lines[" + strconv.Itoa(i) + "]."
		lines = append(lines, application.TransactionLineInput{
			SKUID:              l.SKUID,
			Description:        l.Description,
			Quantity:           l.Quantity,
			UnitPrice:          a.optional(prefix+"unitPrice", l.UnitPrice),
			DailyRate:          a.optional(prefix+"dailyRate", l.DailyRate),
			DiscountPercentage: a.percentage(prefix+"discountPercentage", l.DiscountPercentage),
			DiscountAmount:     a.money(prefix+"discountAmount", l.DiscountAmount),
			TaxRate:            a.percentage(prefix+"taxRate", l.TaxRate),
			UnitIDs:            l.UnitIDs,
		})
	}
	return lines
}

// CreateTransaction handles booking a sale or rental
func (h *TransactionHandlers) CreateTransaction(c *gin.Context) {
	var req struct {
		TransactionType string        `json:"transactionType" binding:"required,txn_type"`
		CustomerID      string        `json:"customerId" binding:"required"`
		LocationID      string        `json:"locationId" binding:"required"`
		TransactionDate *time.Time    `json:"transactionDate"`
		RentalStartDate *time.Time    `json:"rentalStartDate"`
		RentalEndDate   *time.Time    `json:"rentalEndDate"`
		DepositAmount   *string       `json:"depositAmount" binding:"omitempty,decimal_amount"`
		Lines           []lineRequest `json:"lines" binding:"required,min=1,dive"`
		DiscountAmount  string        `json:"discountAmount" binding:"omitempty,decimal_amount"`
		TaxRate         string        `json:"taxRate"`
		AutoReserve     bool          `json:"autoReserve"`
		Notes           string        `json:"notes" binding:"omitempty,max=2000,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}

	var a amounts
	cmd := application.CreateTransactionCommand{
		TransactionType: domain.TransactionType(req.TransactionType),
		CustomerID:      req.CustomerID,
		LocationID:      req.LocationID,
		TransactionDate: time.Now().UTC(),
		RentalStartDate: req.RentalStartDate,
		RentalEndDate:   req.RentalEndDate,
		DepositAmount:   a.optional("depositAmount", req.DepositAmount),
		Lines:           a.lines(req.Lines),
		HeaderDiscount:  a.money("discountAmount", req.DiscountAmount),
		TaxRate:         a.percentage("taxRate", req.TaxRate),
		AutoReserve:     req.AutoReserve,
		Notes:           req.Notes,
		CreatedBy:       middleware.GetActorID(c),
	}
	if req.TransactionDate != nil {
		cmd.TransactionDate = *req.TransactionDate
	}
	if !a.check(c, h.logger) {
		return
	}

	txn, err := h.service.CreateTransaction(c.Request.Context(), cmd)
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, txn)
}

// GetTransaction handles getting a transaction by ID
func (h *TransactionHandlers) GetTransaction(c *gin.Context) {
	id := c.Param("transactionId")
	spanAttr(c, "transaction.id", id)

	txn, err := h.service.GetTransaction(c.Request.Context(), application.GetTransactionQuery{ID: id})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// GetTransactionByNumber handles getting a transaction by its human readable number
func (h *TransactionHandlers) GetTransactionByNumber(c *gin.Context) {
	txn, err := h.service.GetTransaction(c.Request.Context(), application.GetTransactionQuery{Number: c.Param("number")})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// ListTransactions handles filtered, paginated transaction listing
func (h *TransactionHandlers) ListTransactions(c *gin.Context) {
	from, appErr := api.ParseOptionalTimeQuery(c, "from")
	if appErr != nil {
		respond(c, h.logger, appErr)
		return
	}
	to, appErr := api.ParseOptionalTimeQuery(c, "to")
	if appErr != nil {
		respond(c, h.logger, appErr)
		return
	}
	page := api.ParsePagination(c)
	sort := api.ParseSort(c, "transactionDate",
		"transactionDate", "transactionNumber", "totalAmount", "createdAt", "updatedAt")

	result, err := h.service.ListTransactions(c.Request.Context(), application.ListTransactionsQuery{
		TransactionType: domain.TransactionType(c.Query("transactionType")),
		Status:          domain.TransactionStatus(c.Query("status")),
		PaymentStatus:   domain.PaymentStatus(c.Query("paymentStatus")),
		CustomerID:      c.Query("customerId"),
		LocationID:      locationFilter(c),
		From:            from,
		To:              to,
		IncludeDeleted:  c.Query("includeDeleted") == "true",
		SortBy:          sort.Field,
		Descending:      sort.Descending,
		Limit:           page.Limit(),
		Offset:          page.Offset(),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, api.NewPageResponse(result.Transactions, page, result.Total))
}

// UpdateTransaction handles edits to a draft or pending transaction
func (h *TransactionHandlers) UpdateTransaction(c *gin.Context) {
	var req struct {
		Notes           *string    `json:"notes" binding:"omitempty,max=2000,safe_string"`
		CustomerID      *string    `json:"customerId"`
		RentalStartDate *time.Time `json:"rentalStartDate"`
		RentalEndDate   *time.Time `json:"rentalEndDate"`
	}
	if !bind(c, h.logger, &req) {
		return
	}

	txn, err := h.service.UpdateTransaction(c.Request.Context(), application.UpdateTransactionCommand{
		TransactionID:   c.Param("transactionId"),
		Notes:           req.Notes,
		CustomerID:      req.CustomerID,
		RentalStartDate: req.RentalStartDate,
		RentalEndDate:   req.RentalEndDate,
		UpdatedBy:       middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// DeleteTransaction handles soft deletion
func (h *TransactionHandlers) DeleteTransaction(c *gin.Context) {
	err := h.service.DeleteTransaction(c.Request.Context(), application.DeleteTransactionCommand{
		TransactionID: c.Param("transactionId"),
		DeletedBy:     middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type paymentRequest struct {
	Amount    string `json:"amount" binding:"required,decimal_amount"`
	Method    string `json:"method" binding:"required,oneof=CASH CREDIT_CARD DEBIT_CARD BANK_TRANSFER CHEQUE STORE_CREDIT"`
	Reference string `json:"reference" binding:"omitempty,max=100,safe_string"`
}

// ProcessPayment handles a payment against a transaction
func (h *TransactionHandlers) ProcessPayment(c *gin.Context) {
	var req paymentRequest
	if !bind(c, h.logger, &req) {
		return
	}
	var a amounts
	amount := a.money("amount", req.Amount)
	if !a.check(c, h.logger) {
		return
	}

	txn, err := h.service.ProcessPayment(c.Request.Context(), application.ProcessPaymentCommand{
		TransactionID: c.Param("transactionId"),
		Amount:        amount,
		Method:        domain.PaymentMethod(req.Method),
		Reference:     req.Reference,
		ProcessedBy:   middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// PickupRental handles handing rented goods to the customer
func (h *TransactionHandlers) PickupRental(c *gin.Context) {
	var req struct {
		UnitIDs        []string `json:"unitIds"`
		ConditionNotes string   `json:"conditionNotes" binding:"omitempty,max=2000,safe_string"`
	}
	if c.Request.ContentLength > 0 && !bind(c, h.logger, &req) {
		return
	}

	txn, err := h.service.PickupRental(c.Request.Context(), application.PickupRentalCommand{
		TransactionID:  c.Param("transactionId"),
		UnitIDs:        req.UnitIDs,
		ConditionNotes: req.ConditionNotes,
		PickedUpBy:     middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// ExtendRental handles moving a rental end date
func (h *TransactionHandlers) ExtendRental(c *gin.Context) {
	var req struct {
		NewEndDate        time.Time `json:"newEndDate" binding:"required"`
		AdditionalPayment *string   `json:"additionalPayment" binding:"omitempty,decimal_amount"`
		PaymentMethod     string    `json:"paymentMethod"`
		PaymentReference  string    `json:"paymentReference" binding:"omitempty,max=100,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	var a amounts
	payment := a.optional("additionalPayment", req.AdditionalPayment)
	if !a.check(c, h.logger) {
		return
	}

	txn, err := h.service.ExtendRental(c.Request.Context(), application.ExtendRentalCommand{
		TransactionID:     c.Param("transactionId"),
		NewEndDate:        req.NewEndDate,
		AdditionalPayment: payment,
		PaymentMethod:     domain.PaymentMethod(req.PaymentMethod),
		PaymentReference:  req.PaymentReference,
		ExtendedBy:        middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// CancelTransaction handles cancellation, optionally giving held stock back
func (h *TransactionHandlers) CancelTransaction(c *gin.Context) {
	var req struct {
		Reason           string `json:"reason" binding:"required,max=500,safe_string"`
		ReleaseInventory *bool  `json:"releaseInventory"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	release := true
	if req.ReleaseInventory != nil {
		release = *req.ReleaseInventory
	}

	txn, err := h.service.CancelTransaction(c.Request.Context(), application.CancelTransactionCommand{
		TransactionID:    c.Param("transactionId"),
		Reason:           req.Reason,
		ReleaseInventory: release,
		CancelledBy:      middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// RefundTransaction handles a refund of a completed transaction
func (h *TransactionHandlers) RefundTransaction(c *gin.Context) {
	var req struct {
		paymentRequest
		Reason string `json:"reason" binding:"omitempty,max=500,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	var a amounts
	amount := a.money("amount", req.Amount)
	if !a.check(c, h.logger) {
		return
	}

	txn, err := h.service.RefundTransaction(c.Request.Context(), application.RefundTransactionCommand{
		TransactionID: c.Param("transactionId"),
		Amount:        amount,
		Method:        domain.PaymentMethod(req.Method),
		Reason:        req.Reason,
		RefundedBy:    middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// FulfillSale handles handing over a confirmed sale
func (h *TransactionHandlers) FulfillSale(c *gin.Context) {
	txn, err := h.service.FulfillSale(c.Request.Context(), application.FulfillSaleCommand{
		TransactionID: c.Param("transactionId"),
		FulfilledBy:   middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// RecordCompletedSale handles a walk-in sale paid in full
func (h *TransactionHandlers) RecordCompletedSale(c *gin.Context) {
	var req struct {
		CustomerID       string        `json:"customerId" binding:"required"`
		LocationID       string        `json:"locationId" binding:"required"`
		Lines            []lineRequest `json:"lines" binding:"required,min=1,dive"`
		DiscountAmount   string        `json:"discountAmount" binding:"omitempty,decimal_amount"`
		TaxRate          string        `json:"taxRate"`
		PaymentMethod    string        `json:"paymentMethod" binding:"required"`
		PaymentReference string        `json:"paymentReference" binding:"omitempty,max=100,safe_string"`
		Notes            string        `json:"notes" binding:"omitempty,max=2000,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	var a amounts
	cmd := application.RecordCompletedSaleCommand{
		CustomerID:       req.CustomerID,
		LocationID:       req.LocationID,
		Lines:            a.lines(req.Lines),
		HeaderDiscount:   a.money("discountAmount", req.DiscountAmount),
		TaxRate:          a.percentage("taxRate", req.TaxRate),
		PaymentMethod:    domain.PaymentMethod(req.PaymentMethod),
		PaymentReference: req.PaymentReference,
		Notes:            req.Notes,
		SoldBy:           middleware.GetActorID(c),
	}
	if !a.check(c, h.logger) {
		return
	}

	txn, err := h.service.RecordCompletedSale(c.Request.Context(), cmd)
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, txn)
}

type purchaseLineRequest struct {
	SKUID          string   `json:"skuId" binding:"required"`
	Description    string   `json:"description" binding:"omitempty,max=500,safe_string"`
	Quantity       int      `json:"quantity" binding:"required,min=1"`
	UnitCost       string   `json:"unitCost" binding:"required,decimal_amount"`
	TaxRate        string   `json:"taxRate"`
	SerialNumbers  []string `json:"serialNumbers"`
	ConditionGrade string   `json:"conditionGrade" binding:"omitempty,condition_grade"`
}

func (a *amounts) purchaseLines(field string, reqs []purchaseLineRequest) []application.PurchaseLineInput {
	lines := make([]application.PurchaseLineInput, 0, len(reqs))
	for i, l := range reqs {
		prefix := field + "[" + strconv.Itoa(i) + "]."
		lines = append(lines, application.PurchaseLineInput{
			SKUID:          l.SKUID,
			Description:    l.Description,
			Quantity:       l.Quantity,
			UnitCost:       a.money(prefix+"unitCost", l.UnitCost),
			TaxRate:        a.percentage(prefix+"taxRate", l.TaxRate),
			SerialNumbers:  l.SerialNumbers,
			ConditionGrade: domain.ConditionGrade(l.ConditionGrade),
		})
	}
	return lines
}

// RecordCompletedPurchase handles goods received from a supplier
func (h *TransactionHandlers) RecordCompletedPurchase(c *gin.Context) {
	var req struct {
		SupplierID       string                `json:"supplierId" binding:"required"`
		LocationID       string                `json:"locationId" binding:"required"`
		Lines            []purchaseLineRequest `json:"lines" binding:"required,min=1,dive"`
		PaymentMethod    string                `json:"paymentMethod" binding:"required"`
		PaymentReference string                `json:"paymentReference" binding:"omitempty,max=100,safe_string"`
		Notes            string                `json:"notes" binding:"omitempty,max=2000,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	var a amounts
	cmd := application.RecordCompletedPurchaseCommand{
		SupplierID:       req.SupplierID,
		LocationID:       req.LocationID,
		Lines:            a.purchaseLines("lines", req.Lines),
		PaymentMethod:    domain.PaymentMethod(req.PaymentMethod),
		PaymentReference: req.PaymentReference,
		Notes:            req.Notes,
		ReceivedBy:       middleware.GetActorID(c),
	}
	if !a.check(c, h.logger) {
		return
	}

	txn, err := h.service.RecordCompletedPurchase(c.Request.Context(), cmd)
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, txn)
}

// CreateBatchPurchase handles creating catalog items together with the purchase that stocks them
func (h *TransactionHandlers) CreateBatchPurchase(c *gin.Context) {
	type newItemRequest struct {
		ItemName         string   `json:"itemName" binding:"required,max=200,safe_string"`
		ItemCode         string   `json:"itemCode"`
		SKUCode          string   `json:"skuCode" binding:"required,sku"`
		Description      string   `json:"description" binding:"omitempty,max=500,safe_string"`
		CategoryID       string   `json:"categoryId"`
		BrandID          string   `json:"brandId"`
		IsSaleable       bool     `json:"isSaleable"`
		IsRentable       bool     `json:"isRentable"`
		MinRentalDays    int      `json:"minRentalDays" binding:"min=0"`
		MaxRentalDays    int      `json:"maxRentalDays" binding:"min=0"`
		SalePrice        string   `json:"salePrice" binding:"omitempty,decimal_amount"`
		RentalRatePerDay string   `json:"rentalRatePerDay" binding:"omitempty,decimal_amount"`
		SecurityDeposit  string   `json:"securityDeposit" binding:"omitempty,decimal_amount"`
		TracksUnits      bool     `json:"tracksUnits"`
		Quantity         int      `json:"quantity" binding:"required,min=1"`
		UnitCost         string   `json:"unitCost" binding:"required,decimal_amount"`
		SerialNumbers    []string `json:"serialNumbers"`
		ConditionGrade   string   `json:"conditionGrade" binding:"omitempty,condition_grade"`
	}
	var req struct {
		SupplierID       string                `json:"supplierId" binding:"required"`
		LocationID       string                `json:"locationId" binding:"required"`
		NewItems         []newItemRequest      `json:"newItems" binding:"dive"`
		ExistingLines    []purchaseLineRequest `json:"existingLines" binding:"dive"`
		PaymentMethod    string                `json:"paymentMethod" binding:"required"`
		PaymentReference string                `json:"paymentReference" binding:"omitempty,max=100,safe_string"`
		Notes            string                `json:"notes" binding:"omitempty,max=2000,safe_string"`
		ValidateOnly     bool                  `json:"validateOnly"`
	}
	if !bind(c, h.logger, &req) {
		return
	}

	var a amounts
	actor := middleware.GetActorID(c)
	items := make([]application.BatchPurchaseItem, 0, len(req.NewItems))
	for i, it := range req.NewItems {
		prefix := "newItems[" + strconv.Itoa(i) + "]."
		items = append(items, application.BatchPurchaseItem{
			Item: domain.NewCatalogItem{
				ItemName:         it.ItemName,
				ItemCode:         it.ItemCode,
				SKUCode:          it.SKUCode,
				Description:      it.Description,
				CategoryID:       it.CategoryID,
				BrandID:          it.BrandID,
				IsSaleable:       it.IsSaleable,
				IsRentable:       it.IsRentable,
				MinRentalDays:    it.MinRentalDays,
				MaxRentalDays:    it.MaxRentalDays,
				SalePrice:        a.money(prefix+"salePrice", it.SalePrice),
				RentalRatePerDay: a.money(prefix+"rentalRatePerDay", it.RentalRatePerDay),
				SecurityDeposit:  a.money(prefix+"securityDeposit", it.SecurityDeposit),
				TracksUnits:      it.TracksUnits,
				CreatedBy:        actor,
			},
			Quantity:       it.Quantity,
			UnitCost:       a.money(prefix+"unitCost", it.UnitCost),
			SerialNumbers:  it.SerialNumbers,
			ConditionGrade: domain.ConditionGrade(it.ConditionGrade),
		})
	}
	cmd := application.CreateBatchPurchaseCommand{
		SupplierID:       req.SupplierID,
		LocationID:       req.LocationID,
		NewItems:         items,
		ExistingLines:    a.purchaseLines("existingLines", req.ExistingLines),
		PaymentMethod:    domain.PaymentMethod(req.PaymentMethod),
		PaymentReference: req.PaymentReference,
		Notes:            req.Notes,
		ValidateOnly:     req.ValidateOnly,
		CreatedBy:        actor,
	}
	if !a.check(c, h.logger) {
		return
	}

	result, err := h.service.CreateBatchPurchase(c.Request.Context(), cmd)
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	status := http.StatusCreated
	if req.ValidateOnly {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// CustomerHistory handles a customer's transaction summary
func (h *TransactionHandlers) CustomerHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	history, err := h.service.CustomerHistory(c.Request.Context(), application.CustomerHistoryQuery{
		CustomerID: c.Param("customerId"),
		Limit:      limit,
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// OverdueRentals handles listing rentals past their end date
func (h *TransactionHandlers) OverdueRentals(c *gin.Context) {
	asOf, appErr := api.ParseTimeQuery(c, "asOf", time.Now().UTC())
	if appErr != nil {
		respond(c, h.logger, appErr)
		return
	}

	overdue, err := h.service.OverdueRentals(c.Request.Context(), application.OverdueRentalsQuery{
		AsOf:       asOf,
		LocationID: locationFilter(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rentals": overdue,
		"count":   len(overdue),
	})
}

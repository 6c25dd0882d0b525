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

// InventoryService is the application surface used by the inventory routes
type InventoryService interface {
	RegisterUnit(ctx context.Context, cmd application.RegisterUnitCommand) (*application.InventoryUnitDTO, error)
	GetUnit(ctx context.Context, id string) (*application.InventoryUnitDTO, error)
	ListUnits(ctx context.Context, query application.ListUnitsQuery) (*application.UnitListDTO, error)
	InspectUnit(ctx context.Context, cmd application.InspectUnitCommand) (*application.InventoryUnitDTO, error)
	RetireUnit(ctx context.Context, cmd application.RetireUnitCommand) (*application.InventoryUnitDTO, error)
	UpdateUnitValue(ctx context.Context, cmd application.UpdateUnitValueCommand) (*application.InventoryUnitDTO, error)
	ReceiveStock(ctx context.Context, cmd application.ReceiveStockCommand) (*application.StockLevelDTO, error)
	StartTransfer(ctx context.Context, cmd application.TransferCommand) (*application.StockLevelDTO, error)
	CompleteTransfer(ctx context.Context, cmd application.TransferCommand) (*application.StockLevelDTO, error)
	CancelTransfer(ctx context.Context, cmd application.TransferCommand) (*application.StockLevelDTO, error)
	MarkDamaged(ctx context.Context, cmd application.DamageStockCommand) (*application.StockLevelDTO, error)
	RepairDamaged(ctx context.Context, cmd application.DamageStockCommand) (*application.StockLevelDTO, error)
	WriteOffDamaged(ctx context.Context, cmd application.DamageStockCommand) (*application.StockLevelDTO, error)
	UpdateReorderLevels(ctx context.Context, cmd application.UpdateReorderLevelsCommand) (*application.StockLevelDTO, error)
	GetStockLevel(ctx context.Context, skuID, locationID string) (*application.StockLevelDTO, error)
	GetSKUStock(ctx context.Context, skuID string) (*application.SKUStockDTO, error)
	LowStock(ctx context.Context, locationID string) ([]application.StockLevelDTO, error)
	CheckAvailability(ctx context.Context, query application.AvailabilityQuery) (*application.AvailabilityDTO, error)
}

// InventoryHandlers contains handlers for units and stock levels
type InventoryHandlers struct {
	service InventoryService
	logger  *logging.Logger
}

// NewInventoryHandlers creates a new InventoryHandlers
func NewInventoryHandlers(service InventoryService, logger *logging.Logger) *InventoryHandlers {
	return &InventoryHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers inventory routes on the router
func (h *InventoryHandlers) RegisterRoutes(router *gin.RouterGroup) {
	inv := router.Group("/inventory")
	{
		// Static routes first
		inv.GET("/low-stock", h.LowStock)
		inv.GET("/availability", h.CheckAvailability)
		inv.POST("/stock/receive", h.ReceiveStock)
		inv.POST("/transfers", h.StartTransfer)
		inv.POST("/transfers/complete", h.CompleteTransfer)
		inv.POST("/transfers/cancel", h.CancelTransfer)
		inv.POST("/damage", h.MarkDamaged)
		inv.POST("/damage/repair", h.RepairDamaged)
		inv.POST("/damage/write-off", h.WriteOffDamaged)

		inv.POST("/units", h.RegisterUnit)
		inv.GET("/units", h.ListUnits)
		inv.GET("/units/:unitId", h.GetUnit)
		inv.POST("/units/:unitId/inspect", h.InspectUnit)
		inv.POST("/units/:unitId/retire", h.RetireUnit)
		inv.PUT("/units/:unitId/value", h.UpdateUnitValue)

		inv.GET("/stock/:skuId", h.GetSKUStock)
		inv.GET("/stock/:skuId/locations/:locationId", h.GetStockLevel)
		inv.PUT("/stock/:skuId/locations/:locationId/reorder", h.UpdateReorderLevels)
	}
}

// RegisterUnit handles registering a tracked unit
func (h *InventoryHandlers) RegisterUnit(c *gin.Context) {
	var req struct {
		InventoryCode  string     `json:"inventoryCode" binding:"required,max=50,safe_string"`
		SerialNumber   string     `json:"serialNumber" binding:"omitempty,max=100,safe_string"`
		SKUID          string     `json:"skuId" binding:"required"`
		LocationID     string     `json:"locationId" binding:"required"`
		Status         string     `json:"status" binding:"omitempty,oneof=AVAILABLE_SALE AVAILABLE_RENT IN_TRANSIT"`
		ConditionGrade string     `json:"conditionGrade" binding:"omitempty,condition_grade"`
		PurchaseCost   string     `json:"purchaseCost" binding:"omitempty,decimal_amount"`
		PurchaseDate   *time.Time `json:"purchaseDate"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	var a amounts
	cmd := application.RegisterUnitCommand{
		InventoryCode:  req.InventoryCode,
		SerialNumber:   req.SerialNumber,
		SKUID:          req.SKUID,
		LocationID:     req.LocationID,
		Status:         domain.InventoryStatus(req.Status),
		ConditionGrade: domain.ConditionGrade(req.ConditionGrade),
		PurchaseCost:   a.money("purchaseCost", req.PurchaseCost),
		PurchaseDate:   req.PurchaseDate,
		CreatedBy:      middleware.GetActorID(c),
	}
	if !a.check(c, h.logger) {
		return
	}

	unit, err := h.service.RegisterUnit(c.Request.Context(), cmd)
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, unit)
}

// GetUnit handles getting a unit by ID
func (h *InventoryHandlers) GetUnit(c *gin.Context) {
	id := c.Param("unitId")
	spanAttr(c, "unit.id", id)

	unit, err := h.service.GetUnit(c.Request.Context(), id)
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, unit)
}

// ListUnits handles filtered, paginated unit listing
func (h *InventoryHandlers) ListUnits(c *gin.Context) {
	page := api.ParsePagination(c)

	result, err := h.service.ListUnits(c.Request.Context(), application.ListUnitsQuery{
		SKUID:      c.Query("skuId"),
		LocationID: locationFilter(c),
		Status:     domain.InventoryStatus(c.Query("status")),
		ActiveOnly: c.DefaultQuery("activeOnly", "true") == "true",
		Limit:      page.Limit(),
		Offset:     page.Offset(),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, api.NewPageResponse(result.Units, page, result.Total))
}

// InspectUnit handles recording a unit inspection
func (h *InventoryHandlers) InspectUnit(c *gin.Context) {
	var req struct {
		ConditionGrade string `json:"conditionGrade" binding:"required,condition_grade"`
		Notes          string `json:"notes" binding:"omitempty,max=2000,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}

	unit, err := h.service.InspectUnit(c.Request.Context(), application.InspectUnitCommand{
		UnitID:         c.Param("unitId"),
		ConditionGrade: domain.ConditionGrade(req.ConditionGrade),
		Notes:          req.Notes,
		InspectedBy:    middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, unit)
}

// RetireUnit handles taking a unit out of service
func (h *InventoryHandlers) RetireUnit(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required,max=500,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}

	unit, err := h.service.RetireUnit(c.Request.Context(), application.RetireUnitCommand{
		UnitID:    c.Param("unitId"),
		Reason:    req.Reason,
		RetiredBy: middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, unit)
}

// UpdateUnitValue handles setting a unit's book value
func (h *InventoryHandlers) UpdateUnitValue(c *gin.Context) {
	var req struct {
		CurrentValue string `json:"currentValue" binding:"required,decimal_amount"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	var a amounts
	value := a.money("currentValue", req.CurrentValue)
	if !a.check(c, h.logger) {
		return
	}

	unit, err := h.service.UpdateUnitValue(c.Request.Context(), application.UpdateUnitValueCommand{
		UnitID:       c.Param("unitId"),
		CurrentValue: value,
		UpdatedBy:    middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, unit)
}

// ReceiveStock handles receiving bulk stock into a location
func (h *InventoryHandlers) ReceiveStock(c *gin.Context) {
	var req struct {
		SKUID      string `json:"skuId" binding:"required"`
		LocationID string `json:"locationId" binding:"required"`
		Quantity   int    `json:"quantity" binding:"required,min=1"`
		Reference  string `json:"reference" binding:"omitempty,max=100,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}

	level, err := h.service.ReceiveStock(c.Request.Context(), application.ReceiveStockCommand{
		SKUID:      req.SKUID,
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		Reference:  req.Reference,
		ReceivedBy: middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, level)
}

type transferRequest struct {
	SKUID          string   `json:"skuId" binding:"required"`
	FromLocationID string   `json:"fromLocationId" binding:"required"`
	ToLocationID   string   `json:"toLocationId" binding:"required,nefield=FromLocationID"`
	Quantity       int      `json:"quantity" binding:"min=0"`
	UnitIDs        []string `json:"unitIds"`
}

func (h *InventoryHandlers) transfer(c *gin.Context, op func(context.Context, application.TransferCommand) (*application.StockLevelDTO, error)) {
	var req transferRequest
	if !bind(c, h.logger, &req) {
		return
	}

	level, err := op(c.Request.Context(), application.TransferCommand{
		SKUID:          req.SKUID,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Quantity:       req.Quantity,
		UnitIDs:        req.UnitIDs,
		TransferredBy:  middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, level)
}

// StartTransfer handles putting stock in transit to another location
func (h *InventoryHandlers) StartTransfer(c *gin.Context) {
	h.transfer(c, h.service.StartTransfer)
}

// CompleteTransfer handles receiving in-transit stock at its destination
func (h *InventoryHandlers) CompleteTransfer(c *gin.Context) {
	h.transfer(c, h.service.CompleteTransfer)
}

// CancelTransfer handles returning in-transit stock to its origin
func (h *InventoryHandlers) CancelTransfer(c *gin.Context) {
	h.transfer(c, h.service.CancelTransfer)
}

func (h *InventoryHandlers) damage(c *gin.Context, op func(context.Context, application.DamageStockCommand) (*application.StockLevelDTO, error)) {
	var req struct {
		SKUID      string   `json:"skuId" binding:"required"`
		LocationID string   `json:"locationId" binding:"required"`
		Quantity   int      `json:"quantity" binding:"min=0"`
		UnitIDs    []string `json:"unitIds"`
		Reason     string   `json:"reason" binding:"omitempty,max=500,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}

	level, err := op(c.Request.Context(), application.DamageStockCommand{
		SKUID:      req.SKUID,
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		UnitIDs:    req.UnitIDs,
		Reason:     req.Reason,
		By:         middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, level)
}

// MarkDamaged handles moving available stock into the damaged bucket
func (h *InventoryHandlers) MarkDamaged(c *gin.Context) {
	h.damage(c, h.service.MarkDamaged)
}

// RepairDamaged handles returning repaired stock to availability
func (h *InventoryHandlers) RepairDamaged(c *gin.Context) {
	h.damage(c, h.service.RepairDamaged)
}

// WriteOffDamaged handles removing damaged stock for good
func (h *InventoryHandlers) WriteOffDamaged(c *gin.Context) {
	h.damage(c, h.service.WriteOffDamaged)
}

// UpdateReorderLevels handles changing replenishment thresholds
func (h *InventoryHandlers) UpdateReorderLevels(c *gin.Context) {
	var req struct {
		ReorderPoint    int  `json:"reorderPoint" binding:"min=0"`
		ReorderQuantity int  `json:"reorderQuantity" binding:"min=0"`
		MaximumStock    *int `json:"maximumStock" binding:"omitempty,min=0"`
	}
	if !bind(c, h.logger, &req) {
		return
	}

	level, err := h.service.UpdateReorderLevels(c.Request.Context(), application.UpdateReorderLevelsCommand{
		SKUID:           c.Param("skuId"),
		LocationID:      c.Param("locationId"),
		ReorderPoint:    req.ReorderPoint,
		ReorderQuantity: req.ReorderQuantity,
		MaximumStock:    req.MaximumStock,
		UpdatedBy:       middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, level)
}

// GetStockLevel handles getting the stock of a SKU at one location
func (h *InventoryHandlers) GetStockLevel(c *gin.Context) {
	level, err := h.service.GetStockLevel(c.Request.Context(), c.Param("skuId"), c.Param("locationId"))
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, level)
}

// GetSKUStock handles getting the stock of a SKU across locations
func (h *InventoryHandlers) GetSKUStock(c *gin.Context) {
	stock, err := h.service.GetSKUStock(c.Request.Context(), c.Param("skuId"))
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stock)
}

// LowStock handles listing stock levels at or below their reorder point
func (h *InventoryHandlers) LowStock(c *gin.Context) {
	levels, err := h.service.LowStock(c.Request.Context(), locationFilter(c))
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": levels,
		"count": len(levels),
	})
}

// CheckAvailability handles checking whether a quantity can be booked
func (h *InventoryHandlers) CheckAvailability(c *gin.Context) {
	quantity, err := strconv.Atoi(c.Query("quantity"))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondValidationError("validation failed", map[string]string{
			"quantity": "must be a positive integer",
		})
		return
	}

	result, err := h.service.CheckAvailability(c.Request.Context(), application.AvailabilityQuery{
		SKUID:      c.Query("skuId"),
		LocationID: locationFilter(c),
		Quantity:   quantity,
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

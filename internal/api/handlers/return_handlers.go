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

// ReturnService is the application surface used by the return and inspection routes
type ReturnService interface {
	InitiateReturn(ctx context.Context, cmd application.InitiateReturnCommand) (*application.RentalReturnDTO, error)
	CompleteReturn(ctx context.Context, cmd application.CompleteReturnCommand) (*application.RentalReturnDTO, error)
	GetReturn(ctx context.Context, id string) (*application.RentalReturnDTO, error)
	ListReturns(ctx context.Context, transactionID string) ([]application.RentalReturnDTO, error)
	CalculateLateFee(ctx context.Context, cmd application.CalculateLateFeeCommand) (*application.LateFeeDTO, error)
	ProjectLateFee(ctx context.Context, query application.ProjectLateFeeQuery) (*application.LateFeeDTO, error)
	ProcessPartialReturn(ctx context.Context, cmd application.ProcessPartialReturnCommand) (*application.RentalReturnDTO, error)
	ValidatePartialReturn(ctx context.Context, query application.ValidatePartialReturnQuery) (*application.PartialReturnValidationDTO, error)
	AssessDamage(ctx context.Context, cmd application.AssessDamageCommand) (*application.InspectionReportDTO, error)
	GetInspection(ctx context.Context, id string) (*application.InspectionReportDTO, error)
	ApproveInspection(ctx context.Context, cmd application.ApproveInspectionCommand) (*application.InspectionReportDTO, error)
	RejectInspection(ctx context.Context, cmd application.RejectInspectionCommand) (*application.InspectionReportDTO, error)
	SetLineFees(ctx context.Context, cmd application.SetLineFeesCommand) (*application.RentalReturnDTO, error)
	PreviewFinalization(ctx context.Context, returnID string) (*application.FinalizationPreviewDTO, error)
	FinalizeReturn(ctx context.Context, cmd application.FinalizeReturnCommand) (*application.RentalReturnDTO, error)
	PreviewDepositRelease(ctx context.Context, returnID string) (*application.DepositReleaseDTO, error)
	ReleaseDeposit(ctx context.Context, cmd application.ReleaseDepositCommand) (*application.DepositReleaseDTO, error)
	ReverseDepositRelease(ctx context.Context, cmd application.ReverseDepositReleaseCommand) (*application.RentalReturnDTO, error)
}

// ReturnHandlers contains handlers for rental returns, inspections and deposits
type ReturnHandlers struct {
	service ReturnService
	logger  *logging.Logger
}

// NewReturnHandlers creates a new ReturnHandlers
func NewReturnHandlers(service ReturnService, logger *logging.Logger) *ReturnHandlers {
	return &ReturnHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers return routes on the router
func (h *ReturnHandlers) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/transactions/:transactionId/returns", h.ListReturns)
	router.POST("/transactions/:transactionId/complete-return", h.CompleteReturn)
	router.GET("/transactions/:transactionId/late-fee", h.ProjectLateFee)

	returns := router.Group("/returns")
	{
		returns.POST("", h.InitiateReturn)
		returns.GET("/:returnId", h.GetReturn)
		returns.POST("/:returnId/late-fee", h.CalculateLateFee)
		returns.POST("/:returnId/process", h.ProcessPartialReturn)
		returns.POST("/:returnId/validate", h.ValidatePartialReturn)
		returns.POST("/:returnId/inspections", h.AssessDamage)
		returns.PUT("/:returnId/lines/:lineId/fees", h.SetLineFees)
		returns.GET("/:returnId/finalization", h.PreviewFinalization)
		returns.POST("/:returnId/finalize", h.FinalizeReturn)
		returns.GET("/:returnId/deposit", h.PreviewDepositRelease)
		returns.POST("/:returnId/deposit/release", h.ReleaseDeposit)
		returns.POST("/:returnId/deposit/reverse", h.ReverseDepositRelease)
	}

	inspections := router.Group("/inspections")
	{
		inspections.GET("/:inspectionId", h.GetInspection)
		inspections.POST("/:inspectionId/approve", h.ApproveInspection)
		inspections.POST("/:inspectionId/reject", h.RejectInspection)
	}
}

type lateFeePolicyRequest struct {
	Kind       string `json:"kind" form:"lateFeeKind" binding:"required,oneof=FIXED_DAILY PERCENTAGE"`
	DailyRate  string `json:"dailyRate" form:"dailyRate" binding:"omitempty,decimal_amount"`
	Percentage string `json:"percentage" form:"percentage"`
}

func (a *amounts) policy(field string, req lateFeePolicyRequest) domain.LateFeePolicy {
	return domain.LateFeePolicy{
		Kind:       domain.LateFeeKind(req.Kind),
		DailyRate:  a.money(field+".dailyRate", req.DailyRate),
		Percentage: a.percentage(field+".percentage", req.Percentage),
	}
}

// InitiateReturn handles opening a return against a rental
func (h *ReturnHandlers) InitiateReturn(c *gin.Context) {
	var req struct {
		TransactionID string     `json:"transactionId" binding:"required"`
		ReturnDate    *time.Time `json:"returnDate"`
		Lines         []struct {
			TransactionLineID string `json:"transactionLineId"`
			UnitID            string `json:"unitId"`
			Quantity          int    `json:"quantity" binding:"min=0"`
		} `json:"lines" binding:"dive"`
		Notes string `json:"notes" binding:"omitempty,max=2000,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	spanAttr(c, "transaction.id", req.TransactionID)

	lines := make([]application.ReturnLineRequest, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, application.ReturnLineRequest{
			TransactionLineID: l.TransactionLineID,
			UnitID:            l.UnitID,
			Quantity:          l.Quantity,
		})
	}
	cmd := application.InitiateReturnCommand{
		TransactionID: req.TransactionID,
		ReturnDate:    time.Now().UTC(),
		Lines:         lines,
		Notes:         req.Notes,
		ProcessedBy:   middleware.GetActorID(c),
	}
	if req.ReturnDate != nil {
		cmd.ReturnDate = *req.ReturnDate
	}

	ret, err := h.service.InitiateReturn(c.Request.Context(), cmd)
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, ret)
}

// CompleteReturn handles returning everything still out on a rental in one step
func (h *ReturnHandlers) CompleteReturn(c *gin.Context) {
	var req struct {
		ReturnDate     *time.Time            `json:"returnDate"`
		ConditionGrade string                `json:"conditionGrade" binding:"omitempty,condition_grade"`
		LateFeePolicy  *lateFeePolicyRequest `json:"lateFeePolicy"`
		Notes          string                `json:"notes" binding:"omitempty,max=2000,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}

	var a amounts
	cmd := application.CompleteReturnCommand{
		TransactionID:  c.Param("transactionId"),
		ReturnDate:     time.Now().UTC(),
		ConditionGrade: domain.ConditionGrade(req.ConditionGrade),
		Notes:          req.Notes,
		ReturnedBy:     middleware.GetActorID(c),
	}
	if req.ReturnDate != nil {
		cmd.ReturnDate = *req.ReturnDate
	}
	if req.LateFeePolicy != nil {
		cmd.LateFeePolicy = a.policy("lateFeePolicy", *req.LateFeePolicy)
	}
	if !a.check(c, h.logger) {
		return
	}

	ret, err := h.service.CompleteReturn(c.Request.Context(), cmd)
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}

// GetReturn handles getting a return by ID
func (h *ReturnHandlers) GetReturn(c *gin.Context) {
	id := c.Param("returnId")
	spanAttr(c, "return.id", id)

	ret, err := h.service.GetReturn(c.Request.Context(), id)
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}

// ListReturns handles listing the returns of a rental
func (h *ReturnHandlers) ListReturns(c *gin.Context) {
	returns, err := h.service.ListReturns(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"returns": returns,
		"count":   len(returns),
	})
}

// CalculateLateFee handles computing and storing the late fee of a return
func (h *ReturnHandlers) CalculateLateFee(c *gin.Context) {
	var req lateFeePolicyRequest
	if !bind(c, h.logger, &req) {
		return
	}
	var a amounts
	policy := a.policy("policy", req)
	if !a.check(c, h.logger) {
		return
	}

	fee, err := h.service.CalculateLateFee(c.Request.Context(), application.CalculateLateFeeCommand{
		ReturnID:     c.Param("returnId"),
		Policy:       policy,
		CalculatedBy: middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, fee)
}

// ProjectLateFee handles quoting the late fee a rental would owe at a date
func (h *ReturnHandlers) ProjectLateFee(c *gin.Context) {
	var req lateFeePolicyRequest
	if appErr := api.BindQueryAndValidate(c, &req); appErr != nil {
		respond(c, h.logger, appErr)
		return
	}
	asOf, appErr := api.ParseTimeQuery(c, "asOf", time.Now().UTC())
	if appErr != nil {
		respond(c, h.logger, appErr)
		return
	}
	var a amounts
	policy := a.policy("policy", req)
	if !a.check(c, h.logger) {
		return
	}

	fee, err := h.service.ProjectLateFee(c.Request.Context(), application.ProjectLateFeeQuery{
		TransactionID: c.Param("transactionId"),
		AsOf:          asOf,
		Policy:        policy,
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, fee)
}

type returnSessionRequest struct {
	Lines []struct {
		ReturnLineID     string `json:"returnLineId" binding:"required"`
		QuantityReturned int    `json:"quantityReturned" binding:"min=0"`
		ConditionGrade   string `json:"conditionGrade" binding:"omitempty,condition_grade"`
		Notes            string `json:"notes" binding:"omitempty,max=2000,safe_string"`
	} `json:"lines" binding:"required,min=1,dive"`
}

func (r returnSessionRequest) updates() []application.ReturnLineUpdate {
	updates := make([]application.ReturnLineUpdate, 0, len(r.Lines))
	for _, l := range r.Lines {
		updates = append(updates, application.ReturnLineUpdate{
			ReturnLineID:     l.ReturnLineID,
			QuantityReturned: l.QuantityReturned,
			ConditionGrade:   domain.ConditionGrade(l.ConditionGrade),
			Notes:            l.Notes,
		})
	}
	return updates
}

// ProcessPartialReturn handles recording units received back
func (h *ReturnHandlers) ProcessPartialReturn(c *gin.Context) {
	var req returnSessionRequest
	if !bind(c, h.logger, &req) {
		return
	}

	ret, err := h.service.ProcessPartialReturn(c.Request.Context(), application.ProcessPartialReturnCommand{
		ReturnID:    c.Param("returnId"),
		Lines:       req.updates(),
		ProcessedBy: middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}

// ValidatePartialReturn handles a dry run of a return session
func (h *ReturnHandlers) ValidatePartialReturn(c *gin.Context) {
	var req returnSessionRequest
	if !bind(c, h.logger, &req) {
		return
	}

	result, err := h.service.ValidatePartialReturn(c.Request.Context(), application.ValidatePartialReturnQuery{
		ReturnID: c.Param("returnId"),
		Lines:    req.updates(),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AssessDamage handles recording an inspection of returned lines
func (h *ReturnHandlers) AssessDamage(c *gin.Context) {
	var req struct {
		Assessments []struct {
			ReturnLineID   string `json:"returnLineId" binding:"required"`
			ConditionGrade string `json:"conditionGrade" binding:"required,condition_grade"`
			Notes          string `json:"notes" binding:"omitempty,max=2000,safe_string"`
			Findings       []struct {
				ItemDescription   string   `json:"itemDescription" binding:"omitempty,max=500,safe_string"`
				DamageDescription string   `json:"damageDescription" binding:"required,max=2000,safe_string"`
				Severity          string   `json:"severity" binding:"required,severity"`
				EstimatedCost     string   `json:"estimatedCost" binding:"omitempty,decimal_amount"`
				Photos            []string `json:"photos"`
			} `json:"findings" binding:"dive"`
		} `json:"assessments" binding:"required,min=1,dive"`
		Notes string `json:"notes" binding:"omitempty,max=2000,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}

	var a amounts
	assessments := make([]application.LineAssessment, 0, len(req.Assessments))
	for i, as := range req.Assessments {
		findings := make([]application.DamageFindingInput, 0, len(as.Findings))
		for j, f := range as.Findings {
			field := "assessments[" + strconv.Itoa(i) + "].findings[" + strconv.Itoa(j) + "].estimatedCost"
			findings = append(findings, application.DamageFindingInput{
				ItemDescription:   f.ItemDescription,
				DamageDescription: f.DamageDescription,
				Severity:          domain.DamageSeverity(f.Severity),
				EstimatedCost:     a.money(field, f.EstimatedCost),
				Photos:            f.Photos,
			})
		}
		assessments = append(assessments, application.LineAssessment{
			ReturnLineID:   as.ReturnLineID,
			ConditionGrade: domain.ConditionGrade(as.ConditionGrade),
			Notes:          as.Notes,
			Findings:       findings,
		})
	}
	if !a.check(c, h.logger) {
		return
	}

	report, err := h.service.AssessDamage(c.Request.Context(), application.AssessDamageCommand{
		ReturnID:    c.Param("returnId"),
		InspectorID: middleware.GetActorID(c),
		Assessments: assessments,
		Notes:       req.Notes,
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, report)
}

// GetInspection handles getting an inspection report by ID
func (h *ReturnHandlers) GetInspection(c *gin.Context) {
	report, err := h.service.GetInspection(c.Request.Context(), c.Param("inspectionId"))
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// ApproveInspection handles approving an inspection
func (h *ReturnHandlers) ApproveInspection(c *gin.Context) {
	var req struct {
		Notes string `json:"notes" binding:"omitempty,max=2000,safe_string"`
	}
	if c.Request.ContentLength > 0 && !bind(c, h.logger, &req) {
		return
	}

	report, err := h.service.ApproveInspection(c.Request.Context(), application.ApproveInspectionCommand{
		InspectionID: c.Param("inspectionId"),
		Notes:        req.Notes,
		ApprovedBy:   middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// RejectInspection handles rejecting an inspection
func (h *ReturnHandlers) RejectInspection(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required,max=500,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}

	report, err := h.service.RejectInspection(c.Request.Context(), application.RejectInspectionCommand{
		InspectionID: c.Param("inspectionId"),
		Reason:       req.Reason,
		RejectedBy:   middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// SetLineFees handles manual fee adjustments on a return line
func (h *ReturnHandlers) SetLineFees(c *gin.Context) {
	var req struct {
		DamageFee      *string `json:"damageFee" binding:"omitempty,decimal_amount"`
		CleaningFee    *string `json:"cleaningFee" binding:"omitempty,decimal_amount"`
		ReplacementFee *string `json:"replacementFee" binding:"omitempty,decimal_amount"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	var a amounts
	cmd := application.SetLineFeesCommand{
		ReturnID:       c.Param("returnId"),
		ReturnLineID:   c.Param("lineId"),
		DamageFee:      a.optional("damageFee", req.DamageFee),
		CleaningFee:    a.optional("cleaningFee", req.CleaningFee),
		ReplacementFee: a.optional("replacementFee", req.ReplacementFee),
		UpdatedBy:      middleware.GetActorID(c),
	}
	if !a.check(c, h.logger) {
		return
	}

	ret, err := h.service.SetLineFees(c.Request.Context(), cmd)
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}

// PreviewFinalization handles reporting what finalizing a return would do
func (h *ReturnHandlers) PreviewFinalization(c *gin.Context) {
	preview, err := h.service.PreviewFinalization(c.Request.Context(), c.Param("returnId"))
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

// FinalizeReturn handles closing a return
func (h *ReturnHandlers) FinalizeReturn(c *gin.Context) {
	var req struct {
		ForceFinalize bool `json:"forceFinalize"`
	}
	if c.Request.ContentLength > 0 && !bind(c, h.logger, &req) {
		return
	}

	ret, err := h.service.FinalizeReturn(c.Request.Context(), application.FinalizeReturnCommand{
		ReturnID:      c.Param("returnId"),
		ForceFinalize: req.ForceFinalize,
		FinalizedBy:   middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}

// PreviewDepositRelease handles quoting the deposit settlement of a return
func (h *ReturnHandlers) PreviewDepositRelease(c *gin.Context) {
	preview, err := h.service.PreviewDepositRelease(c.Request.Context(), c.Param("returnId"))
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

// ReleaseDeposit handles settling the deposit
func (h *ReturnHandlers) ReleaseDeposit(c *gin.Context) {
	release, err := h.service.ReleaseDeposit(c.Request.Context(), application.ReleaseDepositCommand{
		ReturnID:   c.Param("returnId"),
		ReleasedBy: middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, release)
}

// ReverseDepositRelease handles undoing a deposit release
func (h *ReturnHandlers) ReverseDepositRelease(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required,max=500,safe_string"`
	}
	if !bind(c, h.logger, &req) {
		return
	}

	ret, err := h.service.ReverseDepositRelease(c.Request.Context(), application.ReverseDepositReleaseCommand{
		ReturnID:   c.Param("returnId"),
		Reason:     req.Reason,
		ReversedBy: middleware.GetActorID(c),
	})
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}

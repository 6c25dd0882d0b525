package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/middleware"
)

// respond writes err as an API error. Anything that is not an AppError is a 500.
func respond(c *gin.Context, logger *logging.Logger, err error) {
	appErr := errors.FromError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		middleware.SetSpanError(c, err)
	}
	middleware.NewErrorResponder(c, logger.Logger).RespondWithAppError(appErr)
}

// bind decodes and validates the JSON body, writing the error response on failure
func bind(c *gin.Context, logger *logging.Logger, req interface{}) bool {
	if appErr := middleware.BindAndValidate(c, req); appErr != nil {
		middleware.NewErrorResponder(c, logger.Logger).RespondWithAppError(appErr)
		return false
	}
	return true
}

// amounts parses decimal request fields and collects every failure by field name
type amounts struct {
	fields map[string]string
}

func (a *amounts) fail(field string) {
	if a.fields == nil {
		a.fields = make(map[string]string)
	}
	a.fields[field] = "must be a decimal amount"
}

func (a *amounts) money(field, raw string) domain.Money {
	if raw == "" {
		return domain.ZeroMoney()
	}
	m, err := domain.ParseMoney(raw)
	if err != nil {
		a.fail(field)
		return domain.ZeroMoney()
	}
	return m
}

func (a *amounts) optional(field string, raw *string) *domain.Money {
	if raw == nil {
		return nil
	}
	m := a.money(field, *raw)
	return &m
}

func (a *amounts) percentage(field, raw string) domain.Percentage {
	p, err := domain.ParsePercentage(raw)
	if err != nil {
		a.fail(field)
	}
	return p
}

// check writes a validation response when any field failed to parse
func (a *amounts) check(c *gin.Context, logger *logging.Logger) bool {
	if len(a.fields) == 0 {
		return true
	}
	middleware.NewErrorResponder(c, logger.Logger).RespondValidationError("validation failed", a.fields)
	return false
}

// locationFilter scopes list queries to the caller's store unless the query names one
func locationFilter(c *gin.Context) string {
	if location := c.Query("locationId"); location != "" {
		return location
	}
	return middleware.GetLocationID(c)
}

func spanAttr(c *gin.Context, key, value string) {
	middleware.SetSpanAttribute(c, key, value)
}

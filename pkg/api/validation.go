package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/rental-platform/rental-service/pkg/middleware"
)

// DateLayout is the calendar date format accepted in query strings
const DateLayout = "2006-01-02"

// BindQueryAndValidate binds query parameters and validates them
func BindQueryAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindQuery(obj); err != nil {
		if fields := middleware.ValidationErrorFormatter(err); len(fields) > 0 {
			return errors.ErrValidationWithFields("validation failed", fields)
		}
		return errors.ErrBadRequest(fmt.Sprintf("invalid query parameters: %v", err))
	}
	return nil
}

// ParseTimeQuery reads an optional query parameter as either a calendar date
// or an RFC 3339 timestamp. A missing parameter yields fallback.
func ParseTimeQuery(c *gin.Context, name string, fallback time.Time) (time.Time, *errors.AppError) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errors.ErrValidationWithFields("invalid date", map[string]string{
		name: "must be YYYY-MM-DD or RFC 3339",
	})
}

// ParseOptionalTimeQuery is ParseTimeQuery returning nil when the parameter is absent
func ParseOptionalTimeQuery(c *gin.Context, name string) (*time.Time, *errors.AppError) {
	if c.Query(name) == "" {
		return nil, nil
	}
	t, appErr := ParseTimeQuery(c, name, time.Time{})
	if appErr != nil {
		return nil, appErr
	}
	return &t, nil
}

package openapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/rental-platform/rental-service/pkg/middleware"
)

// RequestValidation rejects requests that do not match the document and tags the
// request span with the matched operation. Requests to routes the document does
// not describe pass through untouched.
func RequestValidation(v *Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := v.ValidateRequest(c.Request)
		if err == nil {
			if op, err := v.OperationID(c.Request); err == nil {
				middleware.SetSpanAttribute(c, "openapi.operation", op)
			}
			c.Next()
			return
		}
		if IsUnknownRoute(err) {
			c.Next()
			return
		}

		middleware.AbortWithAppError(c, errors.NewAppError(
			errors.CodeValidationError,
			err.Error(),
			http.StatusBadRequest,
		))
	}
}

// ServeDocument serves the embedded document as YAML.
func ServeDocument() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", rentalAPI)
	}
}

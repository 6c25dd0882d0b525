package middleware

import (
	stderrors "errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rental-platform/rental-service/pkg/errors"
	"github.com/shopspring/decimal"
)

var validateOnce sync.Once

var customValidations = map[string]validator.Func{
	"txn_type":        validateTransactionType,
	"condition_grade": validateConditionGrade,
	"severity":        validateSeverity,
	"decimal_amount":  validateDecimalAmount,
	"sku":             validateSKU,
	"location_code":   validateLocationCode,
	"safe_string":     validateSafeString,
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

func register(v *validator.Validate) {
	for tag, fn := range customValidations {
		_ = v.RegisterValidation(tag, fn)
	}
	v.RegisterTagNameFunc(jsonTagName)
}

// InitValidator registers the rental tags on gin's binding engine and reports
// field errors by their JSON names
func InitValidator() {
	validateOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			register(v)
		}
	})
}

var (
	skuRegex          = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{2,49}$`)
	locationCodeRegex = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
	safeStringRegex   = regexp.MustCompile(`^[^\x00-\x08\x0B\x0C\x0E-\x1F]*$`)
)

func validateTransactionType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "SALE", "RENTAL", "PURCHASE":
		return true
	}
	return false
}

func validateConditionGrade(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "A", "B", "C", "D":
		return true
	}
	return false
}

func validateSeverity(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "MINOR", "MODERATE", "MAJOR", "TOTAL_LOSS":
		return true
	}
	return false
}

// validateDecimalAmount accepts a non-negative decimal string with at most two fractional digits
func validateDecimalAmount(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return false
	}
	return !d.IsNegative() && d.Exponent() >= -2
}

func validateSKU(fl validator.FieldLevel) bool {
	return skuRegex.MatchString(fl.Field().String())
}

func validateLocationCode(fl validator.FieldLevel) bool {
	return locationCodeRegex.MatchString(fl.Field().String())
}

func validateSafeString(fl validator.FieldLevel) bool {
	return safeStringRegex.MatchString(fl.Field().String())
}

// ValidationErrorFormatter formats validation errors into a map keyed by JSON field name
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if stderrors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			fields[e.Namespace()[strings.Index(e.Namespace(), ".")+1:]] = formatValidationError(e)
		}
	}

	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "txn_type":
		return "must be one of: SALE, RENTAL, PURCHASE"
	case "condition_grade":
		return "must be one of: A, B, C, D"
	case "severity":
		return "must be one of: MINOR, MODERATE, MAJOR, TOTAL_LOSS"
	case "decimal_amount":
		return "must be a non-negative amount with at most two decimals"
	case "sku":
		return "must be a valid SKU (uppercase alphanumeric with dashes)"
	case "location_code":
		return "must be a valid location code (2-10 uppercase alphanumerics)"
	case "safe_string":
		return "contains invalid characters"
	case "oneof":
		return "must be one of: " + e.Param()
	case "dive":
		return "contains an invalid element"
	default:
		return "is invalid"
	}
}

// BindAndValidate binds request body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		if fields := ValidationErrorFormatter(err); len(fields) > 0 {
			return errors.ErrValidationWithFields("validation failed", fields)
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}

// SanitizeString removes null bytes and surrounding whitespace
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// InputSanitizer middleware sanitizes query parameters
func InputSanitizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		for key, values := range query {
			for i, v := range values {
				values[i] = SanitizeString(v)
			}
			query[key] = values
		}
		c.Request.URL.RawQuery = query.Encode()

		c.Next()
	}
}

// ContentType middleware ensures proper content type for POST/PUT/PATCH
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "POST" || c.Request.Method == "PUT" || c.Request.Method == "PATCH" {
			contentType := c.GetHeader("Content-Type")
			if !strings.HasPrefix(contentType, "application/json") && c.Request.ContentLength > 0 {
				AbortWithAppError(c, &errors.AppError{
					Code:       "INVALID_CONTENT_TYPE",
					Message:    "Content-Type must be application/json",
					HTTPStatus: 415,
				})
				return
			}
		}
		c.Next()
	}
}

package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rental-platform/rental-service/pkg/logging"
)

// Context keys for the event extension values carried on a request
const (
	ContextKeyActorID    = "actorId"
	ContextKeyLocationID = "locationId"
)

// Header names for the event extension values
const (
	HeaderActorID    = "X-User-ID"
	HeaderLocationID = "X-Location-ID"
)

// CloudEvents copies the caller identity and location headers into the request.
// The actor lands in the logging context so audit fields and the rentalactorid
// extension of emitted events are filled without handlers passing it along.
func CloudEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := c.GetHeader(HeaderActorID); actor != "" {
			c.Set(ContextKeyActorID, actor)
			c.Request = c.Request.WithContext(logging.ContextWithUserID(c.Request.Context(), actor))
		}
		if location := c.GetHeader(HeaderLocationID); location != "" {
			c.Set(ContextKeyLocationID, location)
		}

		c.Next()
	}
}

// GetActorID returns the caller identity, or "system" when none was sent
func GetActorID(c *gin.Context) string {
	if actor := stringFromGin(c, ContextKeyActorID); actor != "" {
		return actor
	}
	return "system"
}

// GetLocationID returns the location header value
func GetLocationID(c *gin.Context) string {
	return stringFromGin(c, ContextKeyLocationID)
}

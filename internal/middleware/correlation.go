package middleware

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/labstack/echo/v4"
)

// CorrelationHeader is the request/response header carrying the
// correlation id that ties a user-facing error to the operator log.
const CorrelationHeader = "X-Correlation-ID"

// correlationKey is the echo context key the id is stored under.
const correlationKey = "correlation_id"

// Correlation returns a middleware that accepts an incoming correlation id
// or generates one, stores it on the context and echoes it back in the
// response.  Handlers include it in operator log lines so a generic retry
// message shown to the caller can be traced to its full context.
func Correlation() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(CorrelationHeader)
			if id == "" {
				id = newCorrelationID()
			}
			c.Set(correlationKey, id)
			c.Response().Header().Set(CorrelationHeader, id)
			return next(c)
		}
	}
}

// CorrelationID returns the correlation id for the current request, or an
// empty string when the middleware is not installed.
func CorrelationID(c echo.Context) string {
	id, _ := c.Get(correlationKey).(string)
	return id
}

// newCorrelationID returns 16 random hex characters; collisions across the
// retention window of a log file are not a concern at this size.
func newCorrelationID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

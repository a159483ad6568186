package middleware

import (
	"context"
	"strings"

	"codegrader/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
)

// TraceContextMiddleware makes sure every request carries a trace id and a request id,
// both in the request context and echoed back in response headers.
// Incoming headers are reused so callers can correlate across services.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := headerOrNew(c, traceIDHeader)
		requestID := headerOrNew(c, requestIDHeader)

		setContextValue(c, contextkey.TraceID, traceID)
		setContextValue(c, contextkey.RequestID, requestID)
		c.Writer.Header().Set(traceIDHeader, traceID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()
	}
}

func headerOrNew(c *gin.Context, name string) string {
	if v := strings.TrimSpace(c.GetHeader(name)); v != "" {
		return v
	}
	return uuid.NewString()
}

// setContextValue stores value both on the gin context (string key) and the request context (typed key).
func setContextValue[K ~string](c *gin.Context, key K, value string) {
	c.Set(string(key), value)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), key, value))
}

package middleware

import (
	"github.com/gin-gonic/gin"

	"intellisurf/internal/pkg/id"
)

// RequestIDHeader 请求ID header
const RequestIDHeader = "X-Request-ID"

// RequestID 为每个请求分配请求ID，已携带时沿用
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = id.New()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// internal/middleware/logging_middleware.go
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"packetforge/internal/utils"
)

// LoggingMiddleware logs every request once it has been served. WebSocket
// upgrades are logged when the socket closes.
func LoggingMiddleware(logger *utils.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		logger.LogAPIRequest(utils.APIRequest{
			RequestID:  c.GetString(requestIDKey),
			Method:     c.Request.Method,
			Route:      route,
			Path:       c.Request.URL.Path,
			ClientIP:   c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			StatusCode: c.Writer.Status(),
			Duration:   time.Since(startTime),
		})
	}
}

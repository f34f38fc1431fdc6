package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/recap/logger"
)

// GinRequestLogger returns middleware that logs every request with method,
// path, status code, and duration. Health-check paths are silently skipped.
func GinRequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isHealthEndpoint(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path = path + "?" + q
		}

		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        path,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"client":      c.ClientIP(),
		}
		if id := c.GetString(ContextRequestID); id != "" {
			fields["request_id"] = id
		}

		logByStatus(fields, status)
	}
}

func isHealthEndpoint(path string) bool {
	return path == "/health" || path == "/info"
}

// logByStatus logs request fields at the appropriate level based on the HTTP
// status code.
func logByStatus(fields map[string]interface{}, status int) {
	switch {
	case status >= 500:
		logger.Error("request completed", fields)
	case status >= 400:
		logger.Warn("request completed", fields)
	default:
		logger.Debug("request completed", fields)
	}
}

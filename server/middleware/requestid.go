package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-Id"

// ContextRequestID is the gin context key holding the request id.
const ContextRequestID = "request_id"

// RequestID assigns each request a correlation id, honouring one supplied by
// the caller so ids survive proxy hops. The id is echoed on the response and
// stamped onto request log lines.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ContextRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

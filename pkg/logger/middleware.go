package logger

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Middleware returns a Gin middleware function that logs requests
// and stores a request-scoped logger in the context under "logger".
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
			c.Header("X-Request-ID", requestID)
		}

		reqLogger := logger.WithRequestID(requestID)
		if userID, ok := c.Get("userId"); ok && userID != nil {
			reqLogger = reqLogger.WithUserID(fmt.Sprintf("%v", userID))
		}

		c.Set("logger", reqLogger)
		c.Set("requestId", requestID)

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		reqLogger.LogRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), latency)

		for _, err := range c.Errors {
			reqLogger.LogError(err.Err, "request error",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
		}
	}
}

// FromContext returns the request-scoped logger, or the global one
// when the request has not passed through Middleware.
func FromContext(c *gin.Context) *Logger {
	if l, ok := c.Get("logger"); ok {
		if log, ok := l.(*Logger); ok {
			return log
		}
	}
	return GetGlobal()
}

package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
)

const (
	loggerKey       = "logger"
	RequestIDHeader = "X-Request-ID"
)

// RequestLogger tags every request with an id, exposes a request-scoped
// logger through Logger, and logs the outcome once the handler returns.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = xid.New().String()
		}
		c.Header(RequestIDHeader, requestID)

		reqLog := log.With("request_id", requestID, "method", c.Request.Method, "path", c.FullPath())
		c.Set(loggerKey, reqLog)

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		reqLog.Log(c.Request.Context(), level, "request handled",
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// Logger returns the request-scoped logger, falling back to slog.Default.
func Logger(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/runmate/pkg/logger"
)

// Logger writes one structured access log line per request. Probe and scrape
// traffic is logged at debug, server errors at error.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if userID := c.GetString(CtxUserIDKey); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		log := logger.WithModule("http")
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case quietPath(path):
			log.Debug("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

func quietPath(path string) bool {
	return path == "/metrics" || strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/api/health")
}

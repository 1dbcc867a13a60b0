package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/runmate/internal/monitoring"
	"github.com/charlesng35/runmate/pkg/errors"
	"github.com/charlesng35/runmate/pkg/response"
)

const healthPingTimeout = 2 * time.Second

// Health returns a simple status payload useful for readiness checks. When db
// is set the handler also pings the database.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				ctx, cancel := context.WithTimeout(requestContext(c), healthPingTimeout)
				err = sqlDB.PingContext(ctx)
				cancel()
			}
			if err != nil {
				response.Error(c, errors.ErrUnavailable.WithInternal(err))
				return
			}
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}

// Readiness evaluates every registered probe and answers 503 unless all of
// them are up.
func Readiness(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(requestContext(c))
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"checks":     report.Checks,
			"checked_at": time.Now().UTC(),
		})
	}
}

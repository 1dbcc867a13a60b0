package checks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/runmate/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database pings the notification database and reports pool usage in the
// details of a healthy result.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	timeout = orDefault(timeout, defaultDatabaseTimeout)

	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		start := time.Now()
		sqlDB, err := db.DB()
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			err = sqlDB.PingContext(pingCtx)
			cancel()
		}

		result := monitoring.ResultFromError(err, time.Since(start))
		if err == nil {
			stats := sqlDB.Stats()
			result.Details = fmt.Sprintf("open=%d in_use=%d idle=%d", stats.OpenConnections, stats.InUse, stats.Idle)
		}
		return result
	})
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/runmate/internal/monitoring"
)

const defaultMaintenanceMaxAge = 6 * time.Hour

// MaintenanceObserver reports the last run of the expired-entry purge.
type MaintenanceObserver interface {
	LastRun() (at time.Time, consecutiveFailures int, err error)
}

// Maintenance degrades readiness when the purge job keeps failing or has not
// run within maxAge. Purge failures never take the API down, so the probe
// never reports down. A zero maxAge uses six hours.
func Maintenance(observer MaintenanceObserver, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		if observer == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "maintenance disabled"}
		}

		at, failures, lastErr := observer.LastRun()
		if at.IsZero() {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "pending first run"}
		}

		status := monitoring.StatusUp
		var details []string
		if failures > 0 {
			status = monitoring.StatusDegraded
			msg := "consecutive failures"
			if lastErr != nil {
				msg += ": " + lastErr.Error()
			}
			details = append(details, msg)
		}
		if time.Since(at) > maxAge {
			status = monitoring.StatusDegraded
			details = append(details, "stale run "+at.UTC().Format(time.RFC3339))
		}

		return monitoring.ProbeResult{Status: status, Details: strings.Join(details, "; ")}
	})
}

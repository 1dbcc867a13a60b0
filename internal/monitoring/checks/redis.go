package checks

import (
	"context"
	"time"

	"github.com/charlesng35/runmate/internal/monitoring"
)

const defaultRedisTimeout = 2 * time.Second

// RedisPinger is the part of the redis flag store the probe needs.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Redis probes the redis flag store. A disabled store reports up. An enabled
// store that failed to connect is degraded because flags fall back to SQL.
func Redis(client RedisPinger, enabled bool, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if !enabled {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "redis disabled"}
		}
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "redis unavailable; using database flags"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, orDefault(timeout, defaultRedisTimeout))
		defer cancel()

		return monitoring.ResultFromError(client.Ping(probeCtx), time.Since(start))
	})
}

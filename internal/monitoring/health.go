package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results. Success is false as soon as one
// probe is degraded or down.
type HealthReport struct {
	Success bool          `json:"success"`
	Status  ProbeStatus   `json:"status"`
	Checks  []ProbeResult `json:"checks"`
}

// Check is a named dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck names a probe; every result it returns carries that name.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "probe not implemented"}
		}
	}
	run := func(ctx context.Context) ProbeResult {
		result := fn(ctx)
		result.Component = name
		return result
	}
	return Check{Name: name, Run: run}
}

// HealthManager runs the readiness probes of the notification backend:
// storage, the optional redis flag store and the maintenance job.
type HealthManager struct {
	mu     sync.RWMutex
	checks []Check
}

// NewHealthManager constructs a manager with the given probes.
func NewHealthManager(checks ...Check) *HealthManager {
	m := &HealthManager{}
	for _, check := range checks {
		m.Register(check)
	}
	return m
}

// Register appends a probe. Unnamed probes are ignored.
func (m *HealthManager) Register(check Check) {
	if check.Name == "" || check.Run == nil {
		return
	}
	m.mu.Lock()
	m.checks = append(m.checks, check)
	m.mu.Unlock()
}

// Evaluate runs every probe concurrently. Results keep registration order.
func (m *HealthManager) Evaluate(ctx context.Context) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.RLock()
	checks := append([]Check(nil), m.checks...)
	m.mu.RUnlock()

	results := make([]ProbeResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = runCheck(ctx, check)
		}(i, check)
	}
	wg.Wait()

	return summarise(results)
}

func summarise(results []ProbeResult) HealthReport {
	report := HealthReport{Success: true, Status: StatusUp, Checks: results}
	for _, r := range results {
		switch r.Status {
		case StatusDown:
			report.Success = false
			report.Status = StatusDown
		case StatusDegraded:
			report.Success = false
			if report.Status != StatusDown {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func runCheck(ctx context.Context, check Check) (result ProbeResult) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{
				Status:  StatusDown,
				Details: fmt.Sprint(rec),
			}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
		result.Component = check.Name
	}()

	return check.Run(ctx)
}

// ResultFromError converts an error into a ProbeResult. Timeouts degrade the
// component; any other error marks it down.
func ResultFromError(err error, duration time.Duration) ProbeResult {
	if duration < 0 {
		duration = 0
	}
	if err == nil {
		return ProbeResult{Status: StatusUp, Duration: duration}
	}

	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}
	return ProbeResult{Status: status, Details: err.Error(), Duration: duration}
}

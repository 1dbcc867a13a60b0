package maintenance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/runmate/pkg/logger"
)

const defaultSchedule = "@hourly"

// Purger removes entries that expired before now.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner periodically purges expired key-value entries such as rate limit
// windows. Notifications have no expiry and are never touched.
type Cleaner struct {
	purgers  map[string]Purger
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	schedule string

	mu       sync.Mutex
	lastRun  time.Time
	lastErr  error
	failures int
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSchedule overrides the cron specification of the purge job.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(cleaner *Cleaner) {
		if log != nil {
			cleaner.log = log
		}
	}
}

// WithPurger registers a store to purge under the given name. Nil purgers are
// ignored.
func WithPurger(name string, p Purger) Option {
	return func(cleaner *Cleaner) {
		if p != nil && name != "" {
			cleaner.purgers[name] = p
		}
	}
}

// NewCleaner constructs a Cleaner. Without purgers Start is a no-op.
func NewCleaner(opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		purgers:  make(map[string]Purger),
		now:      time.Now,
		schedule: defaultSchedule,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the purge job with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if len(c.purgers) == 0 {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("cache purge failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", c.schedule, err)
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce purges every registered store once. Failures of one store do not
// stop the others; all errors are returned together.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	names := make([]string, 0, len(c.purgers))
	for name := range c.purgers {
		names = append(names, name)
	}
	sort.Strings(names)

	now := c.now()
	var errs error
	for _, name := range names {
		removed, err := c.purgers[name].PurgeExpired(ctx, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("purge %s: %w", name, err))
			continue
		}
		if removed > 0 {
			c.log.Debug("purged expired entries", zap.String("store", name), zap.Int64("removed", removed))
		}
	}

	c.mu.Lock()
	c.lastRun = now
	c.lastErr = errs
	if errs != nil {
		c.failures++
	} else {
		c.failures = 0
	}
	c.mu.Unlock()

	return errs
}

// LastRun reports when RunOnce last finished, how many runs in a row failed
// and the most recent error.
func (c *Cleaner) LastRun() (time.Time, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun, c.failures, c.lastErr
}

// Package prefs persists the small per-user flags the notification client
// keeps outside the notification collection: the one-time update notice and
// the set of ended-event cards the runner has already opened.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/runmate/internal/cache"
	"github.com/charlesng35/runmate/internal/notifications"
	"github.com/charlesng35/runmate/pkg/logger"
	"github.com/charlesng35/runmate/pkg/metrics"
)

const (
	keyUpdateNotice = "update_notice_read"
	keyAckedEvents  = "acknowledged_events"

	flagTrue  = "true"
	flagFalse = "false"
)

// ErrUserRequired is returned when a flag is addressed without a user id.
var ErrUserRequired = errors.New("prefs: user id is required")

// Prefs reads and writes persisted flags through a cache.Store. Updates to
// the acknowledged set are serialised per user within one Prefs; writers in
// other processes sharing the store still race last-writer-wins.
type Prefs struct {
	store cache.Store
	log   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customises Prefs.
type Option func(*Prefs)

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Prefs) {
		if log != nil {
			p.log = log
		}
	}
}

// New constructs Prefs on top of the supplied store.
func New(store cache.Store, opts ...Option) (*Prefs, error) {
	if store == nil {
		return nil, errors.New("prefs: store is required")
	}
	p := &Prefs{store: store, log: logger.WithModule("prefs"), locks: make(map[string]*sync.Mutex)}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// UpdateNoticeAcknowledged reports whether the runner dismissed the update
// notice. Missing values read as false. Any stored value other than "true" or
// "false" is deleted and also reads as false, so a corrupt flag only causes
// the notice to show again.
func (p *Prefs) UpdateNoticeAcknowledged(ctx context.Context, userID string) (bool, error) {
	key, err := flagKey(userID, keyUpdateNotice)
	if err != nil {
		return false, err
	}

	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("prefs: read update notice: %w", err)
	}
	if !ok {
		return false, nil
	}

	switch string(raw) {
	case flagTrue:
		return true, nil
	case flagFalse:
		return false, nil
	}

	p.resetCorrupt(ctx, key, keyUpdateNotice, raw)
	return false, nil
}

// DismissUpdateNotice records that the update notice was acknowledged.
func (p *Prefs) DismissUpdateNotice(ctx context.Context, userID string) error {
	return p.setUpdateNotice(ctx, userID, flagTrue)
}

// ResetUpdateNotice makes the update notice show again, e.g. after a new
// version was announced.
func (p *Prefs) ResetUpdateNotice(ctx context.Context, userID string) error {
	return p.setUpdateNotice(ctx, userID, flagFalse)
}

func (p *Prefs) setUpdateNotice(ctx context.Context, userID, value string) error {
	key, err := flagKey(userID, keyUpdateNotice)
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, key, []byte(value), 0); err != nil {
		return fmt.Errorf("prefs: write update notice: %w", err)
	}
	return nil
}

// AcknowledgedEvents returns the events whose ended-event card was opened.
// A corrupt stored value is deleted and reads as an empty set.
func (p *Prefs) AcknowledgedEvents(ctx context.Context, userID string) (notifications.EventSet, error) {
	key, err := flagKey(userID, keyAckedEvents)
	if err != nil {
		return nil, err
	}

	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("prefs: read acknowledged events: %w", err)
	}
	if !ok || len(raw) == 0 {
		return notifications.NewEventSet(), nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		p.resetCorrupt(ctx, key, keyAckedEvents, raw)
		return notifications.NewEventSet(), nil
	}
	return notifications.NewEventSet(ids...), nil
}

// AcknowledgeEvent adds eventID to the acknowledged set and returns the
// updated set. Acknowledging an event twice is a no-op.
func (p *Prefs) AcknowledgeEvent(ctx context.Context, userID, eventID string) (notifications.EventSet, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, errors.New("prefs: event id is required")
	}
	key, err := flagKey(userID, keyAckedEvents)
	if err != nil {
		return nil, err
	}
	unlock := p.lock(key)
	defer unlock()

	set, err := p.AcknowledgedEvents(ctx, userID)
	if err != nil {
		return nil, err
	}
	if set.Has(eventID) {
		return set, nil
	}
	set.Add(eventID)

	payload, err := json.Marshal(set.IDs())
	if err != nil {
		return nil, fmt.Errorf("prefs: encode acknowledged events: %w", err)
	}
	if err := p.store.Set(ctx, key, payload, 0); err != nil {
		return nil, fmt.Errorf("prefs: write acknowledged events: %w", err)
	}
	return set, nil
}

// lock holds the mutex for key until the returned func is called.
func (p *Prefs) lock(key string) func() {
	p.mu.Lock()
	m, ok := p.locks[key]
	if !ok {
		m = &sync.Mutex{}
		p.locks[key] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (p *Prefs) resetCorrupt(ctx context.Context, key, name string, raw []byte) {
	metrics.CorruptPreferences.WithLabelValues(name).Inc()
	p.log.Warn("resetting corrupt preference",
		zap.String("key", name),
		zap.Int("bytes", len(raw)),
	)
	if err := p.store.Delete(ctx, key); err != nil {
		p.log.Warn("failed to delete corrupt preference", zap.String("key", name), zap.Error(err))
	}
}

func flagKey(userID, name string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrUserRequired
	}
	return "prefs:" + userID + ":" + name, nil
}

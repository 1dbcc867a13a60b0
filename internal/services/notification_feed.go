package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/runmate/internal/notifications"
	"github.com/charlesng35/runmate/internal/realtime"
	"github.com/charlesng35/runmate/pkg/logger"
	"github.com/charlesng35/runmate/pkg/metrics"
)

const feedBackendSQL = "sql"

// NotificationFeed serves live notification snapshots from the SQL store.
// Every change published on the hub triggers a fresh snapshot, so the feed
// behaves like a document-store live query for in-process consumers.
type NotificationFeed struct {
	svc  *NotificationService
	hub  *realtime.Hub
	poll time.Duration
	log  *zap.Logger
}

// FeedOption customises a NotificationFeed.
type FeedOption func(*NotificationFeed)

// WithPollInterval also reloads the snapshot on a fixed interval. Processes
// that share the database but not the hub use it to observe foreign writes.
func WithPollInterval(interval time.Duration) FeedOption {
	return func(f *NotificationFeed) {
		if interval > 0 {
			f.poll = interval
		}
	}
}

// NewNotificationFeed builds a feed over the service and hub.
func NewNotificationFeed(svc *NotificationService, hub *realtime.Hub, opts ...FeedOption) (*NotificationFeed, error) {
	if svc == nil || hub == nil {
		return nil, errors.New("notification feed: service and hub are required")
	}
	f := &NotificationFeed{svc: svc, hub: hub, log: logger.WithModule("feed")}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Watch pushes the user's full notification list to fn, first immediately and
// then after every change. It blocks until ctx is done and returns nil on
// cancellation.
func (f *NotificationFeed) Watch(ctx context.Context, userID string, fn func([]notifications.Notification)) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("notification feed: user id is required")
	}

	changes, cancel := f.hub.Listen(realtime.StreamNotifications, userID)
	defer cancel()

	gauge := metrics.FeedSubscriptions.WithLabelValues(feedBackendSQL)
	gauge.Inc()
	defer gauge.Dec()

	push := func() error {
		items, err := f.svc.Snapshot(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.FeedErrors.WithLabelValues(feedBackendSQL).Inc()
			return err
		}
		fn(items)
		return nil
	}

	if err := push(); err != nil {
		return err
	}

	var tick <-chan time.Time
	if f.poll > 0 {
		ticker := time.NewTicker(f.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			drain(changes)
		case <-tick:
		}
		if err := push(); err != nil {
			f.log.Warn("snapshot reload failed", zap.String("user_id", userID), zap.Error(err))
			return err
		}
	}
}

// MarkRead writes the read flag for the listed ids.
func (f *NotificationFeed) MarkRead(ctx context.Context, userID string, ids []string) error {
	_, err := f.svc.MarkRead(ctx, userID, ids...)
	return err
}

// drain collapses a burst of queued change events into one reload.
func drain(ch <-chan realtime.Message) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/runmate/internal/app"
	"github.com/charlesng35/runmate/internal/cache"
	"github.com/charlesng35/runmate/internal/database"
	"github.com/charlesng35/runmate/internal/inbox"
	"github.com/charlesng35/runmate/internal/prefs"
	"github.com/charlesng35/runmate/internal/realtime"
	"github.com/charlesng35/runmate/internal/remote/firestore"
	"github.com/charlesng35/runmate/internal/services"
)

// watcher owns the inbox store and everything it was built from.
type watcher struct {
	store   *inbox.Store
	closers []func() error
}

// openDatabase is replaced in tests to observe the handle newWatcher opens.
var openDatabase = database.Open

// newWatcher opens the flag store and the configured notification backend.
// Acknowledged events always live in the local key-value store, so both
// backends share the same flag semantics.
func newWatcher(ctx context.Context, cfg *app.Config, log *zap.Logger) (_ *watcher, err error) {
	w := &watcher{}
	defer func() {
		if err != nil {
			_ = w.Close()
		}
	}()

	db, err := openDatabase(cfg.Database.ConnectionConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	w.closers = append(w.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	var kv cache.Store = cache.NewDatabaseStore(db)
	if cfg.Cache.Redis.Enabled {
		redisStore, err := cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig())
		if err != nil {
			log.Warn("redis unavailable; falling back to database-backed flags", zap.Error(err))
		} else {
			kv = redisStore
			w.closers = append(w.closers, redisStore.Close)
		}
	}

	flags, err := prefs.New(kv, prefs.WithLogger(log))
	if err != nil {
		return nil, err
	}

	var remote inbox.Remote
	switch cfg.Notifications.Backend {
	case app.FeedBackendFirestore:
		fsRemote, err := firestore.New(ctx, cfg.Firebase.RemoteConfig())
		if err != nil {
			return nil, fmt.Errorf("connect firestore: %w", err)
		}
		w.closers = append(w.closers, fsRemote.Close)
		remote = fsRemote
	default:
		hub := realtime.NewHub()
		svc, err := services.NewNotificationService(db, hub, services.WithListLimit(cfg.Notifications.ListLimit))
		if err != nil {
			return nil, err
		}
		feed, err := services.NewNotificationFeed(svc, hub, services.WithPollInterval(cfg.Notifications.PollInterval))
		if err != nil {
			return nil, err
		}
		remote = feed
	}

	w.store, err = inbox.New(remote, inbox.WithAcknowledgements(flags), inbox.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Close stops the watch before releasing the backends it reads from.
func (w *watcher) Close() error {
	if w == nil {
		return nil
	}
	var errs error
	if w.store != nil {
		errs = multierr.Append(errs, w.store.Close())
	}
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, w.closers[i]())
	}
	w.closers = nil
	return errs
}

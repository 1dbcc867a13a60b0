package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/runmate/internal/api"
	"github.com/charlesng35/runmate/internal/app"
	"github.com/charlesng35/runmate/internal/app/maintenance"
	iauth "github.com/charlesng35/runmate/internal/auth"
	"github.com/charlesng35/runmate/internal/cache"
	"github.com/charlesng35/runmate/internal/database"
	"github.com/charlesng35/runmate/internal/monitoring/checks"
	"github.com/charlesng35/runmate/internal/realtime"
)

// runtimeStack is everything the HTTP server keeps alive between start and
// shutdown.
type runtimeStack struct {
	DB      *gorm.DB
	Redis   *cache.RedisStore
	KV      cache.Store
	Hub     *realtime.Hub
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime opens storage, starts the purge job and builds the
// router. On error everything opened so far is released.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (stack *runtimeStack, err error) {
	stack = &runtimeStack{Hub: realtime.NewHub()}
	defer func() {
		if err != nil {
			stack.Shutdown(context.Background(), log)
			stack = nil
		}
	}()

	if os.Getenv("GIN_DEBUG") != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	if stack.DB, err = openDatabase(cfg, log); err != nil {
		return stack, err
	}
	sqlFlags := cache.NewDatabaseStore(stack.DB)
	stack.KV = sqlFlags
	stack.connectRedis(ctx, cfg, log)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return stack, fmt.Errorf("initialise jwt service: %w", err)
	}

	// Rate limit windows land in SQL whenever redis is off, so the table is
	// purged either way.
	stack.Cleaner = maintenance.NewCleaner(
		maintenance.WithPurger("database", sqlFlags),
		maintenance.WithSchedule(cfg.Notifications.CleanupSchedule),
		maintenance.WithLogger(log.Named("maintenance")),
	)
	if err = stack.Cleaner.Start(); err != nil {
		return stack, fmt.Errorf("start maintenance jobs: %w", err)
	}

	var pinger checks.RedisPinger
	if stack.Redis != nil {
		pinger = stack.Redis
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, stack.Hub, stack.KV,
		checks.Redis(pinger, cfg.Cache.Redis.Enabled, 0),
		checks.Maintenance(stack.Cleaner, 0),
	)
	if err != nil {
		return stack, fmt.Errorf("build api router: %w", err)
	}
	return stack, nil
}

// connectRedis switches the flag store to redis when it is enabled and
// reachable. A failed connection keeps the SQL store.
func (s *runtimeStack) connectRedis(ctx context.Context, cfg *app.Config, log *zap.Logger) {
	if !cfg.Cache.Redis.Enabled {
		return
	}
	store, err := cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig())
	if err != nil {
		log.Warn("redis unavailable; flags stay in the database", zap.Error(err))
		return
	}
	s.Redis, s.KV = store, store
	log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
}

// Shutdown stops the purge job, runs one last purge and closes connections.
// Failures are logged; shutdown always runs to the end.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	var errs error
	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
		errs = multierr.Append(errs, s.Cleaner.RunOnce(ctx))
	}
	if s.Redis != nil {
		errs = multierr.Append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			errs = multierr.Append(errs, sqlDB.Close())
		}
	}

	for _, err := range multierr.Errors(errs) {
		log.Warn("shutdown", zap.Error(err))
	}
}

func openDatabase(cfg *app.Config, log *zap.Logger) (*gorm.DB, error) {
	conn := cfg.Database.ConnectionConfig()
	db, err := database.Open(conn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}

	log.Info("database ready", zap.String("driver", conn.Driver))
	return db, nil
}

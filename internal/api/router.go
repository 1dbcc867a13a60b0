package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/runmate/internal/app"
	iauth "github.com/charlesng35/runmate/internal/auth"
	"github.com/charlesng35/runmate/internal/cache"
	"github.com/charlesng35/runmate/internal/handlers"
	"github.com/charlesng35/runmate/internal/middleware"
	"github.com/charlesng35/runmate/internal/monitoring"
	"github.com/charlesng35/runmate/internal/monitoring/checks"
	"github.com/charlesng35/runmate/internal/prefs"
	"github.com/charlesng35/runmate/internal/realtime"
	"github.com/charlesng35/runmate/internal/services"
)

const (
	defaultRateLimitRequests = 120
	defaultRateLimitWindow   = time.Minute
	defaultMetricsEndpoint   = "/metrics"
)

// NewRouter builds the Gin engine, wires middleware and registers the
// notification routes. kv backs the persisted flags and the rate limiter;
// when nil the SQL key-value table is used. The readiness probe always pings
// the database and runs any extra checks after it.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, hub *realtime.Hub, kv cache.Store, readiness ...monitoring.Check) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if hub == nil {
		hub = realtime.NewHub()
	}
	if kv == nil {
		kv = cache.NewDatabaseStore(db)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	registerHealthRoutes(r, db, monitoring.NewHealthManager(append([]monitoring.Check{checks.Database(db, 0)}, readiness...)...))

	notificationSvc, err := services.NewNotificationService(db, hub, services.WithListLimit(cfg.Notifications.ListLimit))
	if err != nil {
		return nil, err
	}
	flags, err := prefs.New(kv)
	if err != nil {
		return nil, err
	}
	notificationHandler, err := handlers.NewNotificationHandler(notificationSvc, flags)
	if err != nil {
		return nil, err
	}
	realtimeHandler := handlers.NewRealtimeHandler(hub, jwt, realtime.StreamNotifications)

	requests, window := cfg.RateLimit.Requests, cfg.RateLimit.Window
	if requests <= 0 {
		requests = defaultRateLimitRequests
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}

	// The websocket authenticates itself so browsers can pass the token in the query.
	r.GET("/api/notifications/stream", realtimeHandler.Stream)

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	registerNotificationRoutes(api, notificationHandler, notificationRouteOptions{
		writeLimit:       middleware.RateLimit(middleware.NewRateStore(kv), requests, window),
		internalAudience: strings.TrimSpace(cfg.Notifications.InternalAudience),
	})

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = defaultMetricsEndpoint
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

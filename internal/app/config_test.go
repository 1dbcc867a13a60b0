package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/runmate/internal/auth"
	"github.com/charlesng35/runmate/internal/database"
	"github.com/charlesng35/runmate/internal/remote/firestore"
	"github.com/charlesng35/runmate/pkg/logger"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 3*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 12*time.Hour, cfg.Auth.JWT.TTL)

	require.Equal(t, "runmate-dev", cfg.Firebase.ProjectID)
	require.Equal(t, "notifications", cfg.Firebase.Collection)

	require.Equal(t, FeedBackendFirestore, cfg.Notifications.Backend)
	require.Equal(t, 40, cfg.Notifications.ListLimit)
	require.Equal(t, 10*time.Second, cfg.Notifications.PollInterval)
	require.Equal(t, "@every 30m", cfg.Notifications.CleanupSchedule)
	require.Equal(t, "runmate-internal", cfg.Notifications.InternalAudience)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, 60, cfg.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.RateLimit.Window)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("RUNMATE_SERVER_PORT", "7001")
	t.Setenv("RUNMATE_NOTIFICATIONS_BACKEND", "SQL")

	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)
	require.Equal(t, 7001, cfg.Server.Port)
	require.Equal(t, FeedBackendSQL, cfg.Notifications.Backend)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Notifications: NotificationsConfig{Backend: " Firestore "}}
	require.Error(t, cfg.Validate())

	cfg.Firebase.ProjectID = "runmate-dev"
	require.NoError(t, cfg.Validate())
	require.Equal(t, FeedBackendFirestore, cfg.Notifications.Backend)

	cfg.Notifications.Backend = "kafka"
	require.Error(t, cfg.Validate())

	cfg.Notifications.Backend = FeedBackendSQL
	cfg.RateLimit.Window = -time.Second
	require.Error(t, cfg.Validate())
}

func TestLoadConfigBindsSecretFromEnv(t *testing.T) {
	t.Setenv("RUNMATE_AUTH_JWT_SECRET", "from-environment-0123")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "from-environment-0123", cfg.Auth.JWT.Secret)
	require.Equal(t, 8000, cfg.Server.Port)
}

func TestAuthConfigAdapter(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{Secret: " secret ", Issuer: "issuer", TTL: 30 * time.Minute}}
	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, cfg.JWTServiceConfig())

	var empty AuthConfig
	require.Equal(t, auth.DefaultAccessTokenTTL, empty.JWTServiceConfig().AccessTokenTTL)
}

func TestDatabaseConfigAdapter(t *testing.T) {
	sqlite := DatabaseConfig{Path: " ./data/test.sqlite "}
	require.Equal(t, database.Config{Driver: "sqlite", Path: "./data/test.sqlite"}, sqlite.ConnectionConfig())

	pg := DatabaseConfig{
		Driver:   "PostgreSQL",
		Postgres: DBAuthConfig{Host: "db", Port: 5432, Database: "runmate", Username: "app", Password: "pw"},
	}
	require.Equal(t, database.Config{
		Driver:   "postgres",
		Host:     "db",
		Port:     5432,
		Name:     "runmate",
		User:     "app",
		Password: "pw",
	}, pg.ConnectionConfig())

	my := DatabaseConfig{Driver: "mysql", MySQL: DBAuthConfig{Host: "mysql", Database: "runmate"}}
	require.Equal(t, "mysql", my.ConnectionConfig().Driver)
	require.Equal(t, "mysql", my.ConnectionConfig().Host)

	require.Equal(t, "oracle", DatabaseConfig{Driver: "oracle"}.ConnectionConfig().Driver)
}

func TestCacheAndFirebaseAdapters(t *testing.T) {
	cache := CacheConfig{Redis: RedisCacheConfig{Address: " redis:6379 ", Password: "pw", DB: 1, TLS: true}}
	redisCfg := cache.RedisClientConfig()
	require.Equal(t, "redis:6379", redisCfg.Address)
	require.Equal(t, 1, redisCfg.DB)
	require.True(t, redisCfg.TLS)

	fb := FirebaseConfig{ProjectID: " runmate ", Collection: "notifications"}
	require.Equal(t, firestore.Config{ProjectID: "runmate", Collection: "notifications"}, fb.RemoteConfig())
}

func TestServerConfigureLogging(t *testing.T) {
	t.Cleanup(func() { logger.Replace(nil) })

	require.NoError(t, ServerConfig{LogLevel: "debug"}.ConfigureLogging())
	require.True(t, logger.Logger().Core().Enabled(zap.DebugLevel))

	require.NoError(t, ServerConfig{}.ConfigureLogging("development"))
	require.False(t, logger.Logger().Core().Enabled(zap.DebugLevel))
}

package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Feed backends selectable under notifications.backend.
const (
	FeedBackendSQL       = "sql"
	FeedBackendFirestore = "firestore"
)

// Config represents the runtime configuration for the RunMate notification backend.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Firebase      FirebaseConfig      `mapstructure:"firebase"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures authentication settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// FirebaseConfig points at the Firestore project holding the notification
// collection.
type FirebaseConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Collection      string `mapstructure:"collection"`
}

// NotificationsConfig tunes the notification feed. Backend selects where the
// inbox watcher reads notifications from; the HTTP API always serves SQL.
type NotificationsConfig struct {
	Backend          string        `mapstructure:"backend"`
	ListLimit        int           `mapstructure:"list_limit"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	CleanupSchedule  string        `mapstructure:"cleanup_schedule"`
	InternalAudience string        `mapstructure:"internal_audience"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// RateLimitConfig bounds write requests per caller and route.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig reads config.yaml from ./config and paths, then RUNMATE_*
// environment overrides. A missing file is fine; defaults cover every key.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("RUNMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate normalises the feed backend and rejects settings the server
// cannot start with.
func (c *Config) Validate() error {
	c.Notifications.Backend = strings.ToLower(strings.TrimSpace(c.Notifications.Backend))
	switch c.Notifications.Backend {
	case FeedBackendSQL:
	case FeedBackendFirestore:
		if strings.TrimSpace(c.Firebase.ProjectID) == "" {
			return errors.New("config: firebase.project_id is required for the firestore backend")
		}
	default:
		return fmt.Errorf("config: unknown notifications.backend %q", c.Notifications.Backend)
	}

	switch {
	case c.Notifications.ListLimit < 0:
		return errors.New("config: notifications.list_limit must not be negative")
	case c.RateLimit.Requests < 0 || c.RateLimit.Window < 0:
		return errors.New("config: ratelimit values must not be negative")
	}
	return nil
}

// defaults holds every key LoadConfig knows about. With ExperimentalBindStruct
// each one can also be set through a RUNMATE_ environment variable.
var defaults = map[string]any{
	"server.port":      8000,
	"server.log_level": "info",

	"database.driver": "sqlite",
	"database.path":   "./data/runmate.sqlite",

	"cache.redis.enabled": false,
	"cache.redis.address": "127.0.0.1:6379",
	"cache.redis.db":      0,
	"cache.redis.tls":     false,
	"cache.redis.timeout": "5s",

	"auth.jwt.issuer":           "runmate",
	"auth.jwt.access_token_ttl": "24h",

	"firebase.collection": "notifications",

	"notifications.backend":           FeedBackendSQL,
	"notifications.list_limit":        30,
	"notifications.poll_interval":     "5s",
	"notifications.cleanup_schedule":  "@hourly",
	"notifications.internal_audience": "runmate-internal",

	"monitoring.prometheus.enabled":  true,
	"monitoring.prometheus.endpoint": "/metrics",

	"ratelimit.requests": 120,
	"ratelimit.window":   "1m",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

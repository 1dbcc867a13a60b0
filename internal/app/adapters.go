package app

import (
	"strings"

	"github.com/charlesng35/runmate/internal/auth"
	"github.com/charlesng35/runmate/internal/cache"
	"github.com/charlesng35/runmate/internal/database"
	"github.com/charlesng35/runmate/internal/remote/firestore"
	"github.com/charlesng35/runmate/pkg/logger"
)

// ConfigureLogging installs the global logger at the configured level, info
// when unset. Passing "development" selects the console encoder.
func (c ServerConfig) ConfigureLogging(encoding ...string) error {
	level := strings.TrimSpace(c.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.Init(level, encoding...)
}

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}
	return auth.JWTConfig{
		Secret:         strings.TrimSpace(c.JWT.Secret),
		Issuer:         strings.TrimSpace(c.JWT.Issuer),
		AccessTokenTTL: ttl,
	}
}

// RedisClientConfig maps the redis section onto the flag store settings.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	r := c.Redis
	return cache.RedisConfig{
		Address:  strings.TrimSpace(r.Address),
		Username: strings.TrimSpace(r.Username),
		Password: r.Password,
		DB:       r.DB,
		TLS:      r.TLS,
		Timeout:  r.Timeout,
	}
}

// ConnectionConfig converts the database section into database.Config.
// Unknown drivers pass through so database.Open reports them.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	out := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
	}

	var creds DBAuthConfig
	switch out.Driver {
	case "", "sqlite":
		out.Driver = "sqlite"
		return out
	case "postgres", "postgresql":
		out.Driver, creds = "postgres", c.Postgres
	case "mysql":
		creds = c.MySQL
	default:
		return out
	}

	out.Host = strings.TrimSpace(creds.Host)
	out.Port = creds.Port
	out.Name = strings.TrimSpace(creds.Database)
	out.User = strings.TrimSpace(creds.Username)
	out.Password = creds.Password
	return out
}

// RemoteConfig converts the firebase section into the Firestore remote settings.
func (c FirebaseConfig) RemoteConfig() firestore.Config {
	return firestore.Config{
		ProjectID:       strings.TrimSpace(c.ProjectID),
		CredentialsFile: strings.TrimSpace(c.CredentialsFile),
		Collection:      strings.TrimSpace(c.Collection),
	}
}

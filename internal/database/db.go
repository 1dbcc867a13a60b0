package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/charlesng35/runmate/internal/models"
)

// Config selects a driver and how to reach it. DSN, when set, is used as is.
type Config struct {
	Driver   string
	Path     string // SQLite database path when Driver == sqlite
	DSN      string // Optional DSN override
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string
}

// Open connects to the configured driver; an empty driver means sqlite.
func Open(cfg Config) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	switch driver {
	case "sqlite":
		return openSQLite(cfg)
	case "postgres", "postgresql":
		return openPostgres(cfg)
	case "mysql":
		return openMySQL(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate brings the notification and cache tables up to date.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := db.AutoMigrate(schema()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func schema() []any {
	return []any{
		&models.Notification{},
		&models.CacheEntry{},
	}
}

// gormConfig is shared by every driver. Timestamps are stored in UTC so
// newest-first ordering is stable across drivers.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

package database

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sqliteBusyTimeoutMS = 5000

// openSQLite opens a file database in WAL mode, or a private in-memory one
// when no path is set. Memory databases are pinned to one connection since
// each connection would otherwise see its own empty database.
func openSQLite(cfg Config) (*gorm.DB, error) {
	dsn, memory, err := sqliteDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	if memory {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func sqliteDSN(cfg Config) (dsn string, memory bool, err error) {
	if dsn = strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn, strings.Contains(dsn, ":memory:"), nil
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return "file::memory:", true, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", false, fmt.Errorf("sqlite: create %s: %w", dir, err)
		}
	}

	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", fmt.Sprint(sqliteBusyTimeoutMS))
	return "file:" + filepath.ToSlash(path) + "?" + params.Encode(), false, nil
}

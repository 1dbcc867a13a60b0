// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/runmate/internal/database"
)

// TestDBOption adjusts MustOpenTestDB.
type TestDBOption func(*database.Config, *bool)

// WithAutoMigrate creates the notification and cache tables.
func WithAutoMigrate() TestDBOption {
	return func(_ *database.Config, migrate *bool) { *migrate = true }
}

// MustOpenTestDB opens a private in-memory SQLite database. The handle is
// closed when the test ends.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := database.Config{Driver: "sqlite"}
	migrate := false
	for _, opt := range opts {
		opt(&cfg, &migrate)
	}

	db, err := database.Open(cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if migrate {
		require.NoError(t, database.Migrate(db))
	}
	return db
}

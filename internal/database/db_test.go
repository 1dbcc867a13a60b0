package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/runmate/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Exec("SELECT 1").Error)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.EqualError(t, err, `unsupported database driver "oracle"`)
}

func TestMigrateCreatesNotificationSchema(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))

	require.True(t, db.Migrator().HasTable(&models.Notification{}))
	require.True(t, db.Migrator().HasTable(&models.CacheEntry{}))
	require.True(t, db.Migrator().HasIndex(&models.Notification{}, "idx_notifications_target_ts"))

	row := models.Notification{
		TargetUserID: "runner-1",
		Type:         "like",
		Timestamp:    time.Now().UTC(),
	}
	require.NoError(t, db.Create(&row).Error)
	require.NotEmpty(t, row.ID)
	require.False(t, row.IsRead)
}

func TestMemoryDatabasesAreIsolated(t *testing.T) {
	first := openTestDB(t)
	second := openTestDB(t)
	require.NoError(t, Migrate(first))

	require.False(t, second.Migrator().HasTable(&models.Notification{}))
}

func TestMigrateRequiresHandle(t *testing.T) {
	require.Error(t, Migrate(nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func TestSQLiteDSN(t *testing.T) {
	dsn, memory, err := sqliteDSN(Config{})
	require.NoError(t, err)
	require.True(t, memory)
	require.Equal(t, "file::memory:", dsn)

	path := filepath.Join(t.TempDir(), "nested", "runmate.sqlite")
	dsn, memory, err = sqliteDSN(Config{Path: path})
	require.NoError(t, err)
	require.False(t, memory)
	require.Equal(t, "file:"+filepath.ToSlash(path)+"?_busy_timeout=5000&_journal_mode=WAL", dsn)
	require.DirExists(t, filepath.Dir(path))

	dsn, _, err = sqliteDSN(Config{DSN: "file:custom.db", Path: path})
	require.NoError(t, err)
	require.Equal(t, "file:custom.db", dsn)
}

func TestFileDatabaseIsSharedAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.sqlite")
	first, err := Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, Migrate(first))

	second, err := Open(Config{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	require.True(t, second.Migrator().HasTable(&models.Notification{}))

	for _, db := range []*gorm.DB{first, second} {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())
	}
}

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/runmate/internal/app"
	"github.com/charlesng35/runmate/internal/database"
	"github.com/charlesng35/runmate/internal/notifications"
	"github.com/charlesng35/runmate/internal/services"
)

func TestWatcherMirrorsSQLWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runmate.sqlite")
	cfg := &app.Config{
		Database: app.DatabaseConfig{Driver: "sqlite", Path: path},
		Notifications: app.NotificationsConfig{
			Backend:      app.FeedBackendSQL,
			PollInterval: 20 * time.Millisecond,
		},
	}

	w, err := newWatcher(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, w.Close()) })

	require.NoError(t, w.store.SignIn(context.Background(), "runner-1"))
	require.Eventually(t, func() bool { return !w.store.Loading() }, 2*time.Second, 10*time.Millisecond)
	require.False(t, w.store.Badges().Visible(notifications.TabBoard))

	// A second handle plays the API process writing to the shared database.
	writer, err := database.Open(database.Config{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	sqlDB, err := writer.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	svc, err := services.NewNotificationService(writer, nil)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), services.CreateNotificationInput{
		TargetUserID: "runner-1",
		Type:         "like",
		PostID:       "post-1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return w.store.Badges().Visible(notifications.TabBoard)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunRequiresUser(t *testing.T) {
	require.Error(t, run(context.Background(), []string{}))
}

func TestWatcherReleasesDatabaseWhenSetupFails(t *testing.T) {
	var opened *gorm.DB
	t.Cleanup(func() { openDatabase = database.Open })
	openDatabase = func(cfg database.Config) (*gorm.DB, error) {
		db, err := database.Open(cfg)
		opened = db
		return db, err
	}

	cfg := &app.Config{
		Database:      app.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "runmate.sqlite")},
		Notifications: app.NotificationsConfig{Backend: app.FeedBackendFirestore},
	}

	w, err := newWatcher(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "connect firestore")
	require.Nil(t, w)

	require.NotNil(t, opened)
	sqlDB, err := opened.DB()
	require.NoError(t, err)
	require.Error(t, sqlDB.Ping(), "database handle should be closed after a failed setup")
}

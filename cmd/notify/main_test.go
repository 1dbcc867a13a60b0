package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/runmate/internal/app"
	"github.com/charlesng35/runmate/internal/database"
	"github.com/charlesng35/runmate/internal/services"
	apperrors "github.com/charlesng35/runmate/pkg/errors"
)

func TestRunCreatesThenDeletesThroughSQL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runmate.sqlite")
	t.Setenv("RUNMATE_DATABASE_PATH", path)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"-user", "runner-1", "-type", "message", "-chat", "room-a"}, &out))
	id := strings.TrimSpace(out.String())
	require.NotEmpty(t, id)

	db, err := database.Open(database.Config{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	svc, err := services.NewNotificationService(db, nil)
	require.NoError(t, err)

	rooms, err := svc.UnreadByRoom(ctx, "runner-1")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"room-a": 1}, rooms)

	out.Reset()
	require.NoError(t, run(ctx, []string{"-user", "runner-1", "-delete", id}, &out))
	require.Equal(t, "deleted "+id+"\n", out.String())

	rooms, err = svc.UnreadByRoom(ctx, "runner-1")
	require.NoError(t, err)
	require.Empty(t, rooms)
}

func TestRunValidatesFlags(t *testing.T) {
	t.Setenv("RUNMATE_DATABASE_PATH", filepath.Join(t.TempDir(), "runmate.sqlite"))

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing user", args: []string{"-type", "like"}},
		{name: "missing type", args: []string{"-user", "runner-1"}},
		{name: "missing reference", args: []string{"-user", "runner-1", "-type", "message"}},
		{name: "unknown flag", args: []string{"-nope"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, run(context.Background(), tc.args, &bytes.Buffer{}))
		})
	}
}

func TestSQLPublisherDeleteChecksOwner(t *testing.T) {
	cfg := &app.Config{
		Database:      app.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "runmate.sqlite")},
		Notifications: app.NotificationsConfig{Backend: app.FeedBackendSQL},
	}
	pub, err := newPublisher(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pub.Close()) })

	id, err := pub.Create(context.Background(), services.CreateNotificationInput{
		TargetUserID: "runner-1",
		Type:         "like",
		PostID:       "post-1",
	})
	require.NoError(t, err)

	require.ErrorIs(t, pub.Delete(context.Background(), "runner-2", id), apperrors.ErrNotFound)
	require.NoError(t, pub.Delete(context.Background(), "runner-1", id))
}

func TestFirestorePublisherNeedsProject(t *testing.T) {
	cfg := &app.Config{Notifications: app.NotificationsConfig{Backend: app.FeedBackendFirestore}}

	_, err := newPublisher(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "project id is required")
}

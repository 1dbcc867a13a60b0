package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/charlesng35/runmate/internal/notifications"
)

func TestNotificationRecordRoundTrip(t *testing.T) {
	ts := time.Date(2024, 4, 20, 6, 0, 0, 0, time.UTC)
	rec := notifications.Record{
		ID:             "n-1",
		Type:           "message",
		TargetUserID:   "runner-1",
		Timestamp:      ts,
		Title:          "새 메시지",
		ChatID:         "room-1",
		Screen:         notifications.ScreenChatRoom,
		NavigationArgs: map[string]string{"chatId": "room-1"},
	}

	row, err := NotificationFromRecord(rec)
	require.NoError(t, err)
	require.Equal(t, "n-1", row.ID)
	require.JSONEq(t, `{"chatId":"room-1"}`, string(row.NavigationParams))

	require.Equal(t, rec, row.Record())
}

func TestNotificationRecordIgnoresBrokenNavigationParams(t *testing.T) {
	row := Notification{
		BaseModel:        BaseModel{ID: "n-2"},
		Type:             "like",
		NavigationParams: datatypes.JSON(`{"postId": 42}`),
	}

	rec := row.Record()
	require.Nil(t, rec.NavigationArgs)
	require.Equal(t, notifications.TypeLike, rec.Decode().Type())
}

package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/runmate/internal/database/testutil"
	"github.com/charlesng35/runmate/internal/models"
	"github.com/charlesng35/runmate/internal/notifications"
	"github.com/charlesng35/runmate/internal/realtime"
	apperrors "github.com/charlesng35/runmate/pkg/errors"
)

var testNow = time.Date(2024, 4, 20, 7, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*NotificationService, *realtime.Hub) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	hub := realtime.NewHub()
	svc, err := NewNotificationService(db, hub, WithClock(func() time.Time { return testNow }), WithListLimit(10))
	require.NoError(t, err)
	return svc, hub
}

func mustCreate(t *testing.T, svc *NotificationService, input CreateNotificationInput) *NotificationDTO {
	t.Helper()
	dto, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	return dto
}

func TestNotificationServiceCreateAppliesTemplates(t *testing.T) {
	svc, hub := newTestService(t)
	events, cancel := hub.Listen(realtime.StreamNotifications, "runner-1")
	defer cancel()

	dto := mustCreate(t, svc, CreateNotificationInput{
		TargetUserID: " runner-1 ",
		Type:         "Message",
		ChatID:       "room-1",
		Timestamp:    testNow.Add(-5 * time.Minute),
	})

	require.NotEmpty(t, dto.ID)
	require.Equal(t, "runner-1", dto.TargetUserID)
	require.Equal(t, "message", dto.Type)
	require.Equal(t, "chat", dto.Category)
	require.NotEmpty(t, dto.Title)
	require.Equal(t, notifications.ScreenChatRoom, dto.Navigation.Screen)
	require.Equal(t, "room-1", dto.Navigation.Params["chatId"])
	require.Equal(t, "5분 전", dto.RelativeTime)
	require.False(t, dto.IsRead)

	msg := <-events
	require.Equal(t, realtime.EventNotificationCreated, msg.Event)
	payload := msg.Data.(*NotificationEventPayload)
	require.Equal(t, dto.ID, payload.Notification.ID)
}

func TestNotificationServiceCreateValidates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateNotificationInput{Type: "like", PostID: "p"})
	require.ErrorContains(t, err, "target user id is required")

	_, err = svc.Create(ctx, CreateNotificationInput{TargetUserID: "u", Type: "poke"})
	appErr := apperrors.FromError(err)
	require.Equal(t, apperrors.ErrBadRequest.Code, appErr.Code)

	_, err = svc.Create(ctx, CreateNotificationInput{TargetUserID: "u", Type: "message"})
	require.ErrorContains(t, err, "chat id is required")

	_, err = svc.Create(ctx, CreateNotificationInput{TargetUserID: "u", Type: "rating"})
	require.ErrorContains(t, err, "event id is required")

	_, err = svc.Create(ctx, CreateNotificationInput{TargetUserID: "u", Type: "update", Version: "2.1.0"})
	require.NoError(t, err)
}

func TestNotificationServiceListNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i, postID := range []string{"p1", "p2", "p3"} {
		mustCreate(t, svc, CreateNotificationInput{
			TargetUserID: "runner-1",
			Type:         "like",
			PostID:       postID,
			Timestamp:    testNow.Add(time.Duration(i) * time.Minute),
		})
	}
	mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-2", Type: "like", PostID: "other"})

	page, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: "runner-1", Limit: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Total)
	require.EqualValues(t, 3, page.Unread)
	require.Len(t, page.Items, 2)
	require.Equal(t, "p3", page.Items[0].PostID)
	require.Equal(t, "p2", page.Items[1].PostID)

	page, err = svc.ListForUser(ctx, ListNotificationsInput{UserID: "runner-1", Offset: 2})
	require.NoError(t, err)
	require.Equal(t, 10, page.Limit)
	require.Len(t, page.Items, 1)
	require.Equal(t, "p1", page.Items[0].PostID)

	_, err = svc.ListForUser(ctx, ListNotificationsInput{})
	require.Error(t, err)
}

func TestNotificationServiceFanout(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	items, err := svc.Fanout(ctx, FanoutInput{
		Recipients: []string{"runner-1", " ", "runner-2", "runner-1"},
		Template: CreateNotificationInput{
			Type:    "cancel",
			EventID: "event-7",
		},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "runner-1", items[0].TargetUserID)
	require.Equal(t, "runner-2", items[1].TargetUserID)
	require.NotEqual(t, items[0].ID, items[1].ID)
	require.True(t, items[0].Timestamp.Equal(items[1].Timestamp))

	_, err = svc.Fanout(ctx, FanoutInput{Recipients: []string{""}, Template: CreateNotificationInput{Type: "cancel", EventID: "e"}})
	require.Error(t, err)
}

func TestNotificationServiceMarkReadIsMonotonicAndIdempotent(t *testing.T) {
	svc, hub := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-1", Type: "like", PostID: "p1"})
	b := mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-1", Type: "comment", PostID: "p1", CommentID: "c1"})
	foreign := mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-2", Type: "like", PostID: "p9"})

	events, cancel := hub.Listen(realtime.StreamNotifications, "runner-1")
	defer cancel()

	changed, err := svc.MarkRead(ctx, "runner-1", a.ID, foreign.ID, "missing")
	require.NoError(t, err)
	require.Equal(t, []string{a.ID}, changed)

	msg := <-events
	require.Equal(t, realtime.EventNotificationsRead, msg.Event)

	changed, err = svc.MarkRead(ctx, "runner-1", a.ID)
	require.NoError(t, err)
	require.Empty(t, changed)

	page, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: "runner-1"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Unread)
	for _, item := range page.Items {
		if item.ID == a.ID {
			require.True(t, item.IsRead)
			require.NotNil(t, item.ReadAt)
		}
		if item.ID == b.ID {
			require.False(t, item.IsRead)
		}
	}

	other, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: "runner-2"})
	require.NoError(t, err)
	require.EqualValues(t, 1, other.Unread)
}

func TestNotificationServiceMarkChatReadScopesToRoom(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inRoom := mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-1", Type: "message", ChatID: "room-a"})
	mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-1", Type: "message", ChatID: "room-b"})
	mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-1", Type: "message", ChatID: "room-b"})

	rooms, err := svc.UnreadByRoom(ctx, "runner-1")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"room-a": 1, "room-b": 2}, rooms)

	changed, err := svc.MarkChatRead(ctx, "runner-1", "room-a")
	require.NoError(t, err)
	require.Equal(t, []string{inRoom.ID}, changed)

	rooms, err = svc.UnreadByRoom(ctx, "runner-1")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"room-b": 2}, rooms)

	badges, err := svc.Badges(ctx, "runner-1", nil)
	require.NoError(t, err)
	require.True(t, badges.Visible(notifications.TabChat))

	_, err = svc.MarkChatRead(ctx, "runner-1", " ")
	require.Error(t, err)
}

func TestNotificationServiceMarkCategoryRead(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-1", Type: "like", PostID: "p1"})
	mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-1", Type: "comment", PostID: "p1", CommentID: "c1"})
	mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-1", Type: "message", ChatID: "room-a"})

	changed, err := svc.MarkCategoryRead(ctx, "runner-1", notifications.CategoryBoard)
	require.NoError(t, err)
	require.Len(t, changed, 2)

	state, err := svc.ReadState(ctx, "runner-1", nil)
	require.NoError(t, err)
	require.False(t, state.Board)
	require.True(t, state.Chat)
	require.False(t, state.Meeting)

	_, err = svc.MarkCategoryRead(ctx, "runner-1", notifications.CategoryNone)
	require.Error(t, err)
}

func TestNotificationServiceRatingNeedsAcknowledgement(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rating := mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-1", Type: "rating", EventID: "event-1"})
	_, err := svc.MarkRead(ctx, "runner-1", rating.ID)
	require.NoError(t, err)

	state, err := svc.ReadState(ctx, "runner-1", nil)
	require.NoError(t, err)
	require.True(t, state.Meeting)

	state, err = svc.ReadState(ctx, "runner-1", notifications.NewEventSet("event-1"))
	require.NoError(t, err)
	require.False(t, state.Meeting)
}

func TestNotificationServiceDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	dto := mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-1", Type: "reminder", EventID: "e1"})

	require.ErrorIs(t, svc.Delete(ctx, "runner-2", dto.ID), apperrors.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, "runner-1", dto.ID))
	require.ErrorIs(t, svc.Delete(ctx, "runner-1", dto.ID), apperrors.ErrNotFound)
}

func TestNotificationServiceBadgesSeePastLongReadHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	old := []models.Notification{
		{TargetUserID: "runner-1", Type: "message", ChatID: "room-a", Timestamp: testNow.Add(-48 * time.Hour)},
		{TargetUserID: "runner-1", Type: "rating", EventID: "event-9", IsRead: true, Timestamp: testNow.Add(-47 * time.Hour)},
		{TargetUserID: "runner-1", Type: "like", PostID: "post-old", IsRead: true, Timestamp: testNow.Add(-46 * time.Hour)},
	}
	require.NoError(t, svc.db.Create(&old).Error)

	history := make([]models.Notification, snapshotLimit)
	for i := range history {
		history[i] = models.Notification{
			TargetUserID: "runner-1",
			Type:         "like",
			PostID:       fmt.Sprintf("post-%d", i),
			IsRead:       true,
			Timestamp:    testNow.Add(-time.Duration(i+1) * time.Minute),
		}
	}
	require.NoError(t, svc.db.CreateInBatches(&history, 100).Error)

	items, err := svc.Snapshot(ctx, "runner-1")
	require.NoError(t, err)
	require.Len(t, items, snapshotLimit+2)
	require.Equal(t, "room-a", items[len(items)-1].ChatID())

	state, err := svc.ReadState(ctx, "runner-1", nil)
	require.NoError(t, err)
	require.True(t, state.Chat)
	require.True(t, state.Meeting)
	require.False(t, state.Board)

	state, err = svc.ReadState(ctx, "runner-1", notifications.NewEventSet("event-9"))
	require.NoError(t, err)
	require.False(t, state.Meeting)

	rooms, err := svc.UnreadByRoom(ctx, "runner-1")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"room-a": 1}, rooms)
}

package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/runmate/internal/notifications"
)

type snapshotRecorder struct {
	mu        sync.Mutex
	snapshots [][]notifications.Notification
}

func (r *snapshotRecorder) record(items []notifications.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, items)
}

func (r *snapshotRecorder) last() []notifications.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func TestNotificationFeedPushesSnapshots(t *testing.T) {
	svc, hub := newTestService(t)
	feed, err := NewNotificationFeed(svc, hub)
	require.NoError(t, err)

	mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-1", Type: "like", PostID: "p1"})

	ctx, cancel := context.WithCancel(context.Background())
	rec := &snapshotRecorder{}
	done := make(chan error, 1)
	go func() { done <- feed.Watch(ctx, "runner-1", rec.record) }()

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	require.Len(t, rec.last(), 1)

	msg := mustCreate(t, svc, CreateNotificationInput{TargetUserID: "runner-1", Type: "message", ChatID: "room-1", Timestamp: testNow.Add(time.Minute)})
	require.Eventually(t, func() bool { return len(rec.last()) == 2 }, time.Second, 10*time.Millisecond)
	require.Equal(t, msg.ID, rec.last()[0].ID)

	require.NoError(t, feed.MarkRead(ctx, "runner-1", []string{msg.ID}))
	require.Eventually(t, func() bool {
		items := rec.last()
		return len(items) == 2 && items[0].IsRead
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	require.Zero(t, hub.Subscribers("notifications", "runner-1"))
}

func TestNotificationFeedRequiresUser(t *testing.T) {
	svc, hub := newTestService(t)
	feed, err := NewNotificationFeed(svc, hub)
	require.NoError(t, err)

	require.Error(t, feed.Watch(context.Background(), " ", func([]notifications.Notification) {}))
}

func TestNotificationFeedPollsForForeignWrites(t *testing.T) {
	svc, hub := newTestService(t)
	feed, err := NewNotificationFeed(svc, hub, WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)

	// A writer sharing the database but not the hub, as another process would.
	foreign, err := NewNotificationService(svc.db, nil, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &snapshotRecorder{}
	go func() { _ = feed.Watch(ctx, "runner-1", rec.record) }()

	require.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, 10*time.Millisecond)
	require.Empty(t, rec.last())

	_, err = foreign.Create(context.Background(), CreateNotificationInput{TargetUserID: "runner-1", Type: "reminder", EventID: "e1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 10*time.Millisecond)
}

package inbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/runmate/internal/notifications"
)

var base = time.Date(2024, 4, 20, 6, 0, 0, 0, time.UTC)

func note(id string, minute int, read bool, payload notifications.Payload) notifications.Notification {
	return notifications.Notification{
		ID:           id,
		TargetUserID: "runner-1",
		IsRead:       read,
		Timestamp:    base.Add(time.Duration(minute) * time.Minute),
		Payload:      payload,
	}
}

type pushRequest struct {
	items []notifications.Notification
	done  chan struct{}
}

type fakeRemote struct {
	push chan pushRequest
	fail chan error

	active  atomic.Int32
	started atomic.Int32

	mu      sync.Mutex
	marked  [][]string
	markErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		push: make(chan pushRequest),
		fail: make(chan error),
	}
}

func (f *fakeRemote) Watch(ctx context.Context, _ string, fn func([]notifications.Notification)) error {
	f.active.Add(1)
	f.started.Add(1)
	defer f.active.Add(-1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-f.push:
			fn(req.items)
			close(req.done)
		case err := <-f.fail:
			return err
		}
	}
}

// send delivers a snapshot and waits until the store has applied it.
func (f *fakeRemote) send(items ...notifications.Notification) {
	req := pushRequest{items: items, done: make(chan struct{})}
	f.push <- req
	<-req.done
}

func (f *fakeRemote) MarkRead(_ context.Context, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, append([]string(nil), ids...))
	return f.markErr
}

func (f *fakeRemote) calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.marked...)
}

func (f *fakeRemote) setMarkErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markErr = err
}

type memoryAcks struct {
	mu   sync.Mutex
	sets map[string]notifications.EventSet
	err  error
}

func (m *memoryAcks) AcknowledgedEvents(_ context.Context, userID string) (notifications.EventSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets[userID].Clone(), nil
}

func (m *memoryAcks) AcknowledgeEvent(_ context.Context, userID, eventID string) (notifications.EventSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.sets == nil {
		m.sets = make(map[string]notifications.EventSet)
	}
	if m.sets[userID] == nil {
		m.sets[userID] = notifications.NewEventSet()
	}
	m.sets[userID].Add(eventID)
	return m.sets[userID].Clone(), nil
}

func signedIn(t *testing.T, opts ...Option) (*Store, *fakeRemote) {
	t.Helper()
	remote := newFakeRemote()
	store, err := New(remote, append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, store.SignIn(context.Background(), "runner-1"))
	t.Cleanup(func() { _ = store.Close() })
	return store, remote
}

func TestSignInLoadsFirstSnapshot(t *testing.T) {
	store, remote := signedIn(t)
	require.True(t, store.Loading())
	require.Equal(t, "runner-1", store.UserID())

	remote.send(
		note("old", 1, false, notifications.LikePayload{PostID: "p1"}),
		note("new", 5, false, notifications.MessagePayload{ChatID: "room-a"}),
	)

	require.False(t, store.Loading())
	items := store.Notifications()
	require.Len(t, items, 2)
	require.Equal(t, "new", items[0].ID)

	state := store.ReadState()
	require.True(t, state.Chat)
	require.True(t, state.Board)
	require.False(t, state.Meeting)
	require.True(t, store.Badges().Visible(notifications.TabBoard))
}

func TestSnapshotNeverUnreadsLocallyReadNotification(t *testing.T) {
	store, remote := signedIn(t)
	remote.send(note("n1", 1, false, notifications.LikePayload{PostID: "p1"}))

	changed, err := store.OpenNotification(context.Background(), "n1")
	require.NoError(t, err)
	require.Equal(t, []string{"n1"}, changed)

	remote.send(
		note("n1", 1, false, notifications.LikePayload{PostID: "p1"}),
		note("n2", 2, false, notifications.CommentPayload{PostID: "p1", CommentID: "c1"}),
	)

	items := store.Notifications()
	require.Len(t, items, 2)
	require.Equal(t, "n2", items[0].ID)
	require.False(t, items[0].IsRead)
	require.True(t, items[1].IsRead)
}

func TestOpenChatRoomOnlyTouchesThatRoom(t *testing.T) {
	store, remote := signedIn(t)
	remote.send(
		note("a1", 1, false, notifications.MessagePayload{ChatID: "room-a"}),
		note("a2", 2, false, notifications.MessagePayload{ChatID: "room-a"}),
		note("b1", 3, false, notifications.MessagePayload{ChatID: "room-b"}),
	)
	require.Equal(t, map[string]int{"room-a": 2, "room-b": 1}, store.UnreadByRoom())

	changed, err := store.OpenChatRoom(context.Background(), "room-a")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a1", "a2"}, changed)
	require.Len(t, remote.calls(), 1)
	require.ElementsMatch(t, []string{"a1", "a2"}, remote.calls()[0])

	require.Zero(t, store.UnreadInRoom("room-a"))
	require.Equal(t, 1, store.UnreadInRoom("room-b"))
	require.True(t, store.ReadState().Chat)

	_, err = store.OpenChatRoom(context.Background(), "room-b")
	require.NoError(t, err)
	require.False(t, store.ReadState().Chat)
}

func TestChatTabDoesNothingWhileBoardTabClears(t *testing.T) {
	store, remote := signedIn(t)
	remote.send(
		note("m1", 1, false, notifications.MessagePayload{ChatID: "room-a"}),
		note("l1", 2, false, notifications.LikePayload{PostID: "p1"}),
		note("c1", 3, false, notifications.CommentPayload{PostID: "p1", CommentID: "x"}),
	)
	before := store.Snapshot()

	require.NoError(t, store.OpenChatTab(context.Background()))
	require.Empty(t, remote.calls())
	after := store.Snapshot()
	require.Equal(t, before.Version, after.Version)
	require.True(t, after.ReadState.Chat)

	changed, err := store.OpenBoardTab(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"l1", "c1"}, changed)
	require.False(t, store.ReadState().Board)
	require.True(t, store.ReadState().Chat)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	store, remote := signedIn(t)
	remote.send(note("l1", 1, false, notifications.LikePayload{PostID: "p1"}))

	_, err := store.OpenBoardTab(context.Background())
	require.NoError(t, err)
	snap := store.Snapshot()

	changed, err := store.OpenBoardTab(context.Background())
	require.NoError(t, err)
	require.Empty(t, changed)
	require.Len(t, remote.calls(), 1)
	require.Equal(t, snap.Version, store.Snapshot().Version)
}

func TestRemoteFailureStillUpdatesLocalState(t *testing.T) {
	store, remote := signedIn(t)
	remote.send(note("m1", 1, false, notifications.MessagePayload{ChatID: "room-a"}))
	remote.setMarkErr(errors.New("permission denied"))

	changed, err := store.OpenChatRoom(context.Background(), "room-a")
	require.ErrorContains(t, err, "permission denied")
	require.Equal(t, []string{"m1"}, changed)
	require.True(t, store.Notifications()[0].IsRead)
	require.False(t, store.ReadState().Chat)
}

func TestWatchErrorClearsList(t *testing.T) {
	store, remote := signedIn(t)
	remote.send(note("m1", 1, false, notifications.MessagePayload{ChatID: "room-a"}))
	require.Len(t, store.Notifications(), 1)

	remote.fail <- errors.New("stream broken")

	require.Eventually(t, func() bool {
		return len(store.Notifications()) == 0
	}, time.Second, 5*time.Millisecond)
	require.False(t, store.Loading())
	require.False(t, store.ReadState().Any())
	require.Eventually(t, func() bool { return remote.active.Load() == 0 }, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 1, remote.started.Load())
}

func TestSignOutCancelsWatch(t *testing.T) {
	store, remote := signedIn(t)
	require.Eventually(t, func() bool { return remote.active.Load() == 1 }, time.Second, 5*time.Millisecond)

	store.SignOut()
	require.EqualValues(t, 0, remote.active.Load())
	require.Empty(t, store.UserID())
	require.Empty(t, store.Notifications())

	_, err := store.OpenBoardTab(context.Background())
	require.ErrorIs(t, err, ErrNotSignedIn)
	require.ErrorIs(t, store.OpenChatTab(context.Background()), ErrNotSignedIn)
}

func TestSignInReplacesPreviousWatch(t *testing.T) {
	store, remote := signedIn(t)
	require.NoError(t, store.SignIn(context.Background(), "runner-2"))

	require.Eventually(t, func() bool {
		return remote.started.Load() == 2 && remote.active.Load() == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "runner-2", store.UserID())
}

func TestRatingStaysUntilEventAcknowledged(t *testing.T) {
	acks := &memoryAcks{}
	store, remote := signedIn(t, WithAcknowledgements(acks))
	remote.send(note("r1", 1, false, notifications.RatingPayload{EventID: "event-1"}))
	require.True(t, store.ReadState().Meeting)

	_, err := store.OpenNotification(context.Background(), "r1")
	require.NoError(t, err)
	require.True(t, store.Notifications()[0].IsRead)
	require.True(t, store.ReadState().Meeting)
	require.True(t, store.Badges().Visible(notifications.TabHome))

	require.NoError(t, store.AcknowledgeEvent(context.Background(), "event-1"))
	require.False(t, store.ReadState().Meeting)
	require.True(t, store.AcknowledgedEvents().Has("event-1"))

	require.NoError(t, store.SignIn(context.Background(), "runner-1"))
	require.True(t, store.AcknowledgedEvents().Has("event-1"))
}

func TestAcknowledgeEventPersistFailureStillApplies(t *testing.T) {
	acks := &memoryAcks{err: errors.New("disk full")}
	store, remote := signedIn(t, WithAcknowledgements(acks))
	remote.send(note("r1", 1, true, notifications.RatingPayload{EventID: "event-1"}))

	require.ErrorContains(t, store.AcknowledgeEvent(context.Background(), "event-1"), "disk full")
	require.False(t, store.ReadState().Meeting)
}

func TestUnknownTypeIsShownWithoutBadge(t *testing.T) {
	store, remote := signedIn(t)
	remote.send(note("x1", 1, false, notifications.UnknownPayload{Kind: "challenge"}))

	require.Len(t, store.Notifications(), 1)
	require.False(t, store.ReadState().Any())
}

func TestOnChangeReceivesEveryCommit(t *testing.T) {
	remote := newFakeRemote()
	store, err := New(remote, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer store.Close()

	var (
		mu    sync.Mutex
		seen  []Snapshot
		count atomic.Int32
	)
	unsubscribe := store.OnChange(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
		count.Add(1)
	})

	require.NoError(t, store.SignIn(context.Background(), "runner-1"))
	remote.send(note("m1", 1, false, notifications.MessagePayload{ChatID: "room-a"}))
	_, err = store.OpenChatRoom(context.Background(), "room-a")
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, seen, 3)
	require.True(t, seen[0].Loading)
	require.True(t, seen[1].ReadState.Chat)
	require.True(t, seen[1].Badges.Visible(notifications.TabChat))
	require.False(t, seen[2].ReadState.Chat)
	mu.Unlock()

	unsubscribe()
	_, err = store.OpenBoardTab(context.Background())
	require.NoError(t, err)
	store.SignOut()
	require.EqualValues(t, 3, count.Load())
}

func TestCloseRejectsSignIn(t *testing.T) {
	store, _ := signedIn(t)
	require.NoError(t, store.Close())
	require.ErrorIs(t, store.SignIn(context.Background(), "runner-1"), ErrClosed)
}

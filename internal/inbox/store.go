// Package inbox keeps the signed-in runner's notification list in memory,
// fed by a live remote subscription, and derives the tab badges from it.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/runmate/internal/notifications"
	"github.com/charlesng35/runmate/pkg/logger"
	"github.com/charlesng35/runmate/pkg/metrics"
)

var (
	// ErrNotSignedIn is returned by commands issued while no user is signed in.
	ErrNotSignedIn = errors.New("inbox: not signed in")
	// ErrClosed is returned by SignIn after Close.
	ErrClosed = errors.New("inbox: store closed")
)

// Remote is the notification collection the store mirrors.
type Remote interface {
	// Watch pushes the user's full notification list, newest first, every
	// time it changes. It blocks until ctx is done, returning nil on
	// cancellation, or until the subscription fails.
	Watch(ctx context.Context, userID string, fn func([]notifications.Notification)) error
	// MarkRead sets isRead on the listed notifications.
	MarkRead(ctx context.Context, userID string, ids []string) error
}

// Acknowledgements persists the ended-event cards a user has opened.
type Acknowledgements interface {
	AcknowledgedEvents(ctx context.Context, userID string) (notifications.EventSet, error)
	AcknowledgeEvent(ctx context.Context, userID, eventID string) (notifications.EventSet, error)
}

// Snapshot is an immutable view of the store handed to listeners.
type Snapshot struct {
	Version       uint64
	UserID        string
	Notifications []notifications.Notification
	ReadState     notifications.ReadState
	Badges        notifications.Badges
	Loading       bool
}

// Option customises a Store.
type Option func(*Store)

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithAcknowledgements persists acknowledged events through acks and loads
// them on sign-in.
func WithAcknowledgements(acks Acknowledgements) Option {
	return func(s *Store) {
		s.acks = acks
	}
}

// Store mirrors one user's notifications. All mutations go through commit,
// which recomputes the read state and notifies listeners.
type Store struct {
	remote Remote
	acks   Acknowledgements
	log    *zap.Logger

	mu         sync.Mutex
	userID     string
	items      []notifications.Notification
	acked      notifications.EventSet
	state      notifications.ReadState
	loading    bool
	closed     bool
	version    uint64
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}

	notifyMu     sync.Mutex
	lastNotified uint64
	listeners    map[int]func(Snapshot)
	nextListener int
}

// New constructs a Store over the remote collection.
func New(remote Remote, opts ...Option) (*Store, error) {
	if remote == nil {
		return nil, errors.New("inbox: remote is required")
	}
	s := &Store{
		remote:    remote,
		log:       logger.WithModule("inbox"),
		acked:     notifications.NewEventSet(),
		listeners: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SignIn starts mirroring userID's notifications. Any previous subscription
// is cancelled first, so exactly one watch runs at a time. ctx bounds loading
// the acknowledged events; the watch itself runs until SignOut or Close.
func (s *Store) SignIn(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("inbox: user id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.stopWatch()

	acked := notifications.NewEventSet()
	if s.acks != nil {
		loaded, err := s.acks.AcknowledgedEvents(ctx, userID)
		if err != nil {
			s.log.Warn("failed to load acknowledged events", zap.String("user_id", userID), zap.Error(err))
		} else {
			acked = loaded.Clone()
		}
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ErrClosed
	}
	s.generation++
	generation := s.generation
	s.userID = userID
	s.items = nil
	s.acked = acked
	s.loading = true
	s.cancel = cancel
	s.done = done
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	go s.watch(watchCtx, generation, userID, done)
	return nil
}

// SignOut cancels the live subscription, waits for it to exit and clears
// the mirrored state.
func (s *Store) SignOut() {
	s.stopWatch()

	s.mu.Lock()
	s.generation++
	s.userID = ""
	s.items = nil
	s.acked = notifications.NewEventSet()
	s.loading = false
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Close signs out and rejects later sign-ins.
func (s *Store) Close() error {
	s.SignOut()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) stopWatch() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Store) watch(ctx context.Context, generation uint64, userID string, done chan struct{}) {
	defer close(done)

	err := s.remote.Watch(ctx, userID, func(items []notifications.Notification) {
		s.apply(generation, items)
	})
	if ctx.Err() != nil {
		return
	}

	if err == nil {
		s.log.Debug("notification watch ended", zap.String("user_id", userID))
		return
	}

	metrics.FeedErrors.WithLabelValues("inbox").Inc()
	s.log.Error("notification watch failed", zap.String("user_id", userID), zap.Error(err))

	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		return
	}
	s.items = nil
	s.loading = false
	snap := s.commitLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// apply merges a remote snapshot. A notification already read locally stays
// read even when the snapshot still carries the old flag.
func (s *Store) apply(generation uint64, incoming []notifications.Notification) {
	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		return
	}

	readLocally := make(map[string]struct{})
	for _, n := range s.items {
		if n.IsRead {
			readLocally[n.ID] = struct{}{}
		}
	}

	merged := notifications.CloneAll(incoming)
	if merged == nil {
		merged = []notifications.Notification{}
	}
	for i := range merged {
		if _, ok := readLocally[merged[i].ID]; ok {
			merged[i].IsRead = true
		}
	}
	notifications.SortNewestFirst(merged)

	s.items = merged
	s.loading = false
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// commitLocked recomputes derived state and returns the snapshot to publish.
// Callers hold mu and must call notify after releasing it.
func (s *Store) commitLocked() Snapshot {
	s.state = notifications.Classify(s.items, s.acked)
	s.version++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:       s.version,
		UserID:        s.userID,
		Notifications: notifications.CloneAll(s.items),
		ReadState:     s.state,
		Badges:        notifications.Project(s.state),
		Loading:       s.loading,
	}
}

// OnChange registers fn to receive every new snapshot and returns a func that
// removes it. Listeners run on the goroutine that caused the change and must
// not call mutating Store methods synchronously.
func (s *Store) OnChange(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}
	s.notifyMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.notifyMu.Unlock()

	return func() {
		s.notifyMu.Lock()
		delete(s.listeners, id)
		s.notifyMu.Unlock()
	}
}

// notify delivers snap unless a newer snapshot was already delivered.
func (s *Store) notify(snap Snapshot) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if snap.Version <= s.lastNotified {
		return
	}
	s.lastNotified = snap.Version
	for _, fn := range s.listeners {
		fn(snap)
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Notifications returns a copy of the mirrored list, newest first.
func (s *Store) Notifications() []notifications.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return notifications.CloneAll(s.items)
}

// ReadState returns the current category flags.
func (s *Store) ReadState() notifications.ReadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Badges returns the tab projection of the current read state.
func (s *Store) Badges() notifications.Badges {
	return notifications.Project(s.ReadState())
}

// Loading reports whether the first snapshot is still pending.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// UserID returns the signed-in user, or "".
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// UnreadInRoom counts unread messages in one chat room.
func (s *Store) UnreadInRoom(chatID string) int {
	if chatID == "" {
		return 0
	}
	return s.UnreadByRoom()[chatID]
}

// UnreadByRoom counts unread messages per chat room.
func (s *Store) UnreadByRoom() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return notifications.UnreadByRoom(s.items)
}

// AcknowledgedEvents returns a copy of the acknowledged event set.
func (s *Store) AcknowledgedEvents() notifications.EventSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked.Clone()
}

func (s *Store) currentUser() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" {
		return "", ErrNotSignedIn
	}
	return s.userID, nil
}

func wrapRemote(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("inbox: remote mark read: %w", err)
}

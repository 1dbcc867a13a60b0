package inbox

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/runmate/internal/notifications"
	"github.com/charlesng35/runmate/pkg/metrics"
)

// MarkRead marks every unread notification matched by sel as read. The
// remote write happens first; the local mirror is updated afterwards even
// when the remote write failed, in which case the error is logged and also
// returned. Already read notifications are not written again, so repeating a
// command is a no-op. It returns the ids that changed locally.
func (s *Store) MarkRead(ctx context.Context, sel notifications.Selector) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	userID, err := s.currentUser()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	ids := notifications.UnreadIDs(s.items, sel)
	s.mu.Unlock()
	if len(ids) == 0 {
		return nil, nil
	}

	remoteErr := s.remote.MarkRead(ctx, userID, ids)
	if remoteErr != nil {
		metrics.MarkReadWrites.WithLabelValues("inbox", "failure").Inc()
		s.log.Warn("remote mark read failed; keeping local state",
			zap.String("user_id", userID),
			zap.Stringer("selector", sel),
			zap.Int("count", len(ids)),
			zap.Error(remoteErr),
		)
	} else {
		metrics.MarkReadWrites.WithLabelValues("inbox", "success").Inc()
	}

	s.mu.Lock()
	if s.userID != userID {
		s.mu.Unlock()
		return nil, wrapRemote(remoteErr)
	}
	var changed []string
	s.items, changed = notifications.MarkRead(s.items, notifications.ByID(ids...))
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return changed, wrapRemote(remoteErr)
}

// OpenNotification marks a tapped notification as read.
func (s *Store) OpenNotification(ctx context.Context, id string) ([]string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("inbox: notification id is required")
	}
	return s.MarkRead(ctx, notifications.ByID(id))
}

// OpenChatRoom marks the unread messages of one room as read. Other rooms
// keep their unread messages and the chat badge stays on while any remain.
func (s *Store) OpenChatRoom(ctx context.Context, chatID string) ([]string, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, errors.New("inbox: chat id is required")
	}
	return s.MarkRead(ctx, notifications.ByChat(chatID))
}

// OpenChatTab records that the chat tab was shown. It marks nothing as read:
// per-room badges stay until each room is opened.
func (s *Store) OpenChatTab(context.Context) error {
	_, err := s.currentUser()
	return err
}

// OpenBoardTab marks every unread like and comment as read.
func (s *Store) OpenBoardTab(ctx context.Context) ([]string, error) {
	return s.MarkRead(ctx, notifications.ByCategory(notifications.CategoryBoard))
}

// AcknowledgeEvent records that the ended-event card for eventID was opened.
// Rating notifications for the event stop lighting the meeting badge. Their
// isRead flag is left untouched. A persistence failure is logged and returned
// after the local set is updated.
func (s *Store) AcknowledgeEvent(ctx context.Context, eventID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return errors.New("inbox: event id is required")
	}
	userID, err := s.currentUser()
	if err != nil {
		return err
	}

	var persistErr error
	if s.acks != nil {
		if _, persistErr = s.acks.AcknowledgeEvent(ctx, userID, eventID); persistErr != nil {
			s.log.Warn("failed to persist acknowledged event",
				zap.String("user_id", userID),
				zap.String("event_id", eventID),
				zap.Error(persistErr),
			)
		}
	}

	s.mu.Lock()
	if s.userID != userID || !s.acked.Add(eventID) {
		s.mu.Unlock()
		return persistErr
	}
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return persistErr
}

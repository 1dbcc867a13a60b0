package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/runmate/internal/models"
	"github.com/charlesng35/runmate/internal/notifications"
	"github.com/charlesng35/runmate/internal/realtime"
	apperrors "github.com/charlesng35/runmate/pkg/errors"
	"github.com/charlesng35/runmate/pkg/metrics"
)

const (
	defaultListLimit = 30
	maxListLimit     = 100

	// snapshotLimit bounds the read history in a snapshot. Rows that can
	// still light a badge are always included.
	snapshotLimit = 500
)

// NotificationDTO is the API shape of a notification.
type NotificationDTO struct {
	ID            string                   `json:"id"`
	TargetUserID  string                   `json:"target_user_id"`
	Type          string                   `json:"type"`
	Category      string                   `json:"category,omitempty"`
	Title         string                   `json:"title"`
	Message       string                   `json:"message"`
	Navigation    notifications.Navigation `json:"navigation"`
	ChatID        string                   `json:"chat_id,omitempty"`
	EventID       string                   `json:"event_id,omitempty"`
	PostID        string                   `json:"post_id,omitempty"`
	CommentID     string                   `json:"comment_id,omitempty"`
	ParticipantID string                   `json:"participant_id,omitempty"`
	Version       string                   `json:"version,omitempty"`
	IsRead        bool                     `json:"is_read"`
	Timestamp     time.Time                `json:"timestamp"`
	RelativeTime  string                   `json:"relative_time"`
	ReadAt        *time.Time               `json:"read_at,omitempty"`
}

// CreateNotificationInput defines the attributes of a new notification.
// Empty Title, Message and Screen are filled from the per-type templates.
type CreateNotificationInput struct {
	TargetUserID  string
	Type          string
	Title         string
	Message       string
	ChatID        string
	EventID       string
	PostID        string
	CommentID     string
	ParticipantID string
	Version       string
	Screen        string
	Params        map[string]string
	Timestamp     time.Time
}

// FanoutInput creates the same notification once per recipient.
type FanoutInput struct {
	Recipients []string
	Template   CreateNotificationInput
}

// ListNotificationsInput defines the window of a notification listing.
type ListNotificationsInput struct {
	UserID string
	Limit  int
	Offset int
}

// NotificationPage is one window of a user's notifications.
type NotificationPage struct {
	Items  []NotificationDTO
	Limit  int
	Offset int
	Total  int64
	Unread int64
}

// NotificationEventPayload is the data attached to realtime notification events.
type NotificationEventPayload struct {
	Notification    *NotificationDTO `json:"notification,omitempty"`
	NotificationIDs []string         `json:"notification_ids,omitempty"`
}

// NotificationService owns the server-side notification collection.
type NotificationService struct {
	db        *gorm.DB
	hub       *realtime.Hub
	listLimit int
	now       func() time.Time
}

// NotificationServiceOption customises a NotificationService.
type NotificationServiceOption func(*NotificationService)

// WithListLimit sets the default page size used when callers pass none.
func WithListLimit(limit int) NotificationServiceOption {
	return func(s *NotificationService) {
		if limit > 0 && limit <= maxListLimit {
			s.listLimit = limit
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) NotificationServiceOption {
	return func(s *NotificationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewNotificationService constructs a NotificationService. The hub is optional.
func NewNotificationService(db *gorm.DB, hub *realtime.Hub, opts ...NotificationServiceOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	svc := &NotificationService{
		db:        db,
		hub:       hub,
		listLimit: defaultListLimit,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create persists a notification for one recipient and pushes it to the
// recipient's live subscribers.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	row, err := s.buildRow(input)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	metrics.NotificationsCreated.WithLabelValues(row.Type).Inc()
	dto := s.mapNotification(row)
	s.broadcast(row.TargetUserID, realtime.EventNotificationCreated, &NotificationEventPayload{Notification: &dto})
	return &dto, nil
}

// Fanout creates one notification document per distinct recipient inside a
// single transaction. Empty recipient ids are skipped.
func (s *NotificationService) Fanout(ctx context.Context, input FanoutInput) ([]NotificationDTO, error) {
	ctx = ensureContext(ctx)

	recipients := uniqueTrimmed(input.Recipients)
	if len(recipients) == 0 {
		return nil, apperrors.NewBadRequest("at least one recipient is required")
	}

	template := input.Template
	if template.Timestamp.IsZero() {
		template.Timestamp = s.now()
	}

	rows := make([]models.Notification, 0, len(recipients))
	for _, recipient := range recipients {
		in := template
		in.TargetUserID = recipient
		row, err := s.buildRow(in)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: fanout: %w", err)
	}

	out := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		metrics.NotificationsCreated.WithLabelValues(row.Type).Inc()
		dto := s.mapNotification(row)
		out = append(out, dto)
		s.broadcast(row.TargetUserID, realtime.EventNotificationCreated, &NotificationEventPayload{Notification: &dto})
	}
	return out, nil
}

// ListForUser returns a window of the user's notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) (NotificationPage, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return NotificationPage{}, apperrors.NewBadRequest("user id is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = s.listLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(0, input.Offset)

	page := NotificationPage{Limit: limit, Offset: offset}
	base := s.db.WithContext(ctx).Model(&models.Notification{}).Where("target_user_id = ?", userID)

	if err := base.Session(&gorm.Session{}).Count(&page.Total).Error; err != nil {
		return NotificationPage{}, fmt.Errorf("notification service: count notifications: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("is_read = ?", false).Count(&page.Unread).Error; err != nil {
		return NotificationPage{}, fmt.Errorf("notification service: count unread: %w", err)
	}

	var rows []models.Notification
	if err := base.Session(&gorm.Session{}).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return NotificationPage{}, fmt.Errorf("notification service: list notifications: %w", err)
	}

	page.Items = s.mapNotificationRows(rows)
	return page, nil
}

// Snapshot returns the user's notifications as domain values, newest first:
// the newest snapshotLimit rows plus every older row that can still be
// pending, i.e. unread rows and ratings. Classify over the result matches
// Classify over the whole collection however large it grows.
func (s *NotificationService) Snapshot(ctx context.Context, userID string) ([]notifications.Notification, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	newestFirst := func(q *gorm.DB) *gorm.DB {
		return q.Where("target_user_id = ?", userID).Order("timestamp DESC").Order("id DESC")
	}

	var recent, pending []models.Notification
	db := s.db.WithContext(ctx)
	if err := newestFirst(db).Limit(snapshotLimit).Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("notification service: load snapshot: %w", err)
	}
	if len(recent) == snapshotLimit {
		oldest := recent[len(recent)-1]
		err := newestFirst(db).
			Where("is_read = ? OR type = ?", false, string(notifications.TypeRating)).
			Where("timestamp < ? OR (timestamp = ? AND id < ?)", oldest.Timestamp, oldest.Timestamp, oldest.ID).
			Find(&pending).Error
		if err != nil {
			return nil, fmt.Errorf("notification service: load pending: %w", err)
		}
	}

	out := make([]notifications.Notification, 0, len(recent)+len(pending))
	for _, row := range append(recent, pending...) {
		out = append(out, row.Record().Decode())
	}
	return out, nil
}

// MarkRead marks the listed notifications of the user as read and returns the
// ids that changed. Ids that are unknown, owned by someone else or already
// read are ignored.
func (s *NotificationService) MarkRead(ctx context.Context, userID string, ids ...string) ([]string, error) {
	ids = uniqueTrimmed(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	return s.markWhere(ctx, userID, func(q *gorm.DB) *gorm.DB {
		return q.Where("id IN ?", ids)
	})
}

// MarkChatRead marks the unread messages of one chat room as read. Other
// rooms keep their badges.
func (s *NotificationService) MarkChatRead(ctx context.Context, userID, chatID string) ([]string, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, apperrors.NewBadRequest("chat id is required")
	}
	return s.markWhere(ctx, userID, func(q *gorm.DB) *gorm.DB {
		return q.Where("type = ? AND chat_id = ?", string(notifications.TypeMessage), chatID)
	})
}

// MarkCategoryRead marks every unread notification of the given categories as read.
func (s *NotificationService) MarkCategoryRead(ctx context.Context, userID string, categories ...notifications.Category) ([]string, error) {
	var types []string
	for _, t := range notifications.Types() {
		for _, c := range categories {
			if notifications.CategoryOf(t) == c {
				types = append(types, string(t))
			}
		}
	}
	if len(types) == 0 {
		return nil, apperrors.NewBadRequest("at least one known category is required")
	}
	return s.markWhere(ctx, userID, func(q *gorm.DB) *gorm.DB {
		return q.Where("type IN ?", types)
	})
}

func (s *NotificationService) markWhere(ctx context.Context, userID string, scope func(*gorm.DB) *gorm.DB) ([]string, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	now := s.now()
	var changed []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := scope(tx.Model(&models.Notification{}).
			Where("target_user_id = ? AND is_read = ?", userID, false))
		if err := query.Pluck("id", &changed).Error; err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}
		return tx.Model(&models.Notification{}).
			Where("id IN ? AND is_read = ?", changed, false).
			Updates(map[string]any{"is_read": true, "read_at": now}).Error
	})
	if err != nil {
		metrics.MarkReadWrites.WithLabelValues("server", "failure").Inc()
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}
	if len(changed) == 0 {
		metrics.MarkReadWrites.WithLabelValues("server", "noop").Inc()
		return nil, nil
	}

	metrics.MarkReadWrites.WithLabelValues("server", "success").Inc()
	slices.Sort(changed)
	s.broadcast(userID, realtime.EventNotificationsRead, &NotificationEventPayload{NotificationIDs: changed})
	return changed, nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("id = ? AND target_user_id = ?", strings.TrimSpace(notificationID), strings.TrimSpace(userID)).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.broadcast(userID, realtime.EventNotificationDeleted, &NotificationEventPayload{NotificationIDs: []string{notificationID}})
	return nil
}

// UnreadByRoom counts unread messages per chat room for the chat list.
func (s *NotificationService) UnreadByRoom(ctx context.Context, userID string) (map[string]int, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	var rows []struct {
		ChatID string
		Unread int
	}
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Select("chat_id, COUNT(*) AS unread").
		Where("target_user_id = ? AND type = ? AND is_read = ? AND chat_id <> ''", userID, string(notifications.TypeMessage), false).
		Group("chat_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: unread by room: %w", err)
	}

	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.ChatID] = row.Unread
	}
	return out, nil
}

// ReadState computes the category flags for the user. Ratings for events in
// acked no longer count.
func (s *NotificationService) ReadState(ctx context.Context, userID string, acked notifications.EventSet) (notifications.ReadState, error) {
	items, err := s.Snapshot(ctx, userID)
	if err != nil {
		return notifications.ReadState{}, err
	}
	return notifications.Classify(items, acked), nil
}

// Badges projects the user's read state onto the tab bar.
func (s *NotificationService) Badges(ctx context.Context, userID string, acked notifications.EventSet) (notifications.Badges, error) {
	state, err := s.ReadState(ctx, userID, acked)
	if err != nil {
		return nil, err
	}
	return notifications.Project(state), nil
}

func (s *NotificationService) buildRow(input CreateNotificationInput) (models.Notification, error) {
	rec, err := BuildRecord(input, s.now())
	if err != nil {
		return models.Notification{}, err
	}
	row, err := models.NotificationFromRecord(rec)
	if err != nil {
		return models.Notification{}, fmt.Errorf("notification service: encode navigation: %w", err)
	}
	return row, nil
}

// BuildRecord validates input and fills in the default title, message and
// navigation for its type. A zero Timestamp becomes now. The record has no
// id; the backend that stores it assigns one.
func BuildRecord(input CreateNotificationInput, now time.Time) (notifications.Record, error) {
	target := strings.TrimSpace(input.TargetUserID)
	if target == "" {
		return notifications.Record{}, apperrors.NewBadRequest("target user id is required")
	}
	kind, ok := notifications.ParseType(input.Type)
	if !ok {
		return notifications.Record{}, apperrors.NewBadRequest(fmt.Sprintf("unknown notification type %q", input.Type))
	}
	if err := requireReferences(kind, input); err != nil {
		return notifications.Record{}, err
	}

	ts := input.Timestamp
	if ts.IsZero() {
		ts = now
	}

	n := notifications.Record{
		Type:           string(kind),
		TargetUserID:   target,
		Timestamp:      ts.UTC(),
		Title:          strings.TrimSpace(input.Title),
		Message:        strings.TrimSpace(input.Message),
		ChatID:         strings.TrimSpace(input.ChatID),
		EventID:        strings.TrimSpace(input.EventID),
		PostID:         strings.TrimSpace(input.PostID),
		CommentID:      strings.TrimSpace(input.CommentID),
		ParticipantID:  strings.TrimSpace(input.ParticipantID),
		Version:        strings.TrimSpace(input.Version),
		Screen:         strings.TrimSpace(input.Screen),
		NavigationArgs: input.Params,
	}.Decode()

	return notifications.NewRecord(notifications.WithDefaults(n)), nil
}

// requireReferences rejects creations that would produce a notification the
// client cannot route.
func requireReferences(kind notifications.Type, input CreateNotificationInput) error {
	missing := ""
	switch kind {
	case notifications.TypeMessage:
		if strings.TrimSpace(input.ChatID) == "" {
			missing = "chat id"
		}
	case notifications.TypeLike, notifications.TypeComment:
		if strings.TrimSpace(input.PostID) == "" {
			missing = "post id"
		}
	case notifications.TypeCancel, notifications.TypeReminder, notifications.TypeRating, notifications.TypeNewParticipant:
		if strings.TrimSpace(input.EventID) == "" {
			missing = "event id"
		}
	}
	if missing != "" {
		return apperrors.NewBadRequest(fmt.Sprintf("%s is required for %s notifications", missing, kind))
	}
	return nil
}

func (s *NotificationService) broadcast(userID, event string, payload *NotificationEventPayload) {
	if s.hub == nil {
		return
	}
	message := realtime.Message{Event: event}
	if payload != nil {
		message.Data = payload
	}
	s.hub.BroadcastToUser(realtime.StreamNotifications, userID, message)
}

func (s *NotificationService) mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, s.mapNotification(row))
	}
	return items
}

func (s *NotificationService) mapNotification(row models.Notification) NotificationDTO {
	n := row.Record().Decode()
	return NotificationDTO{
		ID:            row.ID,
		TargetUserID:  row.TargetUserID,
		Type:          row.Type,
		Category:      string(n.Category()),
		Title:         row.Title,
		Message:       row.Message,
		Navigation:    n.Navigation,
		ChatID:        row.ChatID,
		EventID:       row.EventID,
		PostID:        row.PostID,
		CommentID:     row.CommentID,
		ParticipantID: row.ParticipantID,
		Version:       row.Version,
		IsRead:        row.IsRead,
		Timestamp:     row.Timestamp,
		RelativeTime:  notifications.RelativeTime(row.Timestamp, s.now()),
		ReadAt:        row.ReadAt,
	}
}

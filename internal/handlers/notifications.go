package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/runmate/internal/notifications"
	"github.com/charlesng35/runmate/internal/prefs"
	"github.com/charlesng35/runmate/internal/services"
	"github.com/charlesng35/runmate/pkg/errors"
	"github.com/charlesng35/runmate/pkg/response"
	appValidator "github.com/charlesng35/runmate/pkg/validator"
)

const notificationTypeTag = "notification_type"

var registerNotificationTypeOnce sync.Once

func registerNotificationTypeValidation() {
	registerNotificationTypeOnce.Do(func() {
		known := notifications.Types()
		values := make([]string, 0, len(known))
		for _, t := range known {
			values = append(values, string(t))
		}
		if err := appValidator.RegisterOneOf(notificationTypeTag, values...); err != nil {
			panic(err)
		}
	})
}

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service *services.NotificationService
	prefs   *prefs.Prefs
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService, flags *prefs.Prefs) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification handler: service is required")
	}
	if flags == nil {
		return nil, fmt.Errorf("notification handler: prefs is required")
	}
	registerNotificationTypeValidation()
	return &NotificationHandler{service: service, prefs: flags}, nil
}

type createNotificationRequest struct {
	TargetUserID  string            `json:"target_user_id" validate:"required"`
	Type          string            `json:"type" validate:"required,notification_type"`
	Title         string            `json:"title" validate:"omitempty,max=120"`
	Message       string            `json:"message" validate:"omitempty,max=500"`
	ChatID        string            `json:"chat_id"`
	EventID       string            `json:"event_id"`
	PostID        string            `json:"post_id"`
	CommentID     string            `json:"comment_id"`
	ParticipantID string            `json:"participant_id"`
	Version       string            `json:"version"`
	Screen        string            `json:"screen"`
	Params        map[string]string `json:"params"`
	Timestamp     *time.Time        `json:"timestamp"`
}

func (r createNotificationRequest) input() services.CreateNotificationInput {
	in := services.CreateNotificationInput{
		TargetUserID:  r.TargetUserID,
		Type:          r.Type,
		Title:         r.Title,
		Message:       r.Message,
		ChatID:        r.ChatID,
		EventID:       r.EventID,
		PostID:        r.PostID,
		CommentID:     r.CommentID,
		ParticipantID: r.ParticipantID,
		Version:       r.Version,
		Screen:        r.Screen,
		Params:        r.Params,
	}
	if r.Timestamp != nil {
		in.Timestamp = *r.Timestamp
	}
	return in
}

type fanoutRequest struct {
	Recipients    []string          `json:"recipients" validate:"required,min=1,max=500"`
	Type          string            `json:"type" validate:"required,notification_type"`
	Title         string            `json:"title" validate:"omitempty,max=120"`
	Message       string            `json:"message" validate:"omitempty,max=500"`
	ChatID        string            `json:"chat_id"`
	EventID       string            `json:"event_id"`
	PostID        string            `json:"post_id"`
	CommentID     string            `json:"comment_id"`
	ParticipantID string            `json:"participant_id"`
	Version       string            `json:"version"`
	Screen        string            `json:"screen"`
	Params        map[string]string `json:"params"`
}

type readResult struct {
	Updated []string                `json:"updated"`
	Badges  notifications.Badges    `json:"badges"`
	State   notifications.ReadState `json:"read_state"`
}

// List returns a window of the caller's notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	page, err := h.service.ListForUser(requestContext(c), services.ListNotificationsInput{
		UserID: userID,
		Limit:  parseIntQuery(c, "limit", 0),
		Offset: parseIntQuery(c, "offset", 0),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, page.Items, &response.Meta{
		Limit:  page.Limit,
		Offset: page.Offset,
		Total:  int(page.Total),
		Unread: int(page.Unread),
	})
}

// Badges returns the tab badges and the category flags behind them.
func (h *NotificationHandler) Badges(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	h.respondWithBadges(c, userID, nil)
}

// Create persists a notification for a single runner.
func (h *NotificationHandler) Create(c *gin.Context) {
	var payload createNotificationRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Create(requestContext(c), payload.input())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dto)
}

// Fanout creates one notification per recipient.
func (h *NotificationHandler) Fanout(c *gin.Context) {
	var payload fanoutRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	items, err := h.service.Fanout(requestContext(c), services.FanoutInput{
		Recipients: payload.Recipients,
		Template: services.CreateNotificationInput{
			Type:          payload.Type,
			Title:         payload.Title,
			Message:       payload.Message,
			ChatID:        payload.ChatID,
			EventID:       payload.EventID,
			PostID:        payload.PostID,
			CommentID:     payload.CommentID,
			ParticipantID: payload.ParticipantID,
			Version:       payload.Version,
			Screen:        payload.Screen,
			Params:        payload.Params,
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, items)
}

// MarkRead marks one notification as read, as happens when it is tapped.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, errors.NewBadRequest("notification id is required"))
		return
	}

	updated, err := h.service.MarkRead(requestContext(c), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondWithBadges(c, userID, updated)
}

// OpenChat marks the unread messages of one chat room as read.
func (h *NotificationHandler) OpenChat(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkChatRead(requestContext(c), userID, c.Param("chatID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondWithBadges(c, userID, updated)
}

// OpenChatTab reports the badges without touching any notification. Entering
// the chat list must not clear per-room unread state.
func (h *NotificationHandler) OpenChatTab(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	h.respondWithBadges(c, userID, nil)
}

// OpenBoardTab marks every like and comment notification as read.
func (h *NotificationHandler) OpenBoardTab(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkCategoryRead(requestContext(c), userID, notifications.CategoryBoard)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondWithBadges(c, userID, updated)
}

// AcknowledgeEvent records that the runner opened the card of an ended event.
// Rating notifications for that event stop lighting the meeting badge.
func (h *NotificationHandler) AcknowledgeEvent(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	eventID := strings.TrimSpace(c.Param("eventID"))
	if eventID == "" {
		response.Error(c, errors.NewBadRequest("event id is required"))
		return
	}

	acked, err := h.prefs.AcknowledgeEvent(requestContext(c), userID, eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeBadges(c, userID, acked, nil)
}

// UnreadByRoom returns the unread message count of each chat room.
func (h *NotificationHandler) UnreadByRoom(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	counts, err := h.service.UnreadByRoom(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, counts)
}

// Delete removes a notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.Delete(requestContext(c), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// UpdateNotice reports whether the runner still has to see the update notice.
func (h *NotificationHandler) UpdateNotice(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	read, err := h.prefs.UpdateNoticeAcknowledged(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"read": read})
}

// DismissUpdateNotice stores that the update notice has been read.
func (h *NotificationHandler) DismissUpdateNotice(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.prefs.DismissUpdateNotice(requestContext(c), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"read": true})
}

func (h *NotificationHandler) respondWithBadges(c *gin.Context, userID string, updated []string) {
	acked, err := h.prefs.AcknowledgedEvents(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeBadges(c, userID, acked, updated)
}

func (h *NotificationHandler) writeBadges(c *gin.Context, userID string, acked notifications.EventSet, updated []string) {
	state, err := h.service.ReadState(requestContext(c), userID, acked)
	if err != nil {
		response.Error(c, err)
		return
	}
	if updated == nil {
		updated = []string{}
	}
	response.Success(c, http.StatusOK, readResult{
		Updated: updated,
		Badges:  notifications.Project(state),
		State:   state,
	})
}

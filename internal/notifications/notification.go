package notifications

import (
	"sort"
	"strings"
	"time"
)

// Navigation describes where tapping a notification routes the user.
type Navigation struct {
	Screen string            `json:"screen"`
	Params map[string]string `json:"params,omitempty"`
}

func (n Navigation) clone() Navigation {
	out := Navigation{Screen: n.Screen}
	if len(n.Params) > 0 {
		out.Params = make(map[string]string, len(n.Params))
		for k, v := range n.Params {
			out.Params[k] = v
		}
	}
	return out
}

// Notification is a single notification document addressed to one user.
type Notification struct {
	ID           string
	TargetUserID string
	IsRead       bool
	Timestamp    time.Time
	Title        string
	Message      string
	Navigation   Navigation
	Payload      Payload
}

// Type returns the notification type, derived from its payload.
func (n Notification) Type() Type {
	if n.Payload == nil {
		return ""
	}
	return n.Payload.Type()
}

// Category returns the badge category of the notification.
func (n Notification) Category() Category {
	return CategoryOf(n.Type())
}

// ChatID returns the chat room a message notification belongs to, if any.
func (n Notification) ChatID() string {
	if p, ok := n.Payload.(MessagePayload); ok {
		return p.ChatID
	}
	return ""
}

// EventID returns the meeting a notification refers to, if any.
func (n Notification) EventID() string {
	switch p := n.Payload.(type) {
	case CancelPayload:
		return p.EventID
	case ReminderPayload:
		return p.EventID
	case RatingPayload:
		return p.EventID
	case NewParticipantPayload:
		return p.EventID
	default:
		return ""
	}
}

// PostID returns the board post a like or comment refers to, if any.
func (n Notification) PostID() string {
	switch p := n.Payload.(type) {
	case LikePayload:
		return p.PostID
	case CommentPayload:
		return p.PostID
	default:
		return ""
	}
}

// Clone returns a deep copy safe to hand out to other goroutines.
func (n Notification) Clone() Notification {
	n.Navigation = n.Navigation.clone()
	return n
}

// SortNewestFirst orders notifications by timestamp descending. Ties keep
// a stable order by id so snapshots compare deterministically.
func SortNewestFirst(items []Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].ID > items[j].ID
		}
		return items[i].Timestamp.After(items[j].Timestamp)
	})
}

// CloneAll deep-copies a slice of notifications.
func CloneAll(items []Notification) []Notification {
	if items == nil {
		return nil
	}
	out := make([]Notification, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}

// Record is the flat storage shape shared by every backend. Optional
// reference fields are only meaningful for some types.
type Record struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	TargetUserID   string            `json:"targetUserId"`
	IsRead         bool              `json:"isRead"`
	Timestamp      time.Time         `json:"timestamp"`
	Title          string            `json:"title,omitempty"`
	Message        string            `json:"message,omitempty"`
	ChatID         string            `json:"chatId,omitempty"`
	EventID        string            `json:"eventId,omitempty"`
	PostID         string            `json:"postId,omitempty"`
	CommentID      string            `json:"commentId,omitempty"`
	ParticipantID  string            `json:"participantId,omitempty"`
	Version        string            `json:"version,omitempty"`
	Screen         string            `json:"screen,omitempty"`
	NavigationArgs map[string]string `json:"params,omitempty"`
}

// Decode converts a stored record into a Notification. It never fails:
// unknown types become UnknownPayload and missing references stay empty.
func (r Record) Decode() Notification {
	t := Type(strings.TrimSpace(r.Type))

	var payload Payload
	switch t {
	case TypeLike:
		payload = LikePayload{PostID: r.PostID}
	case TypeComment:
		payload = CommentPayload{PostID: r.PostID, CommentID: r.CommentID}
	case TypeMessage:
		payload = MessagePayload{ChatID: r.ChatID}
	case TypeCancel:
		payload = CancelPayload{EventID: r.EventID}
	case TypeReminder:
		payload = ReminderPayload{EventID: r.EventID}
	case TypeRating:
		payload = RatingPayload{EventID: r.EventID}
	case TypeNewParticipant:
		payload = NewParticipantPayload{EventID: r.EventID, ParticipantID: r.ParticipantID}
	case TypeUpdate:
		payload = UpdatePayload{Version: r.Version}
	default:
		payload = UnknownPayload{Kind: t}
	}

	return Notification{
		ID:           r.ID,
		TargetUserID: r.TargetUserID,
		IsRead:       r.IsRead,
		Timestamp:    r.Timestamp,
		Title:        r.Title,
		Message:      r.Message,
		Navigation:   Navigation{Screen: r.Screen, Params: r.NavigationArgs}.clone(),
		Payload:      payload,
	}
}

// NewRecord flattens a Notification into its storage shape.
func NewRecord(n Notification) Record {
	rec := Record{
		ID:             n.ID,
		Type:           string(n.Type()),
		TargetUserID:   n.TargetUserID,
		IsRead:         n.IsRead,
		Timestamp:      n.Timestamp,
		Title:          n.Title,
		Message:        n.Message,
		Screen:         n.Navigation.Screen,
		NavigationArgs: n.Navigation.clone().Params,
	}

	switch p := n.Payload.(type) {
	case LikePayload:
		rec.PostID = p.PostID
	case CommentPayload:
		rec.PostID = p.PostID
		rec.CommentID = p.CommentID
	case MessagePayload:
		rec.ChatID = p.ChatID
	case CancelPayload:
		rec.EventID = p.EventID
	case ReminderPayload:
		rec.EventID = p.EventID
	case RatingPayload:
		rec.EventID = p.EventID
	case NewParticipantPayload:
		rec.EventID = p.EventID
		rec.ParticipantID = p.ParticipantID
	case UpdatePayload:
		rec.Version = p.Version
	}

	return rec
}

// DecodeAll decodes a batch of records, preserving order.
func DecodeAll(records []Record) []Notification {
	out := make([]Notification, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Decode())
	}
	return out
}

// Package notifications models the per-user notification documents of the
// running app and derives badge state from them.
//
// Everything in this package is pure: no I/O, no clocks, no goroutines. The
// server-side service, the client inbox and the Firestore adapter all share
// these types and reducers so that every path classifies notifications the
// same way.
package notifications

import "strings"

// Type identifies the kind of activity a notification refers to.
type Type string

// Known notification types.
const (
	TypeLike           Type = "like"
	TypeComment        Type = "comment"
	TypeMessage        Type = "message"
	TypeCancel         Type = "cancel"
	TypeReminder       Type = "reminder"
	TypeRating         Type = "rating"
	TypeNewParticipant Type = "new_participant"
	TypeUpdate         Type = "update"
)

var knownTypes = []Type{
	TypeLike,
	TypeComment,
	TypeMessage,
	TypeCancel,
	TypeReminder,
	TypeRating,
	TypeNewParticipant,
	TypeUpdate,
}

// Types returns every known notification type.
func Types() []Type {
	out := make([]Type, len(knownTypes))
	copy(out, knownTypes)
	return out
}

// ParseType normalises raw input into a Type. The second result reports whether
// the value is one of the known types.
func ParseType(raw string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range knownTypes {
		if t == known {
			return t, true
		}
	}
	return t, false
}

// Category groups notification types into the three badge domains.
type Category string

// Badge categories. CategoryNone is returned for types the app does not know.
const (
	CategoryNone    Category = ""
	CategoryMeeting Category = "meeting"
	CategoryChat    Category = "chat"
	CategoryBoard   Category = "board"
)

// Categories returns the badge categories in tab order.
func Categories() []Category {
	return []Category{CategoryMeeting, CategoryChat, CategoryBoard}
}

// ParseCategory normalises raw input into a Category.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CategoryMeeting, CategoryChat, CategoryBoard:
		return c, true
	default:
		return CategoryNone, false
	}
}

// CategoryOf maps a type to its badge category.
func CategoryOf(t Type) Category {
	switch t {
	case TypeCancel, TypeReminder, TypeRating, TypeNewParticipant, TypeUpdate:
		return CategoryMeeting
	case TypeMessage:
		return CategoryChat
	case TypeLike, TypeComment:
		return CategoryBoard
	default:
		return CategoryNone
	}
}

// Payload is the type-specific part of a notification. Each variant carries
// only the references its type actually uses.
type Payload interface {
	Type() Type
	isPayload()
}

// LikePayload is attached to "like" notifications.
type LikePayload struct {
	PostID string `json:"postId,omitempty"`
}

// CommentPayload is attached to "comment" notifications.
type CommentPayload struct {
	PostID    string `json:"postId,omitempty"`
	CommentID string `json:"commentId,omitempty"`
}

// MessagePayload is attached to chat "message" notifications.
type MessagePayload struct {
	ChatID string `json:"chatId,omitempty"`
}

// CancelPayload is attached to meeting cancellation notifications.
type CancelPayload struct {
	EventID string `json:"eventId,omitempty"`
}

// ReminderPayload is attached to upcoming meeting reminders.
type ReminderPayload struct {
	EventID string `json:"eventId,omitempty"`
}

// RatingPayload asks the user to rate an ended meeting.
type RatingPayload struct {
	EventID string `json:"eventId,omitempty"`
}

// NewParticipantPayload announces that someone joined a meeting the user hosts.
type NewParticipantPayload struct {
	EventID       string `json:"eventId,omitempty"`
	ParticipantID string `json:"participantId,omitempty"`
}

// UpdatePayload announces a new app release.
type UpdatePayload struct {
	Version string `json:"version,omitempty"`
}

// UnknownPayload preserves records whose type this build does not recognise.
type UnknownPayload struct {
	Kind Type `json:"kind"`
}

func (LikePayload) Type() Type           { return TypeLike }
func (CommentPayload) Type() Type        { return TypeComment }
func (MessagePayload) Type() Type        { return TypeMessage }
func (CancelPayload) Type() Type         { return TypeCancel }
func (ReminderPayload) Type() Type       { return TypeReminder }
func (RatingPayload) Type() Type         { return TypeRating }
func (NewParticipantPayload) Type() Type { return TypeNewParticipant }
func (UpdatePayload) Type() Type         { return TypeUpdate }
func (p UnknownPayload) Type() Type      { return p.Kind }

func (LikePayload) isPayload()           {}
func (CommentPayload) isPayload()        {}
func (MessagePayload) isPayload()        {}
func (CancelPayload) isPayload()         {}
func (ReminderPayload) isPayload()       {}
func (RatingPayload) isPayload()         {}
func (NewParticipantPayload) isPayload() {}
func (UpdatePayload) isPayload()         {}
func (UnknownPayload) isPayload()        {}

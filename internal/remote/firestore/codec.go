package firestore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charlesng35/runmate/internal/notifications"
)

// Document field names as written by the mobile app.
const (
	fieldType          = "type"
	fieldTargetUserID  = "targetUserId"
	fieldIsRead        = "isRead"
	fieldTimestamp     = "timestamp"
	fieldTitle         = "title"
	fieldMessage       = "message"
	fieldChatID        = "chatId"
	fieldEventID       = "eventId"
	fieldPostID        = "postId"
	fieldCommentID     = "commentId"
	fieldParticipantID = "participantId"
	fieldVersion       = "version"
	fieldNavigation    = "navigation"
	fieldScreen        = "screen"
	fieldParams        = "params"
)

// DecodeDocument reads a notification document leniently. Missing or
// mistyped fields decode to zero values instead of failing, so one bad
// document never hides the rest of the list.
func DecodeDocument(id string, data map[string]any) notifications.Record {
	rec := notifications.Record{
		ID:            id,
		Type:          stringField(data[fieldType]),
		TargetUserID:  stringField(data[fieldTargetUserID]),
		IsRead:        boolField(data[fieldIsRead]),
		Timestamp:     timeField(data[fieldTimestamp]),
		Title:         stringField(data[fieldTitle]),
		Message:       stringField(data[fieldMessage]),
		ChatID:        stringField(data[fieldChatID]),
		EventID:       stringField(data[fieldEventID]),
		PostID:        stringField(data[fieldPostID]),
		CommentID:     stringField(data[fieldCommentID]),
		ParticipantID: stringField(data[fieldParticipantID]),
		Version:       stringField(data[fieldVersion]),
		Screen:        stringField(data[fieldScreen]),
	}
	rec.NavigationArgs = paramsField(data[fieldParams])

	if nav, ok := data[fieldNavigation].(map[string]any); ok {
		if screen := stringField(nav[fieldScreen]); screen != "" {
			rec.Screen = screen
		}
		if params := paramsField(nav[fieldParams]); params != nil {
			rec.NavigationArgs = params
		}
	}
	return rec
}

// EncodeRecord builds the document written for a new notification. Empty
// optional references are omitted.
func EncodeRecord(rec notifications.Record) map[string]any {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	doc := map[string]any{
		fieldType:         rec.Type,
		fieldTargetUserID: rec.TargetUserID,
		fieldIsRead:       rec.IsRead,
		fieldTimestamp:    ts.UTC(),
		fieldTitle:        rec.Title,
		fieldMessage:      rec.Message,
	}
	optional := map[string]string{
		fieldChatID:        rec.ChatID,
		fieldEventID:       rec.EventID,
		fieldPostID:        rec.PostID,
		fieldCommentID:     rec.CommentID,
		fieldParticipantID: rec.ParticipantID,
		fieldVersion:       rec.Version,
	}
	for key, value := range optional {
		if value != "" {
			doc[key] = value
		}
	}
	if rec.Screen != "" || len(rec.NavigationArgs) > 0 {
		nav := map[string]any{fieldScreen: rec.Screen}
		if len(rec.NavigationArgs) > 0 {
			params := make(map[string]any, len(rec.NavigationArgs))
			for k, v := range rec.NavigationArgs {
				params[k] = v
			}
			nav[fieldParams] = params
		}
		doc[fieldNavigation] = nav
	}
	return doc
}

func stringField(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

func boolField(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), "true")
	default:
		return false
	}
}

// timeField accepts Firestore timestamps, epoch milliseconds and RFC 3339 strings.
func timeField(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val.UTC()
	case int64:
		return time.UnixMilli(val).UTC()
	case float64:
		return time.UnixMilli(int64(val)).UTC()
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(val)); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

func paramsField(v any) map[string]string {
	raw, ok := v.(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, value := range raw {
		if s := stringField(value); s != "" {
			out[k] = s
		} else if value != nil {
			out[k] = fmt.Sprint(value)
		}
	}
	return out
}

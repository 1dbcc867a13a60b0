package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/charlesng35/runmate/internal/notifications"
)

// Notification is a single notification document addressed to one runner.
// Type-specific references are nullable columns; which ones are set depends on Type.
type Notification struct {
	BaseModel

	TargetUserID string    `gorm:"type:varchar(128);not null;index:idx_notifications_target_ts,priority:1" json:"target_user_id"`
	Type         string    `gorm:"type:varchar(32);not null;index" json:"type"`
	Title        string    `gorm:"type:varchar(255)" json:"title"`
	Message      string    `gorm:"type:text" json:"message"`
	Timestamp    time.Time `gorm:"not null;index:idx_notifications_target_ts,priority:2,sort:desc" json:"timestamp"`

	ChatID        string `gorm:"type:varchar(128);index" json:"chat_id,omitempty"`
	EventID       string `gorm:"type:varchar(128);index" json:"event_id,omitempty"`
	PostID        string `gorm:"type:varchar(128)" json:"post_id,omitempty"`
	CommentID     string `gorm:"type:varchar(128)" json:"comment_id,omitempty"`
	ParticipantID string `gorm:"type:varchar(128)" json:"participant_id,omitempty"`
	Version       string `gorm:"type:varchar(32)" json:"version,omitempty"`

	Screen           string         `gorm:"type:varchar(64)" json:"screen"`
	NavigationParams datatypes.JSON `json:"navigation_params"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}

// Record converts the row into the backend-neutral storage shape.
func (n Notification) Record() notifications.Record {
	rec := notifications.Record{
		ID:            n.ID,
		Type:          n.Type,
		TargetUserID:  n.TargetUserID,
		IsRead:        n.IsRead,
		Timestamp:     n.Timestamp,
		Title:         n.Title,
		Message:       n.Message,
		ChatID:        n.ChatID,
		EventID:       n.EventID,
		PostID:        n.PostID,
		CommentID:     n.CommentID,
		ParticipantID: n.ParticipantID,
		Version:       n.Version,
		Screen:        n.Screen,
	}
	if len(n.NavigationParams) > 0 {
		var params map[string]string
		if err := json.Unmarshal(n.NavigationParams, &params); err == nil && len(params) > 0 {
			rec.NavigationArgs = params
		}
	}
	return rec
}

// NotificationFromRecord builds a row from the storage shape.
func NotificationFromRecord(rec notifications.Record) (Notification, error) {
	row := Notification{
		BaseModel:     BaseModel{ID: rec.ID},
		TargetUserID:  rec.TargetUserID,
		Type:          rec.Type,
		Title:         rec.Title,
		Message:       rec.Message,
		Timestamp:     rec.Timestamp,
		ChatID:        rec.ChatID,
		EventID:       rec.EventID,
		PostID:        rec.PostID,
		CommentID:     rec.CommentID,
		ParticipantID: rec.ParticipantID,
		Version:       rec.Version,
		Screen:        rec.Screen,
		IsRead:        rec.IsRead,
	}
	if len(rec.NavigationArgs) > 0 {
		data, err := json.Marshal(rec.NavigationArgs)
		if err != nil {
			return Notification{}, err
		}
		row.NavigationParams = datatypes.JSON(data)
	}
	return row, nil
}

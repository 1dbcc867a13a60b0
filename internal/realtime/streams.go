package realtime

import "strings"

// Named realtime streams.
const (
	// StreamNotifications carries notification changes for the connected runner.
	StreamNotifications = "notifications"
)

// Events published on StreamNotifications.
const (
	EventNotificationCreated = "notification.created"
	EventNotificationsRead   = "notifications.read"
	EventNotificationDeleted = "notification.deleted"
)

// ParseStreams lowercases, trims and de-duplicates stream names, dropping
// empty ones. Each value may hold a comma separated list.
func ParseStreams(values ...string) []string {
	var parts []string
	for _, value := range values {
		parts = append(parts, strings.Split(value, ",")...)
	}
	return uniqueStreams(parts)
}

package notifications

import "sort"

// EventSet records meetings whose ended-event card the user has opened.
// A nil EventSet is valid and empty.
type EventSet map[string]struct{}

// NewEventSet builds a set from the supplied ids, ignoring empty ones.
func NewEventSet(ids ...string) EventSet {
	set := make(EventSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// Has reports whether the event has been acknowledged.
func (s EventSet) Has(eventID string) bool {
	if s == nil || eventID == "" {
		return false
	}
	_, ok := s[eventID]
	return ok
}

// Add inserts an event id and reports whether the set changed.
func (s EventSet) Add(eventID string) bool {
	if s == nil || eventID == "" {
		return false
	}
	if _, ok := s[eventID]; ok {
		return false
	}
	s[eventID] = struct{}{}
	return true
}

// Clone copies the set.
func (s EventSet) Clone() EventSet {
	out := make(EventSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// IDs returns the members in sorted order.
func (s EventSet) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ReadState holds one "has unread" flag per badge category.
type ReadState struct {
	Meeting bool `json:"meeting"`
	Chat    bool `json:"chat"`
	Board   bool `json:"board"`
}

// For returns the flag of a single category.
func (r ReadState) For(c Category) bool {
	switch c {
	case CategoryMeeting:
		return r.Meeting
	case CategoryChat:
		return r.Chat
	case CategoryBoard:
		return r.Board
	default:
		return false
	}
}

// Any reports whether any category has pending notifications.
func (r ReadState) Any() bool {
	return r.Meeting || r.Chat || r.Board
}

// Pending reports the category a notification lights up, if it lights one.
//
// A rating notification stays pending until the user opens the ended-event
// card for its meeting, whatever its own isRead flag says. A rating with no
// meeting reference cannot be acknowledged that way and falls back to isRead.
// Every other known type is pending while unread.
func Pending(n Notification, acked EventSet) (Category, bool) {
	category := n.Category()
	if category == CategoryNone {
		return CategoryNone, false
	}
	if p, ok := n.Payload.(RatingPayload); ok && p.EventID != "" {
		return category, !acked.Has(p.EventID)
	}
	return category, !n.IsRead
}

// Classify derives the badge flags from the full notification set. It is a
// full scan with no memory of previous results; callers recompute after
// every mutation.
func Classify(items []Notification, acked EventSet) ReadState {
	var state ReadState
	for _, n := range items {
		category, pending := Pending(n, acked)
		if !pending {
			continue
		}
		switch category {
		case CategoryMeeting:
			state.Meeting = true
		case CategoryChat:
			state.Chat = true
		case CategoryBoard:
			state.Board = true
		}
		if state.Meeting && state.Chat && state.Board {
			break
		}
	}
	return state
}

// UnreadCount returns how many notifications are unread.
func UnreadCount(items []Notification) int {
	count := 0
	for _, n := range items {
		if !n.IsRead {
			count++
		}
	}
	return count
}

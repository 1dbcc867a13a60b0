package notifications

import (
	"fmt"
	"sort"
	"strings"
)

// Selector picks the notifications a mark-as-read command applies to.
type Selector interface {
	Match(n Notification) bool
	String() string
}

type selector struct {
	name  string
	match func(Notification) bool
}

func (s selector) Match(n Notification) bool { return s.match(n) }
func (s selector) String() string            { return s.name }

// ByID selects notifications by document id.
func ByID(ids ...string) Selector {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return selector{
		name: fmt.Sprintf("id(%s)", strings.Join(sortedKeys(set), ",")),
		match: func(n Notification) bool {
			_, ok := set[n.ID]
			return ok
		},
	}
}

// ByChat selects message notifications of one chat room. Messages that carry
// no room reference never match, and an empty chat id matches nothing.
func ByChat(chatID string) Selector {
	chatID = strings.TrimSpace(chatID)
	return selector{
		name: fmt.Sprintf("chat(%s)", chatID),
		match: func(n Notification) bool {
			return chatID != "" && n.Type() == TypeMessage && n.ChatID() == chatID
		},
	}
}

// ByCategory selects every notification in the given badge categories.
func ByCategory(categories ...Category) Selector {
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		if c != CategoryNone {
			set[string(c)] = struct{}{}
		}
	}
	return selector{
		name: fmt.Sprintf("category(%s)", strings.Join(sortedKeys(set), ",")),
		match: func(n Notification) bool {
			_, ok := set[string(n.Category())]
			return ok
		},
	}
}

// ByEvent selects meeting notifications that refer to one meeting.
func ByEvent(eventID string) Selector {
	eventID = strings.TrimSpace(eventID)
	return selector{
		name: fmt.Sprintf("event(%s)", eventID),
		match: func(n Notification) bool {
			return eventID != "" && n.EventID() == eventID
		},
	}
}

// MarkRead flips isRead to true on every unread notification the selector
// matches. It returns a new slice and the ids that actually changed; already
// read notifications are left alone so repeating a command changes nothing.
func MarkRead(items []Notification, sel Selector) ([]Notification, []string) {
	out := CloneAll(items)
	if sel == nil {
		return out, nil
	}

	var changed []string
	for i := range out {
		if out[i].IsRead || !sel.Match(out[i]) {
			continue
		}
		out[i].IsRead = true
		changed = append(changed, out[i].ID)
	}
	return out, changed
}

// UnreadIDs lists the ids of unread notifications matching the selector.
func UnreadIDs(items []Notification, sel Selector) []string {
	var ids []string
	for _, n := range items {
		if !n.IsRead && sel != nil && sel.Match(n) {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// UnreadByRoom counts unread messages per chat room. Messages without a room
// reference cannot be attributed and are left out.
func UnreadByRoom(items []Notification) map[string]int {
	counts := make(map[string]int)
	for _, n := range items {
		if n.IsRead || n.Type() != TypeMessage {
			continue
		}
		if chatID := n.ChatID(); chatID != "" {
			counts[chatID]++
		}
	}
	return counts
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

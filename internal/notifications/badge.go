package notifications

// Tab names a bottom navigation tab that can show a badge dot.
type Tab string

// Tabs carrying badges.
const (
	TabHome  Tab = "home"
	TabChat  Tab = "chat"
	TabBoard Tab = "board"
)

// Badge is the visibility of a single tab dot.
type Badge struct {
	Tab     Tab  `json:"tab"`
	Visible bool `json:"visible"`
}

// Badges is the full tab bar projection, in tab order.
type Badges []Badge

// Visible reports whether the given tab shows a dot.
func (b Badges) Visible(tab Tab) bool {
	for _, badge := range b {
		if badge.Tab == tab {
			return badge.Visible
		}
	}
	return false
}

// Project maps category flags to tab badges. Meeting notifications surface on
// the home tab where the meeting list lives.
func Project(state ReadState) Badges {
	return Badges{
		{Tab: TabHome, Visible: state.Meeting},
		{Tab: TabChat, Visible: state.Chat},
		{Tab: TabBoard, Visible: state.Board},
	}
}

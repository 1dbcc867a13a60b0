package notifications

// Content is the display text of a notification.
type Content struct {
	Title   string
	Message string
}

// Screens notifications route to.
const (
	ScreenChatRoom      = "ChatRoom"
	ScreenPostDetail    = "PostDetail"
	ScreenMeetingDetail = "MeetingDetail"
	ScreenMeetingRating = "MeetingRating"
	ScreenNotice        = "Notice"
	ScreenNotifications = "Notifications"
)

var defaultContent = map[Type]Content{
	TypeLike:           {Title: "좋아요 알림", Message: "회원님의 게시글에 좋아요가 눌렸습니다."},
	TypeComment:        {Title: "댓글 알림", Message: "회원님의 게시글에 새 댓글이 달렸습니다."},
	TypeMessage:        {Title: "새 메시지", Message: "새로운 채팅 메시지가 도착했습니다."},
	TypeCancel:         {Title: "모임 취소", Message: "참여 중인 모임이 취소되었습니다."},
	TypeReminder:       {Title: "모임 알림", Message: "곧 모임이 시작됩니다. 준비해 주세요!"},
	TypeRating:         {Title: "모임 평가", Message: "모임이 종료되었습니다. 함께 달린 러너를 평가해 주세요."},
	TypeNewParticipant: {Title: "새 참여자", Message: "모임에 새로운 러너가 참여했습니다."},
	TypeUpdate:         {Title: "업데이트 안내", Message: "새로운 버전이 출시되었습니다."},
}

// DefaultContent returns the template text for a payload's type.
func DefaultContent(p Payload) Content {
	if p == nil {
		return Content{Title: "알림"}
	}
	if c, ok := defaultContent[p.Type()]; ok {
		return c
	}
	return Content{Title: "알림"}
}

// DefaultNavigation returns the route a payload's notification opens.
func DefaultNavigation(p Payload) Navigation {
	switch v := p.(type) {
	case MessagePayload:
		return routeWith(ScreenChatRoom, "chatId", v.ChatID)
	case LikePayload:
		return routeWith(ScreenPostDetail, "postId", v.PostID)
	case CommentPayload:
		nav := routeWith(ScreenPostDetail, "postId", v.PostID)
		if v.CommentID != "" {
			nav.Params["commentId"] = v.CommentID
		}
		return nav
	case CancelPayload:
		return routeWith(ScreenMeetingDetail, "eventId", v.EventID)
	case ReminderPayload:
		return routeWith(ScreenMeetingDetail, "eventId", v.EventID)
	case NewParticipantPayload:
		return routeWith(ScreenMeetingDetail, "eventId", v.EventID)
	case RatingPayload:
		return routeWith(ScreenMeetingRating, "eventId", v.EventID)
	case UpdatePayload:
		return routeWith(ScreenNotice, "version", v.Version)
	default:
		return Navigation{Screen: ScreenNotifications}
	}
}

func routeWith(screen, key, value string) Navigation {
	nav := Navigation{Screen: screen, Params: map[string]string{}}
	if value != "" {
		nav.Params[key] = value
	}
	return nav
}

// WithDefaults fills empty title, message and navigation from the templates.
func WithDefaults(n Notification) Notification {
	content := DefaultContent(n.Payload)
	if n.Title == "" {
		n.Title = content.Title
	}
	if n.Message == "" {
		n.Message = content.Message
	}
	if n.Navigation.Screen == "" {
		n.Navigation = DefaultNavigation(n.Payload)
	}
	return n
}

package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/runmate/internal/handlers"
	"github.com/charlesng35/runmate/internal/middleware"
)

type notificationRouteOptions struct {
	writeLimit       gin.HandlerFunc
	internalAudience string
}

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler, opts notificationRouteOptions) {
	var write []gin.HandlerFunc
	if opts.writeLimit != nil {
		write = append(write, opts.writeLimit)
	}
	internal := chain(write)
	if opts.internalAudience != "" {
		internal = chain(internal, middleware.RequireAudience(opts.internalAudience))
	}

	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/badges", handler.Badges)
		group.GET("/rooms/unread", handler.UnreadByRoom)
		group.GET("/update-notice", handler.UpdateNotice)

		group.POST("", chain(internal, handler.Create)...)
		group.POST("/fanout", chain(internal, handler.Fanout)...)

		group.POST("/:id/read", chain(write, handler.MarkRead)...)
		group.POST("/chats/:chatID/open", chain(write, handler.OpenChat)...)
		group.POST("/tabs/chat/open", chain(write, handler.OpenChatTab)...)
		group.POST("/tabs/board/open", chain(write, handler.OpenBoardTab)...)
		group.POST("/events/:eventID/acknowledge", chain(write, handler.AcknowledgeEvent)...)
		group.POST("/update-notice/dismiss", chain(write, handler.DismissUpdateNotice)...)
		group.DELETE("/:id", chain(write, handler.Delete)...)
	}
}

// chain returns a fresh slice so route registrations never share backing arrays.
func chain(base []gin.HandlerFunc, extra ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

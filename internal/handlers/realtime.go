package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/runmate/internal/auth"
	"github.com/charlesng35/runmate/internal/middleware"
	"github.com/charlesng35/runmate/internal/realtime"
	"github.com/charlesng35/runmate/pkg/errors"
	"github.com/charlesng35/runmate/pkg/response"
)

// RealtimeHandler upgrades authenticated runners onto the notification
// stream of the realtime hub.
type RealtimeHandler struct {
	hub     *realtime.Hub
	jwt     *iauth.JWTService
	allowed map[string]struct{}
}

// NewRealtimeHandler constructs a RealtimeHandler. When streams is empty every
// stream may be subscribed.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService, streams ...string) *RealtimeHandler {
	h := &RealtimeHandler{hub: hub, jwt: jwt}
	if names := realtime.ParseStreams(streams...); len(names) > 0 {
		h.allowed = make(map[string]struct{}, len(names))
		for _, name := range names {
			h.allowed[name] = struct{}{}
		}
	}
	return h
}

// Stream authenticates the caller and hands the connection to the hub.
// Browsers cannot set headers on websocket requests, so the token may also
// travel in the query string. Without a stream parameter the caller joins
// the notifications stream.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	userID, ok := h.authenticate(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	streams := realtime.ParseStreams(append(c.QueryArray("stream"), c.Query("streams"))...)
	if len(streams) == 0 {
		streams = []string{realtime.StreamNotifications}
	}
	if h.allowed != nil {
		for _, stream := range streams {
			if _, ok := h.allowed[stream]; !ok {
				response.Error(c, errors.ErrNotFound)
				return
			}
		}
	}

	h.hub.Serve(userID, streams, h.allowed, c.Writer, c.Request)
}

func (h *RealtimeHandler) authenticate(c *gin.Context) (string, bool) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		return "", false
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		return "", false
	}
	userID := strings.TrimSpace(claims.UserID)
	return userID, userID != ""
}

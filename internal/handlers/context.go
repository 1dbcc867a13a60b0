package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/runmate/internal/middleware"
	"github.com/charlesng35/runmate/pkg/errors"
	"github.com/charlesng35/runmate/pkg/response"
)

// requestContext returns the request context, or Background for contexts
// built without a request in tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// requireUser returns the authenticated runner, writing 401 when the auth
// middleware did not set one.
func requireUser(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}

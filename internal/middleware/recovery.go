package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/runmate/pkg/errors"
	"github.com/charlesng35/runmate/pkg/logger"
	"github.com/charlesng35/runmate/pkg/response"
)

// Recovery turns a handler panic into the 500 envelope. If the handler had
// already started writing, the response is left as is and only aborted.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.WithModule("http").Error("handler panic",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("user_id", c.GetString(CtxUserIDKey)),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with a JSON 404.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.New("NOT_FOUND", fmt.Sprintf("route %s not found", c.Request.URL.Path), http.StatusNotFound))
}

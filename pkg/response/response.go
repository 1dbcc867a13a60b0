package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/runmate/pkg/errors"
)

// Response is the envelope every API route answers with.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo is the client-visible part of an AppError.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta describes a listed window of notifications.
type Meta struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
	Total  int `json:"total,omitempty"`
	Unread int `json:"unread,omitempty"`
}

func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{Success: true, Data: data})
}

func SuccessWithMeta(c *gin.Context, statusCode int, data any, meta *Meta) {
	c.JSON(statusCode, Response{Success: true, Data: data, Meta: meta})
}

// Error renders err as an error envelope. Errors outside the AppError family
// become a generic 500; the cause is attached to the gin context so the
// access log records it.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr == nil {
		appErr = appErrors.ErrInternalServer
	}

	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError && err != nil {
		_ = c.Error(err)
	}

	c.JSON(status, Response{
		Error: &ErrorInfo{Code: appErr.Code, Message: appErr.Message},
	})
}

package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/runmate/internal/auth"
	"github.com/charlesng35/runmate/pkg/errors"
	"github.com/charlesng35/runmate/pkg/response"
)

const (
	CtxClaimsKey   = "authClaims"
	CtxUserIDKey   = "userID"
	CtxDeviceIDKey = "deviceID"
)

// Auth enforces bearer authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.DeviceID != "" {
			c.Set(CtxDeviceIDKey, claims.DeviceID)
		}

		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

// RequireAudience rejects callers whose token was not issued for audience.
// It must run after Auth.
func RequireAudience(audience string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get(CtxClaimsKey)
		claims, _ := value.(*iauth.Claims)
		if !ok || claims == nil {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		if claims.HasAudience(audience) {
			c.Next()
			return
		}

		response.Error(c, errors.ErrForbidden)
		c.Abort()
	}
}

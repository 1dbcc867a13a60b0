package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// apiHeaders are sent on every response. The API serves JSON and a websocket
// only, so nothing may be framed, sniffed or cached.
var apiHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeaders sets apiHeaders, plus HSTS when the request arrived over
// TLS directly or through a proxy that says so.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range apiHeaders {
			h.Set(kv[0], kv[1])
		}
		if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
			h.Set("Strict-Transport-Security", hstsValue)
		}
		c.Next()
	}
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/runmate/pkg/response"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.NotNil(t, payload.Error)
	return payload
}

func TestRecoveryRendersEnvelopeAndLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorded := observeLogs(t)

	r := gin.New()
	r.Use(Recovery())
	r.POST("/api/notifications/read", func(c *gin.Context) {
		c.Set(CtxUserIDKey, "runner-9")
		panic("reducer exploded")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/notifications/read", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "INTERNAL_SERVER_ERROR", decodeEnvelope(t, w).Error.Code)

	entries := recorded.FilterMessage("handler panic").All()
	require.Len(t, entries, 1)
	require.Equal(t, "runner-9", entries[0].ContextMap()["user_id"])
	require.Equal(t, "reducer exploded", entries[0].ContextMap()["panic"])
}

func TestRecoveryKeepsPartialResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observeLogs(t)

	r := gin.New()
	r.Use(Recovery())
	r.GET("/partial", func(c *gin.Context) {
		c.String(http.StatusAccepted, "started")
		panic("late")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/partial", nil))

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, "started", w.Body.String())
}

func TestNotFoundHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.NoRoute(NotFoundHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	payload := decodeEnvelope(t, w)
	require.Equal(t, "NOT_FOUND", payload.Error.Code)
	require.Contains(t, payload.Error.Message, "/api/runs")
}

package middleware

import (
	"bytes"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	router := gin.New()
	router.Use(RequestLogger())
	router.GET("/ping", func(c *gin.Context) {
		c.String(200, GetRequestID(c))
	})
	router.GET("/missing", func(c *gin.Context) {
		c.Status(404)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))
	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, w.Body.String())
	assert.Contains(t, buf.String(), "request_id="+id)
	assert.Contains(t, buf.String(), "level=INFO")

	// 合法的外部 request id 原样沿用
	given := uuid.NewString()
	req := httptest.NewRequest("GET", "/missing", nil)
	req.Header.Set(RequestIDHeader, given)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, given, w.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), "level=WARN")

	req = httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEqual(t, "not-a-uuid", w.Header().Get(RequestIDHeader))
}

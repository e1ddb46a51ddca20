package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ZapLoggingMiddlewareForGin(zap.NewNop()), TabID())
	r.GET("/tab", func(c *gin.Context) { c.String(http.StatusOK, GetTabID(c)) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestTabID(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		name   string
		header string
		query  string
		keep   bool
	}{
		{"header", "tab-1", "", true},
		{"query", "", "tab_2", true},
		{"missing", "", "", false},
		{"invalid chars", "../etc/passwd", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/tab", nil)
			if tt.header != "" {
				req.Header.Set(TabIDHeader, tt.header)
			}
			if tt.query != "" {
				req.URL.RawQuery = "tab_id=" + tt.query
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(TabIDHeader)
			assert.Equal(t, got, w.Body.String())
			assert.NotEmpty(t, got)
			switch {
			case tt.keep && tt.header != "":
				assert.Equal(t, tt.header, got)
			case tt.keep:
				assert.Equal(t, tt.query, got)
			default:
				assert.Len(t, got, 36, "a fresh uuid is issued")
			}
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tab", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

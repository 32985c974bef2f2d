package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/atelier-backend/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, ctxutil.RequestID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Body.String() != "req-123" || rec.Header().Get(headerRequestID) != "req-123" {
		t.Fatalf("caller request id not kept: body=%q header=%q", rec.Body.String(), rec.Header().Get(headerRequestID))
	}
	if rec.Header().Get(headerTraceID) == "" {
		t.Fatalf("trace id header missing")
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "evil\nlog line")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Body.String(); got == "" || strings.Contains(got, "evil") {
		t.Fatalf("unsafe request id must be replaced, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, strings.Repeat("a", maxCorrelationIDLen+1))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if len(rec.Body.String()) > maxCorrelationIDLen {
		t.Fatalf("oversized request id kept")
	}
}

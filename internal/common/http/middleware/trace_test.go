package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"grader/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

func TestTraceContextMiddlewarePropagatesHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceContextMiddleware())
	var seen interface{}
	r.GET("/x", func(c *gin.Context) {
		seen = c.Request.Context().Value(contextkey.TraceID)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(traceIDHeader, "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seen != "trace-123" {
		t.Fatalf("expected trace id in context, got %v", seen)
	}
	if w.Header().Get(traceIDHeader) != "trace-123" {
		t.Fatalf("expected trace id echoed in response header")
	}
}

func TestTraceContextMiddlewareGeneratesID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceContextMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get(traceIDHeader) == "" {
		t.Fatalf("expected generated trace id")
	}
}

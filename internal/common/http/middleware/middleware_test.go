package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pvjudge/internal/common/cache"
	appErr "pvjudge/pkg/errors"
	"pvjudge/pkg/utils/contextkey"
	"pvjudge/pkg/utils/response"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTraceContextMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(TraceContextMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, contextkey.String(c.Request.Context(), contextkey.TraceID))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(traceIDHeader, "trace-1")
	r.ServeHTTP(w, req)
	if w.Body.String() != "trace-1" || w.Header().Get(traceIDHeader) != "trace-1" {
		t.Fatalf("trace id not propagated: body=%q header=%q", w.Body.String(), w.Header().Get(traceIDHeader))
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("request id should be generated")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Body.String() == "" || w.Body.String() != w.Header().Get(traceIDHeader) {
		t.Fatalf("generated trace id mismatch: %q", w.Body.String())
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(TraceContextMiddleware(), RecoveryMiddleware())
	r.GET("/", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != appErr.InternalServerError || resp.TraceID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func newRateLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewRateLimiter(c, time.Second), mr
}

func TestRateLimiterAllow(t *testing.T) {
	limiter, mr := newRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.Allow(ctx, "k", 2, time.Minute); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	if err := limiter.Allow(ctx, "k", 2, time.Minute); !appErr.Is(err, appErr.TooManyRequests) {
		t.Fatalf("expected TooManyRequests, got %v", err)
	}
	if ttl := mr.TTL("k"); ttl != time.Minute {
		t.Fatalf("window ttl = %v", ttl)
	}

	mr.FastForward(time.Minute)
	if err := limiter.Allow(ctx, "k", 2, time.Minute); err != nil {
		t.Fatalf("new window should allow, got %v", err)
	}
	if err := limiter.Allow(ctx, "other", 0, time.Minute); err != nil {
		t.Fatalf("zero max disables the limit, got %v", err)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, mr := newRateLimiter(t)
	r := gin.New()
	r.POST("/runs", RateLimitMiddleware(limiter, "runs", RateLimitPolicy{IPMax: 1}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/runs", nil))
		return w.Code
	}
	if code := send(); code != http.StatusOK {
		t.Fatalf("first request status = %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", code)
	}

	mr.Close()
	if code := send(); code != http.StatusOK {
		t.Fatalf("cache outage should fail open, status = %d", code)
	}
}

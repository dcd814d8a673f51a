package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newTestApp(cfg Config) *App {
	gin.SetMode(gin.TestMode)
	if cfg.Env == "" {
		cfg.Env = "test"
	}
	return NewApp(cfg, nil, nil, nil, nil)
}

func TestRequestIDIsUUID(t *testing.T) {
	a := newTestApp(Config{})
	var seen string
	a.R.GET("/ping", func(c *gin.Context) {
		id, _ := c.Get("request_id")
		seen, _ = id.(string)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	hdr := rr.Header().Get("X-Request-ID")
	if _, err := uuid.Parse(hdr); err != nil {
		t.Fatalf("X-Request-ID %q is not a UUID: %v", hdr, err)
	}
	if seen != hdr {
		t.Fatalf("context request_id %q != header %q", seen, hdr)
	}
}

func TestRequestIDsAreUnique(t *testing.T) {
	a := newTestApp(Config{})
	a.R.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		ids[rr.Header().Get("X-Request-ID")] = true
	}
	if len(ids) != 3 {
		t.Fatalf("expected distinct request ids, got %v", ids)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	a := newTestApp(Config{RateLimitRPS: 1, RateLimitBurst: 1})
	a.R.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the burst, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "too many requests") {
		t.Fatalf("unexpected rejection body: %s", rr.Body.String())
	}
}

func TestGlobalRateLimitOffByDefault(t *testing.T) {
	a := newTestApp(Config{})
	a.R.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
}

func TestOpCtxUsesConfiguredDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := newTestApp(Config{DBTimeout: 50 * time.Millisecond})
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	ctx, cancel := a.OpCtx(c)
	defer cancel()
	dl, ok := ctx.Deadline()
	if !ok {
		t.Fatal("storage context must carry a deadline")
	}
	if rem := time.Until(dl); rem > 50*time.Millisecond || rem <= 0 {
		t.Fatalf("deadline %v out of the configured bound", rem)
	}
}

func TestOpCtxDefaultsWhenUnset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := newTestApp(Config{})
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	ctx, cancel := a.OpCtx(c)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("unset timeout must still bound the call")
	}
}

package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestHelpers_GetIdempotencyKey_IsReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected empty key when not set")
	}
	if IsReplay(c) || GetIdempotencyScope(c) != "" {
		t.Fatalf("expected no replay and no scope by default")
	}
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key must read as absent")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("non-bool replay flag must read as false")
	}
}

func TestIdempotencyValidator_SkipsSafeMethodsAndMissingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	called := false
	lookup := func(context.Context, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.GET("/g", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/p", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/g", nil)
	req.Header.Set(HeaderIdempotencyKey, "k1")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/p", nil))
	if called {
		t.Fatalf("lookup must not run for GET or without header")
	}
}

func TestIdempotencyValidator_InvalidKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		opts IdempotencyOptions
		key  string
	}{
		{IdempotencyOptions{MaxLen: 5}, "abcdef"},
		{IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123"},
		{IdempotencyOptions{}, "has space"},
	}
	for _, tc := range cases {
		r := gin.New()
		r.Use(IdempotencyValidator(tc.opts, nil))
		r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(HeaderIdempotencyKey, tc.key)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("key %q: expected 400, got %d", tc.key, w.Code)
		}
		var body map[string]any
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		if body["code"] != "bad_idempotency_key" {
			t.Fatalf("unexpected body: %v", body)
		}
	}
}

func TestIdempotencyValidator_LookupMissAndHit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, hit := range []bool{false, true} {
		r := gin.New()
		var gotScope, gotKey string
		lookup := func(_ context.Context, scope, key string, now time.Time) (bool, error) {
			if now.IsZero() {
				t.Fatalf("now not populated")
			}
			gotScope, gotKey = scope, key
			return hit, nil
		}
		r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
		r.POST("/api/v1/sessions", func(c *gin.Context) {
			if IsReplay(c) != hit || IsRateBypass(c) != hit {
				t.Fatalf("hit=%v: replay=%v bypass=%v", hit, IsReplay(c), IsRateBypass(c))
			}
			if k, _ := GetIdempotencyKey(c); k != "k-9" {
				t.Fatalf("key not stashed: %q", k)
			}
			if GetIdempotencyScope(c) != "POST /api/v1/sessions" {
				t.Fatalf("scope not stashed: %q", GetIdempotencyScope(c))
			}
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
		req.Header.Set(HeaderIdempotencyKey, "k-9")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK || gotKey != "k-9" || gotScope != "POST /api/v1/sessions" {
			t.Fatalf("hit=%v: code=%d scope=%q key=%q", hit, w.Code, gotScope, gotKey)
		}
	}
}

func TestIdempotencyValidator_LookupErrorIsLoggedMiss(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(func(c *gin.Context) {
		attachLogger(c, zerolog.New(&buf))
		c.Next()
	})
	r.Use(IdempotencyValidator(IdempotencyOptions{}, func(context.Context, string, string, time.Time) (bool, error) {
		return true, errors.New("database is locked")
	}))
	r.POST("/api/v1/sessions", func(c *gin.Context) {
		if IsReplay(c) || IsRateBypass(c) {
			t.Fatalf("a failed lookup must not mark a replay")
		}
		c.Status(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	req.Header.Set(HeaderIdempotencyKey, "k-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected pass-through, got %d", w.Code)
	}
	if !bytes.Contains(buf.Bytes(), []byte("database is locked")) {
		t.Fatalf("lookup error not logged: %s", buf.String())
	}
}

func TestIdempotencyValidator_CustomScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{Scope: func(*gin.Context) string { return "checkout" }}, nil))
	r.POST("/s", func(c *gin.Context) { c.String(http.StatusOK, GetIdempotencyScope(c)) })

	req := httptest.NewRequest(http.MethodPost, "/s", nil)
	req.Header.Set(HeaderIdempotencyKey, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "checkout" {
		t.Fatalf("custom scope not used: %q", w.Body.String())
	}
}

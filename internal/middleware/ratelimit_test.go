package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/modelstation/modelstation/internal/auth"
	"github.com/modelstation/modelstation/internal/cache"
	"github.com/modelstation/modelstation/internal/model"
)

type stubLimiter struct {
	allowed bool
	err     error
	calls   int
	lastKey string
}

func (s *stubLimiter) result() (*cache.RateLimitResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &cache.RateLimitResult{
		Allowed:    s.allowed,
		Remaining:  3,
		ResetAt:    time.Now().Add(time.Second),
		RetryAfter: 1500 * time.Millisecond,
	}, nil
}

func (s *stubLimiter) CheckAuthRateLimit(_ context.Context, ip string, _, _ int) (*cache.RateLimitResult, error) {
	s.lastKey = ip
	return s.result()
}

func (s *stubLimiter) CheckUserRateLimit(_ context.Context, userID string, _, _ int) (*cache.RateLimitResult, error) {
	s.lastKey = userID
	return s.result()
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitAuth(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		allowed    bool
		wantStatus int
		wantCalls  int
	}{
		{"disabled", false, false, http.StatusOK, 0},
		{"allowed", true, true, http.StatusOK, 1},
		{"blocked", true, false, http.StatusTooManyRequests, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lim := &stubLimiter{allowed: tt.allowed}
			handler := RateLimitAuth(RateLimitConfig{
				Logger:      discardLogger(),
				Limiter:     lim,
				AuthEnabled: tt.enabled,
				AuthRPS:     5,
				AuthBurst:   10,
			})(okHandler())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
			req.RemoteAddr = "203.0.113.7:51234"
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if lim.calls != tt.wantCalls {
				t.Errorf("limiter calls = %d, want %d", lim.calls, tt.wantCalls)
			}
			if tt.wantCalls > 0 && lim.lastKey != "203.0.113.7" {
				t.Errorf("limiter key = %q, want bare IP", lim.lastKey)
			}
			if tt.wantStatus == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "2" {
				t.Errorf("Retry-After = %q, want 2", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestRateLimitAuth_FallsBackToLocalLimiter(t *testing.T) {
	lim := &stubLimiter{err: errors.New("redis: connection refused")}
	handler := RateLimitAuth(RateLimitConfig{
		Logger:      discardLogger(),
		Limiter:     lim,
		AuthEnabled: true,
		AuthRPS:     1,
		AuthBurst:   2,
	})(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "198.51.100.1:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
}

func TestRateLimitUser(t *testing.T) {
	lim := &stubLimiter{allowed: true}
	handler := RateLimitUser(RateLimitConfig{
		Logger:       discardLogger(),
		Limiter:      lim,
		APIEnabled:   true,
		APIPerMinute: 300,
		APIBurst:     60,
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	req = req.WithContext(auth.ContextWithAuth(req.Context(), &model.AuthContext{UserID: "u42"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if lim.lastKey != "u42" {
		t.Errorf("limiter key = %q, want u42", lim.lastKey)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "300" {
		t.Errorf("X-RateLimit-Limit = %q", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "3" {
		t.Errorf("X-RateLimit-Remaining = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimitUser_SkipsWithoutSessionOrWhenUnlimited(t *testing.T) {
	for _, perMinute := range []int{300, 0} {
		lim := &stubLimiter{allowed: false}
		handler := RateLimitUser(RateLimitConfig{
			Logger:       discardLogger(),
			Limiter:      lim,
			APIEnabled:   true,
			APIPerMinute: perMinute,
			APIBurst:     60,
		})(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
		if perMinute == 0 {
			req = req.WithContext(auth.ContextWithAuth(req.Context(), &model.AuthContext{UserID: "u1"}))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || lim.calls != 0 {
			t.Errorf("perMinute=%d: status=%d calls=%d", perMinute, rec.Code, lim.calls)
		}
	}
}

func TestLocalLimiter_EvictsIdleBuckets(t *testing.T) {
	l := newLocalLimiter(rate.Limit(1), 1)
	start := time.Unix(1_700_000_000, 0)

	if res := l.check("a", start); !res.Allowed {
		t.Fatal("first request should pass")
	}
	if res := l.check("a", start); res.Allowed {
		t.Fatal("second request in the same instant should be limited")
	}

	later := start.Add(localIdleTTL + 2*localSweepInterval)
	l.check("b", later)

	l.mu.Lock()
	_, stillThere := l.buckets["a"]
	l.mu.Unlock()
	if stillThere {
		t.Error("idle bucket was not evicted")
	}
}

func TestClientIP(t *testing.T) {
	tests := map[string]string{
		"192.0.2.1:443":     "192.0.2.1",
		"[2001:db8::1]:443": "2001:db8::1",
		"192.0.2.9":         "192.0.2.9",
	}
	for addr, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if got := clientIP(req); got != want {
			t.Errorf("clientIP(%q) = %q, want %q", addr, got, want)
		}
	}
}

package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/modelstation/modelstation/internal/metrics"
)

// logOnce serves req through Logger and returns the raw and decoded log line.
func logOnce(t *testing.T, req *http.Request, status int) (string, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	h := RequestID(Logger(slog.New(slog.NewJSONHandler(&buf, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})))
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return buf.String(), entry
}

func TestLogger_NeverLogsCredentials(t *testing.T) {
	t.Parallel()

	const token = "q7Yc2lJm0bTq1C8w3WnH9pXk4s6v5aZ0eRtUyIoPdFg"

	for _, path := range []string{"/api/v1/models", "/api/v1/auth/logout"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"password":"hunter22"}`))
		req.Header.Set("Authorization", "Bearer "+token)

		raw, _ := logOnce(t, req, http.StatusOK)
		for _, secret := range []string{token, "Bearer", "hunter22"} {
			if strings.Contains(raw, secret) {
				t.Errorf("%s: log line contains %q: %s", path, secret, raw)
			}
		}
	}
}

func TestLogger_Fields(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/models", nil)
	req.Header.Set("User-Agent", "modelctl/dev")
	req.Header.Set(RequestIDHeader, "req-42")

	_, entry := logOnce(t, req, http.StatusCreated)

	want := map[string]any{
		"msg":         "http request",
		"request_id":  "req-42",
		"method":      "POST",
		"path":        "/api/v1/models",
		"status_code": float64(http.StatusCreated),
		"user_agent":  "modelctl/dev",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("duration_ms missing")
	}
	if _, ok := entry["trace_id"]; ok {
		t.Error("trace_id logged without an active span")
	}
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNoContent, "INFO"},
		{http.StatusUnauthorized, "WARN"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
		{http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			_, entry := logOnce(t, httptest.NewRequest(http.MethodGet, "/api/v1/pods", nil), tt.status)
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	t.Parallel()

	t.Run("implicit 200 on write", func(t *testing.T) {
		rw := wrapResponseWriter(httptest.NewRecorder())
		_, _ = rw.Write([]byte(`{}`))
		if rw.status != http.StatusOK {
			t.Errorf("status = %d", rw.status)
		}
	})

	t.Run("first WriteHeader wins", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := wrapResponseWriter(rec)
		rw.WriteHeader(http.StatusCreated)
		rw.WriteHeader(http.StatusInternalServerError)
		if rw.status != http.StatusCreated || rec.Code != http.StatusCreated {
			t.Errorf("status = %d, recorder = %d", rw.status, rec.Code)
		}
	})

	t.Run("rewrap reuses the writer", func(t *testing.T) {
		rw := wrapResponseWriter(httptest.NewRecorder())
		if wrapResponseWriter(rw) != rw {
			t.Error("wrapping twice allocated a second writer")
		}
	})

	t.Run("unwrap", func(t *testing.T) {
		rec := httptest.NewRecorder()
		if wrapResponseWriter(rec).Unwrap() != http.ResponseWriter(rec) {
			t.Error("Unwrap did not return the inner writer")
		}
	})
}

func TestHTTPMetrics_RecordsRequest(t *testing.T) {
	t.Parallel()

	rec := metrics.NewInMemory()
	r := chi.NewRouter()
	r.Use(HTTPMetrics(rec))
	r.Get("/api/v1/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/models/abc", nil))

	snap := rec.Snapshot()
	if snap.HTTPRequests != 1 {
		t.Errorf("HTTPRequests = %d, want 1", snap.HTTPRequests)
	}
}

func TestRoutePattern(t *testing.T) {
	t.Parallel()

	var got string
	r := chi.NewRouter()
	r.Get("/api/v1/pods/{podID}", func(w http.ResponseWriter, req *http.Request) {
		got = routePattern(req)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/pods/p-1", nil))

	if got != "/api/v1/pods/{podID}" {
		t.Errorf("routePattern = %q", got)
	}
	if p := routePattern(httptest.NewRequest("GET", "/nowhere", nil)); p != "unmatched" {
		t.Errorf("routePattern without router = %q, want unmatched", p)
	}
}

package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func securityHeaders(t *testing.T, isDev bool) http.Header {
	t.Helper()
	h := Security(SecurityConfig{IsDevelopment: isDev})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	return rec.Header()
}

func TestSecurity_Headers(t *testing.T) {
	want := map[string]string{
		"X-Content-Type-Options":       "nosniff",
		"X-Frame-Options":              "DENY",
		"X-XSS-Protection":             "0",
		"Referrer-Policy":              "strict-origin-when-cross-origin",
		"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
		"Cross-Origin-Opener-Policy":   "same-origin",
		"Cross-Origin-Resource-Policy": "same-origin",
		"Cache-Control":                "no-store",
		"Strict-Transport-Security":    "max-age=31536000; includeSubDomains; preload",
	}

	got := securityHeaders(t, false)
	for name, value := range want {
		if got.Get(name) != value {
			t.Errorf("%s = %q, want %q", name, got.Get(name), value)
		}
	}
	if !strings.Contains(got.Get("Permissions-Policy"), "camera=()") {
		t.Errorf("Permissions-Policy = %q", got.Get("Permissions-Policy"))
	}
}

func TestSecurity_NoHSTSInDevelopment(t *testing.T) {
	got := securityHeaders(t, true)
	if v := got.Get("Strict-Transport-Security"); v != "" {
		t.Errorf("HSTS = %q in development", v)
	}
	if got.Get("Cache-Control") != "no-store" {
		t.Error("Cache-Control must be set in every environment")
	}
}

func TestMaxBodySize(t *testing.T) {
	payload := `{"name":"Atlas QA Compliance Copilot","domain":"pharma"}`

	tests := []struct {
		name       string
		limit      int64
		declared   int64
		wantStatus int
	}{
		{"within limit", 1024, int64(len(payload)), http.StatusOK},
		{"declared length over limit", 16, int64(len(payload)), http.StatusRequestEntityTooLarge},
		{"limit disabled", 0, int64(len(payload)), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := MaxBodySize(tt.limit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, err := io.Copy(io.Discard, r.Body); err != nil {
					w.WriteHeader(http.StatusRequestEntityTooLarge)
				}
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/models", strings.NewReader(payload))
			req.ContentLength = tt.declared
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestMaxBodySize_StreamedBodyFailsOnRead(t *testing.T) {
	var readErr error
	h := MaxBodySize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/process", strings.NewReader(`{"prompt":"long enough"}`))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)

	if readErr == nil {
		t.Error("expected read error for oversized streamed body")
	}
}

func TestMaxBodySize_ErrorBody(t *testing.T) {
	h := MaxBodySize(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))

	want := `{"error":"Request body too large","code":"PAYLOAD_TOO_LARGE"}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

package auth

import (
	"context"
	"testing"

	"github.com/modelstation/modelstation/internal/model"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, digest, err := GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken failed: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token after %d iterations", i)
		}
		seen[token] = true

		if err := ValidateTokenFormat(token); err != nil {
			t.Errorf("generated token %q failed format check: %v", token, err)
		}
		if digest != TokenDigest(token) {
			t.Error("digest should match TokenDigest(token)")
		}
		if len(digest) != 64 {
			t.Errorf("digest length = %d, want 64", len(digest))
		}
	}
}

func TestValidateTokenFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"uuid", "3f0c8a7e-5d1b-4c2a-9e7f-1a2b3c4d5e6f"},
		{"right length bad alphabet", "!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!"},
		{"too long", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if err := ValidateTokenFormat(tt.token); err != ErrMalformedToken {
				t.Errorf("ValidateTokenFormat(%q) = %v, want ErrMalformedToken", tt.token, err)
			}
		})
	}
}

func TestExtractBearer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"BEARER   abc  ", "abc"},
		{"abc", "abc"},
		{"  abc  ", "abc"},
		{"Bearer", ""},
		{"Bearer ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExtractBearer(tt.header); got != tt.want {
			t.Errorf("ExtractBearer(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestAuthContextRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if AuthFromContext(ctx) != nil {
		t.Error("empty context should have no auth")
	}
	if UserIDFromContext(ctx) != "" {
		t.Error("empty context should have no user id")
	}

	ac := &model.AuthContext{UserID: "u1", SessionID: "s1"}
	ctx = ContextWithAuth(ctx, ac)
	if AuthFromContext(ctx) != ac {
		t.Error("auth context not returned")
	}
	if UserIDFromContext(ctx) != "u1" {
		t.Errorf("UserIDFromContext = %q, want u1", UserIDFromContext(ctx))
	}
}

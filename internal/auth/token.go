package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// TokenBytes is the entropy of a session token.
const TokenBytes = 32

// ErrMalformedToken indicates a presented token cannot have been issued here.
var ErrMalformedToken = errors.New("malformed session token")

// GenerateToken returns a new opaque session token and its storage digest.
func GenerateToken() (token, digest string, err error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, TokenDigest(token), nil
}

// TokenDigest is the SHA-256 hex digest stored in place of the token.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidateTokenFormat performs a cheap shape check before any lookup.
func ValidateTokenFormat(token string) error {
	if len(token) != base64.RawURLEncoding.EncodedLen(TokenBytes) {
		return ErrMalformedToken
	}
	if _, err := base64.RawURLEncoding.DecodeString(token); err != nil {
		return ErrMalformedToken
	}
	return nil
}

// ExtractBearer reads a token from an Authorization header value.
// Both "Bearer <token>" and a bare token are accepted.
func ExtractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if strings.EqualFold(header, "bearer") {
		return ""
	}
	return header
}

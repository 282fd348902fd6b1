package model

import "time"

// Session binds an opaque bearer token to a user until ExpiresAt.
// Only the token digest is persisted.
type Session struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"-"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsExpired reports whether the session is no longer valid at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AuthContext holds the authenticated caller for a request.
// It is injected into the request context by the auth middleware and
// cached in Redis keyed by the token digest.
type AuthContext struct {
	SessionID string    `json:"sid"`
	UserID    string    `json:"uid"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"exp"`
}

// IsExpired reports whether the backing session has expired at now.
func (a *AuthContext) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// User returns the sanitized user for this context.
func (a *AuthContext) User() UserResponse {
	return UserResponse{
		ID:    a.UserID,
		Email: a.Email,
		Name:  a.Name,
		Role:  a.Role,
	}
}

// NewAuthContext builds the request auth context from a session and its owner.
func NewAuthContext(s *Session, u *User) *AuthContext {
	return &AuthContext{
		SessionID: s.ID,
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		ExpiresAt: s.ExpiresAt,
	}
}

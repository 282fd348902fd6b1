// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/modelstation/modelstation/internal/model"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// MessageResponse carries a human readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterRequest is the body of POST /api/v1/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned when a session is issued. The token is
// only ever shown here.
type SessionResponse struct {
	User      model.UserResponse `json:"user"`
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

// UserEnvelope wraps the current user.
type UserEnvelope struct {
	User model.UserResponse `json:"user"`
}

// ModelEnvelope wraps a single model.
type ModelEnvelope struct {
	Model *model.Model `json:"model"`
}

// ModelListResponse wraps the caller's models, newest first.
type ModelListResponse struct {
	Models []*model.Model `json:"models"`
}

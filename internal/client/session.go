// Package client is the Go client for the ModelStation API. A Client
// holds one explicit Session, persists it through a Store and sends the
// session token as a bearer credential on every call.
package client

import (
	"time"

	"github.com/modelstation/modelstation/internal/model"
)

// User is the signed-in user together with the models they own.
type User struct {
	ID     string         `json:"id"`
	Email  string         `json:"email"`
	Name   string         `json:"name"`
	Role   string         `json:"role"`
	Models []*model.Model `json:"models"`
}

// Session is the client-side view of an issued session.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// Expired reports whether the session has expired at now. A zero
// ExpiresAt never expires locally; the server remains authoritative.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a copy that shares no slices with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.User.Models = make([]*model.Model, len(s.User.Models))
	for i, m := range s.User.Models {
		if m == nil {
			continue
		}
		mc := *m
		c.User.Models[i] = &mc
	}
	return &c
}

func userFromResponse(u model.UserResponse, models []*model.Model) User {
	if models == nil {
		models = []*model.Model{}
	}
	return User{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, Models: models}
}

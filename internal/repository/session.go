package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/modelstation/modelstation/internal/model"
)

// ErrSessionNotFound indicates no session matches the token digest.
var ErrSessionNotFound = errors.New("session not found")

// CreateSession persists a new session.
func (r *Repository) CreateSession(ctx context.Context, s *model.Session) error {
	query := `
		INSERT INTO sessions (id, token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.pool.Exec(ctx, query, s.ID, s.TokenHash, s.UserID, s.ExpiresAt, s.CreatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSessionByTokenHash returns the session and its owner in one round trip.
// Expired sessions are returned as-is; expiry is the caller's decision.
func (r *Repository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*model.Session, *model.User, error) {
	query := `
		SELECT s.id, s.token_hash, s.user_id, s.expires_at, s.created_at,
		       u.id, u.email, u.password_hash, u.name, u.role, u.created_at, u.updated_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1
	`

	var s model.Session
	var u model.User
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&s.ID, &s.TokenHash, &s.UserID, &s.ExpiresAt, &s.CreatedAt,
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, &u, nil
}

// DeleteSessionByTokenHash removes the session for a token digest.
// Returns ErrSessionNotFound when nothing was deleted.
func (r *Repository) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteExpiredSessions removes every session that expired before cutoff.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountSessionsForUser is used by tests and admin tooling.
func (r *Repository) CountSessionsForUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/modelstation/modelstation/internal/auth"
	"github.com/modelstation/modelstation/internal/cache"
	"github.com/modelstation/modelstation/internal/metrics"
	"github.com/modelstation/modelstation/internal/model"
	"github.com/modelstation/modelstation/internal/repository"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// CredentialStore persists users and sessions.
type CredentialStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateSession(ctx context.Context, s *model.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*model.Session, *model.User, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionCache is an optional read-through cache of resolved sessions.
type SessionCache interface {
	GetSession(ctx context.Context, tokenKey string) (*model.AuthContext, error)
	SetSession(ctx context.Context, tokenKey string, ac *model.AuthContext, ttl time.Duration) error
	DeleteSession(ctx context.Context, tokenKey string) error
}

// AuthConfig tunes AuthService.
type AuthConfig struct {
	SessionTTL time.Duration
	CacheTTL   time.Duration
	Hasher     *auth.Hasher
	Now        func() time.Time
}

// AuthService issues, validates and ends sessions.
type AuthService struct {
	store    CredentialStore
	cache    SessionCache
	hasher   *auth.Hasher
	ttl      time.Duration
	cacheTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  metrics.Recorder

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates an AuthService. sessionCache may be nil.
func NewAuthService(store CredentialStore, sessionCache SessionCache, cfg AuthConfig, logger *slog.Logger, recorder metrics.Recorder) *AuthService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.Hasher == nil {
		cfg.Hasher = auth.NewHasher(auth.DefaultParams)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AuthService{
		store:    store,
		cache:    sessionCache,
		hasher:   cfg.Hasher,
		ttl:      cfg.SessionTTL,
		cacheTTL: cfg.CacheTTL,
		now:      cfg.Now,
		logger:   logger,
		metrics:  recorder,
	}
}

// RegisterInput defines input for creating an account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// IssuedSession is returned on login and registration. Token is shown once.
type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
	User      model.UserResponse
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user and issues its first session.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*IssuedSession, error) {
	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)

	if name == "" {
		s.metrics.IncRegistration(metrics.OutcomeInvalid)
		return nil, invalidf("Name is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		s.metrics.IncRegistration(metrics.OutcomeInvalid)
		return nil, invalidf("A valid email is required")
	}
	if len(in.Password) < MinPasswordLength {
		s.metrics.IncRegistration(metrics.OutcomeInvalid)
		return nil, invalidf("Password must be at least %d characters", MinPasswordLength)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.metrics.IncRegistration(metrics.OutcomeError)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		Name:         name,
		Role:         model.RoleUser,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			s.metrics.IncRegistration(metrics.OutcomeConflict)
			return nil, ErrEmailTaken
		}
		s.metrics.IncRegistration(metrics.OutcomeError)
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.metrics.IncRegistration(metrics.OutcomeSuccess)
	return s.Issue(ctx, user)
}

// Login verifies credentials and issues a session. Unknown emails and
// wrong passwords fail identically and at the same hashing cost.
func (s *AuthService) Login(ctx context.Context, email, password string) (*IssuedSession, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		s.metrics.IncLogin(metrics.OutcomeInvalid)
		return nil, invalidf("Email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_, _ = s.hasher.Verify(password, s.dummy())
			s.metrics.IncLogin(metrics.OutcomeInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		s.metrics.IncLogin(metrics.OutcomeError)
		return nil, fmt.Errorf("get user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.metrics.IncLogin(metrics.OutcomeError)
		return nil, fmt.Errorf("verify password for user %s: %w", user.ID, err)
	}
	if !ok {
		s.metrics.IncLogin(metrics.OutcomeInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	s.metrics.IncLogin(metrics.OutcomeSuccess)
	return s.Issue(ctx, user)
}

// Issue creates and persists a new session for user.
func (s *AuthService) Issue(ctx context.Context, user *model.User) (*IssuedSession, error) {
	token, digest, err := auth.GenerateToken()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &model.Session{
		ID:        ulid.Make().String(),
		TokenHash: digest,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.metrics.IncSessionIssued()
	return &IssuedSession{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      user.ToResponse(),
	}, nil
}

// Validate resolves a bearer token to its live session owner.
// Expired sessions are deleted on sight, whether found in cache or store.
func (s *AuthService) Validate(ctx context.Context, token string) (*model.AuthContext, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if err := auth.ValidateTokenFormat(token); err != nil {
		return nil, ErrInvalidToken
	}

	now := s.now()
	key := auth.QuickHash(token)

	if ac := s.cached(ctx, key); ac != nil {
		if ac.IsExpired(now) {
			s.expire(ctx, token, key)
			return nil, ErrSessionExpired
		}
		return ac, nil
	}

	session, user, err := s.store.GetSessionByTokenHash(ctx, auth.TokenDigest(token))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.IsExpired(now) {
		s.expire(ctx, token, key)
		return nil, ErrSessionExpired
	}

	ac := model.NewAuthContext(session, user)
	if s.cache != nil {
		if err := s.cache.SetSession(ctx, key, ac, cache.SessionTTL(now, ac.ExpiresAt, s.cacheTTL)); err != nil {
			s.logger.Warn("session cache write failed", "error", err)
		}
	}
	return ac, nil
}

// Logout ends the session behind token. A second call fails with
// ErrInvalidToken and leaves other sessions untouched.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if _, err := s.Validate(ctx, token); err != nil {
		return err
	}

	if err := s.store.DeleteSessionByTokenHash(ctx, auth.TokenDigest(token)); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.dropCached(ctx, auth.QuickHash(token))
			return ErrInvalidToken
		}
		return fmt.Errorf("delete session: %w", err)
	}

	s.dropCached(ctx, auth.QuickHash(token))
	s.metrics.IncLogout()
	return nil
}

// PurgeExpired deletes every session past its expiry.
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	s.metrics.AddSessionsPurged(n)
	return n, nil
}

// RunPurger calls PurgeExpired every interval until ctx is done.
func (s *AuthService) RunPurger(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Error("session purge failed", "error", err)
				}
				continue
			}
			if n > 0 {
				s.logger.Info("purged expired sessions", "count", n)
			}
		}
	}
}

func (s *AuthService) cached(ctx context.Context, key string) *model.AuthContext {
	if s.cache == nil {
		return nil
	}
	ac, err := s.cache.GetSession(ctx, key)
	if err != nil {
		s.logger.Warn("session cache read failed", "error", err)
	}
	if ac == nil {
		s.metrics.IncSessionCacheMiss()
		return nil
	}
	s.metrics.IncSessionCacheHit()
	return ac
}

func (s *AuthService) expire(ctx context.Context, token, key string) {
	s.metrics.IncSessionExpired()
	s.dropCached(ctx, key)
	err := s.store.DeleteSessionByTokenHash(ctx, auth.TokenDigest(token))
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		s.logger.Error("failed to delete expired session", "error", err)
	}
}

func (s *AuthService) dropCached(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteSession(ctx, key); err != nil {
		s.logger.Warn("session cache delete failed", "error", err)
	}
}

// dummy returns a hash used to equalize login timing for unknown emails.
func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("modelstation-timing-equalizer")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

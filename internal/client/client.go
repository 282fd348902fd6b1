package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/modelstation/modelstation/internal/handler/dto"
	"github.com/modelstation/modelstation/internal/model"
)

const (
	// DefaultTimeout bounds a single API call.
	DefaultTimeout = 30 * time.Second

	apiPrefix       = "/api/v1"
	maxResponseSize = 10 << 20
)

// ErrNotAuthenticated is returned by calls that need a session when the
// client holds none.
var ErrNotAuthenticated = errors.New("not signed in")

// APIError is a non-2xx reply from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Client talks to the ModelStation API on behalf of one session.
type Client struct {
	baseURL string
	http    *http.Client
	store   Store
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	session *Session
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithStore sets where the session is persisted. The default is a
// MemoryStore.
func WithStore(s Store) Option {
	return func(c *Client) { c.store = s }
}

// WithLogger sets the logger used for non-fatal problems.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the API served at baseURL, for example
// http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base url must be an absolute http(s) url: %q", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		store:   NewMemoryStore(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Restore loads a previously saved session. An expired session is
// discarded and reported as ErrNoSession.
func (c *Client) Restore() (*Session, error) {
	s, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if s.Expired(c.now()) {
		if err := c.store.Clear(); err != nil {
			c.logger.Warn("failed to clear expired session", "error", err)
		}
		return nil, ErrNoSession
	}

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return s.Clone(), nil
}

// Session returns a copy of the current session, or nil when signed out.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Clone()
}

// Login signs in and loads the user's models into the session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var resp dto.SessionResponse
	req := dto.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &resp, ""); err != nil {
		return nil, err
	}
	return c.establish(ctx, resp)
}

// Register creates an account, which also signs it in.
func (c *Client) Register(ctx context.Context, name, email, password string) (*Session, error) {
	var resp dto.SessionResponse
	req := dto.RegisterRequest{Name: name, Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &resp, ""); err != nil {
		return nil, err
	}
	return c.establish(ctx, resp)
}

// establish installs a freshly issued session and fills in its models.
// A failed model fetch leaves the session signed in with no models.
func (c *Client) establish(ctx context.Context, resp dto.SessionResponse) (*Session, error) {
	s := &Session{
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
		User:      userFromResponse(resp.User, nil),
	}

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	if _, err := c.ListModels(ctx); err != nil {
		c.logger.Warn("failed to load models after sign in", "error", err)
		c.persist()
	}

	out := c.Session()
	if out == nil {
		return nil, fmt.Errorf("session rejected after sign in: %w", ErrNotAuthenticated)
	}
	return out, nil
}

// Logout ends the session on the server and always clears local state,
// even when the server call fails. The server error is still returned.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	token := ""
	if c.session != nil {
		token = c.session.Token
	}
	c.session = nil
	c.mu.Unlock()

	var callErr error
	if token != "" {
		callErr = c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil, token)
	}

	if err := c.store.Clear(); err != nil {
		return errors.Join(callErr, err)
	}
	return callErr
}

// Me refreshes the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	var resp dto.UserEnvelope
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &resp, token); err != nil {
		return nil, err
	}

	var out *User
	c.update(func(s *Session) {
		s.User = userFromResponse(resp.User, s.User.Models)
		u := s.User
		out = &u
	})
	if out == nil {
		return nil, ErrNotAuthenticated
	}
	return out, nil
}

// ListModels returns the caller's models, newest first. Without a status
// filter the result also replaces the models held in the session.
func (c *Client) ListModels(ctx context.Context, statuses ...string) ([]*model.Model, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	var q url.Values
	if len(statuses) > 0 {
		q = url.Values{"status": {strings.Join(statuses, ",")}}
	}

	var resp dto.ModelListResponse
	if err := c.do(ctx, http.MethodGet, "/models", q, nil, &resp, token); err != nil {
		return nil, err
	}
	if resp.Models == nil {
		resp.Models = []*model.Model{}
	}

	if len(statuses) == 0 {
		c.update(func(s *Session) {
			s.User.Models = resp.Models
		})
	}
	return resp.Models, nil
}

// CreateModel creates a model and puts it at the front of the session's
// model list.
func (c *Client) CreateModel(ctx context.Context, in model.CreateModelInput) (*model.Model, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	var resp dto.ModelEnvelope
	if err := c.do(ctx, http.MethodPost, "/models", nil, in, &resp, token); err != nil {
		return nil, err
	}
	if resp.Model == nil {
		return nil, errors.New("empty model in response")
	}

	c.update(func(s *Session) {
		s.User.Models = append([]*model.Model{resp.Model}, s.User.Models...)
	})
	return resp.Model, nil
}

func (c *Client) token() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil || c.session.Token == "" {
		return "", ErrNotAuthenticated
	}
	return c.session.Token, nil
}

// update applies fn to the held session and persists the result. It is a
// no-op when signed out.
func (c *Client) update(fn func(*Session)) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return
	}
	fn(c.session)
	c.mu.Unlock()
	c.persist()
}

func (c *Client) persist() {
	c.mu.RLock()
	s := c.session.Clone()
	c.mu.RUnlock()
	if s == nil {
		return
	}
	if err := c.store.Save(s); err != nil {
		c.logger.Warn("failed to save session", "error", err)
	}
}

// dropSession forgets a session the server no longer accepts.
func (c *Client) dropSession(token string) {
	c.mu.Lock()
	if c.session == nil || c.session.Token != token {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		c.logger.Warn("failed to clear rejected session", "error", err)
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, token string) error {
	endpoint := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb dto.ErrorResponse
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Code = eb.Code
			apiErr.Message = eb.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized && token != "" && path != "/auth/logout" {
			c.dropSession(token)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

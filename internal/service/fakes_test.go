package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/modelstation/modelstation/internal/model"
	"github.com/modelstation/modelstation/internal/repository"
)

// memStore is an in-memory CredentialStore and ModelStore.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*model.User    // by email
	sessions map[string]*model.Session // by token hash
	models   map[string]*model.ModelRecord
	failWith error
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*model.User),
		sessions: make(map[string]*model.Session),
		models:   make(map[string]*model.ModelRecord),
	}
}

func (m *memStore) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.users[u.Email]; ok {
		return repository.ErrEmailExists
	}
	cp := *u
	m.users[u.Email] = &cp
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	u, ok := m.users[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) userByID(id string) *model.User {
	for _, u := range m.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (m *memStore) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	cp := *s
	m.sessions[s.TokenHash] = &cp
	return nil
}

func (m *memStore) GetSessionByTokenHash(_ context.Context, hash string) (*model.Session, *model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, nil, m.failWith
	}
	s, ok := m.sessions[hash]
	if !ok {
		return nil, nil, repository.ErrSessionNotFound
	}
	u := m.userByID(s.UserID)
	if u == nil {
		return nil, nil, repository.ErrSessionNotFound
	}
	sc, uc := *s, *u
	return &sc, &uc, nil
}

func (m *memStore) DeleteSessionByTokenHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.sessions[hash]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(m.sessions, hash)
	return nil
}

func (m *memStore) DeleteExpiredSessions(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.sessions {
		if !s.ExpiresAt.After(cutoff) {
			delete(m.sessions, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memStore) CreateModel(_ context.Context, rec *model.ModelRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	cp := *rec
	m.models[rec.ID] = &cp
	return nil
}

func (m *memStore) GetModel(_ context.Context, id, userID string) (*model.ModelRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	rec, ok := m.models[id]
	if !ok || rec.UserID != userID {
		return nil, repository.ErrModelNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) ListModels(_ context.Context, f repository.ModelFilter) ([]*model.ModelRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	allowed := make(map[model.ModelStatus]bool)
	for _, s := range f.Statuses {
		allowed[s] = true
	}
	out := make([]*model.ModelRecord, 0)
	for _, rec := range m.models {
		if rec.UserID != f.UserID {
			continue
		}
		if len(allowed) > 0 && !allowed[rec.Status] {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memStore) UpdateModel(_ context.Context, id, userID string, p *model.ModelPatch) (*model.ModelRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	rec, ok := m.models[id]
	if !ok || rec.UserID != userID {
		return nil, repository.ErrModelNotFound
	}
	if p.Name != nil {
		rec.Name = *p.Name
	}
	if p.Domain != nil {
		rec.Domain = *p.Domain
	}
	if p.BaseModel != nil {
		rec.BaseModel = *p.BaseModel
	}
	if p.Dataset != nil {
		rec.Dataset = *p.Dataset
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.Metrics != nil {
		rec.Metrics = *p.Metrics
	}
	if p.Highlights != nil {
		rec.Highlights = *p.Highlights
	}
	if p.LastTrained != nil {
		rec.LastTrained = p.LastTrained
	}
	rec.UpdatedAt = p.UpdatedAt
	cp := *rec
	return &cp, nil
}

func (m *memStore) DeleteModel(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	rec, ok := m.models[id]
	if !ok || rec.UserID != userID {
		return repository.ErrModelNotFound
	}
	delete(m.models, id)
	return nil
}

func (m *memStore) modelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.models)
}

// memCache is an in-memory SessionCache that ignores TTLs.
type memCache struct {
	mu      sync.Mutex
	entries map[string]*model.AuthContext
	getErr  error
	sets    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*model.AuthContext)}
}

func (c *memCache) GetSession(_ context.Context, key string) (*model.AuthContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	ac, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	cp := *ac
	return &cp, nil
}

func (c *memCache) SetSession(_ context.Context, key string, ac *model.AuthContext, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl <= 0 {
		return nil
	}
	cp := *ac
	c.entries[key] = &cp
	c.sets++
	return nil
}

func (c *memCache) DeleteSession(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errStoreDown = errors.New("connection refused")

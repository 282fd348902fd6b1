//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/modelstation/modelstation/internal/model"
	"github.com/modelstation/modelstation/internal/testutil"
)

// ============================================================================
// Schema
// ============================================================================

func TestIntegrationMigration_Tables(t *testing.T) {
	ctx, repo := newTestEnv(t)

	columns := map[string][]string{
		"users":    {"id", "email", "password_hash", "name", "role", "created_at", "updated_at"},
		"sessions": {"id", "token_hash", "user_id", "expires_at", "created_at"},
		"models":   {"id", "user_id", "name", "domain", "base_model", "dataset", "status", "metrics", "highlights", "last_trained", "created_at", "updated_at"},
	}

	for table, cols := range columns {
		for _, col := range cols {
			ok, err := columnExists(ctx, repo.Pool(), table, col)
			if err != nil {
				t.Fatalf("columnExists(%s.%s): %v", table, col, err)
			}
			if !ok {
				t.Errorf("column %s.%s should exist after migrations", table, col)
			}
		}
	}
}

// ============================================================================
// Users
// ============================================================================

func TestIntegrationUser_CreateAndGet(t *testing.T) {
	ctx, repo := newTestEnv(t)

	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	byEmail, err := repo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != user.ID || byEmail.PasswordHash != user.PasswordHash {
		t.Errorf("GetUserByEmail returned %+v", byEmail)
	}

	byID, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if byID.Email != user.Email {
		t.Errorf("Email mismatch: got %q, want %q", byID.Email, user.Email)
	}
}

func TestIntegrationUser_DuplicateEmail(t *testing.T) {
	ctx, repo := newTestEnv(t)

	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	dup := testutil.NewTestUser(t)
	dup.Email = user.Email
	if err := repo.CreateUser(ctx, dup); !errors.Is(err, ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got %v", err)
	}
}

func TestIntegrationUser_NotFound(t *testing.T) {
	ctx, repo := newTestEnv(t)

	if _, err := repo.GetUserByEmail(ctx, "nobody@example.test"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

// ============================================================================
// Sessions
// ============================================================================

func TestIntegrationSession_Lifecycle(t *testing.T) {
	ctx, repo := newTestEnv(t)
	user := createUser(t, ctx, repo)

	now := time.Now().UTC().Truncate(time.Microsecond)
	session := &model.Session{
		ID:        testutil.UniqueID("sess"),
		TokenHash: testutil.UniqueID("digest"),
		UserID:    user.ID,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	if err := repo.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, owner, err := repo.GetSessionByTokenHash(ctx, session.TokenHash)
	if err != nil {
		t.Fatalf("GetSessionByTokenHash failed: %v", err)
	}
	if got.ID != session.ID || owner.ID != user.ID {
		t.Errorf("unexpected session %+v owner %+v", got, owner)
	}
	if !got.ExpiresAt.Equal(session.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, session.ExpiresAt)
	}

	if err := repo.DeleteSessionByTokenHash(ctx, session.TokenHash); err != nil {
		t.Fatalf("DeleteSessionByTokenHash failed: %v", err)
	}
	if err := repo.DeleteSessionByTokenHash(ctx, session.TokenHash); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second delete: expected ErrSessionNotFound, got %v", err)
	}
	if _, _, err := repo.GetSessionByTokenHash(ctx, session.TokenHash); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestIntegrationSession_DeleteExpired(t *testing.T) {
	ctx, repo := newTestEnv(t)
	user := createUser(t, ctx, repo)

	now := time.Now().UTC()
	for i, exp := range []time.Time{now.Add(-time.Hour), now.Add(-time.Minute), now.Add(time.Hour)} {
		s := &model.Session{
			ID:        testutil.UniqueID("sess"),
			TokenHash: testutil.UniqueID("digest"),
			UserID:    user.ID,
			ExpiresAt: exp,
			CreatedAt: now,
		}
		if err := repo.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession %d failed: %v", i, err)
		}
	}

	n, err := repo.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d sessions, want 2", n)
	}

	remaining, err := repo.CountSessionsForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("CountSessionsForUser failed: %v", err)
	}
	if remaining != 1 {
		t.Errorf("remaining sessions = %d, want 1", remaining)
	}
}

// ============================================================================
// Models
// ============================================================================

func TestIntegrationModel_OwnerScoping(t *testing.T) {
	ctx, repo := newTestEnv(t)
	owner := createUser(t, ctx, repo)
	other := createUser(t, ctx, repo)

	rec := testutil.NewTestModel(t, owner.ID, "Atlas")
	if err := repo.CreateModel(ctx, rec); err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}

	if _, err := repo.GetModel(ctx, rec.ID, owner.ID); err != nil {
		t.Fatalf("owner GetModel failed: %v", err)
	}
	if _, err := repo.GetModel(ctx, rec.ID, other.ID); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("other GetModel: expected ErrModelNotFound, got %v", err)
	}

	name := "Hijacked"
	patch := &model.ModelPatch{Name: &name, UpdatedAt: time.Now().UTC()}
	if _, err := repo.UpdateModel(ctx, rec.ID, other.ID, patch); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("other UpdateModel: expected ErrModelNotFound, got %v", err)
	}
	if err := repo.DeleteModel(ctx, rec.ID, other.ID); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("other DeleteModel: expected ErrModelNotFound, got %v", err)
	}

	still, err := repo.GetModel(ctx, rec.ID, owner.ID)
	if err != nil {
		t.Fatalf("GetModel after foreign writes failed: %v", err)
	}
	if still.Name != "Atlas" {
		t.Errorf("Name = %q, foreign update must not apply", still.Name)
	}
}

func TestIntegrationModel_PartialUpdate(t *testing.T) {
	ctx, repo := newTestEnv(t)
	owner := createUser(t, ctx, repo)

	rec := testutil.NewTestModel(t, owner.ID, "Atlas")
	if err := repo.CreateModel(ctx, rec); err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}

	metrics := `["a","b"]`
	status := model.ModelStatusLive
	updatedAt := rec.UpdatedAt.Add(time.Minute)
	got, err := repo.UpdateModel(ctx, rec.ID, owner.ID, &model.ModelPatch{
		Metrics:   &metrics,
		Status:    &status,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		t.Fatalf("UpdateModel failed: %v", err)
	}

	if got.Metrics != metrics {
		t.Errorf("Metrics = %q, want %q", got.Metrics, metrics)
	}
	if got.Status != model.ModelStatusLive {
		t.Errorf("Status = %q, want live", got.Status)
	}
	if got.Name != rec.Name || got.Highlights != rec.Highlights || got.Dataset != rec.Dataset {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if !got.UpdatedAt.Equal(updatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, updatedAt)
	}
}

func TestIntegrationModel_ListNewestFirstWithFilter(t *testing.T) {
	ctx, repo := newTestEnv(t)
	owner := createUser(t, ctx, repo)
	other := createUser(t, ctx, repo)

	base := time.Now().UTC().Truncate(time.Microsecond)
	names := []string{"first", "second", "third"}
	for i, name := range names {
		rec := testutil.NewTestModel(t, owner.ID, name)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if i == 1 {
			rec.Status = model.ModelStatusLive
		}
		if err := repo.CreateModel(ctx, rec); err != nil {
			t.Fatalf("CreateModel failed: %v", err)
		}
	}
	if err := repo.CreateModel(ctx, testutil.NewTestModel(t, other.ID, "foreign")); err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}

	all, err := repo.ListModels(ctx, ModelFilter{UserID: owner.ID})
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i, want := range []string{"third", "second", "first"} {
		if all[i].Name != want {
			t.Errorf("all[%d] = %q, want %q", i, all[i].Name, want)
		}
	}

	live, err := repo.ListModels(ctx, ModelFilter{UserID: owner.ID, Statuses: []model.ModelStatus{model.ModelStatusLive}})
	if err != nil {
		t.Fatalf("ListModels with filter failed: %v", err)
	}
	if len(live) != 1 || live[0].Name != "second" {
		t.Errorf("filtered list = %+v", live)
	}
}

func TestIntegrationModel_DeleteCascadesWithUser(t *testing.T) {
	ctx, repo := newTestEnv(t)
	owner := createUser(t, ctx, repo)

	rec := testutil.NewTestModel(t, owner.ID, "Sentinel")
	if err := repo.CreateModel(ctx, rec); err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}
	if err := repo.DeleteModel(ctx, rec.ID, owner.ID); err != nil {
		t.Fatalf("DeleteModel failed: %v", err)
	}
	if err := repo.DeleteModel(ctx, rec.ID, owner.ID); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("second delete: expected ErrModelNotFound, got %v", err)
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}

func createUser(t *testing.T, ctx context.Context, repo *Repository) *model.User {
	t.Helper()
	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		)
	`, tableName, columnName).Scan(&exists)
	return exists, err
}

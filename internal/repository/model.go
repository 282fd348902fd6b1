package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"github.com/modelstation/modelstation/internal/model"
)

// ErrModelNotFound is returned when no model matches (id, user_id).
// Absent and foreign-owned rows are indistinguishable.
var ErrModelNotFound = errors.New("model not found")

// ModelFilter narrows ListModels.
type ModelFilter struct {
	UserID   string
	Statuses []model.ModelStatus
}

const modelColumns = `id, user_id, name, domain, base_model, dataset, status, metrics, highlights, last_trained, created_at, updated_at`

// CreateModel inserts a model record.
func (r *Repository) CreateModel(ctx context.Context, m *model.ModelRecord) error {
	query := `
		INSERT INTO models (` + modelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		m.ID,
		m.UserID,
		m.Name,
		m.Domain,
		m.BaseModel,
		m.Dataset,
		string(m.Status),
		m.Metrics,
		m.Highlights,
		m.LastTrained,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	return nil
}

// GetModel retrieves a model owned by userID.
func (r *Repository) GetModel(ctx context.Context, id, userID string) (*model.ModelRecord, error) {
	query := `SELECT ` + modelColumns + ` FROM models WHERE id = $1 AND user_id = $2`

	rec, err := scanModel(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return rec, nil
}

// ListModels returns the owner's models, newest first.
func (r *Repository) ListModels(ctx context.Context, filter ModelFilter) ([]*model.ModelRecord, error) {
	query := `SELECT ` + modelColumns + ` FROM models WHERE user_id = $1`
	args := []any{filter.UserID}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(statuses))
	}

	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	models := make([]*model.ModelRecord, 0)
	for rows.Next() {
		rec, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate models: %w", err)
	}

	return models, nil
}

// UpdateModel applies patch in a single statement filtered by (id, user_id).
// Nil patch fields keep their stored value.
func (r *Repository) UpdateModel(ctx context.Context, id, userID string, patch *model.ModelPatch) (*model.ModelRecord, error) {
	query := `
		UPDATE models SET
			name         = COALESCE($3, name),
			domain       = COALESCE($4, domain),
			base_model   = COALESCE($5, base_model),
			dataset      = COALESCE($6, dataset),
			status       = COALESCE($7, status),
			metrics      = COALESCE($8, metrics),
			highlights   = COALESCE($9, highlights),
			last_trained = COALESCE($10, last_trained),
			updated_at   = $11
		WHERE id = $1 AND user_id = $2
		RETURNING ` + modelColumns

	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}

	rec, err := scanModel(r.pool.QueryRow(ctx, query,
		id,
		userID,
		patch.Name,
		patch.Domain,
		patch.BaseModel,
		patch.Dataset,
		status,
		patch.Metrics,
		patch.Highlights,
		patch.LastTrained,
		patch.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to update model: %w", err)
	}
	return rec, nil
}

// DeleteModel removes a model owned by userID.
func (r *Repository) DeleteModel(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM models WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrModelNotFound
	}
	return nil
}

func scanModel(row pgx.Row) (*model.ModelRecord, error) {
	var rec model.ModelRecord
	var status string
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Name,
		&rec.Domain,
		&rec.BaseModel,
		&rec.Dataset,
		&status,
		&rec.Metrics,
		&rec.Highlights,
		&rec.LastTrained,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = model.ModelStatus(status)
	return &rec, nil
}

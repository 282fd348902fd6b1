package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/modelstation/modelstation/internal/metrics"
	"github.com/modelstation/modelstation/internal/model"
	"github.com/modelstation/modelstation/internal/repository"
)

// ModelStore persists model records. Every call that targets one model
// filters by (id, userID) in a single statement.
type ModelStore interface {
	CreateModel(ctx context.Context, m *model.ModelRecord) error
	GetModel(ctx context.Context, id, userID string) (*model.ModelRecord, error)
	ListModels(ctx context.Context, filter repository.ModelFilter) ([]*model.ModelRecord, error)
	UpdateModel(ctx context.Context, id, userID string, patch *model.ModelPatch) (*model.ModelRecord, error)
	DeleteModel(ctx context.Context, id, userID string) error
}

// ModelService scopes model CRUD to the requesting user.
type ModelService struct {
	store   ModelStore
	now     func() time.Time
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewModelService creates a new ModelService.
func NewModelService(store ModelStore, logger *slog.Logger, recorder metrics.Recorder) *ModelService {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ModelService{
		store:   store,
		now:     time.Now,
		logger:  logger,
		metrics: recorder,
	}
}

// Create validates input and stores a new model owned by userID.
func (s *ModelService) Create(ctx context.Context, userID string, in model.CreateModelInput) (*model.Model, error) {
	name := strings.TrimSpace(in.Name)
	domain := strings.TrimSpace(in.Domain)
	baseModel := strings.TrimSpace(in.BaseModel)
	dataset := strings.TrimSpace(in.Dataset)

	var missing []string
	for _, f := range []struct{ field, value string }{
		{"name", name},
		{"domain", domain},
		{"baseModel", baseModel},
		{"dataset", dataset},
	} {
		if f.value == "" {
			missing = append(missing, f.field)
		}
	}
	if len(missing) > 0 {
		return nil, invalidf("Missing required fields: %s", strings.Join(missing, ", "))
	}

	status := model.ModelStatusTraining
	if in.Status != "" {
		st, ok := model.ParseModelStatus(in.Status)
		if !ok {
			return nil, invalidf("Invalid status %q", in.Status)
		}
		if !st.IsInitial() {
			return nil, invalidf("New models must start as %s or %s", model.ModelStatusTraining, model.ModelStatusQueued)
		}
		status = st
	}

	metricsText, err := encodeField("metrics", in.Metrics)
	if err != nil {
		return nil, err
	}
	highlightsText, err := encodeField("highlights", in.Highlights)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &model.ModelRecord{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Name:        name,
		Domain:      domain,
		BaseModel:   baseModel,
		Dataset:     dataset,
		Status:      status,
		Metrics:     metricsText,
		Highlights:  highlightsText,
		LastTrained: trimmedOrNil(in.LastTrained),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateModel(ctx, rec); err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}

	s.metrics.IncModelCreated()
	return s.decode(rec)
}

// Get returns a model owned by userID.
func (s *ModelService) Get(ctx context.Context, userID, id string) (*model.Model, error) {
	rec, err := s.store.GetModel(ctx, id, userID)
	if err != nil {
		return nil, mapModelErr(err, "get model")
	}
	return s.decode(rec)
}

// List returns the caller's models, newest first, optionally by status.
func (s *ModelService) List(ctx context.Context, userID string, statuses []string) ([]*model.Model, error) {
	filter := repository.ModelFilter{UserID: userID}
	for _, raw := range statuses {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		st, ok := model.ParseModelStatus(raw)
		if !ok {
			return nil, invalidf("Invalid status %q", raw)
		}
		filter.Statuses = append(filter.Statuses, st)
	}

	recs, err := s.store.ListModels(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	models := make([]*model.Model, 0, len(recs))
	for _, rec := range recs {
		m, err := s.decode(rec)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// Update applies a partial update. Concurrent updates are last-write-wins.
func (s *ModelService) Update(ctx context.Context, userID, id string, in model.UpdateModelInput) (*model.Model, error) {
	patch := &model.ModelPatch{UpdatedAt: s.now().UTC()}

	for _, f := range []struct {
		field string
		in    *string
		out   **string
	}{
		{"name", in.Name, &patch.Name},
		{"domain", in.Domain, &patch.Domain},
		{"baseModel", in.BaseModel, &patch.BaseModel},
		{"dataset", in.Dataset, &patch.Dataset},
	} {
		if f.in == nil {
			continue
		}
		v := strings.TrimSpace(*f.in)
		if v == "" {
			return nil, invalidf("%s cannot be empty", f.field)
		}
		*f.out = &v
	}

	if in.Status != nil {
		st, ok := model.ParseModelStatus(*in.Status)
		if !ok {
			return nil, invalidf("Invalid status %q", *in.Status)
		}
		patch.Status = &st
	}

	if in.Metrics != nil {
		text, err := encodeField("metrics", *in.Metrics)
		if err != nil {
			return nil, err
		}
		patch.Metrics = &text
	}
	if in.Highlights != nil {
		text, err := encodeField("highlights", *in.Highlights)
		if err != nil {
			return nil, err
		}
		patch.Highlights = &text
	}
	patch.LastTrained = trimmedOrNil(in.LastTrained)

	rec, err := s.store.UpdateModel(ctx, id, userID, patch)
	if err != nil {
		return nil, mapModelErr(err, "update model")
	}

	s.metrics.IncModelUpdated()
	return s.decode(rec)
}

// Delete removes a model owned by userID.
func (s *ModelService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteModel(ctx, id, userID); err != nil {
		return mapModelErr(err, "delete model")
	}
	s.metrics.IncModelDeleted()
	return nil
}

func (s *ModelService) decode(rec *model.ModelRecord) (*model.Model, error) {
	m, err := rec.ToModel()
	if err != nil {
		s.logger.Error("stored model has corrupt sequence", "model_id", rec.ID, "error", err)
		return nil, fmt.Errorf("decode model %s: %w", rec.ID, err)
	}
	return m, nil
}

func encodeField(field string, items []string) (string, error) {
	text, err := model.EncodeSequence(items)
	if err != nil {
		if errors.Is(err, model.ErrInvalidSequence) {
			return "", invalidf("%s: %s", field, strings.TrimPrefix(err.Error(), model.ErrInvalidSequence.Error()+": "))
		}
		return "", err
	}
	return text, nil
}

func mapModelErr(err error, op string) error {
	if errors.Is(err, repository.ErrModelNotFound) {
		return ErrModelNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

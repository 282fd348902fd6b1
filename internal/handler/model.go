package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/modelstation/modelstation/internal/auth"
	"github.com/modelstation/modelstation/internal/handler/dto"
	"github.com/modelstation/modelstation/internal/model"
)

// ModelManager is the owner-scoped model store.
type ModelManager interface {
	Create(ctx context.Context, userID string, in model.CreateModelInput) (*model.Model, error)
	Get(ctx context.Context, userID, id string) (*model.Model, error)
	List(ctx context.Context, userID string, statuses []string) ([]*model.Model, error)
	Update(ctx context.Context, userID, id string, in model.UpdateModelInput) (*model.Model, error)
	Delete(ctx context.Context, userID, id string) error
}

// ModelHandler handles /api/v1/models. Every call is scoped to the session
// owner; another user's model is indistinguishable from a missing one.
type ModelHandler struct {
	svc    ModelManager
	logger *slog.Logger
}

// NewModelHandler creates a new ModelHandler.
func NewModelHandler(svc ModelManager, logger *slog.Logger) *ModelHandler {
	return &ModelHandler{svc: svc, logger: logger}
}

// List handles GET /api/v1/models. An optional ?status=a,b narrows the result.
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []string
	for _, raw := range r.URL.Query()["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, s)
			}
		}
	}

	models, err := h.svc.List(r.Context(), auth.UserIDFromContext(r.Context()), statuses)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if models == nil {
		models = []*model.Model{}
	}

	writeJSON(w, http.StatusOK, dto.ModelListResponse{Models: models})
}

// Create handles POST /api/v1/models.
func (h *ModelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateModelInput
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	m, err := h.svc.Create(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("model_created", "model_id", m.ID, "user_id", userID)
	writeJSON(w, http.StatusCreated, dto.ModelEnvelope{Model: m})
}

// Get handles GET /api/v1/models/{id}.
func (h *ModelHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Get(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ModelEnvelope{Model: m})
}

// Update handles PATCH /api/v1/models/{id}.
func (h *ModelHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateModelInput
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	userID := auth.UserIDFromContext(r.Context())
	m, err := h.svc.Update(r.Context(), userID, id, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("model_updated", "model_id", id, "user_id", userID)
	writeJSON(w, http.StatusOK, dto.ModelEnvelope{Model: m})
}

// Delete handles DELETE /api/v1/models/{id}.
func (h *ModelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := auth.UserIDFromContext(r.Context())
	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("model_deleted", "model_id", id, "user_id", userID)
	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Model deleted successfully"})
}

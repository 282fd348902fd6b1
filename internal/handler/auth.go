package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/modelstation/modelstation/internal/auth"
	"github.com/modelstation/modelstation/internal/handler/dto"
	"github.com/modelstation/modelstation/internal/service"
)

// Authenticator issues and ends sessions.
type Authenticator interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.IssuedSession, error)
	Login(ctx context.Context, email, password string) (*service.IssuedSession, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler handles the session endpoints.
type AuthHandler struct {
	svc    Authenticator
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc Authenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	issued, err := h.svc.Register(r.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("user_registered", "user_id", issued.User.ID)
	writeJSON(w, http.StatusCreated, sessionResponse(issued))
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	issued, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse(issued))
}

// Logout handles POST /api/v1/auth/logout. The token is read from the
// Authorization header, so the route is not behind the session middleware.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractBearer(r.Header.Get("Authorization"))
	if err := h.svc.Logout(r.Context(), token); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Logged out successfully"})
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac := auth.AuthFromContext(r.Context())
	if ac == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "No token provided")
		return
	}

	writeJSON(w, http.StatusOK, dto.UserEnvelope{User: ac.User()})
}

func sessionResponse(issued *service.IssuedSession) dto.SessionResponse {
	return dto.SessionResponse{
		User:      issued.User,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	}
}

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/modelstation/modelstation/internal/auth"
	"github.com/modelstation/modelstation/internal/model"
	"github.com/modelstation/modelstation/internal/service"
)

// SessionValidator resolves a bearer token to its session owner.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*model.AuthContext, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger    *slog.Logger
	Validator SessionValidator
}

// Auth requires a live session. On success the AuthContext is attached to
// the request context; handlers read it with auth.AuthFromContext.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractBearer(r.Header.Get("Authorization"))

			ac, err := cfg.Validator.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, service.ErrUnauthenticated) {
					cfg.Logger.Warn("authentication failed",
						slog.String("reason", err.Error()),
						slog.String("ip", r.RemoteAddr),
						slog.String("endpoint", r.Method+" "+r.URL.Path),
						slog.String("request_id", GetRequestID(r.Context())),
					)
					writeError(w, http.StatusUnauthorized, CodeUnauthorized, UnauthenticatedMessage(err))
					return
				}

				cfg.Logger.Error("session validation failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("enduser.id", ac.UserID))

			ctx := auth.ContextWithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UnauthenticatedMessage maps an authentication failure to its client message.
func UnauthenticatedMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrMissingToken):
		return "No token provided"
	case errors.Is(err, service.ErrSessionExpired):
		return "Session expired"
	default:
		return "Invalid token"
	}
}

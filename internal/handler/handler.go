// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/modelstation/modelstation/internal/handler/dto"
	"github.com/modelstation/modelstation/internal/middleware"
	"github.com/modelstation/modelstation/internal/service"
)

// Error codes.
const (
	CodeUnauthorized    = middleware.CodeUnauthorized
	CodeNotFound        = "NOT_FOUND"
	CodeValidation      = "VALIDATION_ERROR"
	CodeConflict        = "CONFLICT"
	CodeInternal        = middleware.CodeInternal
	CodeUpstream        = "UPSTREAM_ERROR"
	CodePayloadTooLarge = middleware.CodePayloadTooLarge
	CodeMethod          = "METHOD_NOT_ALLOWED"
)

const internalErrorMessage = "Internal server error"

var errBodyTooLarge = errors.New("request body too large")

// NotFound handles 404 responses.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, CodeNotFound, "Resource not found")
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, CodeMethod, "Method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}

// decodeJSON reads a single JSON document into dst.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errBodyTooLarge
	}
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body")
}

// handleServiceError maps service errors to HTTP responses. Anything not in
// the taxonomy is logged and answered with a generic 500.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, middleware.UnauthenticatedMessage(err))
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid credentials")
	case errors.Is(err, service.ErrModelNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "Model not found")
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, CodeConflict, "User with this email already exists")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, CodeValidation, verr.Message)
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid input")
	default:
		logger.Error("internal_error",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, CodeInternal, internalErrorMessage)
	}
}

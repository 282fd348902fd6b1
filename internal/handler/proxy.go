package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/modelstation/modelstation/internal/middleware"
	"github.com/modelstation/modelstation/internal/upstream"
)

// Upstream is the pod lifecycle and pipeline backend.
type Upstream interface {
	CreatePod(ctx context.Context, in upstream.Inbound) (*upstream.Result, error)
	ListPods(ctx context.Context, in upstream.Inbound) (*upstream.Result, error)
	GetPod(ctx context.Context, podID string, in upstream.Inbound) (*upstream.Result, error)
	StopPod(ctx context.Context, podID string, in upstream.Inbound) (*upstream.Result, error)
	ResumePod(ctx context.Context, podID string, in upstream.Inbound) (*upstream.Result, error)
	TerminatePod(ctx context.Context, podID string, in upstream.Inbound) (*upstream.Result, error)
	ProcessPipeline(ctx context.Context, in upstream.Inbound) (*upstream.Result, error)
}

// ProxyHandler relays authenticated pod and pipeline calls upstream and
// answers with the upstream status and JSON body unchanged.
type ProxyHandler struct {
	upstream Upstream
	logger   *slog.Logger
}

// NewProxyHandler creates a new ProxyHandler.
func NewProxyHandler(up Upstream, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{upstream: up, logger: logger}
}

type podCall func(ctx context.Context, podID string, in upstream.Inbound) (*upstream.Result, error)

type plainCall func(ctx context.Context, in upstream.Inbound) (*upstream.Result, error)

// CreatePod handles POST /api/v1/pods.
func (h *ProxyHandler) CreatePod(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, h.upstream.CreatePod)
}

// ListPods handles GET /api/v1/pods.
func (h *ProxyHandler) ListPods(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, h.upstream.ListPods)
}

// GetPod handles GET /api/v1/pods/{podID}.
func (h *ProxyHandler) GetPod(w http.ResponseWriter, r *http.Request) {
	h.forwardPod(w, r, h.upstream.GetPod)
}

// StopPod handles POST /api/v1/pods/{podID}/stop.
func (h *ProxyHandler) StopPod(w http.ResponseWriter, r *http.Request) {
	h.forwardPod(w, r, h.upstream.StopPod)
}

// ResumePod handles POST /api/v1/pods/{podID}/resume.
func (h *ProxyHandler) ResumePod(w http.ResponseWriter, r *http.Request) {
	h.forwardPod(w, r, h.upstream.ResumePod)
}

// TerminatePod handles DELETE /api/v1/pods/{podID}.
func (h *ProxyHandler) TerminatePod(w http.ResponseWriter, r *http.Request) {
	h.forwardPod(w, r, h.upstream.TerminatePod)
}

// ProcessPipeline handles POST /api/v1/pipeline/process.
func (h *ProxyHandler) ProcessPipeline(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, h.upstream.ProcessPipeline)
}

func (h *ProxyHandler) forwardPod(w http.ResponseWriter, r *http.Request, call podCall) {
	podID := chi.URLParam(r, "podID")
	h.forward(w, r, func(ctx context.Context, in upstream.Inbound) (*upstream.Result, error) {
		return call(ctx, podID, in)
	})
}

func (h *ProxyHandler) forward(w http.ResponseWriter, r *http.Request, call plainCall) {
	in, err := inbound(r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := call(r.Context(), in)
	if err == nil {
		relay(w, res.StatusCode, res.Body)
		return
	}

	var upErr *upstream.UpstreamError
	if errors.As(err, &upErr) {
		relay(w, upErr.StatusCode, upErr.Body)
		return
	}

	h.logger.Error("upstream_failed",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetRequestID(r.Context()),
	)
	writeError(w, http.StatusInternalServerError, CodeUpstream, internalErrorMessage)
}

func inbound(r *http.Request) (upstream.Inbound, error) {
	in := upstream.Inbound{
		Header: r.Header.Clone(),
		Query:  r.URL.Query(),
	}
	if r.Body == nil {
		return in, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return in, errBodyTooLarge
		}
		return in, err
	}
	in.Body = body
	return in, nil
}

func relay(w http.ResponseWriter, status int, body []byte) {
	if len(body) == 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

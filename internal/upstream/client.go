// Package upstream forwards pod lifecycle and pipeline calls to the
// backend API and returns its answer as a tagged result.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/modelstation/modelstation/internal/metrics"
)

const (
	// DefaultTimeout bounds one upstream call end to end.
	DefaultTimeout = 30 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 10 * time.Second
	// MaxResponseBytes caps how much of an upstream body is relayed.
	MaxResponseBytes = 10 << 20

	tracerName = "github.com/modelstation/modelstation/internal/upstream"
)

var (
	// ErrInvalidBody means the upstream answered with something that is not JSON.
	ErrInvalidBody = errors.New("upstream returned a non-JSON body")
	// ErrBodyTooLarge means the upstream body exceeded MaxResponseBytes.
	ErrBodyTooLarge = errors.New("upstream body too large")
)

// Request is one call to forward.
type Request struct {
	Operation string // stable name for spans and metrics
	Method    string
	Path      string // escaped, relative to the base URL
	Query     url.Values
	Header    http.Header
	Body      []byte
}

// Result is a 2xx upstream answer.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       json.RawMessage
}

// UpstreamError is a non-2xx upstream answer. It carries the body so the
// gateway can relay it unchanged.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Header     http.Header
	Body       json.RawMessage
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: status %d", e.Operation, e.StatusCode)
}

// Client performs exactly one upstream call per Do, without retries.
type Client struct {
	base    string
	http    *http.Client
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics metrics.Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// NewClient creates a Client for baseURL, which must be absolute http(s).
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream base URL %q", baseURL)
	}

	c := &Client{
		base:    strings.TrimSuffix(u.String(), "/"),
		http:    NewHTTPClient(timeout),
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
		metrics: metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewHTTPClient returns a client with bounded timeouts that never follows
// redirects.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: TLSHandshakeTimeout,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Do forwards req once. It returns a *Result for 2xx, an *UpstreamError
// for any other status, and a plain error when no usable response arrived.
func (c *Client) Do(ctx context.Context, req Request) (*Result, error) {
	target := c.base + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	ctx, span := c.tracer.Start(ctx, "upstream."+req.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
			attribute.String("upstream.operation", req.Operation),
		),
	)
	defer span.End()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	httpReq.Header = ForwardHeaders(req.Header)
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.ObserveUpstreamCall(req.Operation, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		c.logger.Warn("upstream call failed",
			"operation", req.Operation,
			"method", req.Method,
			"path", req.Path,
			"error", err,
		)
		return nil, fmt.Errorf("upstream %s: %w", req.Operation, err)
	}
	defer resp.Body.Close()

	raw, err := readBody(resp.Body)
	duration := time.Since(start)
	c.metrics.ObserveUpstreamCall(req.Operation, resp.StatusCode, duration)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return nil, fmt.Errorf("upstream %s: %w", req.Operation, err)
	}
	if len(raw) > 0 && !json.Valid(raw) {
		span.SetStatus(codes.Error, "invalid body")
		return nil, fmt.Errorf("upstream %s status %d: %w", req.Operation, resp.StatusCode, ErrInvalidBody)
	}

	c.logger.Debug("upstream call",
		"operation", req.Operation,
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
		return nil, &UpstreamError{
			Operation:  req.Operation,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       raw,
		}
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
	}, nil
}

func readBody(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if len(raw) > MaxResponseBytes {
		return nil, ErrBodyTooLarge
	}
	return raw, nil
}

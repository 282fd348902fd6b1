package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// Operation names used for spans and metrics.
const (
	OpCreatePod       = "create_pod"
	OpListPods        = "list_pods"
	OpGetPod          = "get_pod"
	OpStopPod         = "stop_pod"
	OpResumePod       = "resume_pod"
	OpTerminatePod    = "terminate_pod"
	OpProcessPipeline = "process_pipeline"
)

// ErrMissingPodID is returned when a pod operation has no target.
var ErrMissingPodID = errors.New("pod id is required")

// Inbound is the part of a gateway request that is forwarded.
type Inbound struct {
	Header http.Header
	Query  url.Values
	Body   []byte
}

const podsPath = "/cloud/pods"

// CreatePod provisions a GPU pod.
func (c *Client) CreatePod(ctx context.Context, in Inbound) (*Result, error) {
	return c.Do(ctx, request(OpCreatePod, http.MethodPost, podsPath, in))
}

// ListPods lists pods visible to the caller.
func (c *Client) ListPods(ctx context.Context, in Inbound) (*Result, error) {
	return c.Do(ctx, request(OpListPods, http.MethodGet, podsPath, in))
}

// GetPod fetches one pod.
func (c *Client) GetPod(ctx context.Context, podID string, in Inbound) (*Result, error) {
	path, err := podPath(podID, "")
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, request(OpGetPod, http.MethodGet, path, in))
}

// StopPod stops a running pod.
func (c *Client) StopPod(ctx context.Context, podID string, in Inbound) (*Result, error) {
	path, err := podPath(podID, "/stop")
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, request(OpStopPod, http.MethodPost, path, in))
}

// ResumePod starts a stopped pod.
func (c *Client) ResumePod(ctx context.Context, podID string, in Inbound) (*Result, error) {
	path, err := podPath(podID, "/resume")
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, request(OpResumePod, http.MethodPost, path, in))
}

// TerminatePod deletes a pod permanently.
func (c *Client) TerminatePod(ctx context.Context, podID string, in Inbound) (*Result, error) {
	path, err := podPath(podID, "")
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, request(OpTerminatePod, http.MethodDelete, path, in))
}

// ProcessPipeline submits a dataset generation job.
func (c *Client) ProcessPipeline(ctx context.Context, in Inbound) (*Result, error) {
	return c.Do(ctx, request(OpProcessPipeline, http.MethodPost, "/pipeline/process", in))
}

func request(op, method, path string, in Inbound) Request {
	return Request{
		Operation: op,
		Method:    method,
		Path:      path,
		Query:     in.Query,
		Header:    in.Header,
		Body:      in.Body,
	}
}

func podPath(podID, suffix string) (string, error) {
	if podID == "" {
		return "", ErrMissingPodID
	}
	return podsPath + "/" + url.PathEscape(podID) + suffix, nil
}

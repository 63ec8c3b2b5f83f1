package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/video-refinery/internal/pipeline/steps"
	"github.com/jonathan/video-refinery/internal/server"
	"github.com/jonathan/video-refinery/internal/types"
)

// apiClient talks to a running refinery server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is a non-2xx response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *apiClient) Submit(ctx context.Context, req types.SubmitJobRequest) (*types.Job, error) {
	var resp server.SubmitJobResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", req, &resp); err != nil {
		return nil, err
	}
	return resp.Job, nil
}

func (c *apiClient) Job(ctx context.Context, id string) (*types.Job, error) {
	var job types.Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) Events(ctx context.Context, id string) ([]types.Event, error) {
	var resp server.EventsResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id)+"/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *apiClient) Cancel(ctx context.Context, id string) (*types.Job, error) {
	var job types.Job
	if err := c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) Pipeline(ctx context.Context) (*server.PipelineResponse, error) {
	var resp server.PipelineResponse
	if err := c.do(ctx, http.MethodGet, "/pipeline", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// jobGetter is satisfied by the API client and by a local store.
type jobGetter interface {
	Get(ctx context.Context, id string) (*types.Job, error)
}

type clientGetter struct{ c *apiClient }

func (g clientGetter) Get(ctx context.Context, id string) (*types.Job, error) {
	return g.c.Job(ctx, id)
}

// waitTerminal polls until the job completes or fails.
func waitTerminal(ctx context.Context, jobs jobGetter, id string, interval time.Duration) (*types.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := jobs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, fmt.Errorf("gave up waiting for job %s in %s: %w", id, job.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

// agentChain returns the job's expected chain, or nil when the task type is
// unknown to this binary.
func agentChain(job *types.Job) []string {
	chain, _ := steps.GetAgentChain(job.TaskType)
	return chain
}

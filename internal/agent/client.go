// Package agent talks to the remote execution service: job submission,
// status polling, cancellation, and the startup availability probe.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// JobState is the remote service's view of a job.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
	StateTimeout   JobState = "timeout"
)

// Terminal reports whether the remote job can no longer change state.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled, StateTimeout:
		return true
	}
	return false
}

// ResourceLimits bounds the remote execution.
type ResourceLimits struct {
	MaxDurationSeconds int `json:"max_duration_seconds,omitempty"`
	MaxMemoryMB        int `json:"max_memory_mb,omitempty"`
}

// JobRequest is the work submission contract.
type JobRequest struct {
	Repository string            `json:"repository"`
	BaseBranch string            `json:"base_branch"`
	Task       string            `json:"task"`
	Limits     ResourceLimits    `json:"limits"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Metrics reports execution measurements for a finished remote job.
type Metrics struct {
	DurationMs int64 `json:"duration_ms"`
	TokensUsed int64 `json:"tokens_used"`
}

// RemoteJob is the remote service's job record.
type RemoteJob struct {
	ID          string   `json:"id"`
	State       JobState `json:"state"`
	ContainerID string   `json:"container_id,omitempty"`
	Logs        []string `json:"logs,omitempty"`
	Error       string   `json:"error,omitempty"`
	PRUrl       string   `json:"pr_url,omitempty"`
	Metrics     *Metrics `json:"metrics,omitempty"`
}

// Client is an HTTP client for the agent service's job-control API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the agent service at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("agent API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

var errNotFound = fmt.Errorf("agent API error (status 404)")

// CreateJob submits a work request and returns the opaque remote job id.
func (c *Client) CreateJob(ctx context.Context, req *JobRequest) (string, error) {
	var created RemoteJob
	if err := c.doRequest(ctx, http.MethodPost, "/v1/jobs", req, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("agent service returned empty job id")
	}
	return created.ID, nil
}

// GetJob fetches a remote job's state. Returns nil, nil when the service no
// longer knows the job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*RemoteJob, error) {
	var remote RemoteJob
	err := c.doRequest(ctx, http.MethodGet, "/v1/jobs/"+jobID, nil, &remote)
	if err == errNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &remote, nil
}

// CancelJob asks the service to cancel a job. Returns whether the service
// accepted the cancellation.
func (c *Client) CancelJob(ctx context.Context, jobID string) (bool, error) {
	err := c.doRequest(ctx, http.MethodPost, "/v1/jobs/"+jobID+"/cancel", nil, nil)
	if err == errNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Probe checks whether the agent service's control interface is reachable.
// Called once at startup; a negative result disables agent routing for the
// life of the process.
func (c *Client) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := c.doRequest(probeCtx, http.MethodGet, "/v1/health", nil, nil)
	return err == nil
}

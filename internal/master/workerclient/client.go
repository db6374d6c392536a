// Package workerclient is the master's HTTP client for a worker's
// administrative API.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/YangYuS8/mlsmanager/internal/store"
	"github.com/YangYuS8/mlsmanager/pkg/api"
)

// ErrUnreachable marks a transport-level failure talking to a worker.
// Callers check it with errors.Is to degrade gracefully instead of
// treating the worker response as authoritative.
var ErrUnreachable = errors.New("worker unreachable")

const (
	defaultTimeout = 30 * time.Second
	healthTimeout  = 5 * time.Second
)

type Client struct {
	httpClient *http.Client
	token      string
}

// New builds a worker client. The token is the worker's own agent
// credential, replayed as the bearer token on administrative calls.
func New(token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		token:      token,
	}
}

func workerURL(n *store.Node, path string) string {
	return fmt.Sprintf("http://%s:%d%s", n.Host, n.Port, path)
}

// CheckOnline probes the worker's health endpoint with a short timeout.
// Any transport or non-200 outcome reports false; probing never fails.
func (c *Client) CheckOnline(ctx context.Context, n *store.Node) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, workerURL(n, "/health"), nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// CloneProject asks the worker to clone a repository into a workspace.
func (c *Client) CloneProject(ctx context.Context, n *store.Node, req api.CloneProjectRequest) (*api.ProjectOpResponse, error) {
	return c.do(ctx, n, http.MethodPost, "/projects/clone", req)
}

// PullProject asks the worker to update an existing workspace.
func (c *Client) PullProject(ctx context.Context, n *store.Node, projectID int64, req api.PullProjectRequest) (*api.ProjectOpResponse, error) {
	return c.do(ctx, n, http.MethodPost, fmt.Sprintf("/projects/%d/pull", projectID), req)
}

// ProjectStatus fetches the worker-side state of a workspace.
func (c *Client) ProjectStatus(ctx context.Context, n *store.Node, projectID int64) (*api.ProjectOpResponse, error) {
	return c.do(ctx, n, http.MethodGet, fmt.Sprintf("/projects/%d/status", projectID), nil)
}

// DeleteProject removes a workspace on the worker.
func (c *Client) DeleteProject(ctx context.Context, n *store.Node, projectID int64) (*api.ProjectOpResponse, error) {
	return c.do(ctx, n, http.MethodDelete, fmt.Sprintf("/projects/%d", projectID), nil)
}

func (c *Client) do(ctx context.Context, n *store.Node, method, path string, body interface{}) (*api.ProjectOpResponse, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode worker request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, workerURL(n, path), reader)
	if err != nil {
		return nil, fmt.Errorf("build worker request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s on %s: %v", ErrUnreachable, method, path, n.NodeID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response from %s: %v", ErrUnreachable, n.NodeID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("worker %s returned %d: %s", n.NodeID, resp.StatusCode, raw)
	}

	var out api.ProjectOpResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode worker response from %s: %w", n.NodeID, err)
	}
	return &out, nil
}

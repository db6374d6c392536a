// Package client is the agent's HTTP client for the master API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/YangYuS8/mlsmanager/pkg/api"
)

// ErrUnauthorized marks a rejected credential. The agent reacts by
// re-registering to obtain a fresh one.
var ErrUnauthorized = errors.New("credential rejected")

const agentTokenHeader = "X-Agent-Token"

// Client talks to the master on behalf of one node. The credential is
// obtained via Register and persisted to disk so restarts do not need
// a fresh registration round-trip.
type Client struct {
	baseURL    string
	nodeID     string
	tokenFile  string
	httpClient *http.Client

	token string
}

func New(masterURL, nodeID, tokenFile string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(masterURL, "/"),
		nodeID:     nodeID,
		tokenFile:  tokenFile,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// LoadToken reads a previously persisted credential. Missing files are
// not an error; the agent simply registers again.
func (c *Client) LoadToken() bool {
	raw, err := os.ReadFile(c.tokenFile)
	if err != nil {
		return false
	}
	c.token = strings.TrimSpace(string(raw))
	return c.token != ""
}

// Register performs self-registration and stores the returned
// credential. The token file is written with owner-only permissions.
func (c *Client) Register(ctx context.Context, req api.RegisterNodeRequest) (*api.RegisterNodeResponse, error) {
	var resp api.RegisterNodeResponse
	if err := c.do(ctx, http.MethodPost, "/api/nodes/register", req, &resp, false); err != nil {
		return nil, err
	}

	c.token = resp.Token
	if c.tokenFile != "" {
		if err := os.WriteFile(c.tokenFile, []byte(resp.Token), 0o600); err != nil {
			return nil, fmt.Errorf("persist credential: %w", err)
		}
	}
	return &resp, nil
}

// Heartbeat reports node status. Fields left nil keep their stored
// values on the master.
func (c *Client) Heartbeat(ctx context.Context, req api.HeartbeatRequest) error {
	path := fmt.Sprintf("/api/nodes/%s/heartbeat", c.nodeID)
	return c.do(ctx, http.MethodPost, path, req, nil, true)
}

// QueuedJobs fetches jobs assigned to this node and awaiting pickup.
func (c *Client) QueuedJobs(ctx context.Context) ([]api.JobResponse, error) {
	path := fmt.Sprintf("/api/nodes/%s/jobs/queue", c.nodeID)
	var jobs []api.JobResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &jobs, true); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob fetches one job. Used to notice cancellations mid-run.
func (c *Client) GetJob(ctx context.Context, jobID string) (*api.JobResponse, error) {
	var job api.JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+jobID, nil, &job, true); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobStatus reports a lifecycle transition for a job this node
// is running.
func (c *Client) UpdateJobStatus(ctx context.Context, jobID string, req api.JobStatusUpdateRequest) error {
	return c.do(ctx, http.MethodPut, "/api/jobs/"+jobID+"/status", req, nil, true)
}

// AppendJobLogs ships a chunk of job output to the master.
func (c *Client) AppendJobLogs(ctx context.Context, jobID, content string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+jobID+"/logs", api.AddLogRequest{Content: content}, nil, true)
}

// ReportDatasets uploads the scanner's inventory.
func (c *Client) ReportDatasets(ctx context.Context, req api.BatchDatasetsRequest) (*api.BatchDatasetsResponse, error) {
	path := fmt.Sprintf("/api/nodes/%s/datasets/batch", c.nodeID)
	var resp api.BatchDatasetsResponse
	if err := c.do(ctx, http.MethodPost, path, req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, authed bool) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set(agentTokenHeader, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("master returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("master returned %d: %s", resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

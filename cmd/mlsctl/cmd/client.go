package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/YangYuS8/mlsmanager/pkg/api"
)

// MasterClient handles API calls to the mlsmanager master.
type MasterClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewMasterClient creates a new client for the given master URL.
func NewMasterClient(baseURL string) *MasterClient {
	return &MasterClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// CreateJob sends POST /api/jobs to submit a new job.
func (c *MasterClient) CreateJob(req api.CreateJobRequest) (*api.JobResponse, error) {
	var result api.JobResponse
	if err := c.doJSON(http.MethodPost, "/api/jobs", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob sends GET /api/jobs/{id} to retrieve job details.
func (c *MasterClient) GetJob(jobID string) (*api.JobResponse, error) {
	var result api.JobResponse
	if err := c.doJSON(http.MethodGet, fmt.Sprintf("/api/jobs/%s", jobID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListJobs sends GET /api/jobs with an optional status filter.
func (c *MasterClient) ListJobs(status string) ([]api.JobResponse, error) {
	path := "/api/jobs"
	if status != "" {
		path += "?status=" + status
	}
	var result []api.JobResponse
	if err := c.doJSON(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CancelJob sends POST /api/jobs/{id}/cancel.
func (c *MasterClient) CancelJob(jobID string) (*api.JobResponse, error) {
	var result api.JobResponse
	if err := c.doJSON(http.MethodPost, fmt.Sprintf("/api/jobs/%s/cancel", jobID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AssignJobs sends POST /api/jobs/assign to trigger a scheduling pass.
func (c *MasterClient) AssignJobs() (*api.AssignJobsResponse, error) {
	var result api.AssignJobsResponse
	if err := c.doJSON(http.MethodPost, "/api/jobs/assign", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// JobStats sends GET /api/jobs/stats.
func (c *MasterClient) JobStats() (*api.JobStatsResponse, error) {
	var result api.JobStatsResponse
	if err := c.doJSON(http.MethodGet, "/api/jobs/stats", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJobLogs sends GET /api/jobs/{id}/logs and returns the raw text.
func (c *MasterClient) GetJobLogs(jobID string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/jobs/%s/logs", c.BaseURL, jobID), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return string(body), nil
}

// ListNodes sends GET /api/nodes.
func (c *MasterClient) ListNodes() ([]api.NodeResponse, error) {
	var result []api.NodeResponse
	if err := c.doJSON(http.MethodGet, "/api/nodes", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetNode sends GET /api/nodes/{node_id}.
func (c *MasterClient) GetNode(nodeID string) (*api.NodeResponse, error) {
	var result api.NodeResponse
	if err := c.doJSON(http.MethodGet, fmt.Sprintf("/api/nodes/%s", nodeID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateNode sends PATCH /api/nodes/{node_id}.
func (c *MasterClient) UpdateNode(nodeID string, req api.UpdateNodeRequest) (*api.NodeResponse, error) {
	var result api.NodeResponse
	if err := c.doJSON(http.MethodPatch, fmt.Sprintf("/api/nodes/%s", nodeID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// NodeStats sends GET /api/nodes/stats.
func (c *MasterClient) NodeStats() (*api.NodeStatsResponse, error) {
	var result api.NodeStatsResponse
	if err := c.doJSON(http.MethodGet, "/api/nodes/stats", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *MasterClient) doJSON(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Add("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := string(respBody)
		var apiErr api.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

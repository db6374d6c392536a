package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/YangYuS8/mlsmanager/pkg/api"
)

func TestStatusCommand_Success(t *testing.T) {
	resetViper()

	startTime := time.Now().Add(-10 * time.Minute)
	endTime := time.Now().Add(-9 * time.Minute)
	exitCode := 0
	nodeID := "gpu-node-01"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify request
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "/api/jobs/job-123") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		resp := api.JobResponse{
			ID:          "job-123",
			Name:        "train-resnet",
			JobType:     "docker",
			Command:     "python train.py",
			NodeID:      &nodeID,
			Status:      "completed",
			StartedAt:   &startTime,
			CompletedAt: &endTime,
			ExitCode:    &exitCode,
			CreatedAt:   time.Now().Add(-11 * time.Minute),
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "job-123"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "job-123") {
		t.Errorf("expected job ID in output, got: %s", output)
	}
	if !strings.Contains(output, "completed") {
		t.Errorf("expected completed status, got: %s", output)
	}
	if !strings.Contains(output, "gpu-node-01") {
		t.Errorf("expected node in output, got: %s", output)
	}
	if strings.Contains(output, "Error:") {
		t.Errorf("expected no Error line when error is nil, got: %s", output)
	}
}

func TestStatusCommand_FailedJobShowsError(t *testing.T) {
	resetViper()

	startTime := time.Now().Add(-5 * time.Minute)
	endTime := time.Now().Add(-4 * time.Minute)
	exitCode := 137
	errMsg := "exit code 137: CUDA out of memory"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := api.JobResponse{
			ID:           "job-456",
			Name:         "oom-job",
			JobType:      "docker",
			Command:      "python train.py",
			Status:       "failed",
			StartedAt:    &startTime,
			CompletedAt:  &endTime,
			ExitCode:     &exitCode,
			ErrorMessage: &errMsg,
			CreatedAt:    time.Now().Add(-6 * time.Minute),
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "job-456"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "failed") {
		t.Errorf("expected failed status, got: %s", output)
	}
	if !strings.Contains(output, "137") {
		t.Errorf("expected exit code in output, got: %s", output)
	}
	if !strings.Contains(output, "CUDA out of memory") {
		t.Errorf("expected error message in output, got: %s", output)
	}
	if !strings.Contains(output, "(unassigned)") {
		t.Errorf("expected unassigned marker for node-less job, got: %s", output)
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Job not found"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "missing"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Error (404)") {
		t.Errorf("expected 404 error in output, got: %s", stdout.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{3 * time.Second, "3.0s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.duration)
		if result != tt.expected {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.duration, result, tt.expected)
		}
	}
}

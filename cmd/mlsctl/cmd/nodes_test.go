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

func TestNodesCommand_List(t *testing.T) {
	resetViper()

	cpu := 32
	gpu := 2
	beat := time.Now().Add(-20 * time.Second)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/nodes" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		resp := []api.NodeResponse{
			{
				ID:            "11111111-1111-1111-1111-111111111111",
				NodeID:        "gpu-node-01",
				Name:          "gpu-node-01",
				Host:          "10.0.0.5",
				Port:          8001,
				Status:        "online",
				IsActive:      true,
				CPUCount:      &cpu,
				GPUCount:      &gpu,
				LastHeartbeat: &beat,
				CreatedAt:     time.Now().Add(-time.Hour),
			},
			{
				ID:        "22222222-2222-2222-2222-222222222222",
				NodeID:    "cpu-node-02",
				Name:      "cpu-node-02",
				Host:      "10.0.0.6",
				Port:      8001,
				Status:    "offline",
				IsActive:  false,
				CreatedAt: time.Now().Add(-time.Hour),
			},
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"nodes"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "gpu-node-01") {
		t.Errorf("expected first node in output, got: %s", output)
	}
	if !strings.Contains(output, "10.0.0.5:8001") {
		t.Errorf("expected node address in output, got: %s", output)
	}
	if !strings.Contains(output, "offline") {
		t.Errorf("expected offline status in output, got: %s", output)
	}
}

func TestNodeCommand_Details(t *testing.T) {
	resetViper()

	cpu := 32
	mem := 256
	gpu := 2
	gpuInfo := `[{"name":"NVIDIA A100","memory_total_mb":40960}]`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/nodes/gpu-node-01") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		resp := api.NodeResponse{
			ID:            "11111111-1111-1111-1111-111111111111",
			NodeID:        "gpu-node-01",
			Name:          "training rig",
			Host:          "10.0.0.5",
			Port:          8001,
			Status:        "online",
			IsActive:      true,
			CPUCount:      &cpu,
			MemoryTotalGB: &mem,
			GPUCount:      &gpu,
			GPUInfo:       &gpuInfo,
			CreatedAt:     time.Now().Add(-time.Hour),
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"node", "gpu-node-01"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "training rig") {
		t.Errorf("expected node name in output, got: %s", output)
	}
	if !strings.Contains(output, "32 cores") {
		t.Errorf("expected CPU count in output, got: %s", output)
	}
	if !strings.Contains(output, "NVIDIA A100") {
		t.Errorf("expected GPU info in output, got: %s", output)
	}
}

func TestDrainCommand_DrainAndUndo(t *testing.T) {
	resetViper()

	var lastPatch api.UpdateNodeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH method, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&lastPatch); err != nil {
			t.Errorf("failed to decode patch: %v", err)
		}

		resp := api.NodeResponse{
			ID:        "11111111-1111-1111-1111-111111111111",
			NodeID:    "gpu-node-01",
			Name:      "gpu-node-01",
			Host:      "10.0.0.5",
			Port:      8001,
			Status:    "online",
			IsActive:  *lastPatch.IsActive,
			CreatedAt: time.Now().Add(-time.Hour),
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"drain", "gpu-node-01"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lastPatch.IsActive == nil || *lastPatch.IsActive {
		t.Errorf("expected is_active=false patch, got: %v", lastPatch.IsActive)
	}
	if !strings.Contains(stdout.String(), "drained") {
		t.Errorf("expected drain confirmation, got: %s", stdout.String())
	}

	stdout.Reset()
	rootCmd.SetArgs([]string{"drain", "gpu-node-01", "--undo"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lastPatch.IsActive == nil || !*lastPatch.IsActive {
		t.Errorf("expected is_active=true patch, got: %v", lastPatch.IsActive)
	}
	if !strings.Contains(stdout.String(), "schedulable again") {
		t.Errorf("expected undo confirmation, got: %s", stdout.String())
	}
}

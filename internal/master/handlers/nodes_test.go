package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/YangYuS8/mlsmanager/pkg/api"
)

func TestRegisterNode(t *testing.T) {
	validReq := api.RegisterNodeRequest{
		NodeID: "gpu-node-01",
		Host:   "10.0.0.5",
		Port:   8001,
	}
	validBody, _ := json.Marshal(validReq)

	tests := []struct {
		name           string
		body           []byte
		mockSetup      func(*mockStore, *fakeIssuer)
		expectedStatus int
		expectedInBody string
	}{
		{
			name:           "Success",
			body:           validBody,
			expectedStatus: http.StatusOK,
			expectedInBody: "token-for-gpu-node-01",
		},
		{
			name:           "Invalid JSON",
			body:           []byte(`{invalid-json}`),
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "Invalid request body",
		},
		{
			name:           "Missing Required Fields",
			body:           []byte(`{"node_id": ""}`),
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "node_id, host and port are required",
		},
		{
			name: "Store Failure",
			body: validBody,
			mockSetup: func(m *mockStore, i *fakeIssuer) {
				m.registerErr = errors.New("insert failed")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedInBody: "Failed to register node",
		},
		{
			name: "Issuer Failure",
			body: validBody,
			mockSetup: func(m *mockStore, i *fakeIssuer) {
				i.err = errors.New("bad key")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedInBody: "Failed to issue credential",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockStore()
			issuer := &fakeIssuer{}
			if tt.mockSetup != nil {
				tt.mockSetup(mock, issuer)
			}
			h := New(mock, issuer, &fakeAssigner{})

			req := httptest.NewRequest(http.MethodPost, "/api/nodes/register", bytes.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.RegisterNode(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.expectedInBody) {
				t.Errorf("body %q does not contain %q", rr.Body.String(), tt.expectedInBody)
			}
		})
	}
}

func TestRegisterNode_ReRegisterKeepsIdentity(t *testing.T) {
	mock := newMockStore()
	h := New(mock, &fakeIssuer{}, &fakeAssigner{})

	body, _ := json.Marshal(api.RegisterNodeRequest{NodeID: "gpu-node-01", Host: "10.0.0.5", Port: 8001})
	first := httptest.NewRecorder()
	h.RegisterNode(first, httptest.NewRequest(http.MethodPost, "/api/nodes/register", bytes.NewReader(body)))

	body2, _ := json.Marshal(api.RegisterNodeRequest{NodeID: "gpu-node-01", Host: "10.0.0.8", Port: 8001})
	second := httptest.NewRecorder()
	h.RegisterNode(second, httptest.NewRequest(http.MethodPost, "/api/nodes/register", bytes.NewReader(body2)))

	var r1, r2 api.RegisterNodeResponse
	json.Unmarshal(first.Body.Bytes(), &r1)
	json.Unmarshal(second.Body.Bytes(), &r2)

	if r1.Node.ID != r2.Node.ID {
		t.Errorf("re-registration changed node identity: %s vs %s", r1.Node.ID, r2.Node.ID)
	}
	if r2.Node.Host != "10.0.0.8" {
		t.Errorf("re-registration did not refresh host: %s", r2.Node.Host)
	}
}

func TestHeartbeat(t *testing.T) {
	mock := newMockStore()
	h := New(mock, &fakeIssuer{}, &fakeAssigner{})

	// register first so the node exists
	regBody, _ := json.Marshal(api.RegisterNodeRequest{NodeID: "gpu-node-01", Host: "10.0.0.5", Port: 8001})
	h.RegisterNode(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/nodes/register", bytes.NewReader(regBody)))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/nodes/{node_id}/heartbeat", h.Heartbeat)

	used := 42
	hbBody, _ := json.Marshal(api.HeartbeatRequest{Status: "online", StorageUsedGB: &used})
	req := httptest.NewRequest(http.MethodPost, "/api/nodes/gpu-node-01/heartbeat", bytes.NewReader(hbBody))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}
	var resp api.NodeResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.LastHeartbeat == nil {
		t.Error("heartbeat did not refresh last_heartbeat")
	}
	if resp.StorageUsedGB == nil || *resp.StorageUsedGB != 42 {
		t.Error("heartbeat did not apply storage_used_gb")
	}
}

func TestHeartbeat_UnknownNode(t *testing.T) {
	h := New(newMockStore(), &fakeIssuer{}, &fakeAssigner{})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/nodes/{node_id}/heartbeat", h.Heartbeat)

	body, _ := json.Marshal(api.HeartbeatRequest{Status: "online"})
	req := httptest.NewRequest(http.MethodPost, "/api/nodes/ghost/heartbeat", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", rr.Code)
	}
}

func TestHeartbeat_InvalidStatus(t *testing.T) {
	h := New(newMockStore(), &fakeIssuer{}, &fakeAssigner{})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/nodes/{node_id}/heartbeat", h.Heartbeat)

	req := httptest.NewRequest(http.MethodPost, "/api/nodes/gpu-node-01/heartbeat",
		strings.NewReader(`{"status": "weird"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rr.Code)
	}
}

func TestUpdateNode_Drain(t *testing.T) {
	mock := newMockStore()
	h := New(mock, &fakeIssuer{}, &fakeAssigner{})

	regBody, _ := json.Marshal(api.RegisterNodeRequest{NodeID: "gpu-node-01", Host: "10.0.0.5", Port: 8001})
	h.RegisterNode(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/nodes/register", bytes.NewReader(regBody)))

	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/nodes/{node_id}", h.UpdateNode)

	req := httptest.NewRequest(http.MethodPatch, "/api/nodes/gpu-node-01",
		strings.NewReader(`{"is_active": false}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}
	var resp api.NodeResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.IsActive {
		t.Error("node still active after drain")
	}
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/YangYuS8/mlsmanager/internal/store"
	"github.com/YangYuS8/mlsmanager/pkg/api"
)

// RegisterNode handles POST /api/nodes/register.
// An agent registers (or re-registers) itself and receives a fresh
// credential. The same node_id always maps to the same node record.
func (h *Handlers) RegisterNode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.NodeID == "" || req.Host == "" || req.Port <= 0 {
		h.httpError(w, "node_id, host and port are required", http.StatusBadRequest)
		return
	}
	name := req.Name
	if name == "" {
		name = req.NodeID
	}

	node, err := h.store.RegisterNode(ctx, &store.Node{
		NodeID:         req.NodeID,
		Name:           name,
		Host:           req.Host,
		Port:           req.Port,
		CPUCount:       req.CPUCount,
		MemoryTotalGB:  req.MemoryTotalGB,
		GPUCount:       req.GPUCount,
		GPUInfo:        req.GPUInfo,
		StoragePath:    req.StoragePath,
		StorageTotalGB: req.StorageTotalGB,
		StorageUsedGB:  req.StorageUsedGB,
	})
	if err != nil {
		h.httpError(w, "Failed to register node", http.StatusInternalServerError)
		return
	}

	token, err := h.issuer.Issue(node.NodeID)
	if err != nil {
		h.httpError(w, "Failed to issue credential", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.RegisterNodeResponse{
		Node:  nodeToAPI(node),
		Token: token,
	})
}

// Heartbeat handles POST /api/nodes/{node_id}/heartbeat.
// Fields absent from the body keep their stored values.
func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nodeID := r.PathValue("node_id")

	var req api.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	status := store.NodeStatus(req.Status)
	if req.Status == "" {
		status = store.NodeStatusOnline
	}
	if !status.Valid() {
		h.httpError(w, "Invalid node status", http.StatusBadRequest)
		return
	}

	node, err := h.store.Heartbeat(ctx, nodeID, store.HeartbeatPatch{
		Status:         status,
		CPUCount:       req.CPUCount,
		MemoryTotalGB:  req.MemoryTotalGB,
		GPUCount:       req.GPUCount,
		GPUInfo:        req.GPUInfo,
		StorageTotalGB: req.StorageTotalGB,
		StorageUsedGB:  req.StorageUsedGB,
	})
	if err != nil {
		h.storeError(w, err, "Node not found")
		return
	}

	h.respondJson(w, http.StatusOK, nodeToAPI(node))
}

// ListNodes handles GET /api/nodes.
func (h *Handlers) ListNodes(w http.ResponseWriter, r *http.Request) {
	offset, limit := parsePagination(r)
	nodes, err := h.store.ListNodes(r.Context(), offset, limit)
	if err != nil {
		h.httpError(w, "Failed to list nodes", http.StatusInternalServerError)
		return
	}

	out := make([]api.NodeResponse, 0, len(nodes))
	for i := range nodes {
		out = append(out, nodeToAPI(&nodes[i]))
	}
	h.respondJson(w, http.StatusOK, out)
}

// GetNode handles GET /api/nodes/{node_id}.
func (h *Handlers) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.store.GetNodeByNodeID(r.Context(), r.PathValue("node_id"))
	if err != nil {
		h.storeError(w, err, "Node not found")
		return
	}
	h.respondJson(w, http.StatusOK, nodeToAPI(node))
}

// UpdateNode handles PATCH /api/nodes/{node_id}.
// Admin edits: rename, drain (is_active=false) or force a status.
func (h *Handlers) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	patch := store.NodePatch{Name: req.Name, IsActive: req.IsActive}
	if req.Status != nil {
		status := store.NodeStatus(*req.Status)
		if !status.Valid() {
			h.httpError(w, "Invalid node status", http.StatusBadRequest)
			return
		}
		patch.Status = &status
	}

	node, err := h.store.UpdateNode(r.Context(), r.PathValue("node_id"), patch)
	if err != nil {
		h.storeError(w, err, "Node not found")
		return
	}
	h.respondJson(w, http.StatusOK, nodeToAPI(node))
}

// NodeStats handles GET /api/nodes/stats.
func (h *Handlers) NodeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.NodeStats(r.Context())
	if err != nil {
		h.httpError(w, "Failed to aggregate node stats", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, api.NodeStatsResponse{
		TotalNodes:     stats.TotalNodes,
		OnlineNodes:    stats.OnlineNodes,
		OfflineNodes:   stats.OfflineNodes,
		TotalCPU:       stats.TotalCPU,
		TotalMemoryGB:  stats.TotalMemoryGB,
		TotalGPU:       stats.TotalGPU,
		TotalStorageGB: stats.TotalStorageGB,
		UsedStorageGB:  stats.UsedStorageGB,
	})
}

func nodeToAPI(n *store.Node) api.NodeResponse {
	return api.NodeResponse{
		ID:             n.ID.String(),
		NodeID:         n.NodeID,
		Name:           n.Name,
		Host:           n.Host,
		Port:           n.Port,
		Status:         string(n.Status),
		IsActive:       n.IsActive,
		CPUCount:       n.CPUCount,
		MemoryTotalGB:  n.MemoryTotalGB,
		GPUCount:       n.GPUCount,
		GPUInfo:        n.GPUInfo,
		StoragePath:    n.StoragePath,
		StorageTotalGB: n.StorageTotalGB,
		StorageUsedGB:  n.StorageUsedGB,
		LastHeartbeat:  n.LastHeartbeat,
		CreatedAt:      n.CreatedAt,
	}
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/YangYuS8/mlsmanager/internal/master/middleware"
	"github.com/YangYuS8/mlsmanager/internal/store"
	"github.com/YangYuS8/mlsmanager/pkg/api"
)

// BatchDatasets handles POST /api/nodes/{node_id}/datasets/batch.
// The agent reports its full scan result; rows are created or updated
// keyed by (node, local_path).
func (h *Handlers) BatchDatasets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentNode, ok := middleware.AgentNodeFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.BatchDatasetsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	datasets := make([]store.Dataset, 0, len(req.Datasets))
	for _, d := range req.Datasets {
		if d.LocalPath == "" {
			h.httpError(w, "local_path is required for every dataset", http.StatusBadRequest)
			return
		}
		name := d.Name
		if name == "" {
			name = d.LocalPath
		}
		datasets = append(datasets, store.Dataset{
			Name:        name,
			LocalPath:   d.LocalPath,
			SizeBytes:   d.SizeBytes,
			FileCount:   d.FileCount,
			Format:      d.Format,
			Description: d.Description,
		})
	}

	registered, updated, err := h.store.UpsertDatasets(ctx, agentNode.ID, datasets)
	if err != nil {
		h.httpError(w, "Failed to store datasets", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.BatchDatasetsResponse{
		Registered: registered,
		Updated:    updated,
	})
}

// ListDatasets handles GET /api/nodes/{node_id}/datasets.
func (h *Handlers) ListDatasets(w http.ResponseWriter, r *http.Request) {
	node, err := h.store.GetNodeByNodeID(r.Context(), r.PathValue("node_id"))
	if err != nil {
		h.storeError(w, err, "Node not found")
		return
	}

	datasets, err := h.store.ListDatasetsForNode(r.Context(), node.ID)
	if err != nil {
		h.httpError(w, "Failed to list datasets", http.StatusInternalServerError)
		return
	}

	out := make([]api.DatasetReport, 0, len(datasets))
	for _, d := range datasets {
		out = append(out, api.DatasetReport{
			Name:        d.Name,
			LocalPath:   d.LocalPath,
			SizeBytes:   d.SizeBytes,
			FileCount:   d.FileCount,
			Format:      d.Format,
			Description: d.Description,
		})
	}
	h.respondJson(w, http.StatusOK, out)
}

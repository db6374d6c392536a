package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/YangYuS8/mlsmanager/internal/master/middleware"
	"github.com/YangYuS8/mlsmanager/internal/store"
	"github.com/YangYuS8/mlsmanager/pkg/api"
)

const defaultJobTimeoutSec = 3600

// CreateJob handles POST /api/jobs.
// Jobs enter the system pending; the scheduler picks them up on its
// next pass unless they are pinned to a node.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Command == "" {
		h.httpError(w, "name and command are required", http.StatusBadRequest)
		return
	}

	jobType := store.JobType(req.JobType)
	if req.JobType == "" {
		jobType = store.JobTypeDocker
	}
	if !jobType.Valid() {
		h.httpError(w, "Invalid job type", http.StatusBadRequest)
		return
	}
	if jobType == store.JobTypeDocker && (req.Image == nil || *req.Image == "") {
		h.httpError(w, "image is required for docker jobs", http.StatusBadRequest)
		return
	}

	timeout := req.TimeoutSec
	if timeout <= 0 {
		timeout = defaultJobTimeoutSec
	}

	job := &store.Job{
		ID:            uuid.New(),
		Name:          req.Name,
		JobType:       jobType,
		Image:         req.Image,
		Command:       req.Command,
		WorkingDir:    req.WorkingDir,
		Env:           req.Env,
		Volumes:       req.Volumes,
		CPULimit:      req.CPULimit,
		MemoryLimitGB: req.MemoryLimitGB,
		GPUCount:      req.GPUCount,
		TimeoutSec:    timeout,
		Status:        store.JobStatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	if req.NodeID != nil && *req.NodeID != "" {
		node, err := h.store.GetNodeByNodeID(ctx, *req.NodeID)
		if err != nil {
			h.storeError(w, err, "Pinned node not found")
			return
		}
		job.NodeID = &node.ID
	}

	if err := h.store.CreateJob(ctx, job); err != nil {
		h.httpError(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusCreated, jobToAPI(job))
}

// ListJobs handles GET /api/jobs with optional ?status= filter.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	offset, limit := parsePagination(r)

	var status *store.JobStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := store.JobStatus(v)
		if !s.Valid() {
			h.httpError(w, "Invalid job status", http.StatusBadRequest)
			return
		}
		status = &s
	}

	jobs, err := h.store.ListJobs(r.Context(), status, offset, limit)
	if err != nil {
		h.httpError(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	out := make([]api.JobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, jobToAPI(&jobs[i]))
	}
	h.respondJson(w, http.StatusOK, out)
}

// GetJob handles GET /api/jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.store.GetJobByID(r.Context(), jobID)
	if err != nil {
		h.storeError(w, err, "Job not found")
		return
	}
	h.respondJson(w, http.StatusOK, jobToAPI(job))
}

// CancelJob handles POST /api/jobs/{id}/cancel.
// The job is moved to cancelled immediately; if an agent is running it,
// the agent notices on its next poll and tears the process down.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.store.CancelJob(r.Context(), jobID)
	if err != nil {
		h.storeError(w, err, "Job not found")
		return
	}
	h.respondJson(w, http.StatusOK, jobToAPI(job))
}

// AssignJobs handles POST /api/jobs/assign.
// Forces a scheduling pass outside the regular tick.
func (h *Handlers) AssignJobs(w http.ResponseWriter, r *http.Request) {
	n, err := h.assigner.AssignAllPending(r.Context())
	if err != nil {
		h.httpError(w, "Scheduling pass failed", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, api.AssignJobsResponse{Assigned: n})
}

// JobStats handles GET /api/jobs/stats.
func (h *Handlers) JobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.JobStats(r.Context())
	if err != nil {
		h.httpError(w, "Failed to aggregate job stats", http.StatusInternalServerError)
		return
	}

	resp := api.JobStatsResponse{
		PendingJobs:   stats[store.JobStatusPending],
		QueuedJobs:    stats[store.JobStatusQueued],
		RunningJobs:   stats[store.JobStatusRunning],
		CompletedJobs: stats[store.JobStatusCompleted],
		FailedJobs:    stats[store.JobStatusFailed],
		CancelledJobs: stats[store.JobStatusCancelled],
	}
	for _, count := range stats {
		resp.TotalJobs += count
	}
	h.respondJson(w, http.StatusOK, resp)
}

// UpdateJobStatus handles PUT /api/jobs/{id}/status.
// Called by the agent running the job. The credential must belong to
// the node the job is assigned to.
func (h *Handlers) UpdateJobStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	var req api.JobStatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	status := store.JobStatus(req.Status)
	if !status.Valid() {
		h.httpError(w, "Invalid job status", http.StatusBadRequest)
		return
	}

	agentNode, ok := middleware.AgentNodeFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	job, err := h.store.GetJobByID(ctx, jobID)
	if err != nil {
		h.storeError(w, err, "Job not found")
		return
	}
	if job.NodeID == nil || *job.NodeID != agentNode.ID {
		h.httpError(w, "Job is not assigned to this node", http.StatusUnauthorized)
		return
	}

	updated, err := h.store.TransitionJob(ctx, jobID, store.JobStatusUpdate{
		Status:       status,
		ExitCode:     req.ExitCode,
		ErrorMessage: req.ErrorMessage,
		LogPath:      req.LogPath,
		OutputPath:   req.OutputPath,
	})
	if err != nil {
		h.storeError(w, err, "Job not found")
		return
	}
	h.respondJson(w, http.StatusOK, jobToAPI(updated))
}

// QueuedJobs handles GET /api/nodes/{node_id}/jobs/queue.
// The agent's work poll: queued jobs assigned to it, oldest first.
func (h *Handlers) QueuedJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentNode, ok := middleware.AgentNodeFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobs, err := h.store.QueuedJobsForNode(ctx, agentNode.ID, 10)
	if err != nil {
		h.httpError(w, "Failed to fetch queued jobs", http.StatusInternalServerError)
		return
	}

	out := make([]api.JobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, jobToAPI(&jobs[i]))
	}
	h.respondJson(w, http.StatusOK, out)
}

// AppendJobLogs handles POST /api/jobs/{id}/logs.
// Called by the agent running the job. The credential must belong to
// the node the job is assigned to.
func (h *Handlers) AppendJobLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	var req api.AddLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	agentNode, ok := middleware.AgentNodeFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	job, err := h.store.GetJobByID(ctx, jobID)
	if err != nil {
		h.storeError(w, err, "Job not found")
		return
	}
	if job.NodeID == nil || *job.NodeID != agentNode.ID {
		h.httpError(w, "Job is not assigned to this node", http.StatusUnauthorized)
		return
	}

	if req.Content == "" {
		h.respondJson(w, http.StatusNoContent, nil)
		return
	}

	if err := h.store.AppendJobLog(ctx, jobID, req.Content); err != nil {
		h.httpError(w, "Failed to append logs", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusNoContent, nil)
}

// GetJobLogs handles GET /api/jobs/{id}/logs.
func (h *Handlers) GetJobLogs(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	entries, err := h.store.JobLogs(r.Context(), jobID)
	if err != nil {
		h.httpError(w, "Failed to fetch logs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, e := range entries {
		w.Write([]byte(e.Content))
	}
}

func jobToAPI(j *store.Job) api.JobResponse {
	resp := api.JobResponse{
		ID:            j.ID.String(),
		Name:          j.Name,
		JobType:       string(j.JobType),
		Image:         j.Image,
		Command:       j.Command,
		WorkingDir:    j.WorkingDir,
		Env:           j.Env,
		Volumes:       j.Volumes,
		CPULimit:      j.CPULimit,
		MemoryLimitGB: j.MemoryLimitGB,
		GPUCount:      j.GPUCount,
		Status:        string(j.Status),
		ExitCode:      j.ExitCode,
		ErrorMessage:  j.ErrorMessage,
		LogPath:       j.LogPath,
		OutputPath:    j.OutputPath,
		TimeoutSec:    j.TimeoutSec,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
	if j.NodeID != nil {
		id := j.NodeID.String()
		resp.NodeID = &id
	}
	return resp
}

// Package api contains shared JSON request/response structs.
// This package is shared between the agent, the CLI and the master.
package api

import "time"

// RegisterNodeRequest is the body for agent self-registration.
type RegisterNodeRequest struct {
	NodeID         string  `json:"node_id"`
	Name           string  `json:"name"`
	Host           string  `json:"host"`
	Port           int     `json:"port"`
	StoragePath    *string `json:"storage_path,omitempty"`
	CPUCount       *int    `json:"cpu_count,omitempty"`
	MemoryTotalGB  *int    `json:"memory_total_gb,omitempty"`
	GPUCount       *int    `json:"gpu_count,omitempty"`
	GPUInfo        *string `json:"gpu_info,omitempty"`
	StorageTotalGB *int    `json:"storage_total_gb,omitempty"`
	StorageUsedGB  *int    `json:"storage_used_gb,omitempty"`
}

// RegisterNodeResponse returns the node record and a fresh agent token.
type RegisterNodeResponse struct {
	Node  NodeResponse `json:"node"`
	Token string       `json:"token"`
}

// HeartbeatRequest is the periodic status report from an agent.
// Nil fields are left unchanged on the node record.
type HeartbeatRequest struct {
	Status         string  `json:"status"`
	CPUCount       *int    `json:"cpu_count,omitempty"`
	MemoryTotalGB  *int    `json:"memory_total_gb,omitempty"`
	GPUCount       *int    `json:"gpu_count,omitempty"`
	GPUInfo        *string `json:"gpu_info,omitempty"`
	StorageTotalGB *int    `json:"storage_total_gb,omitempty"`
	StorageUsedGB  *int    `json:"storage_used_gb,omitempty"`
}

// NodeResponse represents a node in API responses.
type NodeResponse struct {
	ID             string     `json:"id"`
	NodeID         string     `json:"node_id"`
	Name           string     `json:"name"`
	Host           string     `json:"host"`
	Port           int        `json:"port"`
	Status         string     `json:"status"`
	IsActive       bool       `json:"is_active"`
	CPUCount       *int       `json:"cpu_count,omitempty"`
	MemoryTotalGB  *int       `json:"memory_total_gb,omitempty"`
	GPUCount       *int       `json:"gpu_count,omitempty"`
	GPUInfo        *string    `json:"gpu_info,omitempty"`
	StoragePath    *string    `json:"storage_path,omitempty"`
	StorageTotalGB *int       `json:"storage_total_gb,omitempty"`
	StorageUsedGB  *int       `json:"storage_used_gb,omitempty"`
	LastHeartbeat  *time.Time `json:"last_heartbeat,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// UpdateNodeRequest is the admin patch body for a node.
type UpdateNodeRequest struct {
	Name     *string `json:"name,omitempty"`
	Status   *string `json:"status,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// NodeStatsResponse aggregates capacity across active nodes.
type NodeStatsResponse struct {
	TotalNodes     int `json:"total_nodes"`
	OnlineNodes    int `json:"online_nodes"`
	OfflineNodes   int `json:"offline_nodes"`
	TotalCPU       int `json:"total_cpu"`
	TotalMemoryGB  int `json:"total_memory_gb"`
	TotalGPU       int `json:"total_gpu"`
	TotalStorageGB int `json:"total_storage_gb"`
	UsedStorageGB  int `json:"used_storage_gb"`
}

// CreateJobRequest is the body for submitting a new job.
type CreateJobRequest struct {
	Name          string            `json:"name"`
	JobType       string            `json:"job_type"`
	Image         *string           `json:"image,omitempty"`
	Command       string            `json:"command"`
	WorkingDir    *string           `json:"working_dir,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Volumes       []string          `json:"volumes,omitempty"`
	CPULimit      *int              `json:"cpu_limit,omitempty"`
	MemoryLimitGB *int              `json:"memory_limit_gb,omitempty"`
	GPUCount      *int              `json:"gpu_count,omitempty"`
	TimeoutSec    int               `json:"timeout_seconds,omitempty"`
	// NodeID pins the job to a specific node, bypassing the scheduler.
	NodeID *string `json:"node_id,omitempty"`
}

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	NodeID        *string           `json:"node_id,omitempty"`
	JobType       string            `json:"job_type"`
	Image         *string           `json:"image,omitempty"`
	Command       string            `json:"command"`
	WorkingDir    *string           `json:"working_dir,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Volumes       []string          `json:"volumes,omitempty"`
	CPULimit      *int              `json:"cpu_limit,omitempty"`
	MemoryLimitGB *int              `json:"memory_limit_gb,omitempty"`
	GPUCount      *int              `json:"gpu_count,omitempty"`
	Status        string            `json:"status"`
	ExitCode      *int              `json:"exit_code,omitempty"`
	ErrorMessage  *string           `json:"error_message,omitempty"`
	LogPath       *string           `json:"log_path,omitempty"`
	OutputPath    *string           `json:"output_path,omitempty"`
	TimeoutSec    int               `json:"timeout_seconds,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// JobStatusUpdateRequest is the agent-reported status transition.
type JobStatusUpdateRequest struct {
	Status       string  `json:"status"`
	ExitCode     *int    `json:"exit_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	LogPath      *string `json:"log_path,omitempty"`
	OutputPath   *string `json:"output_path,omitempty"`
}

// AssignJobsResponse reports how many pending jobs were placed.
type AssignJobsResponse struct {
	Assigned int `json:"assigned"`
}

// JobStatsResponse aggregates job counts per status.
type JobStatsResponse struct {
	TotalJobs     int `json:"total_jobs"`
	PendingJobs   int `json:"pending_jobs"`
	QueuedJobs    int `json:"queued_jobs"`
	RunningJobs   int `json:"running_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	CancelledJobs int `json:"cancelled_jobs"`
}

// AddLogRequest is the log payload sent by the agent.
type AddLogRequest struct {
	Content string `json:"content"`
}

// DatasetReport is one scanned dataset in a batch report.
type DatasetReport struct {
	Name        string  `json:"name"`
	LocalPath   string  `json:"local_path"`
	SizeBytes   *int64  `json:"size_bytes,omitempty"`
	FileCount   *int    `json:"file_count,omitempty"`
	Format      *string `json:"format,omitempty"`
	Description *string `json:"description,omitempty"`
}

// BatchDatasetsRequest is the agent's dataset inventory report.
type BatchDatasetsRequest struct {
	Datasets []DatasetReport `json:"datasets"`
}

// BatchDatasetsResponse reports create-or-update counts.
type BatchDatasetsResponse struct {
	Registered int `json:"registered"`
	Updated    int `json:"updated"`
}

// CloneProjectRequest is sent by the master to a worker's admin API.
type CloneProjectRequest struct {
	ProjectID  int64  `json:"project_id"`
	GitURL     string `json:"git_url"`
	Branch     string `json:"branch"`
	TargetPath string `json:"target_path"`
}

// PullProjectRequest asks a worker to pull an existing workspace.
type PullProjectRequest struct {
	ProjectPath string `json:"project_path"`
	Branch      string `json:"branch,omitempty"`
}

// ProjectOpResponse is the worker's reply to clone/pull/delete calls.
type ProjectOpResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

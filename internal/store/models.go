// Package store contains the database layer for mlsmanager.
package store

import (
	"time"

	"github.com/google/uuid"
)

// NodeStatus represents the liveness state of a compute node.
type NodeStatus string

const (
	NodeStatusOnline      NodeStatus = "online"
	NodeStatusOffline     NodeStatus = "offline"
	NodeStatusMaintenance NodeStatus = "maintenance"
)

// Valid reports whether s is a known node status.
func (s NodeStatus) Valid() bool {
	switch s {
	case NodeStatusOnline, NodeStatusOffline, NodeStatusMaintenance:
		return true
	}
	return false
}

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status has no outgoing transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusQueued, JobStatusRunning,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a job may move from one status to another.
// The lifecycle is pending -> queued -> running -> {completed, failed, cancelled},
// with cancellation allowed from any non-terminal state.
func CanTransition(from, to JobStatus) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case JobStatusQueued:
		return from == JobStatusPending
	case JobStatusRunning:
		return from == JobStatusPending || from == JobStatusQueued
	case JobStatusCompleted, JobStatusFailed:
		return from == JobStatusRunning
	case JobStatusCancelled:
		return true
	}
	return false
}

// JobType selects the execution environment on the worker.
type JobType string

const (
	JobTypeDocker JobType = "docker"
	JobTypeConda  JobType = "conda"
	JobTypeVenv   JobType = "venv"
	JobTypeSystem JobType = "system"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeDocker, JobTypeConda, JobTypeVenv, JobTypeSystem:
		return true
	}
	return false
}

// Node represents a registered compute host and its declared capacity.
type Node struct {
	ID             uuid.UUID
	NodeID         string // stable external identity, unique
	Name           string
	Host           string
	Port           int
	Status         NodeStatus
	IsActive       bool
	CPUCount       *int
	MemoryTotalGB  *int
	GPUCount       *int
	GPUInfo        *string
	StoragePath    *string
	StorageTotalGB *int
	StorageUsedGB  *int
	LastHeartbeat  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Schedulable reports whether the node is eligible for job placement.
func (n *Node) Schedulable() bool {
	return n.IsActive && n.Status == NodeStatusOnline
}

// Job represents a unit of work with resource requirements and lifecycle state.
type Job struct {
	ID            uuid.UUID
	Name          string
	NodeID        *uuid.UUID // assigned target, nil until scheduled
	JobType       JobType
	Image         *string
	Command       string
	WorkingDir    *string
	Env           map[string]string
	Volumes       []string // extra host:container binds for docker jobs
	CPULimit      *int
	MemoryLimitGB *int
	GPUCount      *int
	TimeoutSec    int
	Status        JobStatus
	ExitCode      *int
	ErrorMessage  *string
	LogPath       *string
	OutputPath    *string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// Dataset represents a dataset discovered on a node by the agent scanner.
type Dataset struct {
	ID          uuid.UUID
	Name        string
	NodeID      uuid.UUID
	LocalPath   string
	SizeBytes   *int64
	FileCount   *int
	Format      *string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HeartbeatPatch carries the partial capacity snapshot of a heartbeat.
// Nil fields are left unchanged on the node record.
type HeartbeatPatch struct {
	Status         NodeStatus
	CPUCount       *int
	MemoryTotalGB  *int
	GPUCount       *int
	GPUInfo        *string
	StorageTotalGB *int
	StorageUsedGB  *int
}

// NodePatch is an explicit partial update for admin node edits.
type NodePatch struct {
	Name     *string
	Status   *NodeStatus
	IsActive *bool
}

// JobStatusUpdate carries a status transition with its optional side data.
type JobStatusUpdate struct {
	Status       JobStatus
	ExitCode     *int
	ErrorMessage *string
	LogPath      *string
	OutputPath   *string
}

// NodeStats aggregates capacity across active nodes.
type NodeStats struct {
	TotalNodes     int
	OnlineNodes    int
	OfflineNodes   int
	TotalCPU       int
	TotalMemoryGB  int
	TotalGPU       int
	TotalStorageGB int
	UsedStorageGB  int
}

// LogEntry is one appended chunk of job log output.
type LogEntry struct {
	ID        int64
	JobID     uuid.UUID
	Content   string
	CreatedAt time.Time
}

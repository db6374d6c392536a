package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NodeStore is the authoritative mapping node_id -> Node.
type NodeStore interface {
	// RegisterNode upserts a node by its stable node_id. Existing nodes get
	// their network and capacity fields refreshed and are forced online;
	// unknown node_ids are created online. Returns the stored record.
	RegisterNode(ctx context.Context, n *Node) (*Node, error)

	// GetNodeByNodeID returns a node by its stable node_id.
	GetNodeByNodeID(ctx context.Context, nodeID string) (*Node, error)

	// ListNodes returns registered nodes, oldest first.
	ListNodes(ctx context.Context, offset, limit int) ([]Node, error)

	// UpdateNode applies an admin patch field-by-field.
	UpdateNode(ctx context.Context, nodeID string, patch NodePatch) (*Node, error)

	// Heartbeat sets last_heartbeat to now and applies the partial
	// capacity snapshot. Returns ErrNotFound for unknown node_ids.
	Heartbeat(ctx context.Context, nodeID string, patch HeartbeatPatch) (*Node, error)

	// ListSchedulableNodes returns nodes with is_active and status online.
	ListSchedulableNodes(ctx context.Context) ([]Node, error)

	// StaleOnlineNodeIDs returns node_ids that are online but whose last
	// heartbeat precedes the threshold.
	StaleOnlineNodeIDs(ctx context.Context, before time.Time) ([]string, error)

	// MarkNodesOffline bulk-transitions the given node_ids to offline.
	MarkNodesOffline(ctx context.Context, nodeIDs []string) error

	// NodeStats aggregates capacity across active nodes.
	NodeStats(ctx context.Context) (*NodeStats, error)
}

// JobStore enforces the job lifecycle state machine on top of persistence.
type JobStore interface {
	// CreateJob inserts a new job. Status is always pending on creation.
	CreateJob(ctx context.Context, job *Job) error

	// GetJobByID returns a job by id, or ErrNotFound.
	GetJobByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// ListJobs returns jobs newest first, optionally filtered by status.
	ListJobs(ctx context.Context, status *JobStatus, offset, limit int) ([]Job, error)

	// ListPendingJobs returns pending jobs oldest first.
	ListPendingJobs(ctx context.Context) ([]Job, error)

	// QueuedJobsForNode returns up to limit queued jobs assigned to the
	// node, oldest first.
	QueuedJobsForNode(ctx context.Context, nodeID uuid.UUID, limit int) ([]Job, error)

	// CountRunningJobs returns the number of running jobs on a node.
	CountRunningJobs(ctx context.Context, nodeID uuid.UUID) (int, error)

	// AssignJob moves a job from pending to queued on the given node.
	// The update only applies if the job is still observed as pending, so
	// concurrent assignment passes cannot double-place a job. Returns
	// false without error when the job was no longer pending.
	AssignJob(ctx context.Context, jobID, nodeID uuid.UUID) (bool, error)

	// TransitionJob applies a status update, enforcing the state machine:
	// transitions out of a terminal state return ErrConflict, started_at
	// is set exactly once on entry to running, completed_at exactly once
	// on entry to a terminal state.
	TransitionJob(ctx context.Context, jobID uuid.UUID, upd JobStatusUpdate) (*Job, error)

	// CancelJob forces a non-terminal job to cancelled. Terminal jobs
	// return ErrConflict.
	CancelJob(ctx context.Context, jobID uuid.UUID) (*Job, error)

	// FailStaleJobs force-fails running jobs whose started_at precedes
	// the threshold, recording errMsg. Returns the number failed.
	FailStaleJobs(ctx context.Context, startedBefore time.Time, errMsg string) (int, error)

	// DeleteOldJobs removes terminal jobs whose completed_at precedes
	// the threshold, along with their logs. Returns the number deleted.
	DeleteOldJobs(ctx context.Context, completedBefore time.Time) (int, error)

	// JobStats returns per-status job counts.
	JobStats(ctx context.Context) (map[JobStatus]int, error)

	// AppendJobLog stores a chunk of log output for a job.
	AppendJobLog(ctx context.Context, jobID uuid.UUID, content string) error

	// JobLogs returns log chunks for a job in append order.
	JobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error)
}

// DatasetStore persists the dataset inventory reported by agents.
type DatasetStore interface {
	// UpsertDatasets applies a batch report with create-or-update
	// semantics keyed by (node_id, local_path). Returns counts of
	// created and updated rows.
	UpsertDatasets(ctx context.Context, nodeID uuid.UUID, datasets []Dataset) (registered, updated int, err error)

	// ListDatasetsForNode returns the datasets known for a node.
	ListDatasetsForNode(ctx context.Context, nodeID uuid.UUID) ([]Dataset, error)
}

package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/YangYuS8/mlsmanager/internal/store"
)

// mockStore implements Store with per-method error injection.
type mockStore struct {
	nodes map[string]*store.Node
	jobs  map[uuid.UUID]*store.Job
	logs  map[uuid.UUID][]store.LogEntry

	pingErr       error
	registerErr   error
	heartbeatErr  error
	createJobErr  error
	transitionErr error
	cancelErr     error
	upsertErr     error

	registeredDatasets int
	updatedDatasets    int
}

func newMockStore() *mockStore {
	return &mockStore{
		nodes: make(map[string]*store.Node),
		jobs:  make(map[uuid.UUID]*store.Job),
		logs:  make(map[uuid.UUID][]store.LogEntry),
	}
}

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockStore) RegisterNode(ctx context.Context, n *store.Node) (*store.Node, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	if existing, ok := m.nodes[n.NodeID]; ok {
		existing.Host = n.Host
		existing.Port = n.Port
		existing.Status = store.NodeStatusOnline
		return existing, nil
	}
	stored := *n
	stored.ID = uuid.New()
	stored.Status = store.NodeStatusOnline
	stored.IsActive = true
	stored.CreatedAt = time.Now()
	m.nodes[n.NodeID] = &stored
	return &stored, nil
}

func (m *mockStore) GetNodeByNodeID(ctx context.Context, nodeID string) (*store.Node, error) {
	if n, ok := m.nodes[nodeID]; ok {
		return n, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) ListNodes(ctx context.Context, offset, limit int) ([]store.Node, error) {
	var out []store.Node
	for _, n := range m.nodes {
		out = append(out, *n)
	}
	return out, nil
}

func (m *mockStore) UpdateNode(ctx context.Context, nodeID string, patch store.NodePatch) (*store.Node, error) {
	n, ok := m.nodes[nodeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Name != nil {
		n.Name = *patch.Name
	}
	if patch.Status != nil {
		n.Status = *patch.Status
	}
	if patch.IsActive != nil {
		n.IsActive = *patch.IsActive
	}
	return n, nil
}

func (m *mockStore) Heartbeat(ctx context.Context, nodeID string, patch store.HeartbeatPatch) (*store.Node, error) {
	if m.heartbeatErr != nil {
		return nil, m.heartbeatErr
	}
	n, ok := m.nodes[nodeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	now := time.Now()
	n.Status = patch.Status
	n.LastHeartbeat = &now
	if patch.StorageUsedGB != nil {
		n.StorageUsedGB = patch.StorageUsedGB
	}
	return n, nil
}

func (m *mockStore) ListSchedulableNodes(ctx context.Context) ([]store.Node, error) {
	var out []store.Node
	for _, n := range m.nodes {
		if n.Schedulable() {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *mockStore) StaleOnlineNodeIDs(ctx context.Context, before time.Time) ([]string, error) {
	return nil, nil
}

func (m *mockStore) MarkNodesOffline(ctx context.Context, nodeIDs []string) error { return nil }

func (m *mockStore) NodeStats(ctx context.Context) (*store.NodeStats, error) {
	return &store.NodeStats{TotalNodes: len(m.nodes)}, nil
}

func (m *mockStore) CreateJob(ctx context.Context, job *store.Job) error {
	if m.createJobErr != nil {
		return m.createJobErr
	}
	stored := *job
	m.jobs[job.ID] = &stored
	return nil
}

func (m *mockStore) GetJobByID(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	if j, ok := m.jobs[id]; ok {
		return j, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) ListJobs(ctx context.Context, status *store.JobStatus, offset, limit int) ([]store.Job, error) {
	var out []store.Job
	for _, j := range m.jobs {
		if status == nil || j.Status == *status {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *mockStore) ListPendingJobs(ctx context.Context) ([]store.Job, error) {
	pending := store.JobStatusPending
	return m.ListJobs(ctx, &pending, 0, 0)
}

func (m *mockStore) QueuedJobsForNode(ctx context.Context, nodeID uuid.UUID, limit int) ([]store.Job, error) {
	var out []store.Job
	for _, j := range m.jobs {
		if j.Status == store.JobStatusQueued && j.NodeID != nil && *j.NodeID == nodeID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *mockStore) CountRunningJobs(ctx context.Context, nodeID uuid.UUID) (int, error) {
	count := 0
	for _, j := range m.jobs {
		if j.Status == store.JobStatusRunning && j.NodeID != nil && *j.NodeID == nodeID {
			count++
		}
	}
	return count, nil
}

func (m *mockStore) AssignJob(ctx context.Context, jobID, nodeID uuid.UUID) (bool, error) {
	j, ok := m.jobs[jobID]
	if !ok || j.Status != store.JobStatusPending {
		return false, nil
	}
	j.NodeID = &nodeID
	j.Status = store.JobStatusQueued
	return true, nil
}

func (m *mockStore) TransitionJob(ctx context.Context, jobID uuid.UUID, upd store.JobStatusUpdate) (*store.Job, error) {
	if m.transitionErr != nil {
		return nil, m.transitionErr
	}
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !store.CanTransition(j.Status, upd.Status) {
		return nil, store.ErrConflict
	}
	j.Status = upd.Status
	if upd.ExitCode != nil {
		j.ExitCode = upd.ExitCode
	}
	if upd.ErrorMessage != nil {
		j.ErrorMessage = upd.ErrorMessage
	}
	return j, nil
}

func (m *mockStore) CancelJob(ctx context.Context, jobID uuid.UUID) (*store.Job, error) {
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if j.Status.Terminal() {
		return nil, store.ErrConflict
	}
	j.Status = store.JobStatusCancelled
	return j, nil
}

func (m *mockStore) FailStaleJobs(ctx context.Context, startedBefore time.Time, errMsg string) (int, error) {
	return 0, nil
}

func (m *mockStore) DeleteOldJobs(ctx context.Context, completedBefore time.Time) (int, error) {
	return 0, nil
}

func (m *mockStore) JobStats(ctx context.Context) (map[store.JobStatus]int, error) {
	stats := make(map[store.JobStatus]int)
	for _, j := range m.jobs {
		stats[j.Status]++
	}
	return stats, nil
}

func (m *mockStore) AppendJobLog(ctx context.Context, jobID uuid.UUID, content string) error {
	m.logs[jobID] = append(m.logs[jobID], store.LogEntry{JobID: jobID, Content: content})
	return nil
}

func (m *mockStore) JobLogs(ctx context.Context, jobID uuid.UUID) ([]store.LogEntry, error) {
	return m.logs[jobID], nil
}

func (m *mockStore) UpsertDatasets(ctx context.Context, nodeID uuid.UUID, datasets []store.Dataset) (int, int, error) {
	if m.upsertErr != nil {
		return 0, 0, m.upsertErr
	}
	m.registeredDatasets += len(datasets)
	return len(datasets), 0, nil
}

func (m *mockStore) ListDatasetsForNode(ctx context.Context, nodeID uuid.UUID) ([]store.Dataset, error) {
	return nil, nil
}

// fakeIssuer mints predictable credentials.
type fakeIssuer struct {
	err error
}

func (f fakeIssuer) Issue(nodeID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token-for-" + nodeID, nil
}

// fakeAssigner records on-demand scheduling passes.
type fakeAssigner struct {
	assigned int
	err      error
}

func (f *fakeAssigner) AssignAllPending(ctx context.Context) (int, error) {
	return f.assigned, f.err
}

package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/YangYuS8/mlsmanager/internal/store"
)

type fakeNodes struct {
	nodes []store.Node
}

func (f *fakeNodes) ListSchedulableNodes(ctx context.Context) ([]store.Node, error) {
	return f.nodes, nil
}

type fakeJobs struct {
	pending   []store.Job
	running   map[uuid.UUID]int
	assigned  map[uuid.UUID]uuid.UUID // job -> node
	rejectAll bool
}

func (f *fakeJobs) ListPendingJobs(ctx context.Context) ([]store.Job, error) {
	return f.pending, nil
}

func (f *fakeJobs) CountRunningJobs(ctx context.Context, nodeID uuid.UUID) (int, error) {
	return f.running[nodeID], nil
}

func (f *fakeJobs) AssignJob(ctx context.Context, jobID, nodeID uuid.UUID) (bool, error) {
	if f.rejectAll {
		return false, nil
	}
	if f.assigned == nil {
		f.assigned = make(map[uuid.UUID]uuid.UUID)
	}
	f.assigned[jobID] = nodeID
	return true, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intp(v int) *int { return &v }

func testNode(name string, cpu, mem, gpu int) store.Node {
	return store.Node{
		ID:            uuid.New(),
		NodeID:        name,
		Name:          name,
		Status:        store.NodeStatusOnline,
		IsActive:      true,
		CPUCount:      intp(cpu),
		MemoryTotalGB: intp(mem),
		GPUCount:      intp(gpu),
	}
}

func TestAssignAllPending_PrefersLeastLoadedNode(t *testing.T) {
	busy := testNode("busy", 32, 128, 4)
	idle := testNode("idle", 32, 128, 4)
	nodes := &fakeNodes{nodes: []store.Node{busy, idle}}

	job := store.Job{ID: uuid.New(), Name: "train", Status: store.JobStatusPending, GPUCount: intp(1)}
	jobs := &fakeJobs{
		pending: []store.Job{job},
		running: map[uuid.UUID]int{busy.ID: 3, idle.ID: 0},
	}

	s := New(nodes, jobs, time.Second, testLogger())
	n, err := s.AssignAllPending(context.Background())
	if err != nil {
		t.Fatalf("AssignAllPending failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d assignments, want 1", n)
	}
	if jobs.assigned[job.ID] != idle.ID {
		t.Errorf("job assigned to %v, want idle node %v", jobs.assigned[job.ID], idle.ID)
	}
}

func TestAssignAllPending_SpreadsBurstAcrossNodes(t *testing.T) {
	a := testNode("a", 32, 128, 0)
	b := testNode("b", 32, 128, 0)
	nodes := &fakeNodes{nodes: []store.Node{a, b}}

	var pending []store.Job
	for i := 0; i < 4; i++ {
		pending = append(pending, store.Job{ID: uuid.New(), Status: store.JobStatusPending})
	}
	jobs := &fakeJobs{pending: pending, running: map[uuid.UUID]int{}}

	s := New(nodes, jobs, time.Second, testLogger())
	n, err := s.AssignAllPending(context.Background())
	if err != nil {
		t.Fatalf("AssignAllPending failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("got %d assignments, want 4", n)
	}

	perNode := map[uuid.UUID]int{}
	for _, nodeID := range jobs.assigned {
		perNode[nodeID]++
	}
	if perNode[a.ID] != 2 || perNode[b.ID] != 2 {
		t.Errorf("uneven spread: %v", perNode)
	}
}

func TestAssignAllPending_SkipsJobsThatDoNotFit(t *testing.T) {
	small := testNode("small", 4, 16, 0)
	nodes := &fakeNodes{nodes: []store.Node{small}}

	gpuJob := store.Job{ID: uuid.New(), Status: store.JobStatusPending, GPUCount: intp(2)}
	cpuJob := store.Job{ID: uuid.New(), Status: store.JobStatusPending, CPULimit: intp(2)}
	jobs := &fakeJobs{pending: []store.Job{gpuJob, cpuJob}, running: map[uuid.UUID]int{}}

	s := New(nodes, jobs, time.Second, testLogger())
	n, err := s.AssignAllPending(context.Background())
	if err != nil {
		t.Fatalf("AssignAllPending failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d assignments, want 1", n)
	}
	if _, ok := jobs.assigned[gpuJob.ID]; ok {
		t.Error("gpu job assigned to a node without gpus")
	}
	if jobs.assigned[cpuJob.ID] != small.ID {
		t.Error("cpu job not assigned")
	}
}

func TestAssignAllPending_HonorsPinnedNode(t *testing.T) {
	a := testNode("a", 32, 128, 4)
	b := testNode("b", 32, 128, 4)
	nodes := &fakeNodes{nodes: []store.Node{a, b}}

	pinned := store.Job{ID: uuid.New(), Status: store.JobStatusPending, NodeID: &b.ID}
	jobs := &fakeJobs{
		pending: []store.Job{pinned},
		// a is idle but the job is pinned to b
		running: map[uuid.UUID]int{a.ID: 0, b.ID: 5},
	}

	s := New(nodes, jobs, time.Second, testLogger())
	if _, err := s.AssignAllPending(context.Background()); err != nil {
		t.Fatalf("AssignAllPending failed: %v", err)
	}
	if jobs.assigned[pinned.ID] != b.ID {
		t.Errorf("pinned job assigned to %v, want %v", jobs.assigned[pinned.ID], b.ID)
	}
}

func TestAssignAllPending_LostClaimIsNotCounted(t *testing.T) {
	a := testNode("a", 32, 128, 0)
	nodes := &fakeNodes{nodes: []store.Node{a}}
	jobs := &fakeJobs{
		pending:   []store.Job{{ID: uuid.New(), Status: store.JobStatusPending}},
		running:   map[uuid.UUID]int{},
		rejectAll: true,
	}

	s := New(nodes, jobs, time.Second, testLogger())
	n, err := s.AssignAllPending(context.Background())
	if err != nil {
		t.Fatalf("AssignAllPending failed: %v", err)
	}
	if n != 0 {
		t.Errorf("got %d assignments, want 0", n)
	}
}

// claimOnceJobs hands out each pending job to exactly one caller of
// AssignJob, the way the conditional UPDATE does in the real store.
type claimOnceJobs struct {
	mu      sync.Mutex
	pending []store.Job
	claimed map[uuid.UUID]uuid.UUID // job -> winning node
}

func (f *claimOnceJobs) ListPendingJobs(ctx context.Context) ([]store.Job, error) {
	return f.pending, nil
}

func (f *claimOnceJobs) CountRunningJobs(ctx context.Context, nodeID uuid.UUID) (int, error) {
	return 0, nil
}

func (f *claimOnceJobs) AssignJob(ctx context.Context, jobID, nodeID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.claimed[jobID]; taken {
		return false, nil
	}
	f.claimed[jobID] = nodeID
	return true, nil
}

func TestAssignAllPending_ConcurrentPassesPlaceEachJobOnce(t *testing.T) {
	a := testNode("a", 32, 128, 0)
	b := testNode("b", 32, 128, 0)
	nodes := &fakeNodes{nodes: []store.Node{a, b}}

	var pending []store.Job
	for i := 0; i < 20; i++ {
		pending = append(pending, store.Job{ID: uuid.New(), Status: store.JobStatusPending})
	}
	jobs := &claimOnceJobs{pending: pending, claimed: make(map[uuid.UUID]uuid.UUID)}

	s := New(nodes, jobs, time.Second, testLogger())

	// two passes see the same pending snapshot and race for the claims
	counts := make([]int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := s.AssignAllPending(context.Background())
			if err != nil {
				t.Errorf("AssignAllPending failed: %v", err)
			}
			counts[i] = n
		}(i)
	}
	wg.Wait()

	if len(jobs.claimed) != len(pending) {
		t.Fatalf("%d jobs claimed, want %d", len(jobs.claimed), len(pending))
	}
	if total := counts[0] + counts[1]; total != len(pending) {
		t.Errorf("passes reported %d assignments in total, want %d", total, len(pending))
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	nodes := &fakeNodes{}
	jobs := &fakeJobs{}
	s := New(nodes, jobs, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

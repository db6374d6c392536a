// Package scheduler places pending jobs onto registered compute nodes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/YangYuS8/mlsmanager/internal/store"
)

// NodeSource is the node view the scheduler needs.
type NodeSource interface {
	ListSchedulableNodes(ctx context.Context) ([]store.Node, error)
}

// JobSource is the job view the scheduler needs.
type JobSource interface {
	ListPendingJobs(ctx context.Context) ([]store.Job, error)
	CountRunningJobs(ctx context.Context, nodeID uuid.UUID) (int, error)
	AssignJob(ctx context.Context, jobID, nodeID uuid.UUID) (bool, error)
}

type Scheduler struct {
	nodes  NodeSource
	jobs   JobSource
	tick   time.Duration
	logger *slog.Logger
	done   chan struct{}
}

func New(nodes NodeSource, jobs JobSource, tick time.Duration, logger *slog.Logger) *Scheduler {
	if tick <= 0 {
		tick = 15 * time.Second
	}
	return &Scheduler{
		nodes:  nodes,
		jobs:   jobs,
		tick:   tick,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Run drives scheduling passes until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "tick", s.tick)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if n, err := s.AssignAllPending(ctx); err != nil {
				s.logger.Error("scheduling pass failed", "error", err)
			} else if n > 0 {
				s.logger.Info("scheduling pass complete", "assigned", n)
			}
		}
	}
}

// Done is closed once Run has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// AssignAllPending runs one scheduling pass: pending jobs are visited
// oldest first and each is offered to the best fitting node. Jobs with
// no fitting node stay pending for the next pass.
func (s *Scheduler) AssignAllPending(ctx context.Context) (int, error) {
	pending, err := s.jobs.ListPendingJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	nodes, err := s.nodes.ListSchedulableNodes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list schedulable nodes: %w", err)
	}
	if len(nodes) == 0 {
		s.logger.Debug("no schedulable nodes", "pending", len(pending))
		return 0, nil
	}

	// running counts are read once per pass and bumped locally as
	// assignments land, so a burst of pending jobs spreads out instead
	// of piling onto one node
	running := make(map[uuid.UUID]int, len(nodes))
	for _, n := range nodes {
		count, err := s.jobs.CountRunningJobs(ctx, n.ID)
		if err != nil {
			return 0, fmt.Errorf("count running jobs for %s: %w", n.NodeID, err)
		}
		running[n.ID] = count
	}

	assigned := 0
	for _, job := range pending {
		target := s.pickNode(job, nodes, running)
		if target == nil {
			s.logger.Debug("no fitting node for job", "job_id", job.ID, "job", job.Name)
			continue
		}

		ok, err := s.jobs.AssignJob(ctx, job.ID, target.ID)
		if err != nil {
			return assigned, fmt.Errorf("assign job %s: %w", job.ID, err)
		}
		if !ok {
			// job left pending under us (cancelled or claimed elsewhere)
			continue
		}
		running[target.ID]++
		assigned++
		s.logger.Info("job assigned", "job_id", job.ID, "job", job.Name, "node", target.NodeID)
	}
	return assigned, nil
}

// pickNode returns the fitting node with the fewest running jobs, or
// nil when nothing fits.
func (s *Scheduler) pickNode(job store.Job, nodes []store.Node, running map[uuid.UUID]int) *store.Node {
	var best *store.Node
	for i := range nodes {
		n := &nodes[i]
		if job.NodeID != nil && *job.NodeID != n.ID {
			continue
		}
		if !fits(job, n) {
			continue
		}
		if best == nil || running[n.ID] < running[best.ID] {
			best = n
		}
	}
	return best
}

// fits reports whether the node's declared capacity covers the job's
// resource requests. A node that never declared a capacity dimension is
// treated as unable to satisfy a request on that dimension.
func fits(job store.Job, n *store.Node) bool {
	if job.GPUCount != nil && *job.GPUCount > 0 {
		if n.GPUCount == nil || *n.GPUCount < *job.GPUCount {
			return false
		}
	}
	if job.CPULimit != nil && *job.CPULimit > 0 {
		if n.CPUCount == nil || *n.CPUCount < *job.CPULimit {
			return false
		}
	}
	if job.MemoryLimitGB != nil && *job.MemoryLimitGB > 0 {
		if n.MemoryTotalGB == nil || *n.MemoryTotalGB < *job.MemoryLimitGB {
			return false
		}
	}
	return true
}

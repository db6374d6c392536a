// Package monitor sweeps for dead nodes and stuck jobs.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NodeSweeper is the node view the monitor needs.
type NodeSweeper interface {
	StaleOnlineNodeIDs(ctx context.Context, before time.Time) ([]string, error)
	MarkNodesOffline(ctx context.Context, nodeIDs []string) error
}

// JobSweeper is the job view the monitor needs.
type JobSweeper interface {
	FailStaleJobs(ctx context.Context, startedBefore time.Time, errMsg string) (int, error)
	DeleteOldJobs(ctx context.Context, completedBefore time.Time) (int, error)
}

// Config holds the sweep cadence and thresholds.
type Config struct {
	NodeTick         time.Duration // how often to check node heartbeats
	JobTick          time.Duration // how often to check running jobs
	CleanupTick      time.Duration // how often to purge old terminal jobs
	NodeOfflineAfter time.Duration // heartbeat silence before a node goes offline
	JobStaleAfter    time.Duration // running time before a job is force-failed
	JobRetention     time.Duration // how long finished jobs are kept
}

func (c *Config) applyDefaults() {
	if c.NodeTick <= 0 {
		c.NodeTick = 30 * time.Second
	}
	if c.JobTick <= 0 {
		c.JobTick = 60 * time.Second
	}
	if c.NodeOfflineAfter <= 0 {
		c.NodeOfflineAfter = 90 * time.Second
	}
	if c.JobStaleAfter <= 0 {
		c.JobStaleAfter = 2 * time.Hour
	}
	if c.CleanupTick <= 0 {
		c.CleanupTick = 24 * time.Hour
	}
	if c.JobRetention <= 0 {
		c.JobRetention = 30 * 24 * time.Hour
	}
}

type Monitor struct {
	nodes  NodeSweeper
	jobs   JobSweeper
	cfg    Config
	logger *slog.Logger
	done   chan struct{}
}

func New(nodes NodeSweeper, jobs JobSweeper, cfg Config, logger *slog.Logger) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		nodes:  nodes,
		jobs:   jobs,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Run drives the sweeps until the context is cancelled. A failed sweep
// is logged and retried on the next tick; one sweep failing never stops
// the others.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.done)

	nodeTicker := time.NewTicker(m.cfg.NodeTick)
	defer nodeTicker.Stop()
	jobTicker := time.NewTicker(m.cfg.JobTick)
	defer jobTicker.Stop()
	cleanupTicker := time.NewTicker(m.cfg.CleanupTick)
	defer cleanupTicker.Stop()

	m.logger.Info("monitor started",
		"node_offline_after", m.cfg.NodeOfflineAfter,
		"job_stale_after", m.cfg.JobStaleAfter,
		"job_retention", m.cfg.JobRetention)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return
		case <-nodeTicker.C:
			if err := m.SweepNodes(ctx); err != nil {
				m.logger.Error("node sweep failed", "error", err)
			}
		case <-jobTicker.C:
			if err := m.SweepJobs(ctx); err != nil {
				m.logger.Error("job sweep failed", "error", err)
			}
		case <-cleanupTicker.C:
			if err := m.SweepOldJobs(ctx); err != nil {
				m.logger.Error("cleanup sweep failed", "error", err)
			}
		}
	}
}

// Done is closed once Run has returned.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// SweepNodes marks online nodes offline when their last heartbeat is
// older than the configured threshold.
func (m *Monitor) SweepNodes(ctx context.Context) error {
	cutoff := time.Now().Add(-m.cfg.NodeOfflineAfter)
	stale, err := m.nodes.StaleOnlineNodeIDs(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale nodes: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	if err := m.nodes.MarkNodesOffline(ctx, stale); err != nil {
		return fmt.Errorf("mark nodes offline: %w", err)
	}
	m.logger.Warn("nodes marked offline", "count", len(stale), "nodes", stale)
	return nil
}

// SweepJobs force-fails running jobs that started before the staleness
// threshold. The agent that owned them is assumed gone.
func (m *Monitor) SweepJobs(ctx context.Context) error {
	cutoff := time.Now().Add(-m.cfg.JobStaleAfter)
	n, err := m.jobs.FailStaleJobs(ctx, cutoff,
		fmt.Sprintf("job marked failed after running longer than %s without completion", m.cfg.JobStaleAfter))
	if err != nil {
		return fmt.Errorf("fail stale jobs: %w", err)
	}
	if n > 0 {
		m.logger.Warn("stale jobs failed", "count", n)
	}
	return nil
}

// SweepOldJobs purges terminal jobs that finished before the retention
// window. Their history and logs are gone after this.
func (m *Monitor) SweepOldJobs(ctx context.Context) error {
	cutoff := time.Now().Add(-m.cfg.JobRetention)
	n, err := m.jobs.DeleteOldJobs(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete old jobs: %w", err)
	}
	if n > 0 {
		m.logger.Info("old jobs purged", "count", n)
	}
	return nil
}

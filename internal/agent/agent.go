// Package agent contains the worker-side runtime: registration,
// heartbeats, the job poll loop and the dataset scanner.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/YangYuS8/mlsmanager/internal/agent/client"
	"github.com/YangYuS8/mlsmanager/internal/agent/executor"
	"github.com/YangYuS8/mlsmanager/internal/agent/scanner"
	"github.com/YangYuS8/mlsmanager/internal/agent/sysinfo"
	"github.com/YangYuS8/mlsmanager/pkg/api"
)

// Config holds configuration for the worker agent.
type Config struct {
	NodeID            string
	NodeName          string
	Host              string
	Port              int
	StoragePath       string
	DatasetsPath      string
	Concurrency       int
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	ScanInterval      time.Duration
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = 5 * time.Minute
	}
	if c.NodeName == "" {
		c.NodeName = c.NodeID
	}
}

// MasterClient is the API surface the agent needs from the master.
type MasterClient interface {
	LoadToken() bool
	Register(ctx context.Context, req api.RegisterNodeRequest) (*api.RegisterNodeResponse, error)
	Heartbeat(ctx context.Context, req api.HeartbeatRequest) error
	QueuedJobs(ctx context.Context) ([]api.JobResponse, error)
	GetJob(ctx context.Context, jobID string) (*api.JobResponse, error)
	UpdateJobStatus(ctx context.Context, jobID string, req api.JobStatusUpdateRequest) error
	AppendJobLogs(ctx context.Context, jobID, content string) error
	ReportDatasets(ctx context.Context, req api.BatchDatasetsRequest) (*api.BatchDatasetsResponse, error)
}

// Agent runs on every compute node. It registers with the master,
// heartbeats, pulls queued jobs and executes them.
type Agent struct {
	config   Config
	client   MasterClient
	executor *executor.Executor
	logger   *slog.Logger
	done     chan struct{}
}

func New(cfg Config, mc MasterClient, exec *executor.Executor, logger *slog.Logger) *Agent {
	cfg.applyDefaults()
	return &Agent{
		config:   cfg,
		client:   mc,
		executor: exec,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Run starts the agent's loops. It blocks until the context is
// cancelled, then waits for in-flight jobs to stop.
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.done)

	if a.client.LoadToken() {
		a.logger.Info("loaded stored credential")
	}
	if err := a.registerWithRetry(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		a.heartbeatLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.pollLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.scanLoop(ctx)
	}()

	<-ctx.Done()
	a.logger.Info("agent shutting down, stopping jobs")
	a.executor.CancelAll()
	wg.Wait()
	return nil
}

// Done is closed once Run has returned.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// registerWithRetry tries to register with capped exponential backoff.
// The master being down briefly at agent boot is normal, but an agent
// that cannot obtain an identity cannot do anything useful, so after
// maxRegisterAttempts the error is returned and the agent gives up.
func (a *Agent) registerWithRetry(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = time.Minute
	const maxRegisterAttempts = 10

	var err error
	for attempt := 1; attempt <= maxRegisterAttempts; attempt++ {
		if err = a.register(ctx); err == nil {
			return nil
		}
		a.logger.Warn("registration failed, retrying",
			"error", err, "attempt", attempt, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return fmt.Errorf("registration failed after %d attempts: %w", maxRegisterAttempts, err)
}

func (a *Agent) register(ctx context.Context) error {
	snap := sysinfo.Collect(ctx, a.config.StoragePath)

	storagePath := a.config.StoragePath
	req := api.RegisterNodeRequest{
		NodeID:         a.config.NodeID,
		Name:           a.config.NodeName,
		Host:           a.config.Host,
		Port:           a.config.Port,
		CPUCount:       snap.CPUCount,
		MemoryTotalGB:  snap.MemoryTotalGB,
		GPUCount:       snap.GPUCount,
		GPUInfo:        snap.GPUInfo,
		StorageTotalGB: snap.StorageTotalGB,
		StorageUsedGB:  snap.StorageUsedGB,
	}
	if storagePath != "" {
		req.StoragePath = &storagePath
	}

	resp, err := a.client.Register(ctx, req)
	if err != nil {
		return err
	}
	a.logger.Info("registered with master", "node", resp.Node.NodeID)
	return nil
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.heartbeat(ctx); err != nil {
				if errors.Is(err, client.ErrUnauthorized) {
					// credential expired or the master lost us: re-register
					a.logger.Warn("credential rejected, re-registering")
					if err := a.register(ctx); err != nil {
						a.logger.Error("re-registration failed", "error", err)
					}
					continue
				}
				a.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

func (a *Agent) heartbeat(ctx context.Context) error {
	snap := sysinfo.Collect(ctx, a.config.StoragePath)
	return a.client.Heartbeat(ctx, api.HeartbeatRequest{
		Status:         "online",
		CPUCount:       snap.CPUCount,
		MemoryTotalGB:  snap.MemoryTotalGB,
		GPUCount:       snap.GPUCount,
		GPUInfo:        snap.GPUInfo,
		StorageTotalGB: snap.StorageTotalGB,
		StorageUsedGB:  snap.StorageUsedGB,
	})
}

func (a *Agent) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jobs, err := a.client.QueuedJobs(ctx)
			if err != nil {
				a.logger.Warn("job poll failed", "error", err)
				continue
			}

			for _, job := range jobs {
				if a.executor.Running(job.ID) {
					continue
				}
				select {
				case sem <- struct{}{}:
				default:
					// all slots busy, leave the rest queued
					continue
				}

				wg.Add(1)
				go func(job api.JobResponse) {
					defer wg.Done()
					defer func() { <-sem }()
					a.runJob(ctx, job)
				}(job)
			}
		}
	}
}

// runJob drives one job through its lifecycle: report running, execute,
// watch for cancellation, report the terminal state.
func (a *Agent) runJob(ctx context.Context, job api.JobResponse) {
	logger := a.logger.With("job_id", job.ID, "job", job.Name)

	if err := a.client.UpdateJobStatus(ctx, job.ID, api.JobStatusUpdateRequest{Status: "running"}); err != nil {
		// could not claim the job (already cancelled, or master unreachable)
		logger.Warn("could not mark job running", "error", err)
		return
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go a.watchForCancel(watchCtx, job.ID)

	sink := newLogShipper(a.client, job.ID, logger)
	result := a.executor.Run(ctx, specFromJob(job), sink)
	sink.Flush()
	stopWatch()

	if result.Cancelled {
		// the master already holds the cancelled state; nothing to report
		logger.Info("job cancelled")
		return
	}

	update := api.JobStatusUpdateRequest{ExitCode: &result.ExitCode}
	if result.Failed() {
		update.Status = "failed"
		if result.ErrorMessage != "" {
			msg := result.ErrorMessage
			update.ErrorMessage = &msg
		}
	} else {
		update.Status = "completed"
	}

	if err := a.client.UpdateJobStatus(ctx, job.ID, update); err != nil {
		logger.Error("failed to report job result", "error", err, "status", update.Status)
	}
}

// watchForCancel polls the job record and tears the local process down
// when the master reports it cancelled.
func (a *Agent) watchForCancel(ctx context.Context, jobID string) {
	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := a.client.GetJob(ctx, jobID)
			if err != nil {
				continue
			}
			if job.Status == "cancelled" {
				a.executor.Cancel(jobID)
				return
			}
		}
	}
}

func (a *Agent) scanLoop(ctx context.Context) {
	if a.config.DatasetsPath == "" {
		return
	}

	// scan once at startup, then on the interval
	a.scanDatasets(ctx)

	ticker := time.NewTicker(a.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.scanDatasets(ctx)
		}
	}
}

func (a *Agent) scanDatasets(ctx context.Context) {
	reports, err := scanner.Scan(a.config.DatasetsPath)
	if err != nil {
		a.logger.Warn("dataset scan failed", "error", err)
		return
	}
	if len(reports) == 0 {
		return
	}

	resp, err := a.client.ReportDatasets(ctx, api.BatchDatasetsRequest{Datasets: reports})
	if err != nil {
		a.logger.Warn("dataset report failed", "error", err)
		return
	}
	a.logger.Info("datasets reported",
		"scanned", len(reports), "registered", resp.Registered, "updated", resp.Updated)
}

func specFromJob(job api.JobResponse) executor.Spec {
	spec := executor.Spec{
		ID:         job.ID,
		Name:       job.Name,
		JobType:    job.JobType,
		Command:    job.Command,
		Env:        job.Env,
		Volumes:    job.Volumes,
		TimeoutSec: job.TimeoutSec,
	}
	if job.Image != nil {
		spec.Image = *job.Image
	}
	if job.WorkingDir != nil {
		spec.WorkingDir = *job.WorkingDir
	}
	if job.CPULimit != nil {
		spec.CPULimit = *job.CPULimit
	}
	if job.MemoryLimitGB != nil {
		spec.MemoryGB = *job.MemoryLimitGB
	}
	if job.GPUCount != nil {
		spec.GPUCount = *job.GPUCount
	}
	return spec
}

// logShipper batches job output and ships it to the master. Writes are
// buffered so a chatty job does not turn into one HTTP call per line.
type logShipper struct {
	client MasterClient
	jobID  string
	logger *slog.Logger

	mu  sync.Mutex
	buf strings.Builder
}

const logShipThreshold = 4096

func newLogShipper(mc MasterClient, jobID string, logger *slog.Logger) *logShipper {
	return &logShipper{client: mc, jobID: jobID, logger: logger}
}

func (s *logShipper) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.buf.Write(p)
	shouldShip := s.buf.Len() >= logShipThreshold
	s.mu.Unlock()

	if shouldShip {
		s.Flush()
	}
	return len(p), nil
}

// Flush ships whatever is buffered. The final flush after a cancelled
// or shut-down job still has to land, so shipping runs on its own
// short-lived context rather than the job's.
func (s *logShipper) Flush() {
	s.mu.Lock()
	content := s.buf.String()
	s.buf.Reset()
	s.mu.Unlock()

	if content == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.AppendJobLogs(ctx, s.jobID, content); err != nil {
		s.logger.Warn("log shipping failed", "error", err)
	}
}

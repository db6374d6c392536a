// Package executor runs jobs on the agent's host in one of four
// environments: a docker container, a conda environment, a python venv
// or the bare system shell.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	defaultTimeoutSec = 3600
	// grace period between asking a job to stop and killing it
	stopGracePeriod = 10 * time.Second
	// how much trailing stderr ends up in the failure message
	stderrTailBytes = 1000
)

// Spec is everything needed to run one job.
type Spec struct {
	ID         string
	Name       string
	JobType    string
	Image      string // container image; env name for conda; venv path for venv
	Command    string
	WorkingDir string
	Env        map[string]string
	Volumes    []string // extra host:container binds for docker jobs
	CPULimit   int
	MemoryGB   int
	GPUCount   int
	TimeoutSec int
}

// Result is the outcome of a finished job.
type Result struct {
	ExitCode     int
	ErrorMessage string // empty on success
	TimedOut     bool
	Cancelled    bool
}

func (r Result) Failed() bool {
	return r.ExitCode != 0 || r.ErrorMessage != ""
}

// Executor dispatches jobs to the right environment and tracks running
// jobs so they can be cancelled. Each job gets its own directory under
// workspaceRoot unless the job names a working directory itself.
type Executor struct {
	workspaceRoot string
	docker        *dockerRunner
	logger        *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func New(workspaceRoot string, logger *slog.Logger) *Executor {
	return &Executor{
		workspaceRoot: workspaceRoot,
		logger:        logger,
		running:       make(map[string]context.CancelFunc),
	}
}

// Run executes a job to completion, writing its combined output to
// logs. It blocks until the job exits, times out or is cancelled.
func (e *Executor) Run(ctx context.Context, spec Spec, logs io.Writer) Result {
	timeout := time.Duration(spec.TimeoutSec) * time.Second
	if spec.TimeoutSec <= 0 {
		timeout = defaultTimeoutSec * time.Second
	}

	workDir := spec.WorkingDir
	if workDir == "" {
		workDir = filepath.Join(e.workspaceRoot, "job_"+spec.ID)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{ExitCode: -1, ErrorMessage: fmt.Sprintf("create job workspace: %v", err)}
	}

	runCtx, cancel := context.WithCancel(ctx)
	timeoutCtx, cancelTimeout := context.WithTimeout(runCtx, timeout)
	defer cancelTimeout()

	e.track(spec.ID, cancel)
	defer e.untrack(spec.ID)

	e.logger.Info("job starting", "job_id", spec.ID, "job", spec.Name, "type", spec.JobType, "workdir", workDir)
	start := time.Now()

	var result Result
	switch spec.JobType {
	case "docker":
		result = e.runDocker(timeoutCtx, spec, workDir, logs)
	case "conda", "venv", "system":
		result = runProcess(timeoutCtx, spec, workDir, logs)
	default:
		result = Result{ExitCode: -1, ErrorMessage: fmt.Sprintf("unsupported job type %q", spec.JobType)}
	}

	// distinguish the three ways the context can kill a job
	if timeoutCtx.Err() != nil {
		switch {
		case runCtx.Err() != nil && ctx.Err() == nil:
			result.Cancelled = true
			result.ErrorMessage = "job cancelled"
		case ctx.Err() != nil:
			result.Cancelled = true
			result.ErrorMessage = "agent shutting down"
		default:
			result.TimedOut = true
			result.ErrorMessage = fmt.Sprintf("job timed out after %s", timeout)
		}
	}

	e.logger.Info("job finished",
		"job_id", spec.ID,
		"exit_code", result.ExitCode,
		"duration", time.Since(start).Round(time.Millisecond),
		"timed_out", result.TimedOut,
		"cancelled", result.Cancelled)
	return result
}

// Cancel stops a running job. Returns false when the job is not
// running on this executor.
func (e *Executor) Cancel(jobID string) bool {
	e.mu.Lock()
	cancel, ok := e.running[jobID]
	e.mu.Unlock()
	if ok {
		e.logger.Info("cancelling job", "job_id", jobID)
		cancel()
	}
	return ok
}

// CancelAll stops every running job. Used on shutdown.
func (e *Executor) CancelAll() {
	e.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(e.running))
	for _, cancel := range e.running {
		cancels = append(cancels, cancel)
	}
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Running reports whether a job is currently executing here.
func (e *Executor) Running(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[jobID]
	return ok
}

// RunningCount returns the number of in-flight jobs.
func (e *Executor) RunningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

func (e *Executor) track(jobID string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running[jobID] = cancel
}

func (e *Executor) untrack(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, jobID)
}

func (e *Executor) runDocker(ctx context.Context, spec Spec, workDir string, logs io.Writer) Result {
	if e.docker == nil {
		runner, err := newDockerRunner()
		if err != nil {
			return Result{ExitCode: -1, ErrorMessage: fmt.Sprintf("docker unavailable: %v", err)}
		}
		e.docker = runner
	}
	return e.docker.run(ctx, spec, workDir, logs)
}

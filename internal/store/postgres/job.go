package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YangYuS8/mlsmanager/internal/store"
)

const jobColumns = `id, name, node_id, job_type, image, command, working_dir, env, volumes,
	cpu_limit, memory_limit_gb, gpu_count, timeout_seconds,
	status, exit_code, error_message, log_path, output_path,
	created_at, started_at, completed_at`

func scanJob(row interface {
	Scan(dest ...interface{}) error
}) (*store.Job, error) {
	var j store.Job
	var jobType, status string
	var envRaw, volRaw []byte
	err := row.Scan(
		&j.ID, &j.Name, &j.NodeID, &jobType, &j.Image, &j.Command, &j.WorkingDir, &envRaw, &volRaw,
		&j.CPULimit, &j.MemoryLimitGB, &j.GPUCount, &j.TimeoutSec,
		&status, &j.ExitCode, &j.ErrorMessage, &j.LogPath, &j.OutputPath,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	j.JobType = store.JobType(jobType)
	j.Status = store.JobStatus(status)
	if len(envRaw) > 0 {
		if err := json.Unmarshal(envRaw, &j.Env); err != nil {
			return nil, fmt.Errorf("decode job env: %w", err)
		}
	}
	if len(volRaw) > 0 {
		if err := json.Unmarshal(volRaw, &j.Volumes); err != nil {
			return nil, fmt.Errorf("decode job volumes: %w", err)
		}
	}
	return &j, nil
}

// CreateJob inserts a new job row. Jobs always start pending; a pinned
// node_id only pre-selects the target for the scheduler-free path.
func (s *Store) CreateJob(ctx context.Context, job *store.Job) error {
	var envRaw []byte
	if len(job.Env) > 0 {
		var err error
		envRaw, err = json.Marshal(job.Env)
		if err != nil {
			return fmt.Errorf("encode job env: %w", err)
		}
	}
	var volRaw []byte
	if len(job.Volumes) > 0 {
		var err error
		volRaw, err = json.Marshal(job.Volumes)
		if err != nil {
			return fmt.Errorf("encode job volumes: %w", err)
		}
	}

	query := `
		INSERT INTO jobs (id, name, node_id, job_type, image, command, working_dir, env, volumes,
			cpu_limit, memory_limit_gb, gpu_count, timeout_seconds, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'pending', $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.Name, job.NodeID, string(job.JobType), job.Image, job.Command,
		job.WorkingDir, envRaw, volRaw, job.CPULimit, job.MemoryLimitGB, job.GPUCount,
		job.TimeoutSec, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *Store) GetJobByID(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return j, err
}

func (s *Store) ListJobs(ctx context.Context, status *store.JobStatus, offset, limit int) ([]store.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if status != nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at DESC OFFSET $2 LIMIT $3`,
			string(*status), offset, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC OFFSET $1 LIMIT $2`,
			offset, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListPendingJobs returns pending jobs oldest first, the scheduler's
// FIFO scan order.
func (s *Store) ListPendingJobs(ctx context.Context) ([]store.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *Store) QueuedJobsForNode(ctx context.Context, nodeID uuid.UUID, limit int) ([]store.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE node_id = $1 AND status = 'queued' ORDER BY created_at ASC LIMIT $2`,
		nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("queued jobs for node: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *Store) CountRunningJobs(ctx context.Context, nodeID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE node_id = $1 AND status = 'running'`,
		nodeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count running jobs: %w", err)
	}
	return count, nil
}

// AssignJob moves a pending job to queued on the given node. The
// conditional update makes assignment exactly-once: a job already moved
// off pending by a concurrent pass is left untouched and false is
// returned.
func (s *Store) AssignJob(ctx context.Context, jobID, nodeID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET node_id = $2, status = 'queued' WHERE id = $1 AND status = 'pending'`,
		jobID, nodeID)
	if err != nil {
		return false, fmt.Errorf("assign job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TransitionJob applies a status update under the state machine rules.
// started_at is set exactly once on entry to running, completed_at
// exactly once on entry to a terminal state; exit code and error message
// are sticky history and never cleared.
func (s *Store) TransitionJob(ctx context.Context, jobID uuid.UUID, upd store.JobStatusUpdate) (*store.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock job %s: %w", jobID, err)
	}

	if !store.CanTransition(store.JobStatus(current), upd.Status) {
		return nil, fmt.Errorf("%w: cannot transition job from %s to %s",
			store.ErrConflict, current, upd.Status)
	}

	query := `
		UPDATE jobs SET
			status = $2,
			exit_code = COALESCE($3, exit_code),
			error_message = COALESCE($4, error_message),
			log_path = COALESCE($5, log_path),
			output_path = COALESCE($6, output_path),
			started_at = CASE WHEN $2 = 'running' THEN COALESCE(started_at, NOW()) ELSE started_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN COALESCE(completed_at, NOW()) ELSE completed_at END
		WHERE id = $1
		RETURNING ` + jobColumns

	row := tx.QueryRowContext(ctx, query, jobID, string(upd.Status),
		upd.ExitCode, upd.ErrorMessage, upd.LogPath, upd.OutputPath)
	j, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("transition job %s: %w", jobID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return j, nil
}

// CancelJob forces a non-terminal job to cancelled.
func (s *Store) CancelJob(ctx context.Context, jobID uuid.UUID) (*store.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cancel: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock job %s: %w", jobID, err)
	}

	if store.JobStatus(current).Terminal() {
		return nil, fmt.Errorf("%w: cannot cancel job in %s status", store.ErrConflict, current)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE jobs SET status = 'cancelled', completed_at = COALESCE(completed_at, NOW())
		WHERE id = $1
		RETURNING `+jobColumns, jobID)
	j, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("cancel job %s: %w", jobID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}
	return j, nil
}

// FailStaleJobs force-fails running jobs whose started_at precedes the
// threshold. A backstop for agents that crashed without reporting.
func (s *Store) FailStaleJobs(ctx context.Context, startedBefore time.Time, errMsg string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error_message = $2, completed_at = NOW()
		WHERE status = 'running' AND started_at < $1`,
		startedBefore, errMsg)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteOldJobs purges terminal jobs finished before the threshold.
// Their log chunks go with them via the foreign key cascade.
func (s *Store) DeleteOldJobs(ctx context.Context, completedBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < $1`,
		completedBefore)
	if err != nil {
		return 0, fmt.Errorf("delete old jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) JobStats(ctx context.Context) (map[store.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[store.JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[store.JobStatus(status)] = count
	}
	return stats, rows.Err()
}

// AppendJobLog stores a chunk of log output for a job.
func (s *Store) AppendJobLog(ctx context.Context, jobID uuid.UUID, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_logs (job_id, content) VALUES ($1, $2)`,
		jobID, content)
	if err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}

// JobLogs returns log chunks for a job in append order.
func (s *Store) JobLogs(ctx context.Context, jobID uuid.UUID) ([]store.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, content, created_at FROM job_logs WHERE job_id = $1 ORDER BY id ASC`,
		jobID)
	if err != nil {
		return nil, fmt.Errorf("job logs: %w", err)
	}
	defer rows.Close()

	var entries []store.LogEntry
	for rows.Next() {
		var e store.LogEntry
		if err := rows.Scan(&e.ID, &e.JobID, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func collectJobs(rows *sql.Rows) ([]store.Job, error) {
	var jobs []store.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

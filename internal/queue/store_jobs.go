package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Enqueue inserts a new job with status pending. The supplied retry policy is
// honored as-is so re-enqueued work keeps its history; a zero-valued policy
// gets the configured default max retries.
func (s *Store) Enqueue(ctx context.Context, jobType Type, payload any, priority int, policy RetryPolicy) (*Job, error) {
	if _, ok := ParseType(string(jobType)); !ok {
		return nil, fmt.Errorf("enqueue: unknown job type %q", jobType)
	}
	encoded, err := EncodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	if policy.RetryCount < 0 {
		policy.RetryCount = 0
	}
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = s.defaultMaxRetries
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (type, priority, payload, status, retry_count, max_retries, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(jobType),
		ClampPriority(priority),
		nullableString(encoded),
		StatusPending,
		policy.RetryCount,
		policy.MaxRetries,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Claim atomically selects the next runnable job, transitions it to
// processing, stamps started_at, and returns it. Runnable means pending, or
// retrying with a due next_retry_at, ordered by priority (high first) then
// creation time. The read-select-update happens in one SQL statement so two
// concurrent workers can never claim the same row; this is the queue's core
// correctness property.
func (s *Store) Claim(ctx context.Context) (*Job, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE jobs
         SET status = ?, started_at = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = (
             SELECT id FROM jobs
             WHERE status = ?
                OR (status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?)
             ORDER BY priority DESC, created_at ASC, id ASC
             LIMIT 1
         )
         RETURNING `+jobColumns,
		StatusProcessing,
		now,
		now,
		now,
		StatusPending,
		StatusRetrying,
		now,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete marks a processing job as done.
func (s *Store) Complete(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete job rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("complete job %d: not processing", id)
	}
	return nil
}

// Fail records a job failure. Below the retry budget the job transitions to
// retrying with an exponential backoff (base doubled per attempt, capped);
// past the budget it fails terminally but stays queryable for inspection and
// manual retry.
func (s *Store) Fail(ctx context.Context, id int64, failure error) (*Job, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("fail job %d: not found", id)
	}

	message := "job failed"
	if failure != nil {
		message = failure.Error()
	}

	now := time.Now().UTC()
	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = StatusRetrying
		next := now.Add(s.backoffDelay(job.RetryCount))
		job.NextRetryAt = &next
	} else {
		job.Status = StatusFailed
		job.NextRetryAt = nil
	}
	job.ErrorMessage = message
	job.LastHeartbeat = nil
	job.UpdatedAt = now

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, retry_count = ?, error_message = ?, next_retry_at = ?,
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		job.Status,
		job.RetryCount,
		nullableString(message),
		nullableTime(job.NextRetryAt),
		now.Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("fail job: %w", err)
	}
	return job, nil
}

// FailTerminal fails a job without consuming its retry budget, for errors no
// amount of retrying can fix (validation, configuration). The chain stops
// here; the row stays queryable and manually retryable.
func (s *Store) FailTerminal(ctx context.Context, id int64, failure error) error {
	message := "job failed"
	if failure != nil {
		message = failure.Error()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?, next_retry_at = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		StatusFailed,
		nullableString(message),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("fail job terminally: %w", err)
	}
	return nil
}

func (s *Store) backoffDelay(retryCount int) time.Duration {
	delay := s.backoffBase
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if s.backoffCap > 0 && delay >= s.backoffCap {
			return s.backoffCap
		}
	}
	if s.backoffCap > 0 && delay > s.backoffCap {
		return s.backoffCap
	}
	return delay
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ResetStalled returns jobs stuck in processing to pending once their
// heartbeat (or start time, when a worker died before the first beat) is
// older than staleAfter. Retry counts are preserved. This is the crash
// recovery path; it is reachable only here, never through Enqueue.
func (s *Store) ResetStalled(ctx context.Context, staleAfter time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-staleAfter).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, started_at = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND COALESCE(last_heartbeat, started_at, updated_at) < ?`,
		StatusPending,
		now.Format(time.RFC3339Nano),
		StatusProcessing,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stalled jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves terminally failed jobs back to pending. With no IDs all
// failed jobs are retried. Retry counters restart so the job gets a fresh
// budget.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, retry_count = 0, error_message = NULL, next_retry_at = NULL, updated_at = ?
             WHERE status = ?`,
			StatusPending,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, now, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE jobs
        SET status = ?, retry_count = 0, error_message = NULL, next_retry_at = NULL, updated_at = ?
        WHERE status = ? AND id IN (` + placeholders + `)`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), newest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at DESC, id DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

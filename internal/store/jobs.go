package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
)

var (
	// ErrNotFound is returned when a job does not exist or belongs to
	// another tenant.
	ErrNotFound = errors.New("job not found")
	// ErrConflict is returned when a transition is rejected because the
	// job is no longer in the required state.
	ErrConflict = errors.New("job not in required state")
)

// ValidationError rejects malformed enqueue requests.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

const jobColumns = `id, job_type, status, tenant_id, input_payload, result,
  error_kind, error_message, retries, max_retries, recoveries, priority,
  parent_job_id, created_at, updated_at, available_at, started_at,
  heartbeat_at, completed_at, cancelled_at`

// EnqueueRequest carries the caller-supplied fields of a new job.
type EnqueueRequest struct {
	JobType     string
	TenantID    string
	Payload     json.RawMessage
	Priority    int
	MaxRetries  int
	ParentJobID string
}

// Enqueue inserts a new pending job and returns it.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*model.Job, error) {
	if req.TenantID == "" {
		return nil, &ValidationError{Msg: "tenant id is required"}
	}
	if req.JobType == "" {
		return nil, &ValidationError{Msg: "job type is required"}
	}
	if req.MaxRetries < 0 {
		return nil, &ValidationError{Msg: "max retries must not be negative"}
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}
	if !json.Valid(req.Payload) {
		return nil, &ValidationError{Msg: "payload is not valid JSON"}
	}

	now := s.Now().UTC()
	j := &model.Job{
		ID:           uuid.New().String(),
		JobType:      req.JobType,
		Status:       model.StatusPending,
		TenantID:     req.TenantID,
		InputPayload: req.Payload,
		MaxRetries:   req.MaxRetries,
		Priority:     req.Priority,
		ParentJobID:  req.ParentJobID,
		CreatedAt:    now,
		UpdatedAt:    now,
		AvailableAt:  now,
	}

	_, err := s.exec(ctx, `
INSERT INTO jobs (id, job_type, status, tenant_id, input_payload, retries,
  max_retries, recoveries, priority, parent_job_id, created_at, updated_at, available_at)
VALUES (?, ?, ?, ?, ?, 0, ?, 0, ?, ?, ?, ?, ?)
`, j.ID, j.JobType, j.Status, j.TenantID, string(j.InputPayload),
		j.MaxRetries, j.Priority, nullString(j.ParentJobID),
		now.UnixNano(), now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("enqueue failed: %w", err)
	}
	return j, nil
}

// Get loads a job by id regardless of tenant. Engine-side use only.
func (s *Store) Get(ctx context.Context, id string) (*model.Job, error) {
	row := s.queryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
	return scanJob(row)
}

// GetForTenant loads a job scoped to a tenant. A job owned by a different
// tenant is reported as not found, never as forbidden.
func (s *Store) GetForTenant(ctx context.Context, tenantID, id string) (*model.Job, error) {
	row := s.queryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=? AND tenant_id=?`, id, tenantID)
	return scanJob(row)
}

// ClaimNext atomically takes ownership of the best claimable job and moves
// it to in_progress. The select finds a candidate; the conditional update
// is the claim itself. If another worker got there first zero rows change
// and we return nothing rather than retry, since the caller polls anyway.
func (s *Store) ClaimNext(ctx context.Context, allowedTypes []string) (*model.Job, error) {
	now := s.Now().UTC()

	q := `
SELECT id FROM jobs
WHERE status IN ('pending','queued')
  AND available_at <= ?`
	args := []any{now.UnixNano()}
	if len(allowedTypes) > 0 {
		q += ` AND job_type IN (` + placeholders(len(allowedTypes)) + `)`
		for _, t := range allowedTypes {
			args = append(args, t)
		}
	}
	q += `
ORDER BY priority DESC, created_at ASC
LIMIT 1`

	var id string
	err := s.queryRow(ctx, q, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable job: %w", err)
	}

	res, err := s.exec(ctx, `
UPDATE jobs
SET status='in_progress', started_at=?, heartbeat_at=?, updated_at=?
WHERE id=? AND status IN ('pending','queued')
`, now.UnixNano(), now.UnixNano(), now.UnixNano(), id)
	if err != nil {
		return nil, fmt.Errorf("claim update: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		// Lost the race to another worker.
		return nil, nil
	}

	j, err := s.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload job after claim: %w", err)
	}
	return j, nil
}

// Heartbeat refreshes the liveness timestamp of a running job. Returns
// ErrConflict when the job is no longer in_progress; best-effort, the
// caller only logs it.
func (s *Store) Heartbeat(ctx context.Context, id string) error {
	now := s.Now().UTC()
	res, err := s.exec(ctx, `
UPDATE jobs SET heartbeat_at=?, updated_at=?
WHERE id=? AND status='in_progress'
`, now.UnixNano(), now.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrConflict
	}
	return nil
}

// Complete transitions in_progress -> completed and stores the result.
func (s *Store) Complete(ctx context.Context, id string, result json.RawMessage) error {
	if len(result) == 0 {
		result = json.RawMessage(`{}`)
	}
	now := s.Now().UTC()
	res, err := s.exec(ctx, `
UPDATE jobs
SET status='completed', result=?, error_kind=NULL, error_message=NULL,
    completed_at=?, updated_at=?
WHERE id=? AND status='in_progress'
`, string(result), now.UnixNano(), now.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrConflict
	}
	return nil
}

// Fail records a failed attempt. Retryable failures with retries remaining
// go back to pending with a not-before delay; everything else is terminal.
// Reports whether the job was requeued.
func (s *Store) Fail(ctx context.Context, id string, kind model.ErrorKind, msg string, retryable bool, delay time.Duration) (bool, error) {
	j, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if j.Status != model.StatusInProgress {
		return false, ErrConflict
	}

	now := s.Now().UTC()
	if retryable && j.Retries < j.MaxRetries {
		res, err := s.exec(ctx, `
UPDATE jobs
SET status='pending', retries=retries+1, error_kind=?, error_message=?,
    started_at=NULL, heartbeat_at=NULL, available_at=?, updated_at=?
WHERE id=? AND status='in_progress' AND retries=?
`, string(kind), msg, now.Add(delay).UnixNano(), now.UnixNano(), id, j.Retries)
		if err != nil {
			return false, fmt.Errorf("fail retry: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return false, ErrConflict
		}
		return true, nil
	}

	res, err := s.exec(ctx, `
UPDATE jobs
SET status='failed', error_kind=?, error_message=?, updated_at=?
WHERE id=? AND status='in_progress'
`, string(kind), msg, now.UnixNano(), id)
	if err != nil {
		return false, fmt.Errorf("fail: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return false, ErrConflict
	}
	return false, nil
}

// Cancel transitions any non-terminal job to cancelled, scoped to the
// tenant. Terminal jobs return ErrConflict, missing ones ErrNotFound.
func (s *Store) Cancel(ctx context.Context, tenantID, id string) error {
	now := s.Now().UTC()
	res, err := s.exec(ctx, `
UPDATE jobs
SET status='cancelled', cancelled_at=?, updated_at=?
WHERE id=? AND tenant_id=? AND status NOT IN ('completed','failed','cancelled')
`, now.UnixNano(), now.UnixNano(), id, tenantID)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	if _, err := s.GetForTenant(ctx, tenantID, id); err != nil {
		return err
	}
	return ErrConflict
}

// FindStale returns in_progress jobs whose heartbeat is older than the
// threshold. Feeds the orphan recovery sweep.
func (s *Store) FindStale(ctx context.Context, olderThan time.Duration) ([]model.Job, error) {
	cutoff := s.Now().UTC().Add(-olderThan)
	rows, err := s.query(ctx, `
SELECT `+jobColumns+` FROM jobs
WHERE status='in_progress' AND heartbeat_at IS NOT NULL AND heartbeat_at < ?
ORDER BY heartbeat_at ASC
`, cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("find stale: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Requeue returns a stale in_progress job to pending and counts the
// recovery. The staleness guard keeps the sweep idempotent: a job already
// recovered (or heartbeating again) no longer matches and nothing changes.
func (s *Store) Requeue(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	now := s.Now().UTC()
	res, err := s.exec(ctx, `
UPDATE jobs
SET status='pending', recoveries=recoveries+1,
    started_at=NULL, heartbeat_at=NULL, available_at=?, updated_at=?
WHERE id=? AND status='in_progress' AND heartbeat_at < ?
`, now.UnixNano(), now.UnixNano(), id, staleBefore.UnixNano())
	if err != nil {
		return false, fmt.Errorf("requeue: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// FailOrphaned terminally fails a stale job whose recovery budget is
// spent. Same staleness guard as Requeue.
func (s *Store) FailOrphaned(ctx context.Context, id string, staleBefore time.Time, msg string) (bool, error) {
	now := s.Now().UTC()
	res, err := s.exec(ctx, `
UPDATE jobs
SET status='failed', error_kind=?, error_message=?, updated_at=?
WHERE id=? AND status='in_progress' AND heartbeat_at < ?
`, string(model.KindOrphaned), msg, now.UnixNano(), id, staleBefore.UnixNano())
	if err != nil {
		return false, fmt.Errorf("fail orphaned: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

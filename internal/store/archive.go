package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
)

// ArchiveTerminalBefore moves terminal jobs last touched before the cutoff
// into archived_jobs and deletes them from the live table. Returns the
// number of jobs archived.
func (s *Store) ArchiveTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	now := s.Now().UTC()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`
INSERT INTO archived_jobs (id, job_type, status, tenant_id, input_payload,
  result, error_kind, error_message, retries, max_retries, recoveries,
  priority, parent_job_id, created_at, updated_at, completed_at,
  cancelled_at, archived_at)
SELECT id, job_type, status, tenant_id, input_payload, result, error_kind,
  error_message, retries, max_retries, recoveries, priority, parent_job_id,
  created_at, updated_at, completed_at, cancelled_at, ?
FROM jobs
WHERE status IN ('completed','failed','cancelled') AND updated_at < ?
`), now.UnixNano(), cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("archive insert: %w", err)
	}
	archived, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, s.rebind(`
DELETE FROM jobs
WHERE status IN ('completed','failed','cancelled') AND updated_at < ?
`), cutoff.UnixNano()); err != nil {
		return 0, fmt.Errorf("archive delete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("tx commit: %w", err)
	}
	return archived, nil
}

// DeleteArchivedBefore drops archived rows past the long retention bound.
func (s *Store) DeleteArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM archived_jobs WHERE archived_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete archived: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListArchived returns a tenant's archived jobs, newest first.
func (s *Store) ListArchived(ctx context.Context, tenantID string, limit int) ([]model.Job, error) {
	q := `
SELECT id, job_type, status, tenant_id, input_payload, result, error_kind,
  error_message, retries, max_retries, recoveries, priority, parent_job_id,
  created_at, updated_at, completed_at, cancelled_at
FROM archived_jobs WHERE tenant_id=? ORDER BY created_at DESC`
	args := []any{tenantID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list archived: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var (
			j                               model.Job
			payload                         string
			result, errKind, errMsg, parent sql.NullString
			createdAt, updatedAt            int64
			completedAt, cancelledAt        sql.NullInt64
		)
		if err := rows.Scan(&j.ID, &j.JobType, &j.Status, &j.TenantID,
			&payload, &result, &errKind, &errMsg, &j.Retries, &j.MaxRetries,
			&j.Recoveries, &j.Priority, &parent, &createdAt, &updatedAt,
			&completedAt, &cancelledAt); err != nil {
			return nil, err
		}
		j.InputPayload = []byte(payload)
		if result.Valid {
			j.Result = []byte(result.String)
		}
		j.ErrorKind = model.ErrorKind(errKind.String)
		j.ErrorMessage = errMsg.String
		j.ParentJobID = parent.String
		j.CreatedAt = fromNanos(createdAt)
		j.UpdatedAt = fromNanos(updatedAt)
		j.CompletedAt = fromNullNanos(completedAt)
		j.CancelledAt = fromNullNanos(cancelledAt)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Reset wipes all live and archived jobs. Development helper.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.exec(ctx, `DELETE FROM jobs`); err != nil {
		return err
	}
	_, err := s.exec(ctx, `DELETE FROM archived_jobs`)
	return err
}

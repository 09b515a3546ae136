package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		j           model.Job
		result      sql.NullString
		errorKind   sql.NullString
		errorMsg    sql.NullString
		parentJobID sql.NullString
		payload     string
		createdAt   int64
		updatedAt   int64
		availableAt int64
		startedAt   sql.NullInt64
		heartbeatAt sql.NullInt64
		completedAt sql.NullInt64
		cancelledAt sql.NullInt64
	)

	err := row.Scan(
		&j.ID, &j.JobType, &j.Status, &j.TenantID, &payload, &result,
		&errorKind, &errorMsg, &j.Retries, &j.MaxRetries, &j.Recoveries,
		&j.Priority, &parentJobID, &createdAt, &updatedAt, &availableAt,
		&startedAt, &heartbeatAt, &completedAt, &cancelledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	j.InputPayload = json.RawMessage(payload)
	if result.Valid {
		j.Result = json.RawMessage(result.String)
	}
	j.ErrorKind = model.ErrorKind(errorKind.String)
	j.ErrorMessage = errorMsg.String
	j.ParentJobID = parentJobID.String
	j.CreatedAt = fromNanos(createdAt)
	j.UpdatedAt = fromNanos(updatedAt)
	j.AvailableAt = fromNanos(availableAt)
	j.StartedAt = fromNullNanos(startedAt)
	j.HeartbeatAt = fromNullNanos(heartbeatAt)
	j.CompletedAt = fromNullNanos(completedAt)
	j.CancelledAt = fromNullNanos(cancelledAt)
	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]model.Job, error) {
	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

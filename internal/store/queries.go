package store

import (
	"context"
	"fmt"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
)

// List returns a tenant's jobs, newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, tenantID string, status model.Status, limit int) ([]model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE tenant_id=?`
	args := []any{tenantID}

	if status != "" {
		q += ` AND status=?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// CountByStatus returns queue depth per status across all tenants.
func (s *Store) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	stats := map[model.Status]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		stats[model.Status(st)] = n
	}
	return stats, rows.Err()
}

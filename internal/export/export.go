// Package export produces job history reports for operators.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/store"
)

// Service is a small façade over the store that renders job history as
// XLSX or CSV bytes. Includes archived jobs so reports survive retention.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

func NewService(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

var header = []string{
	"ID", "Job Type", "Status", "Priority", "Retries", "Max Retries",
	"Recoveries", "Error Kind", "Error Message", "Created At", "Completed At",
}

func (s *Service) rows(ctx context.Context, tenantID string, limit int) ([][]string, error) {
	live, err := s.store.List(ctx, tenantID, "", limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	archived, err := s.store.ListArchived(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query archived jobs: %w", err)
	}

	rows := make([][]string, 0, len(live)+len(archived))
	for _, j := range append(live, archived...) {
		completed := ""
		if j.CompletedAt != nil {
			completed = j.CompletedAt.Format(time.RFC3339)
		}
		rows = append(rows, []string{
			j.ID, j.JobType, string(j.Status),
			strconv.Itoa(j.Priority), strconv.Itoa(j.Retries), strconv.Itoa(j.MaxRetries),
			strconv.Itoa(j.Recoveries), string(j.ErrorKind), j.ErrorMessage,
			j.CreatedAt.Format(time.RFC3339), completed,
		})
	}
	return rows, nil
}

// JobsXLSX returns an XLSX workbook of a tenant's job history.
func (s *Service) JobsXLSX(ctx context.Context, tenantID string, limit int) ([]byte, error) {
	start := time.Now()
	rows, err := s.rows(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Jobs"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("exported job report", "tenant_id", tenantID,
		"rows", len(rows), "format", "xlsx", "took", time.Since(start))
	return buf.Bytes(), nil
}

// JobsCSV returns the same report as CSV.
func (s *Service) JobsCSV(ctx context.Context, tenantID string, limit int) ([]byte, error) {
	rows, err := s.rows(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	s.logger.Info("exported job report", "tenant_id", tenantID,
		"rows", len(rows), "format", "csv")
	return buf.Bytes(), nil
}

package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/export"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/store"
)

// NewExportCmd writes a job history report to a file.
func NewExportCmd(st *store.Store, logger *slog.Logger) *cobra.Command {
	var (
		tenantID string
		format   string
		out      string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export job history as xlsx or csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := export.NewService(st, logger)

			var (
				data []byte
				err  error
			)
			switch format {
			case "xlsx":
				data, err = svc.JobsXLSX(cmd.Context(), tenantID, limit)
			case "csv":
				data, err = svc.JobsCSV(cmd.Context(), tenantID, limit)
			default:
				return fmt.Errorf("unknown format %q (want xlsx or csv)", format)
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			cmd.Printf("wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&format, "format", "xlsx", "xlsx or csv")
	cmd.Flags().StringVar(&out, "out", "jobs.xlsx", "output file")
	cmd.Flags().IntVar(&limit, "limit", 1000, "max rows per source")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

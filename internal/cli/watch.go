package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/poll"
)

// NewWatchCmd polls the job API until the given job is terminal.
func NewWatchCmd() *cobra.Command {
	var (
		apiURL   string
		tenantID string
	)

	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Poll a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := poll.NewPoller(poll.NewClient(apiURL, tenantID))
			job, err := p.Wait(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(job, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "job API base URL")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

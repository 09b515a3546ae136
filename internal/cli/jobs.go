package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/engine"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/store"
)

// NewEnqueueCmd adds a job directly to the store, bypassing the API.
func NewEnqueueCmd(st *store.Store, reg *engine.Registry, defaultMaxRetries int) *cobra.Command {
	var (
		jobType    string
		tenantID   string
		payload    string
		priority   int
		maxRetries int
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add a job to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := reg.ValidatePayload(jobType, json.RawMessage(payload)); err != nil {
				return err
			}

			job, err := st.Enqueue(cmd.Context(), store.EnqueueRequest{
				JobType:    jobType,
				TenantID:   tenantID,
				Payload:    json.RawMessage(payload),
				Priority:   priority,
				MaxRetries: maxRetries,
			})
			if err != nil {
				return err
			}
			cmd.Printf("enqueued %s (%s)\n", job.ID, job.JobType)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobType, "type", "", "job type (required)")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&payload, "payload", "{}", "JSON payload")
	cmd.Flags().IntVar(&priority, "priority", 0, "higher claims first")
	cmd.Flags().IntVar(&maxRetries, "max-retries", defaultMaxRetries, "retry budget")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// NewGetCmd prints a full job record as JSON.
func NewGetCmd(st *store.Store) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show a job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := st.GetForTenant(cmd.Context(), tenantID, args[0])
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

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// NewListCmd lists a tenant's jobs.
func NewListCmd(st *store.Store) *cobra.Command {
	var (
		tenantID string
		status   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := st.List(cmd.Context(), tenantID, model.Status(status), limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				cmd.Println("No jobs found.")
				return nil
			}
			for _, j := range jobs {
				line := fmt.Sprintf("%s | %-11s | %-18s | retries=%d/%d | prio=%d",
					j.ID, j.Status, j.JobType, j.Retries, j.MaxRetries, j.Priority)
				if j.ErrorKind != "" {
					line += " | " + string(j.ErrorKind)
				}
				cmd.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// NewStatusCmd prints queue depth per status.
func NewStatusCmd(st *store.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := st.CountByStatus(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Println("Queue status:")
			for _, s := range []model.Status{
				model.StatusPending, model.StatusQueued, model.StatusInProgress,
				model.StatusCompleted, model.StatusFailed, model.StatusCancelled,
			} {
				cmd.Printf("  %-12s %d\n", s, stats[s])
			}
			return nil
		},
	}
}

// NewCancelCmd cancels a non-terminal job.
func NewCancelCmd(st *store.Store) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.Cancel(cmd.Context(), tenantID, args[0]); err != nil {
				return err
			}
			cmd.Printf("cancelled %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// NewResetCmd wipes the queue. Development helper.
func NewResetCmd(st *store.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete all jobs and archived jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.Reset(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("queue reset")
			return nil
		},
	}
}

package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "menuqd",
		Short:         "Durable job queue for menu automation tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return cmd
}

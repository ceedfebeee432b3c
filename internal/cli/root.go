package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles slactl.
func NewRootCmd(rt *Runtime, version string) *cobra.Command {
	var noColor bool

	root := &cobra.Command{
		Use:     "slactl",
		Short:   "Operate the SLA engine",
		Version: version,
		Long: `slactl runs sweeps, inspects tracking records and computes due dates
against the store configured through the same environment as the API server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(sweepCmd(rt))
	root.AddCommand(statusCmd(rt))
	root.AddCommand(eventsCmd(rt))
	root.AddCommand(dueCmd())
	root.AddCommand(migrateCmd(rt))
	root.AddCommand(accountCmd(rt))
	return root
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/sla-service/internal/app"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/service"
)

func sweepCmd(rt *Runtime) *cobra.Command {
	var domainFlag string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate every running tracking record once",
		Long: `Run one sweep across all organizations. Breaches, warnings and
escalations found are recorded in the event log exactly as the scheduled
sweep would record them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.SweepRequest{}
			if domainFlag != "" {
				d := domain.Domain(domainFlag)
				if !d.Valid() {
					return fmt.Errorf("unknown domain %q (want support, warranty or jobs)", domainFlag)
				}
				req.Domain = &d
			}

			return rt.withContainer(cmd.Context(), func(c *app.Container) error {
				result, err := c.Sweeper.Run(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("sweep: %w", err)
				}
				printSweep(cmd, result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&domainFlag, "domain", "", "Only sweep records of this domain")
	return cmd
}

func printSweep(cmd *cobra.Command, r service.SweepResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Evaluated: %d\n", r.Evaluated)
	breached := okColor.Sprint(r.Breached)
	if r.Breached > 0 {
		breached = badColor.Sprint(r.Breached)
	}
	fmt.Fprintf(out, "Breached:  %s\n", breached)
	warned := okColor.Sprint(r.Warned)
	if r.Warned > 0 {
		warned = warnColor.Sprint(r.Warned)
	}
	fmt.Fprintf(out, "Warned:    %s\n", warned)
	fmt.Fprintf(out, "Escalated: %d\n", r.Escalated)
	if r.Skipped > 0 {
		fmt.Fprintf(out, "Skipped:   %s\n", warnColor.Sprint(r.Skipped))
	} else {
		fmt.Fprintf(out, "Skipped:   %d\n", r.Skipped)
	}
}

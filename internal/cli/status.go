package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/sla-service/internal/app"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/service"
)

func statusCmd(rt *Runtime) *cobra.Command {
	var orgID string

	cmd := &cobra.Command{
		Use:   "status <tracking-id>",
		Short: "Show a tracking record with time remaining per milestone",
		Long: `Show a tracking record. Reading status evaluates the record first, so
a breach that the sweep has not reached yet is recorded now.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withContainer(cmd.Context(), func(c *app.Container) error {
				view, err := c.Tracker.GetStatus(cmd.Context(), orgID, args[0])
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "Organization owning the record")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func eventsCmd(rt *Runtime) *cobra.Command {
	var orgID string

	cmd := &cobra.Command{
		Use:   "events <tracking-id>",
		Short: "List the event log of a tracking record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withContainer(cmd.Context(), func(c *app.Container) error {
				list, err := c.Tracker.Events(cmd.Context(), orgID, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No events.")
					return nil
				}
				for _, ev := range list {
					fmt.Fprintf(out, "%s  %s%s\n",
						ev.OccurredAt.UTC().Format(time.RFC3339),
						eventColor(ev.Type).Sprintf("%-24s", ev.Type),
						dimColor.Sprint(formatPayload(ev.Payload)))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "Organization owning the record")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func printStatus(out io.Writer, view *service.StatusView) {
	tr := view.Tracking
	fmt.Fprintf(out, "Tracking: %s\n", tr.ID)
	fmt.Fprintf(out, "Entity:   %s %s/%s\n", tr.Domain, tr.EntityType, tr.EntityID)
	fmt.Fprintf(out, "Status:   %s\n", statusColor(view.Status).Sprint(view.Status))
	fmt.Fprintf(out, "Started:  %s\n", tr.StartedAt.UTC().Format(time.RFC3339))
	if tr.CumulativePaused > 0 {
		fmt.Fprintf(out, "Paused:   %s total\n", tr.CumulativePaused)
	}
	printMilestone(out, "Response", view.Response)
	printMilestone(out, "Resolution", view.Resolution)
}

func printMilestone(out io.Writer, label string, m *service.MilestoneView) {
	if m == nil {
		return
	}
	fmt.Fprintf(out, "%s (%s)\n", label, m.Target)
	fmt.Fprintf(out, "  due:       %s\n", m.DueAt.UTC().Format(time.RFC3339))

	var state string
	switch {
	case m.Met && m.BreachedAt != nil:
		state = warnColor.Sprint("met late")
	case m.Met:
		state = okColor.Sprint("met")
	case m.BreachedAt != nil:
		state = badColor.Sprint("breached")
	case m.AtRisk:
		state = warnColor.Sprint("at risk")
	default:
		state = okColor.Sprint("on track")
	}
	fmt.Fprintf(out, "  state:     %s\n", state)
	if !m.Met {
		fmt.Fprintf(out, "  remaining: %s\n", m.Remaining.Round(time.Second))
	}
	fmt.Fprintf(out, "  complete:  %.1f%%\n", m.PercentComplete)
}

func statusColor(s domain.Status) colorizer {
	switch s {
	case domain.StatusBreached:
		return badColor
	case domain.StatusPaused:
		return warnColor
	case domain.StatusResolved, domain.StatusResponded:
		return okColor
	}
	return plain{}
}

func eventColor(t domain.EventType) colorizer {
	switch t {
	case domain.EventResponseBreached, domain.EventResolutionBreached, domain.EventEscalated:
		return badColor
	case domain.EventResponseDueWarning, domain.EventResolutionDueWarning, domain.EventPaused:
		return warnColor
	case domain.EventResponded, domain.EventResolved:
		return okColor
	}
	return plain{}
}

func formatPayload(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return " " + strings.Join(parts, " ")
}

type colorizer interface {
	Sprint(a ...interface{}) string
	Sprintf(format string, a ...interface{}) string
}

type plain struct{}

func (plain) Sprint(a ...interface{}) string                 { return fmt.Sprint(a...) }
func (plain) Sprintf(format string, a ...interface{}) string { return fmt.Sprintf(format, a...) }

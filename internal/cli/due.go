package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/sla-service/internal/calendar"
	"github.com/spec-kit/sla-service/internal/deadline"
	"github.com/spec-kit/sla-service/internal/domain"
)

func dueCmd() *cobra.Command {
	var (
		start        string
		value        int
		unit         string
		scheduleFile string
	)

	cmd := &cobra.Command{
		Use:   "due",
		Short: "Compute a due date offline",
		Long: `Compute when a target falls due from a start instant. Business units
need --schedule-file, a JSON schedule such as:

  {"name": "NY office", "timezone": "America/New_York",
   "weekly": {"monday": {"start": "09:00", "end": "17:00"}},
   "holidays": [{"date": "2024-12-25", "recurring": true}]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from := time.Now()
			if start != "" {
				parsed, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				from = parsed
			}
			target := domain.Target{Value: value, Unit: domain.TargetUnit(unit)}
			if !target.Unit.Valid() {
				return fmt.Errorf("unknown unit %q", unit)
			}

			var cal calendar.Calendar
			loc := from.Location()
			if scheduleFile != "" {
				bh, err := loadScheduleFile(scheduleFile)
				if err != nil {
					return err
				}
				cal, loc = bh, bh.Location()
			}

			due, err := deadline.ComputeDueAt(from, target, cal)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Start:  %s\n", from.In(loc).Format(time.RFC3339))
			fmt.Fprintf(out, "Target: %s\n", target)
			fmt.Fprintf(out, "Due:    %s\n", okColor.Sprint(due.In(loc).Format(time.RFC3339)))
			if target.Unit.IsBusiness() {
				fmt.Fprintf(out, "Open time: %s\n", deadline.TargetDuration(from, due, target, cal))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Start instant in RFC3339 (default now)")
	cmd.Flags().IntVar(&value, "value", 0, "Target value")
	cmd.Flags().StringVar(&unit, "unit", string(domain.UnitHours), "minutes, hours, days, business_hours or business_days")
	cmd.Flags().StringVar(&scheduleFile, "schedule-file", "", "JSON business hours schedule")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func loadScheduleFile(path string) (*calendar.BusinessHours, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	var snapshot domain.CalendarSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode schedule %s: %w", path, err)
	}
	if snapshot.Name == "" {
		snapshot.Name = path
	}
	return calendar.New(&snapshot)
}

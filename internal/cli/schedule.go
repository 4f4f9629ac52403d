package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/batchflows/internal/scheduler"
)

// NewScheduleCmd создаёт группу команд для расписаний.
//
// next вычисляется локально, остальные команды работают через API
// flow-scheduler.
func NewScheduleCmd(app *App, clientFn func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect and manage flow schedules",
	}

	cmd.AddCommand(
		newScheduleNextCmd(app),
		newScheduleListCmd(clientFn, app.Output),
		newScheduleToggleCmd(clientFn, app.Output, "enable", true),
		newScheduleToggleCmd(clientFn, app.Output, "disable", false),
	)

	return cmd
}

func newScheduleNextCmd(app *App) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "next FLOW",
		Short: "Show the next trigger times of a flow schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := app.Output()

			def, err := app.Flows.Get(args[0])
			if err != nil {
				return err
			}
			sched := def.Spec.Schedule
			if sched == nil {
				return fmt.Errorf("flow %s has no schedule", def.Name())
			}

			times, err := scheduler.NextN(sched.Cron, sched.Timezone, time.Now(), count)
			if err != nil {
				return err
			}

			rows := make([][]string, len(times))
			for i, t := range times {
				rows[i] = []string{strconv.Itoa(i + 1), t.Format(time.RFC3339), scheduler.IdempotencyKey(def.Name(), t)}
			}
			out.Print([]string{"#", "DUE_AT", "IDEMPOTENCY_KEY"}, rows, times)
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 5, "Number of trigger times")

	return cmd
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules registered in the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := clientFn().ListSchedules(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"FLOW", "CRON", "ENABLED", "NEXT_DUE", "LAST_RUN"}
			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				rows[i] = []string{s.Flow, s.Cron, strconv.FormatBool(s.Enabled), dash(s.NextDueAt), dash(s.LastRunAt)}
			}

			outputFn().Print(headers, rows, schedules)
			return nil
		},
	}
}

func newScheduleToggleCmd(clientFn func() *Client, outputFn func() *Output, use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " FLOW",
		Short: fmt.Sprintf("%s a flow schedule", map[bool]string{true: "Enable", false: "Disable"}[enabled]),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			schedule, err := clientFn().SetScheduleEnabled(cmd.Context(), args[0], enabled)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule %s %sd", schedule.Flow, use))
			out.Print(
				[]string{"FLOW", "CRON", "ENABLED", "NEXT_DUE"},
				[][]string{{schedule.Flow, schedule.Cron, strconv.FormatBool(schedule.Enabled), dash(schedule.NextDueAt)}},
				schedule,
			)
			return nil
		},
	}
}

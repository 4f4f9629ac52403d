package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/batchflows/internal/runner"
)

// NewRunsCmd создаёт группу команд для runs на сервере.
func NewRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and start runs through the scheduler API",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunTasksCmd(clientFn, outputFn),
		newRunDataCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flow string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := clientFn().ListRuns(cmd.Context(), ListRunsOpts{
				Flow:   flow,
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "FLOW", "STATUS", "IDEMPOTENCY_KEY", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.Flow, r.Status, dash(r.IdempotencyKey), r.CreatedAt}
			}

			outputFn().Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&flow, "flow", "", "Filter by flow name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, SUCCEEDED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var params []string
	var key string

	cmd := &cobra.Command{
		Use:   "start FLOW",
		Short: "Start a flow on the scheduler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			values, err := runner.ParseAssignments(params)
			if err != nil {
				return err
			}

			launch, run, err := clientFn().CreateRun(cmd.Context(), args[0], CreateRunRequest{
				Params:         values,
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}

			if run != nil {
				out.Warn(fmt.Sprintf("Run with key %s already exists", run.IdempotencyKey))
				out.Print(
					[]string{"ID", "FLOW", "STATUS", "CREATED"},
					[][]string{{run.ID, run.Flow, run.Status, run.CreatedAt}},
					run,
				)
				return nil
			}

			out.Success(fmt.Sprintf("Run launched: %s", launch.IdempotencyKey))
			out.Print(
				[]string{"FLOW", "IDEMPOTENCY_KEY"},
				[][]string{{launch.Flow, launch.IdempotencyKey}},
				launch,
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "Parameter as NAME=VALUE (repeatable)")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key (generated if empty)")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			run, err := clientFn().GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(run)
				return nil
			}
			out.KeyValues([][2]string{
				{"ID", run.ID},
				{"Flow", run.Flow},
				{"Status", run.Status},
				{"Idempotency key", dash(run.IdempotencyKey)},
				{"Started", dash(run.StartedAt)},
				{"Finished", dash(run.FinishedAt)},
				{"Error", dash(run.Error)},
			})
			return nil
		},
	}
}

func newRunTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks RUN_ID",
		Short: "List tasks in a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListTasks(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			headers := []string{"STEP", "BACKEND", "STATUS", "ATTEMPT", "JOB_ID", "ERROR"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{t.StepID, t.Backend, t.Status, strconv.Itoa(t.Attempt), dash(t.JobID), dash(t.Error)}
			}

			outputFn().Print(headers, rows, tasks)
			return nil
		},
	}
}

func newRunDataCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var step string

	cmd := &cobra.Command{
		Use:   "data RUN_ID",
		Short: "Show artifacts of a finished run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			client := clientFn()

			var data map[string]any
			var err error
			if step != "" {
				data, err = client.GetTaskArtifacts(cmd.Context(), args[0], step)
			} else {
				data, err = client.GetRunData(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(data)
				return nil
			}

			keys := make([]string, 0, len(data))
			for k := range data {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			pairs := make([][2]string, len(keys))
			for i, k := range keys {
				pairs[i] = [2]string{k, formatValue(data[k])}
			}
			out.KeyValues(pairs)
			return nil
		},
	}

	cmd.Flags().StringVar(&step, "step", "", "Show artifacts of this step instead of the end step")

	return cmd
}

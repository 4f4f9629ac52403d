package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/batchflows/internal/backend"
	"github.com/shaiso/batchflows/internal/datastore"
)

// NewStepCmd создаёт команду выполнения одного шага.
//
// Это точка входа контейнера AWS Batch: BatchExecutor отправляет
// задание с командой "flowctl step <flow> <step> --run-id ... --task-id ... --input ...".
func NewStepCmd(app *App) *cobra.Command {
	var (
		runID   string
		taskID  string
		inputID string
		store   string
	)

	cmd := &cobra.Command{
		Use:    "step FLOW STEP",
		Short:  "Execute a single step (remote job entrypoint)",
		Args:   cobra.ExactArgs(2),
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			def, err := app.Flows.Get(args[0])
			if err != nil {
				return err
			}

			ds, err := datastore.New(ctx, Datastore(store))
			if err != nil {
				return err
			}

			logger := app.Logger.With("flow", def.Name(), "step", args[1], "run_id", runID, "task_id", taskID)
			logger.Info("remote step started", backend.EnvPackages, app.packages())

			result, err := backend.RunStep(ctx, def, backend.StepRequest{
				StepID:  args[1],
				RunID:   runID,
				TaskID:  taskID,
				InputID: inputID,
				Env:     app.Config.Env(),
			}, ds)
			if err != nil {
				logger.Error("remote step failed", "error", err)
				return err
			}

			logger.Info("remote step succeeded", "artifacts", result.Location)
			app.Output().Success(fmt.Sprintf("Artifacts saved to %s", result.Location))
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Run ID (required)")
	cmd.Flags().StringVar(&taskID, "task-id", "", "Task ID (required)")
	cmd.Flags().StringVar(&inputID, "input", "", "Datastore ID of the step input (default TASK_ID-input)")
	cmd.Flags().StringVar(&store, "datastore", "", "Datastore root (default $FLOWS_DATASTORE)")
	cmd.MarkFlagRequired("run-id")
	cmd.MarkFlagRequired("task-id")

	return cmd
}

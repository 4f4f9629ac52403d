package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/batchflows/internal/backend"
	"github.com/shaiso/batchflows/internal/datastore"
	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/flow"
	"github.com/shaiso/batchflows/internal/runner"
)

// NewFlowCmds создаёт по группе команд на каждый зарегистрированный flow:
//
//	flowctl ExampleFlow run --param multiplier=5 --with batch
//	flowctl ExampleFlow show
func NewFlowCmds(app *App) []*cobra.Command {
	defs := app.Flows.All()
	cmds := make([]*cobra.Command, 0, len(defs))
	for _, def := range defs {
		cmd := &cobra.Command{
			Use:     def.Name(),
			Short:   flowShort(def),
			GroupID: "flows",
		}
		cmd.AddCommand(
			newFlowRunCmd(app, def),
			newFlowShowCmd(app, def),
		)
		cmds = append(cmds, cmd)
	}
	return cmds
}

func flowShort(def *flow.Definition) string {
	if def.Spec.Description != "" {
		return def.Spec.Description
	}
	return "Run " + def.Name()
}

// runReport — результат run для --json.
type runReport struct {
	Run   *domain.Run    `json:"run"`
	Tasks []domain.Task  `json:"tasks"`
	Data  map[string]any `json:"data,omitempty"`
}

func newFlowRunCmd(app *App, def *flow.Definition) *cobra.Command {
	var (
		params      []string
		decospecs   []string
		environment string
		store       string
		idemKey     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the flow and wait for completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := app.Output()

			raw, err := runner.ParseAssignments(params)
			if err != nil {
				return err
			}

			root := Datastore(store)
			ds, err := datastore.New(ctx, root)
			if err != nil {
				return err
			}

			repos, err := app.openRepos(ctx)
			if err != nil {
				return err
			}
			defer repos.close()

			notifier, closeNotifier, err := app.notifier(ctx)
			if err != nil {
				return err
			}
			defer closeNotifier()

			executors, err := app.executors(ctx, ds, root)
			if err != nil {
				return err
			}

			r := runner.New(def, runner.Options{
				Environment:    environment,
				DecoSpecs:      decospecs,
				Env:            app.Config.Env(),
				Store:          ds,
				Runs:           repos.runs,
				Tasks:          repos.tasks,
				Executors:      executors,
				IdempotencyKey: idemKey,
				Notifier:       notifier,
				Logger:         app.Logger,
			})

			result, runErr := r.Run(ctx, raw)
			if result == nil {
				return runErr
			}

			printResult(out, result)
			if runErr != nil {
				return runErr
			}
			out.Success(fmt.Sprintf("Run %s/%s succeeded in %s", def.Name(), result.Run.ID, result.Run.Duration().Round(time.Millisecond)))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "Flow parameter NAME=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&decospecs, "with", nil, "Decorate every step, e.g. batch or batch:queue=q,gpu=1 (repeatable)")
	cmd.Flags().StringVar(&environment, "environment", "", "Package environment: pypi")
	cmd.Flags().StringVar(&store, "datastore", "", "Datastore root: directory or s3://bucket/prefix (default $FLOWS_DATASTORE or .flows)")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "Idempotency key for the run")

	return cmd
}

func printResult(out *Output, result *runner.Result) {
	if out.JSONMode() {
		out.JSON(runReport{Run: result.Run, Tasks: result.Tasks, Data: result.Data.Snapshot()})
		return
	}

	headers := []string{"STEP", "BACKEND", "STATUS", "ATTEMPT", "DURATION", "JOB_ID"}
	rows := make([][]string, len(result.Tasks))
	for i, t := range result.Tasks {
		rows[i] = []string{t.StepID, t.Backend, string(t.Status), strconv.Itoa(t.Attempt), t.Duration().Round(time.Millisecond).String(), dash(t.JobID)}
	}
	out.Table(headers, rows)

	if result.Run.Error != "" {
		out.Error(result.Run.Error)
		return
	}

	keys := result.Data.Keys()
	if len(keys) == 0 {
		return
	}
	pairs := make([][2]string, len(keys))
	for i, k := range keys {
		v, _ := result.Data.Get(k)
		pairs[i] = [2]string{k, formatValue(v)}
	}
	out.Newline()
	out.KeyValues(pairs)
}

func newFlowShowCmd(app *App, def *flow.Definition) *cobra.Command {
	var decospecs []string
	var environment string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show flow steps, parameters and decorations",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := app.Output()

			// Показываем то, что будет выполнено с этими decospecs
			prepared, err := runner.New(def, runner.Options{
				Environment: environment,
				DecoSpecs:   decospecs,
				Logger:      app.Logger,
			}).Prepare()
			if err != nil {
				return err
			}
			spec := prepared.Spec

			if out.JSONMode() {
				out.JSON(spec)
				return nil
			}

			headers := []string{"STEP", "NEXT", "BACKEND", "QUEUE", "IMAGE", "GPU", "PACKAGES"}
			rows := make([][]string, len(spec.Steps))
			for i := range spec.Steps {
				step := &spec.Steps[i]
				queue, image, gpu := "-", "-", "-"
				if step.Batch != nil {
					queue, image, gpu = dash(step.Batch.Queue), dash(step.Batch.Image), strconv.Itoa(step.Batch.GPU)
				}
				rows[i] = []string{
					step.ID,
					dash(strings.Join(step.Next, ",")),
					backend.For(step),
					queue, image, gpu,
					dash(backend.PackageList(spec.BasePackages, step.Packages)),
				}
			}
			out.Table(headers, rows)

			if len(spec.Parameters) > 0 {
				out.Newline()
				params := make([][]string, len(spec.Parameters))
				for i, p := range spec.Parameters {
					params[i] = []string{p.Name, dash(p.Type), formatValue(p.Default), p.Help}
				}
				out.Table([]string{"PARAMETER", "TYPE", "DEFAULT", "HELP"}, params)
			}
			if spec.Schedule != nil {
				out.Success("Schedule: " + spec.Schedule.Cron)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&decospecs, "with", nil, "Decorate every step (repeatable)")
	cmd.Flags().StringVar(&environment, "environment", "", "Package environment: pypi")

	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ExitCode возвращает код выхода для ошибки команды.
// Упавший run даёт 2, остальные ошибки 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, runner.ErrStepFailed), errors.Is(err, context.DeadlineExceeded):
		return 2
	default:
		return 1
	}
}

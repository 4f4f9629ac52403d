package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/batchflows/internal/backend"
	"github.com/shaiso/batchflows/internal/datastore"
	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/engine"
	"github.com/shaiso/batchflows/internal/flow"
	"github.com/shaiso/batchflows/internal/repo"
	"github.com/shaiso/batchflows/internal/telemetry"
)

// EnvironmentPyPI — окружение, в котором активны декорации пакетов.
const EnvironmentPyPI = "pypi"

// Options — параметры запуска.
type Options struct {
	// Environment — окружение пакетов: "" или "pypi".
	// Без "pypi" декорации пакетов не передаются в задания.
	Environment string

	// DecoSpecs — декорации для всех шагов ("batch", "batch:queue=q,gpu=1", ...).
	DecoSpecs []string

	// Env — переменные окружения шагов (и заданий batch).
	Env map[string]string

	// Store — datastore артефактов (default: локальный ".flows").
	Store datastore.Store

	// Runs, Tasks — хранилища метаданных (default: в памяти).
	Runs  repo.RunRepo
	Tasks repo.TaskRepo

	// Executors — backend'ы (default: только local).
	Executors *backend.Registry

	// IdempotencyKey — ключ идемпотентности run (для scheduler).
	IdempotencyKey string

	// Notifier — получатель событий run и задач (опционально).
	Notifier Notifier

	Logger *slog.Logger
}

// Runner запускает один flow.
type Runner struct {
	def       *flow.Definition
	opts      Options
	store     datastore.Store
	runs      repo.RunRepo
	tasks     repo.TaskRepo
	executors *backend.Registry
	logger    *slog.Logger
}

// New создаёт Runner для flow.
func New(def *flow.Definition, opts Options) *Runner {
	r := &Runner{
		def:       def,
		opts:      opts,
		store:     opts.Store,
		runs:      opts.Runs,
		tasks:     opts.Tasks,
		executors: opts.Executors,
		logger:    opts.Logger,
	}
	if r.store == nil {
		r.store = datastore.NewLocalStore(datastore.DefaultRoot)
	}
	if r.runs == nil {
		r.runs = repo.NewMemoryRunRepo()
	}
	if r.tasks == nil {
		r.tasks = repo.NewMemoryTaskRepo()
	}
	if r.executors == nil {
		r.executors = backend.NewRegistry()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Prepare возвращает определение flow, с которым будет выполнен run:
// с применёнными decospecs и окружением.
func (r *Runner) Prepare() (*flow.Definition, error) {
	switch r.opts.Environment {
	case "", EnvironmentPyPI:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEnvironment, r.opts.Environment)
	}

	decos, err := engine.ParseDecoSpecs(r.opts.DecoSpecs)
	if err != nil {
		return nil, err
	}
	spec, err := engine.ApplyDecoSpecs(r.def.Spec, decos)
	if err != nil {
		return nil, err
	}

	if r.opts.Environment != EnvironmentPyPI {
		spec.BasePackages = nil
		for i := range spec.Steps {
			spec.Steps[i].Packages = nil
		}
	}

	def := r.def.WithSpec(spec)
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Run выполняет flow и ждёт завершения.
//
// Ошибка шага возвращается обёрнутой в ErrStepFailed вместе с Result,
// в котором run уже в статусе FAILED.
func (r *Runner) Run(ctx context.Context, params map[string]any) (*Result, error) {
	def, err := r.Prepare()
	if err != nil {
		return nil, err
	}

	resolved, err := ResolveParams(def.Spec, params)
	if err != nil {
		return nil, err
	}

	dag, err := engine.BuildDAG(def.Spec)
	if err != nil {
		return nil, err
	}

	run := domain.NewRun(def.Name(), resolved)
	run.DecoSpecs = r.opts.DecoSpecs
	run.IdempotencyKey = r.opts.IdempotencyKey
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	logger := telemetry.WithRunID(telemetry.WithFlow(r.logger, def.Name()), run.ID.String())
	ctx = telemetry.WithLogger(ctx, logger)

	run.MarkRunning()
	if err := r.runs.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}
	logger.Info("run started", "params", resolved, "decospecs", r.opts.DecoSpecs)
	r.notifyRun(ctx, run, logger)

	state := NewRunState(run, dag, r.opts.Env)
	runErr := r.walk(ctx, def, state, logger)

	if runErr == nil && !state.IsComplete() {
		runErr = fmt.Errorf("run finished with %d of %d steps completed", state.Stats().CompletedSteps, dag.Size())
	}

	if runErr != nil {
		run.MarkFailed(runErr.Error())
		logger.Error("run failed", "error", runErr, "duration", run.Duration())
	} else {
		run.MarkSucceeded(state.Outputs(domain.StepEnd))
		logger.Info("run succeeded", "duration", run.Duration())
	}
	telemetry.RunsTotal.WithLabelValues(def.Name(), string(run.Status)).Inc()

	// Финальное состояние сохраняем даже при отменённом ctx
	if err := r.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("failed to update run", "error", err)
	}
	r.notifyRun(context.WithoutCancel(ctx), run, logger)

	result, err := r.result(context.WithoutCancel(ctx), run)
	if err != nil {
		return nil, err
	}
	return result, runErr
}

// walk выполняет готовые шаги, пока они есть.
func (r *Runner) walk(ctx context.Context, def *flow.Definition, state *RunState, logger *slog.Logger) error {
	for {
		ready := state.GetReadySteps()
		if len(ready) == 0 {
			return nil
		}

		for _, node := range ready {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.executeStep(ctx, def, state, node, logger); err != nil {
				return err
			}
		}
	}
}

// executeStep создаёт task, выполняет шаг на его backend и сохраняет артефакты.
func (r *Runner) executeStep(ctx context.Context, def *flow.Definition, state *RunState, node *engine.Node, logger *slog.Logger) error {
	step := node.Step
	run := state.Run
	backendName := backend.For(step)

	executor, err := r.executors.Get(backendName)
	if err != nil {
		state.MarkStepFailed(step.ID)
		return fmt.Errorf("%w: %s: %w", ErrStepFailed, step.ID, err)
	}

	task := domain.NewTask(run.ID, step.ID, backendName)
	if err := r.tasks.Create(ctx, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	stepLogger := telemetry.WithStep(logger, step.ID, task.ID.String())
	task.MarkRunning()
	state.MarkStepRunning(step.ID, task)
	if err := r.tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	stepLogger.Info("step started", "backend", backendName)

	job := &backend.Job{
		Flow:   def,
		Step:   step,
		RunID:  run.ID.String(),
		TaskID: task.ID.String(),
		Input:  state.InputFor(node),
		Env:    r.opts.Env,
	}

	result, execErr := backend.ExecuteWithRetry(telemetry.WithLogger(ctx, stepLogger), executor, job, step.Retry,
		func(attempt int, err error, delay time.Duration) {
			telemetry.StepsTotal.WithLabelValues(def.Name(), step.ID, backendName, string(domain.TaskStatusFailed)).Inc()
			if delay > 0 {
				stepLogger.Warn("step attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
			}
		})
	task.Attempt = max(job.Attempt, 1)

	if execErr == nil {
		key := backend.OutputKey(job)
		task.JobID = result.JobID
		task.ArtifactsRef = result.Location
		if task.ArtifactsRef == "" {
			if err := r.store.Save(ctx, key, result.Artifacts); err != nil {
				execErr = fmt.Errorf("save artifacts: %w", err)
			} else {
				task.ArtifactsRef = r.store.Location(key)
			}
		}
	}

	if execErr != nil {
		task.MarkFailed(execErr.Error())
		state.MarkStepFailed(step.ID)
		r.finishTask(ctx, def.Name(), task, stepLogger)
		stepLogger.Error("step failed", "attempts", task.Attempt, "error", execErr)
		return fmt.Errorf("%w: %s: %w", ErrStepFailed, step.ID, execErr)
	}

	task.MarkSucceeded()
	state.MarkStepCompleted(step.ID, result.Artifacts)
	r.finishTask(ctx, def.Name(), task, stepLogger)
	telemetry.StepsTotal.WithLabelValues(def.Name(), step.ID, backendName, string(domain.TaskStatusSucceeded)).Inc()
	stepLogger.Info("step succeeded", "duration", task.Duration(), "job_id", task.JobID)
	return nil
}

func (r *Runner) finishTask(ctx context.Context, flowName string, task *domain.Task, logger *slog.Logger) {
	telemetry.StepDuration.WithLabelValues(flowName, task.StepID, task.Backend).Observe(task.Duration().Seconds())
	if err := r.tasks.Update(context.WithoutCancel(ctx), task); err != nil {
		logger.Warn("failed to update task", "error", err)
	}
	if r.opts.Notifier != nil {
		if err := r.opts.Notifier.TaskChanged(context.WithoutCancel(ctx), flowName, task); err != nil {
			logger.Warn("failed to publish task event", "error", err)
		}
	}
}

func (r *Runner) result(ctx context.Context, run *domain.Run) (*Result, error) {
	tasks, err := r.tasks.ListByRunID(ctx, run.ID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return &Result{Run: run, Tasks: tasks, Data: flow.NewState(run.Data)}, nil
}

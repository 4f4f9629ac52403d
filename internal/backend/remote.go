package backend

import (
	"context"
	"fmt"

	"github.com/shaiso/batchflows/internal/datastore"
	"github.com/shaiso/batchflows/internal/flow"
)

// inputSuffix отличает ключ входа задачи от ключа её выхода.
const inputSuffix = "-input"

// InputKey — ключ datastore для входа задачи.
func InputKey(job *Job) datastore.Key {
	return datastore.Key{Flow: job.Flow.Name(), RunID: job.RunID, StepID: job.Step.ID, TaskID: job.TaskID + inputSuffix}
}

// OutputKey — ключ datastore для выхода задачи.
func OutputKey(job *Job) datastore.Key {
	return datastore.Key{Flow: job.Flow.Name(), RunID: job.RunID, StepID: job.Step.ID, TaskID: job.TaskID}
}

// StepCommand возвращает аргументы команды "step" для удалённого шага.
func StepCommand(flowName, stepID, runID, taskID, inputID string) []string {
	return []string{"step", flowName, stepID, "--run-id", runID, "--task-id", taskID, "--input", inputID}
}

// StepRequest — параметры удалённого шага.
type StepRequest struct {
	StepID  string
	RunID   string
	TaskID  string
	InputID string
	Env     map[string]string
}

// RunStep — точка входа шага внутри контейнера.
//
// Читает вход из datastore, выполняет шаг локально и сохраняет
// полный набор артефактов под ключом задачи.
func RunStep(ctx context.Context, def *flow.Definition, req StepRequest, store datastore.Store) (*Result, error) {
	step := def.Spec.Step(req.StepID)
	if step == nil {
		return nil, fmt.Errorf("%w: unknown step %s in flow %s", ErrInvalidJob, req.StepID, def.Name())
	}

	job := &Job{
		Flow:    def,
		Step:    step,
		RunID:   req.RunID,
		TaskID:  req.TaskID,
		Attempt: 1,
		Env:     req.Env,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	inputID := req.InputID
	if inputID == "" {
		inputID = req.TaskID + inputSuffix
	}
	input, err := store.Load(ctx, datastore.Key{Flow: def.Name(), RunID: req.RunID, StepID: step.ID, TaskID: inputID})
	if err != nil {
		return nil, fmt.Errorf("load step input: %w", err)
	}
	job.Input = flow.NewState(input)

	result, err := NewLocalExecutor().Execute(ctx, job)
	if err != nil {
		return nil, err
	}

	key := OutputKey(job)
	if err := store.Save(ctx, key, result.Artifacts); err != nil {
		return nil, fmt.Errorf("save step output: %w", err)
	}
	result.Location = store.Location(key)
	return result, nil
}

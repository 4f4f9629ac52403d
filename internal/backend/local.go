package backend

import (
	"context"
	"fmt"
	"time"
)

// LocalExecutor вызывает функцию шага в текущем процессе.
type LocalExecutor struct{}

// NewLocalExecutor создаёт LocalExecutor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// Execute выполняет шаг на копии входного State.
//
// Если у шага задан TimeoutSec, Execute вернёт ErrExecutionTimeout
// по его истечении, даже если функция шага не следит за ctx.
func (e *LocalExecutor) Execute(ctx context.Context, job *Job) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	fn, err := job.Flow.Step(job.Step.ID)
	if err != nil {
		return nil, err
	}

	if job.Step.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(job.Step.TimeoutSec)*time.Second)
		defer cancel()
	}

	state := job.input().Clone()
	if job.Env != nil {
		state.WithEnv(job.Env)
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("step %s panicked: %v", job.Step.ID, r)
			}
		}()
		done <- fn(ctx, state)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: step %s after %ds", ErrExecutionTimeout, job.Step.ID, job.Step.TimeoutSec)
		}
		return nil, ctx.Err()
	}

	return &Result{Artifacts: state.Snapshot()}, nil
}

package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/flow"
)

// Имена backend.
const (
	Local = "local"
	Batch = "batch"
)

// Executor выполняет один шаг.
//
// Реализации: LocalExecutor, BatchExecutor.
// ctx может содержать таймаут; Execute обязан его соблюдать.
type Executor interface {
	Execute(ctx context.Context, job *Job) (*Result, error)
}

// Job — одна попытка выполнения шага.
type Job struct {
	// Flow — определение flow, к которому относится шаг.
	Flow *flow.Definition

	// Step — определение шага с уже применёнными decospecs.
	Step *domain.StepDef

	RunID  string
	TaskID string

	// Attempt — номер попытки, начиная с 1.
	Attempt int

	// Input — артефакты на входе шага. Executor не меняет Input.
	Input *flow.State

	// Env — переменные окружения для шага.
	Env map[string]string
}

// Validate проверяет обязательные поля.
func (j *Job) Validate() error {
	switch {
	case j == nil:
		return fmt.Errorf("%w: nil job", ErrInvalidJob)
	case j.Flow == nil || j.Flow.Spec == nil:
		return fmt.Errorf("%w: no flow", ErrInvalidJob)
	case j.Step == nil:
		return fmt.Errorf("%w: no step", ErrInvalidJob)
	case j.RunID == "" || j.TaskID == "":
		return fmt.Errorf("%w: run and task ids are required", ErrInvalidJob)
	}
	return nil
}

func (j *Job) input() *flow.State {
	if j.Input == nil {
		return flow.NewState(nil)
	}
	return j.Input
}

// Result — результат выполнения шага.
type Result struct {
	// Artifacts — полный набор артефактов после шага.
	Artifacts map[string]any

	// JobID — внешний идентификатор (для batch).
	JobID string

	// Location — где лежат артефакты, если шаг их сохранил.
	Location string
}

// For возвращает имя backend для шага:
// batch, если у шага есть batch-декорация, иначе local.
func For(step *domain.StepDef) string {
	if step != nil && step.Batch != nil {
		return Batch
	}
	return Local
}

// Registry — реестр executor'ов по имени backend.
//
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry создаёт реестр с LocalExecutor.
// Batch регистрируется отдельно: ему нужен клиент AWS и datastore.
func NewRegistry() *Registry {
	r := &Registry{executors: make(map[string]Executor)}
	r.Register(Local, NewLocalExecutor())
	return r
}

// Register добавляет executor.
func (r *Registry) Register(name string, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = executor
}

// Get возвращает executor по имени.
func (r *Registry) Get(name string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return executor, nil
}

// Names возвращает имена зарегистрированных backend.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

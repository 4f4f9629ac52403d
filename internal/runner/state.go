package runner

import (
	"sync"

	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/engine"
	"github.com/shaiso/batchflows/internal/flow"
)

// RunState — состояние выполнения одного run в памяти.
//
// Содержит построенный DAG, выходы завершённых шагов
// и отслеживание статуса каждого шага.
type RunState struct {
	// Run — метаданные run.
	Run *domain.Run

	// DAG — граф шагов.
	DAG *engine.DAG

	// params — параметры run, вход шага start.
	params map[string]any

	// env — окружение, видимое шагам.
	env map[string]string

	completed map[string]bool
	running   map[string]bool
	failed    map[string]bool

	// outputs — артефакты после шага (stepID → артефакты).
	outputs map[string]map[string]any

	// tasks — созданные tasks (stepID → Task).
	tasks map[string]*domain.Task

	mu sync.RWMutex
}

// NewRunState создаёт новый RunState.
func NewRunState(run *domain.Run, dag *engine.DAG, env map[string]string) *RunState {
	return &RunState{
		Run:       run,
		DAG:       dag,
		params:    run.Params,
		env:       env,
		completed: make(map[string]bool),
		running:   make(map[string]bool),
		failed:    make(map[string]bool),
		outputs:   make(map[string]map[string]any),
		tasks:     make(map[string]*domain.Task),
	}
}

// GetReadySteps возвращает шаги, готовые к выполнению.
func (s *RunState) GetReadySteps() []*engine.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.failed) > 0 {
		return nil
	}
	return s.DAG.GetReadyNodes(s.completed, s.running)
}

// InputFor собирает вход шага.
//
// Вход start — параметры run. Вход остальных шагов — объединение
// выходов предшественников в порядке графа (последний перекрывает).
func (s *RunState) InputFor(node *engine.Node) *flow.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var input *flow.State
	if len(node.DependsOn) == 0 {
		input = flow.NewState(s.params)
	} else {
		input = flow.NewState(nil)
		for _, dep := range node.DependsOn {
			input.Merge(s.outputs[dep.ID])
		}
	}
	return input.WithEnv(s.env)
}

// MarkStepRunning помечает шаг как выполняющийся.
func (s *RunState) MarkStepRunning(stepID string, task *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running[stepID] = true
	s.tasks[stepID] = task
}

// MarkStepCompleted помечает шаг как успешно завершённый.
func (s *RunState) MarkStepCompleted(stepID string, outputs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, stepID)
	s.completed[stepID] = true
	s.outputs[stepID] = outputs
}

// MarkStepFailed помечает шаг как упавший.
func (s *RunState) MarkStepFailed(stepID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, stepID)
	s.failed[stepID] = true
}

// IsComplete проверяет, все ли шаги завершены успешно.
func (s *RunState) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.DAG.IsComplete(s.completed)
}

// Outputs возвращает артефакты после шага.
func (s *RunState) Outputs(stepID string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputs[stepID]
}

// Stats возвращает статистику выполнения.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := s.DAG.Size()
	return RunStats{
		TotalSteps:     total,
		CompletedSteps: len(s.completed),
		RunningSteps:   len(s.running),
		FailedSteps:    len(s.failed),
		PendingSteps:   total - len(s.completed) - len(s.running) - len(s.failed),
	}
}

// RunStats — статистика выполнения run.
type RunStats struct {
	TotalSteps     int
	CompletedSteps int
	RunningSteps   int
	FailedSteps    int
	PendingSteps   int
}

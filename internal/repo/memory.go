package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/batchflows/internal/domain"
)

// MemoryRunRepo — RunRepo в памяти процесса.
type MemoryRunRepo struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]domain.Run
}

// NewMemoryRunRepo создаёт пустой MemoryRunRepo.
func NewMemoryRunRepo() *MemoryRunRepo {
	return &MemoryRunRepo{runs: make(map[uuid.UUID]domain.Run)}
}

// Create сохраняет копию run.
func (r *MemoryRunRepo) Create(_ context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return ErrAlreadyExists
	}
	if run.IdempotencyKey != "" {
		for _, existing := range r.runs {
			if existing.Flow == run.Flow && existing.IdempotencyKey == run.IdempotencyKey {
				return ErrAlreadyExists
			}
		}
	}
	r.runs[run.ID] = *run
	return nil
}

// Update заменяет сохранённый run.
func (r *MemoryRunRepo) Update(_ context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; !exists {
		return ErrNotFound
	}
	r.runs[run.ID] = *run
	return nil
}

// GetByID возвращает run по ID.
func (r *MemoryRunRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, exists := r.runs[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &run, nil
}

// GetByIdempotencyKey возвращает run по ключу идемпотентности.
func (r *MemoryRunRepo) GetByIdempotencyKey(_ context.Context, flow, key string) (*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, run := range r.runs {
		if run.Flow == flow && run.IdempotencyKey == key {
			return &run, nil
		}
	}
	return nil, ErrNotFound
}

// List возвращает runs, новые первыми.
func (r *MemoryRunRepo) List(_ context.Context, filter RunFilter) ([]domain.Run, error) {
	r.mu.RLock()
	runs := make([]domain.Run, 0, len(r.runs))
	for _, run := range r.runs {
		if filter.Flow != "" && run.Flow != filter.Flow {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, run)
	}
	r.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if filter.Offset >= len(runs) {
		return []domain.Run{}, nil
	}
	runs = runs[filter.Offset:]
	if len(runs) > filter.limit() {
		runs = runs[:filter.limit()]
	}
	return runs, nil
}

// MemoryTaskRepo — TaskRepo в памяти процесса.
type MemoryTaskRepo struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]domain.Task
	order []uuid.UUID
}

// NewMemoryTaskRepo создаёт пустой MemoryTaskRepo.
func NewMemoryTaskRepo() *MemoryTaskRepo {
	return &MemoryTaskRepo{tasks: make(map[uuid.UUID]domain.Task)}
}

// Create сохраняет копию task.
func (r *MemoryTaskRepo) Create(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.ID]; exists {
		return ErrAlreadyExists
	}
	r.tasks[task.ID] = *task
	r.order = append(r.order, task.ID)
	return nil
}

// Update заменяет сохранённый task.
func (r *MemoryTaskRepo) Update(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.ID]; !exists {
		return ErrNotFound
	}
	r.tasks[task.ID] = *task
	return nil
}

// GetByID возвращает task по ID.
func (r *MemoryTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, exists := r.tasks[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &task, nil
}

// ListByRunID возвращает tasks run в порядке создания.
func (r *MemoryTaskRepo) ListByRunID(_ context.Context, runID uuid.UUID) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := []domain.Task{}
	for _, id := range r.order {
		if task := r.tasks[id]; task.RunID == runID {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// MemoryScheduleRepo — ScheduleRepo в памяти процесса.
type MemoryScheduleRepo struct {
	mu     sync.RWMutex
	states map[string]domain.ScheduleState
}

// NewMemoryScheduleRepo создаёт пустой MemoryScheduleRepo.
func NewMemoryScheduleRepo() *MemoryScheduleRepo {
	return &MemoryScheduleRepo{states: make(map[string]domain.ScheduleState)}
}

// Get возвращает состояние расписания flow.
func (r *MemoryScheduleRepo) Get(_ context.Context, flow string) (*domain.ScheduleState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, exists := r.states[flow]
	if !exists {
		return nil, ErrNotFound
	}
	return &state, nil
}

// Upsert сохраняет состояние расписания.
func (r *MemoryScheduleRepo) Upsert(_ context.Context, state *domain.ScheduleState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.Flow] = *state
	return nil
}

// List возвращает состояния в порядке имён flows.
func (r *MemoryScheduleRepo) List(_ context.Context) ([]domain.ScheduleState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]domain.ScheduleState, 0, len(r.states))
	for _, s := range r.states {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Flow < states[j].Flow })
	return states, nil
}

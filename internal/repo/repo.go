// Package repo хранит метаданные runs, tasks и расписаний.
//
// Каждый репозиторий определён интерфейсом и имеет две реализации:
// в памяти (по умолчанию для CLI и тестов) и в PostgreSQL через pgx.
package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/batchflows/internal/domain"
)

// RunRepo — хранилище runs.
type RunRepo interface {
	// Create сохраняет новый run.
	// ErrAlreadyExists, если run с тем же IdempotencyKey для flow уже есть.
	Create(ctx context.Context, run *domain.Run) error
	Update(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	GetByIdempotencyKey(ctx context.Context, flow, key string) (*domain.Run, error)
	List(ctx context.Context, filter RunFilter) ([]domain.Run, error)
}

// TaskRepo — хранилище tasks.
type TaskRepo interface {
	Create(ctx context.Context, task *domain.Task) error
	Update(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	// ListByRunID возвращает tasks run в порядке создания.
	ListByRunID(ctx context.Context, runID uuid.UUID) ([]domain.Task, error)
}

// ScheduleRepo — хранилище состояний расписаний.
type ScheduleRepo interface {
	Get(ctx context.Context, flow string) (*domain.ScheduleState, error)
	Upsert(ctx context.Context, state *domain.ScheduleState) error
	List(ctx context.Context) ([]domain.ScheduleState, error)
}

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	Flow   string
	Status domain.RunStatus
	Limit  int
	Offset int
}

// limit возвращает Limit или значение по умолчанию.
func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}

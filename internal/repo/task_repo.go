package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/batchflows/internal/domain"
)

const taskColumns = `id, run_id, step_id, backend, attempt, status, job_id, artifacts_ref,
		       started_at, finished_at, error, created_at`

// PGTaskRepo — TaskRepo в PostgreSQL.
type PGTaskRepo struct {
	pool *pgxpool.Pool
}

// NewPGTaskRepo создаёт новый PGTaskRepo.
func NewPGTaskRepo(pool *pgxpool.Pool) *PGTaskRepo {
	return &PGTaskRepo{pool: pool}
}

// Create создаёт новый task.
func (r *PGTaskRepo) Create(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO tasks (id, run_id, step_id, backend, attempt, status, job_id, artifacts_ref,
		                   started_at, finished_at, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.RunID,
		task.StepID,
		task.Backend,
		task.Attempt,
		task.Status,
		nullString(task.JobID),
		nullString(task.ArtifactsRef),
		task.StartedAt,
		task.FinishedAt,
		nullString(task.Error),
		task.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Update обновляет task.
func (r *PGTaskRepo) Update(ctx context.Context, task *domain.Task) error {
	query := `
		UPDATE tasks
		SET attempt = $2, status = $3, job_id = $4, artifacts_ref = $5,
		    started_at = $6, finished_at = $7, error = $8
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Attempt,
		task.Status,
		nullString(task.JobID),
		nullString(task.ArtifactsRef),
		task.StartedAt,
		task.FinishedAt,
		nullString(task.Error),
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает task по ID.
func (r *PGTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// ListByRunID возвращает все tasks для run.
func (r *PGTaskRepo) ListByRunID(ctx context.Context, runID uuid.UUID) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE run_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by run_id: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var jobID, artifactsRef, taskError *string

	err := row.Scan(
		&task.ID,
		&task.RunID,
		&task.StepID,
		&task.Backend,
		&task.Attempt,
		&task.Status,
		&jobID,
		&artifactsRef,
		&task.StartedAt,
		&task.FinishedAt,
		&taskError,
		&task.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.JobID = derefString(jobID)
	task.ArtifactsRef = derefString(artifactsRef)
	task.Error = derefString(taskError)
	return &task, nil
}

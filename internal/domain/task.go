package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task — выполнение одного шага внутри run.
//
// Task создаётся Runner'ом, когда все предшественники шага завершены,
// и выполняется executor'ом бэкенда (local или batch).
type Task struct {
	// ID — уникальный идентификатор task.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на родительский run.
	RunID uuid.UUID `json:"run_id"`

	// StepID — ID шага из FlowSpec.
	StepID string `json:"step_id"`

	// Backend — бэкенд выполнения: "local" или "batch".
	Backend string `json:"backend"`

	// Attempt — номер попытки (начиная с 1).
	Attempt int `json:"attempt"`

	// Status — текущий статус task.
	Status TaskStatus `json:"status"`

	// JobID — идентификатор внешнего задания (AWS Batch job id).
	JobID string `json:"job_id,omitempty"`

	// ArtifactsRef — ключ артефактов task в datastore.
	ArtifactsRef string `json:"artifacts_ref,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания task.
	CreatedAt time.Time `json:"created_at"`
}

// NewTask создаёт task в статусе QUEUED.
func NewTask(runID uuid.UUID, stepID, backend string) *Task {
	return &Task{
		ID:        uuid.New(),
		RunID:     runID,
		StepID:    stepID,
		Backend:   backend,
		Status:    TaskStatusQueued,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// MarkRunning переводит task в статус RUNNING.
func (t *Task) MarkRunning() {
	now := time.Now()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
	t.Attempt++
}

// MarkSucceeded переводит task в статус SUCCEEDED.
func (t *Task) MarkSucceeded() {
	now := time.Now()
	t.Status = TaskStatusSucceeded
	t.FinishedAt = &now
	t.Error = ""
}

// MarkFailed переводит task в статус FAILED с ошибкой.
func (t *Task) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.FinishedAt = &now
	t.Error = err
}

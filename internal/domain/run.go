package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — экземпляр выполнения flow.
//
// Run создаётся когда:
// - Пользователь запускает flow через Runner или CLI
// - Scheduler создаёт run по расписанию
//
// Каждый run имеет свой набор tasks (по одному на выполненный шаг).
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Flow — имя flow, который выполняется.
	Flow string `json:"flow"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Params — параметры запуска после применения значений по умолчанию.
	Params map[string]any `json:"params,omitempty"`

	// DecoSpecs — декорации, применённые ко всем шагам при запуске.
	DecoSpecs []string `json:"decospecs,omitempty"`

	// Data — артефакты после завершения шага "end".
	Data map[string]any `json:"data,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (успешного или с ошибкой).
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// IdempotencyKey — ключ идемпотентности для scheduled runs:
	// "{flow}_{next_due_unix}".
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(flow string, params map[string]any) *Run {
	return &Run{
		ID:        uuid.New(),
		Flow:      flow,
		Status:    RunStatusPending,
		Params:    params,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkSucceeded переводит run в статус SUCCEEDED с итоговыми артефактами.
func (r *Run) MarkSucceeded(data map[string]any) {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
	r.Data = data
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

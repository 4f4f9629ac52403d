package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/flow"
)

// Flow DTOs

// FlowResponse — ответ с flow.
type FlowResponse struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  []domain.Parameter `json:"parameters,omitempty"`
	Schedule    *domain.Schedule   `json:"schedule,omitempty"`
	Steps       []string           `json:"steps"`
}

// FlowFromDefinition конвертирует flow.Definition в FlowResponse.
func FlowFromDefinition(def *flow.Definition) FlowResponse {
	steps := make([]string, len(def.Spec.Steps))
	for i, s := range def.Spec.Steps {
		steps[i] = s.ID
	}
	return FlowResponse{
		Name:        def.Name(),
		Description: def.Spec.Description,
		Parameters:  def.Spec.Parameters,
		Schedule:    def.Spec.Schedule,
		Steps:       steps,
	}
}

// Run DTOs

// CreateRunRequest — запрос на запуск flow.
type CreateRunRequest struct {
	Params         map[string]any `json:"params,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// LaunchResponse — ответ о запущенном run.
// Run создаётся асинхронно; искать его по idempotency_key.
type LaunchResponse struct {
	Flow           string `json:"flow"`
	IdempotencyKey string `json:"idempotency_key"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID             uuid.UUID      `json:"id"`
	Flow           string         `json:"flow"`
	Status         string         `json:"status"`
	Params         map[string]any `json:"params,omitempty"`
	DecoSpecs      []string       `json:"decospecs,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	Error          string         `json:"error,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:             r.ID,
		Flow:           r.Flow,
		Status:         string(r.Status),
		Params:         r.Params,
		DecoSpecs:      r.DecoSpecs,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Error:          r.Error,
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt,
	}
}

// Task DTOs

// TaskResponse — ответ с task.
type TaskResponse struct {
	ID           uuid.UUID  `json:"id"`
	RunID        uuid.UUID  `json:"run_id"`
	StepID       string     `json:"step_id"`
	Backend      string     `json:"backend"`
	Attempt      int        `json:"attempt"`
	Status       string     `json:"status"`
	JobID        string     `json:"job_id,omitempty"`
	ArtifactsRef string     `json:"artifacts_ref,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		RunID:        t.RunID,
		StepID:       t.StepID,
		Backend:      t.Backend,
		Attempt:      t.Attempt,
		Status:       string(t.Status),
		JobID:        t.JobID,
		ArtifactsRef: t.ArtifactsRef,
		StartedAt:    t.StartedAt,
		FinishedAt:   t.FinishedAt,
		Error:        t.Error,
		CreatedAt:    t.CreatedAt,
	}
}

// Schedule DTOs

// SetEnabledRequest — запрос на включение/выключение.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// ScheduleResponse — ответ с расписанием.
type ScheduleResponse struct {
	Flow      string         `json:"flow"`
	Cron      string         `json:"cron"`
	Timezone  string         `json:"timezone,omitempty"`
	Enabled   bool           `json:"enabled"`
	NextDueAt *time.Time     `json:"next_due_at,omitempty"`
	LastRunAt *time.Time     `json:"last_run_at,omitempty"`
	LastRunID *uuid.UUID     `json:"last_run_id,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// ScheduleFromDomain конвертирует domain.ScheduleState в ScheduleResponse.
func ScheduleFromDomain(s domain.ScheduleState) ScheduleResponse {
	return ScheduleResponse{
		Flow:      s.Flow,
		Cron:      s.Schedule.Cron,
		Timezone:  s.Schedule.Timezone,
		Enabled:   s.Enabled,
		NextDueAt: s.NextDueAt,
		LastRunAt: s.LastRunAt,
		LastRunID: s.LastRunID,
		Params:    s.Schedule.Params,
	}
}

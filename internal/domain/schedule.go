package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание автоматического запуска flow.
//
// Задаётся в FlowSpec. Scheduler проверяет NextDueAt и создаёт run,
// когда время подошло.
type Schedule struct {
	// Cron — cron-выражение.
	// Поддерживаются два формата:
	//   "*/5 * * * *"        — классический crontab (5 полей)
	//   "0/5 * * * ? *"      — AWS EventBridge (6 полей, последнее — год)
	Cron string `json:"cron"`

	// Timezone — часовой пояс для вычисления времени.
	// По умолчанию: "UTC".
	Timezone string `json:"timezone,omitempty"`

	// Params — параметры, передаваемые в каждый созданный run.
	Params map[string]any `json:"params,omitempty"`
}

// ScheduleState — состояние расписания конкретного flow в scheduler.
type ScheduleState struct {
	// Flow — имя flow.
	Flow string `json:"flow"`

	// Schedule — расписание из FlowSpec.
	Schedule Schedule `json:"schedule"`

	// Enabled — флаг активности расписания.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующего запуска.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastRunID — ID последнего созданного run.
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`
}

// IsDue проверяет, пора ли запускать.
func (s *ScheduleState) IsDue(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.NextDueAt == nil {
		return false
	}
	return now.After(*s.NextDueAt) || now.Equal(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
// runID известен только для уже существующего run: новый создаётся асинхронно.
func (s *ScheduleState) RecordRun(runID *uuid.UUID, now, nextDue time.Time) {
	s.LastRunAt = &now
	if runID != nil {
		s.LastRunID = runID
	}
	s.NextDueAt = &nextDue
}

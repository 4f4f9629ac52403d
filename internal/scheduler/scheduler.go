package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/flow"
	"github.com/shaiso/batchflows/internal/repo"
	"github.com/shaiso/batchflows/internal/runner"
	"github.com/shaiso/batchflows/internal/telemetry"
)

// Результаты срабатывания расписания (метка метрики).
const (
	resultCreated   = "created"
	resultDuplicate = "duplicate"
	resultError     = "error"
)

// Launcher запускает run flow по расписанию.
type Launcher interface {
	Launch(ctx context.Context, def *flow.Definition, params map[string]any, idempotencyKey string) error
}

// Scheduler создаёт runs для flows с расписанием.
type Scheduler struct {
	flows     *flow.Registry
	schedules repo.ScheduleRepo
	runs      repo.RunRepo
	launcher  Launcher
	clock     clockwork.Clock
	logger    *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	Flows     *flow.Registry
	Schedules repo.ScheduleRepo
	Runs      repo.RunRepo
	Launcher  Launcher
	Clock     clockwork.Clock // default: реальные часы
	Logger    *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		flows:     cfg.Flows,
		schedules: cfg.Schedules,
		runs:      cfg.Runs,
		launcher:  cfg.Launcher,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if s.schedules == nil {
		s.schedules = repo.NewMemoryScheduleRepo()
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Sync регистрирует расписания flows из реестра.
//
// Новое расписание получает next_due_at от текущего момента.
// Если cron изменился, next_due_at пересчитывается.
func (s *Scheduler) Sync(ctx context.Context) error {
	now := s.clock.Now()

	var errs []error
	for _, def := range s.flows.All() {
		sched := def.Spec.Schedule
		if sched == nil {
			continue
		}

		state, err := s.schedules.Get(ctx, def.Name())
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			errs = append(errs, fmt.Errorf("get schedule %s: %w", def.Name(), err))
			continue
		}
		if state != nil && state.Schedule.Cron == sched.Cron && state.Schedule.Timezone == sched.Timezone {
			continue
		}

		nextDue, err := NextDue(sched.Cron, sched.Timezone, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", def.Name(), err))
			continue
		}

		if state == nil {
			state = &domain.ScheduleState{Flow: def.Name(), Enabled: true}
		}
		state.Schedule = *sched
		state.NextDueAt = &nextDue

		if err := s.schedules.Upsert(ctx, state); err != nil {
			errs = append(errs, fmt.Errorf("upsert schedule %s: %w", def.Name(), err))
			continue
		}
		s.logger.Info("schedule registered", "flow", def.Name(), "cron", sched.Cron, "next_due_at", nextDue)
	}

	return errors.Join(errs...)
}

// Tick выполняет один тик планировщика.
//
// Для каждого расписания с истекшим next_due_at создаёт один run
// и сдвигает next_due_at. Ошибка одного расписания не блокирует остальные.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock.Now()

	states, err := s.schedules.List(ctx)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}

	var due, created int
	for i := range states {
		state := &states[i]
		if !state.IsDue(now) {
			continue
		}
		due++

		runCreated, err := s.processSchedule(ctx, state, now)
		if err != nil {
			telemetry.ScheduleTriggers.WithLabelValues(state.Flow, resultError).Inc()
			s.logger.Error("failed to process schedule", "flow", state.Flow, "error", err)
			continue
		}
		if runCreated {
			created++
		}
	}

	if due > 0 {
		s.logger.Info("scheduler tick completed", "due", due, "runs_created", created)
	}
	return nil
}

// IdempotencyKey возвращает ключ run для слота расписания: "{flow}_{unix}".
func IdempotencyKey(flowName string, due time.Time) string {
	return fmt.Sprintf("%s_%d", flowName, due.Unix())
}

// processSchedule обрабатывает одно расписание.
// Возвращает true, если run был запущен (не был дубликатом).
func (s *Scheduler) processSchedule(ctx context.Context, state *domain.ScheduleState, now time.Time) (bool, error) {
	def, err := s.flows.Get(state.Flow)
	if err != nil {
		return false, err
	}

	key := IdempotencyKey(state.Flow, *state.NextDueAt)

	runCreated := true
	var lastRunID *uuid.UUID
	if s.runs != nil {
		existing, err := s.runs.GetByIdempotencyKey(ctx, state.Flow, key)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return false, fmt.Errorf("check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Debug("run already exists", "flow", state.Flow, "run_id", existing.ID, "idempotency_key", key)
			telemetry.ScheduleTriggers.WithLabelValues(state.Flow, resultDuplicate).Inc()
			runCreated = false
			lastRunID = &existing.ID
		}
	}

	if runCreated {
		if err := s.launcher.Launch(ctx, def, state.Schedule.Params, key); err != nil {
			return false, fmt.Errorf("launch run: %w", err)
		}
		telemetry.ScheduleTriggers.WithLabelValues(state.Flow, resultCreated).Inc()
		s.logger.Info("run launched from schedule", "flow", state.Flow, "idempotency_key", key)
	}

	nextDue, err := NextDue(state.Schedule.Cron, state.Schedule.Timezone, now)
	if err != nil {
		return runCreated, err
	}

	state.RecordRun(lastRunID, now, nextDue)
	if err := s.schedules.Upsert(ctx, state); err != nil {
		return runCreated, fmt.Errorf("update schedule: %w", err)
	}
	return runCreated, nil
}

// Run вызывает Tick каждые interval, пока ctx не отменён.
// leader — опциональная проверка лидерства перед тиком.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, leader func(context.Context) bool) error {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if leader != nil && !leader(ctx) {
				continue
			}
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// RunnerLauncher запускает runs через runner в фоновых горутинах.
type RunnerLauncher struct {
	// Options — общие опции для всех runs. IdempotencyKey задаётся на каждый run.
	Options runner.Options

	// OnRun вызывается после завершения run (опционально).
	OnRun func(result *runner.Result, err error)

	wg sync.WaitGroup
}

// Launch запускает run и сразу возвращается.
func (l *RunnerLauncher) Launch(ctx context.Context, def *flow.Definition, params map[string]any, idempotencyKey string) error {
	opts := l.Options
	opts.IdempotencyKey = idempotencyKey
	r := runner.New(def, opts)

	// Ошибки подготовки видны сразу, до запуска горутины
	if _, err := r.Prepare(); err != nil {
		return err
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		result, err := r.Run(ctx, params)
		if l.OnRun != nil {
			l.OnRun(result, err)
		}
	}()
	return nil
}

// Wait ждёт завершения всех запущенных runs.
func (l *RunnerLauncher) Wait() {
	l.wg.Wait()
}

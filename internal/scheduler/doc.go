// Package scheduler запускает flows по расписанию.
//
// Scheduler периодически проверяет расписания с истекшим next_due_at
// и запускает run через Launcher.
//
// Структура:
//   - scheduler.go — Scheduler (Sync, Tick, Run) и RunnerLauncher
//   - cron.go      — разбор cron (crontab и AWS) и вычисление следующего времени
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Flows:     flows.Registry(cfg, prober),
//	    Schedules: scheduleRepo,
//	    Runs:      runRepo,
//	    Launcher:  &scheduler.RunnerLauncher{Options: opts},
//	    Logger:    logger,
//	})
//	if err := sched.Sync(ctx); err != nil { ... }
//	sched.Run(ctx, time.Second, isLeader)
//
// Один слот расписания даёт не больше одного run: ключ идемпотентности
// "{flow}_{next_due_unix}" проверяется в RunRepo.
//
// Leader election:
//
// Scheduler не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock.
package scheduler

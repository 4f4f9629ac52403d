// flow-scheduler — сервис расписаний и HTTP API для runs.
//
// Переменные окружения:
//
//	DB_URL             PostgreSQL; без неё метаданные хранятся в памяти
//	FLOWS_DATASTORE    datastore артефактов (s3://bucket/prefix или путь)
//	FLOWS_ENVIRONMENT  окружение пакетов runs ("pypi")
//	FLOWS_DECOSPECS    декорации runs через пробел ("batch retry:times=2")
//	AMQP_URL           RabbitMQ для событий runs (опционально)
//	SCHED_PORT         порт HTTP (по умолчанию 8081)
//	SCHED_INTERVAL     период тика (по умолчанию 1s)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/batchflows/internal/api"
	"github.com/shaiso/batchflows/internal/backend"
	"github.com/shaiso/batchflows/internal/config"
	"github.com/shaiso/batchflows/internal/datastore"
	"github.com/shaiso/batchflows/internal/flows"
	"github.com/shaiso/batchflows/internal/gpu"
	"github.com/shaiso/batchflows/internal/mq"
	"github.com/shaiso/batchflows/internal/repo"
	"github.com/shaiso/batchflows/internal/runner"
	"github.com/shaiso/batchflows/internal/scheduler"
	"github.com/shaiso/batchflows/internal/telemetry"
)

const schedLockKey int64 = 424242

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting flow-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("flow-scheduler failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg := config.Default()
	if missing := cfg.Missing(); len(missing) > 0 {
		logger.Warn("configuration variables not set", "missing", missing)
	}

	root := os.Getenv(backend.EnvDatastore)
	if root == "" {
		root = datastore.DefaultRoot
	}
	store, err := datastore.New(ctx, root)
	if err != nil {
		return err
	}

	var (
		runRepo      repo.RunRepo
		taskRepo     repo.TaskRepo
		scheduleRepo repo.ScheduleRepo
		leader       func(context.Context) bool
	)

	if os.Getenv("DB_URL") != "" {
		pool, err := repo.NewPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := repo.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info("connected to database")

		runRepo = repo.NewPGRunRepo(pool)
		taskRepo = repo.NewPGTaskRepo(pool)
		scheduleRepo = repo.NewPGScheduleRepo(pool)

		lock := &advisoryLock{pool: pool, logger: logger}
		defer lock.release()
		leader = lock.acquire
	} else {
		logger.Warn("DB_URL not set, metadata kept in memory")
		runRepo = repo.NewMemoryRunRepo()
		taskRepo = repo.NewMemoryTaskRepo()
		scheduleRepo = repo.NewMemoryScheduleRepo()
	}

	executors, err := runner.NewExecutors(ctx, store, root, cfg, logger)
	if err != nil {
		return err
	}

	var (
		notifier runner.Notifier
		events   api.EventBus
	)
	if url := mq.URL(); url != "" {
		conn, err := mq.NewConnection(url, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := mq.SetupTopology(ctx, conn); err != nil {
			return err
		}
		logger.Debug("rabbitmq topology ready", "topology", mq.TopologyInfo())
		notifier = mq.NewPublisher(conn, logger)
		events = conn
	}

	registry := flows.Registry(cfg, gpu.NewSystemProber())

	launcher := &scheduler.RunnerLauncher{
		Options: runner.Options{
			Environment: os.Getenv("FLOWS_ENVIRONMENT"),
			DecoSpecs:   strings.Fields(os.Getenv("FLOWS_DECOSPECS")),
			Env:         cfg.Env(),
			Store:       store,
			Runs:        runRepo,
			Tasks:       taskRepo,
			Executors:   executors,
			Notifier:    notifier,
			Logger:      logger,
		},
		OnRun: func(result *runner.Result, err error) {
			if err != nil {
				logger.Error("run failed", "error", err)
				return
			}
			logger.Info("run finished", "run_id", result.Run.ID, "flow", result.Run.Flow, "status", result.Run.Status)
		},
	}
	// Запущенные runs доживают до конца после остановки HTTP
	defer launcher.Wait()

	sched := scheduler.New(scheduler.Config{
		Flows:     registry,
		Schedules: scheduleRepo,
		Runs:      runRepo,
		Launcher:  launcher,
		Logger:    logger,
	})
	if err := sched.Sync(ctx); err != nil {
		return err
	}

	interval := time.Second
	if v := os.Getenv("SCHED_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		interval = d
	}

	go func() {
		if err := sched.Run(ctx, interval, leader); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler loop stopped", "error", err)
		}
	}()

	handler := api.NewHandler(api.Config{
		Flows:        registry,
		RunRepo:      runRepo,
		TaskRepo:     taskRepo,
		ScheduleRepo: scheduleRepo,
		Store:        store,
		Launcher:     launcher,
		Events:       events,
		BaseContext:  ctx,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	addr := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "interval", interval)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return nil
}

// advisoryLock — лидерство через pg_try_advisory_lock.
// Тики выполняет только тот экземпляр, который держит блокировку.
type advisoryLock struct {
	pool    *pgxpool.Pool
	conn    *pgxpool.Conn
	logger  *slog.Logger
	hasLock bool
}

func (l *advisoryLock) acquire(ctx context.Context) bool {
	if l.hasLock {
		return true
	}

	// Сессионная блокировка живёт на соединении, его держим отдельно от пула
	if l.conn == nil {
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			l.logger.Error("lock connection failed", "error", err)
			return false
		}
		l.conn = conn
	}

	var ok bool
	if err := l.conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil {
		l.logger.Error("lock failed", "error", err)
		l.conn.Release()
		l.conn = nil
		return false
	}
	if ok {
		l.logger.Info("became scheduler leader")
	}
	l.hasLock = ok
	return ok
}

func (l *advisoryLock) release() {
	if l.conn == nil {
		return
	}
	if l.hasLock {
		_, _ = l.conn.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
	}
	l.conn.Release()
}

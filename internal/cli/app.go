package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shaiso/batchflows/internal/backend"
	"github.com/shaiso/batchflows/internal/config"
	"github.com/shaiso/batchflows/internal/datastore"
	"github.com/shaiso/batchflows/internal/flow"
	"github.com/shaiso/batchflows/internal/mq"
	"github.com/shaiso/batchflows/internal/repo"
	"github.com/shaiso/batchflows/internal/runner"
)

// App — общие зависимости локальных команд.
type App struct {
	// Config — конфигурация стека из окружения.
	Config config.Config

	// Flows — реестр flows.
	Flows *flow.Registry

	Logger *slog.Logger

	// Output создаёт Output после разбора флагов.
	Output func() *Output

	// NewExecutors создаёт backend'ы run (default: local и AWS Batch).
	NewExecutors func(ctx context.Context, store datastore.Store, root string) (*backend.Registry, error)
}

func (a *App) executors(ctx context.Context, store datastore.Store, root string) (*backend.Registry, error) {
	if a.NewExecutors != nil {
		return a.NewExecutors(ctx, store, root)
	}
	return runner.NewExecutors(ctx, store, root, a.Config, a.Logger)
}

// Datastore возвращает адрес datastore: флаг, FLOWS_DATASTORE или ".flows".
func Datastore(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(backend.EnvDatastore); v != "" {
		return v
	}
	return datastore.DefaultRoot
}

// repos — хранилища метаданных команды.
type repos struct {
	runs  repo.RunRepo
	tasks repo.TaskRepo
	close func()
}

// openRepos возвращает PostgreSQL-хранилища, если задан DB_URL,
// иначе хранилища в памяти процесса.
func (a *App) openRepos(ctx context.Context) (*repos, error) {
	if os.Getenv("DB_URL") == "" {
		return &repos{
			runs:  repo.NewMemoryRunRepo(),
			tasks: repo.NewMemoryTaskRepo(),
			close: func() {},
		}, nil
	}

	pool, err := repo.NewPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := repo.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	a.Logger.Debug("using postgres metadata store")

	return &repos{
		runs:  repo.NewPGRunRepo(pool),
		tasks: repo.NewPGTaskRepo(pool),
		close: pool.Close,
	}, nil
}

// packages возвращает список пакетов, переданный заданию.
func (a *App) packages() string {
	return os.Getenv(backend.EnvPackages)
}

// notifier возвращает публикатор событий run, если задан AMQP_URL.
func (a *App) notifier(ctx context.Context) (runner.Notifier, func(), error) {
	url := mq.URL()
	if url == "" {
		return nil, func() {}, nil
	}

	conn, err := mq.NewConnection(url, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return mq.NewPublisher(conn, a.Logger), func() { conn.Close() }, nil
}

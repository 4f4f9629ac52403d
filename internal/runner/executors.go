package runner

import (
	"context"
	"log/slog"
	"os"

	"github.com/shaiso/batchflows/internal/backend"
	"github.com/shaiso/batchflows/internal/config"
	"github.com/shaiso/batchflows/internal/datastore"
)

// NewExecutors возвращает реестр с local и batch backend.
//
// Batch использует клиента AWS из стандартной цепочки учётных данных.
// root — адрес store, который увидит контейнер; шаги на batch с
// локальным root отклоняются до отправки задания. Очередь и образ
// по умолчанию берутся из cfg, IAM роль заданий из FLOWS_BATCH_JOB_ROLE.
func NewExecutors(ctx context.Context, store datastore.Store, root string, cfg config.Config, logger *slog.Logger) (*backend.Registry, error) {
	client, err := backend.NewBatchClient(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}

	executors := backend.NewRegistry()
	executors.Register(backend.Batch, backend.NewBatchExecutor(backend.BatchConfig{
		Client:        client,
		Store:         store,
		DatastoreRoot: root,
		JobRoleARN:    os.Getenv(backend.EnvJobRole),
		DefaultQueue:  cfg.BatchQueue,
		DefaultImage:  cfg.BatchImage,
		Logger:        logger,
	}))
	return executors, nil
}

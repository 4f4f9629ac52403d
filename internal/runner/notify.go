package runner

import (
	"context"
	"log/slog"

	"github.com/shaiso/batchflows/internal/domain"
)

// Notifier получает переходы статусов run и задач.
//
// Ошибки доставки не влияют на run: они только логируются.
type Notifier interface {
	RunChanged(ctx context.Context, run *domain.Run) error
	TaskChanged(ctx context.Context, flowName string, task *domain.Task) error
}

func (r *Runner) notifyRun(ctx context.Context, run *domain.Run, logger *slog.Logger) {
	if r.opts.Notifier == nil {
		return
	}
	if err := r.opts.Notifier.RunChanged(ctx, run); err != nil {
		logger.Warn("failed to publish run event", "error", err)
	}
}

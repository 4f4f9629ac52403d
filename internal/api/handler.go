package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shaiso/batchflows/internal/datastore"
	"github.com/shaiso/batchflows/internal/flow"
	"github.com/shaiso/batchflows/internal/repo"
)

// Launcher запускает run flow в фоне.
type Launcher interface {
	Launch(ctx context.Context, def *flow.Definition, params map[string]any, idempotencyKey string) error
}

// EventBus — шина событий run, состояние которой видно в /healthz.
type EventBus interface {
	IsConnected() bool
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	flows        *flow.Registry
	runRepo      repo.RunRepo
	taskRepo     repo.TaskRepo
	scheduleRepo repo.ScheduleRepo
	store        datastore.Store
	launcher     Launcher
	events       EventBus
	baseCtx      context.Context
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Flows        *flow.Registry
	RunRepo      repo.RunRepo
	TaskRepo     repo.TaskRepo
	ScheduleRepo repo.ScheduleRepo

	// Store — datastore артефактов (опционально, для /data).
	Store datastore.Store

	// Launcher — запуск runs через POST (опционально).
	Launcher Launcher

	// Events — шина событий (опционально).
	Events EventBus

	// BaseContext — контекст запущенных через API runs.
	// Контекст запроса для этого не подходит: он отменяется после ответа.
	BaseContext context.Context

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		flows:        cfg.Flows,
		runRepo:      cfg.RunRepo,
		taskRepo:     cfg.TaskRepo,
		scheduleRepo: cfg.ScheduleRepo,
		store:        cfg.Store,
		launcher:     cfg.Launcher,
		events:       cfg.Events,
		baseCtx:      cfg.BaseContext,
		logger:       cfg.Logger,
	}
	if h.flows == nil {
		h.flows = flow.NewRegistry()
	}
	if h.baseCtx == nil {
		h.baseCtx = context.Background()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Health — проверка живости.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if h.events != nil {
		resp["events"] = "connected"
		if !h.events.IsConnected() {
			resp["events"] = "disconnected"
		}
	}
	Success(w, resp)
}

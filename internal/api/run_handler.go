package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/batchflows/internal/datastore"
	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/repo"
)

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?flow=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repo.RunFilter{
		Flow:   query.Get("flow"),
		Status: domain.RunStatus(query.Get("status")),
		Limit:  parseInt(query.Get("limit"), 50),
		Offset: parseInt(query.Get("offset"), 0),
	}

	runs, err := h.runRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	Success(w, RunFromDomain(*run))
}

// ListRunTasks возвращает задачи run.
// GET /api/v1/runs/{id}/tasks
func (h *Handler) ListRunTasks(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	tasks, err := h.taskRepo.ListByRunID(r.Context(), run.ID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromDomain(t)
	}

	List(w, result, len(result))
}

// GetRunData возвращает артефакты после шага end.
// GET /api/v1/runs/{id}/data
func (h *Handler) GetRunData(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	if run.Status != domain.RunStatusSucceeded {
		HandleRepoError(w, h.logger, fmt.Errorf("%w: run has no data in status %s", repo.ErrInvalidState, run.Status), "")
		return
	}

	Success(w, run.Data)
}

// GetTaskArtifacts возвращает артефакты шага из datastore.
// GET /api/v1/runs/{id}/tasks/{step}/artifacts
func (h *Handler) GetTaskArtifacts(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		Unavailable(w, "datastore is not configured")
		return
	}

	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	tasks, err := h.taskRepo.ListByRunID(r.Context(), run.ID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	step := r.PathValue("step")
	var task *domain.Task
	for i := range tasks {
		// Последняя task шага
		if tasks[i].StepID == step {
			task = &tasks[i]
		}
	}
	if task == nil {
		NotFound(w, "task not found")
		return
	}

	artifacts, err := h.store.Load(r.Context(), datastore.Key{
		Flow:   run.Flow,
		RunID:  run.ID.String(),
		StepID: task.StepID,
		TaskID: task.ID.String(),
	})
	if HandleRepoError(w, h.logger, err, "artifacts not found") {
		return
	}

	Success(w, artifacts)
}

// loadRun читает run из пути запроса. При ошибке ответ уже отправлен.
func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*domain.Run, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return nil, false
	}

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return nil, false
	}
	return run, true
}

// parseInt парсит строку в int с дефолтным значением.
func parseInt(s string, defaultVal int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

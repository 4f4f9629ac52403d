package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/batchflows/internal/repo"
	"github.com/shaiso/batchflows/internal/runner"
)

// ListFlows возвращает зарегистрированные flows.
// GET /api/v1/flows
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	defs := h.flows.All()

	result := make([]FlowResponse, len(defs))
	for i, def := range defs {
		result[i] = FlowFromDefinition(def)
	}

	List(w, result, len(result))
}

// GetFlow возвращает flow по имени.
// GET /api/v1/flows/{name}
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	def, err := h.flows.Get(r.PathValue("name"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	Success(w, FlowFromDefinition(def))
}

// CreateRun запускает flow.
// POST /api/v1/flows/{name}/runs
//
// Run выполняется асинхронно. Повторный запрос с тем же
// idempotency_key возвращает уже созданный run.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	if h.launcher == nil {
		Unavailable(w, "run launching is not configured")
		return
	}

	def, err := h.flows.Get(r.PathValue("name"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	// Ошибки параметров возвращаем сразу, а не в упавшем run
	if _, err := runner.ResolveParams(def.Spec, req.Params); HandleRepoError(w, h.logger, err, "") {
		return
	}

	if req.IdempotencyKey != "" && h.runRepo != nil {
		existing, err := h.runRepo.GetByIdempotencyKey(r.Context(), def.Name(), req.IdempotencyKey)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			InternalError(w, h.logger, err)
			return
		}
		if existing != nil {
			Success(w, RunFromDomain(*existing))
			return
		}
	}

	key := req.IdempotencyKey
	if key == "" {
		key = "api_" + uuid.NewString()
	}

	if err := h.launcher.Launch(h.baseCtx, def, req.Params, key); HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("run launched via api", "flow", def.Name(), "idempotency_key", key)
	Accepted(w, LaunchResponse{Flow: def.Name(), IdempotencyKey: key})
}

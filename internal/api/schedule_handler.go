package api

import (
	"encoding/json"
	"net/http"
)

// ListSchedules возвращает расписания flows.
// GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	states, err := h.scheduleRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ScheduleResponse, len(states))
	for i, s := range states {
		result[i] = ScheduleFromDomain(s)
	}

	List(w, result, len(result))
}

// GetSchedule возвращает расписание flow.
// GET /api/v1/schedules/{flow}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	state, err := h.scheduleRepo.Get(r.Context(), r.PathValue("flow"))
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(*state))
}

// SetScheduleEnabled включает или выключает расписание.
// PUT /api/v1/schedules/{flow}/enabled
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		BadRequest(w, "invalid request body")
		return
	}

	state, err := h.scheduleRepo.Get(r.Context(), r.PathValue("flow"))
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	state.Enabled = *req.Enabled
	if err := h.scheduleRepo.Upsert(r.Context(), state); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("schedule updated", "flow", state.Flow, "enabled", state.Enabled)
	Success(w, ScheduleFromDomain(*state))
}

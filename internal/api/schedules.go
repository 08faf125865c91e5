package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reedfamily/zomboidbot/internal/scheduler"
)

type ScheduleHandler struct {
	sched *scheduler.Scheduler
}

func NewScheduleHandler(sched *scheduler.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{sched: sched}
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.sched.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		CronExpr string `json:"cron_expr"`
		Action   string `json:"action"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.sched.Create(r.Context(), req.Name, req.CronExpr, req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var p scheduler.Patch
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.sched.Update(r.Context(), chi.URLParam(r, "scheduleId"), p)
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		writeError(w, http.StatusNotFound, "schedule not found")
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusOK, s)
	}
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.sched.Delete(r.Context(), chi.URLParam(r, "scheduleId"))
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		writeError(w, http.StatusNotFound, "schedule not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to delete schedule")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "schedule deleted"})
	}
}

// Run executes a schedule's action immediately.
func (h *ScheduleHandler) Run(w http.ResponseWriter, r *http.Request) {
	s, err := h.sched.Get(r.Context(), chi.URLParam(r, "scheduleId"))
	if errors.Is(err, scheduler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load schedule")
		return
	}

	err = h.sched.Execute(r.Context(), s.Action)
	switch {
	case errors.Is(err, scheduler.ErrPlayersOnline):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": s.Action + " done"})
	}
}

package api

import (
	"net/http"
	"strconv"

	"github.com/reedfamily/zomboidbot/internal/bot"
)

type PollsHandler struct {
	polls *bot.PollStore
}

func NewPollsHandler(polls *bot.PollStore) *PollsHandler {
	return &PollsHandler{polls: polls}
}

// List returns recent mod polls with their current tallies.
func (h *PollsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = min(n, 500)
	}

	polls, err := h.polls.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list polls")
		return
	}

	type pollView struct {
		bot.Poll
		Tally bot.Tally `json:"tally"`
	}
	out := make([]pollView, 0, len(polls))
	for _, p := range polls {
		tally, err := h.polls.Tally(r.Context(), p.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to tally poll")
			return
		}
		out = append(out, pollView{Poll: p, Tally: tally})
	}
	writeJSON(w, http.StatusOK, out)
}

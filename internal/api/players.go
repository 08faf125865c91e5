package api

import (
	"net/http"
	"time"

	"github.com/reedfamily/zomboidbot/internal/stats"
	"go.uber.org/zap"
)

// PlayerLog reads the current players from the server logs.
type PlayerLog interface {
	PlayerCounter
	Players() ([]string, error)
}

type PlayersHandler struct {
	logs      PlayerLog
	collector *stats.Collector
	log       *zap.Logger
}

func NewPlayersHandler(logs PlayerLog, collector *stats.Collector, log *zap.Logger) *PlayersHandler {
	return &PlayersHandler{logs: logs, collector: collector, log: log}
}

// Current returns the players online according to the latest logs.
func (h *PlayersHandler) Current(w http.ResponseWriter, r *http.Request) {
	if err := h.logs.Refresh(); err != nil {
		writeError(w, http.StatusNotFound, "no server logs found")
		return
	}
	n, err := h.logs.ActivePlayers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count players")
		return
	}
	names, err := h.logs.Players()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list players")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": n, "players": names})
}

// History returns sampled player counts for ?period= (default 1h).
func (h *PlayersHandler) History(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "1h"
	}
	d, err := time.ParseDuration(period)
	if err != nil || d <= 0 {
		writeError(w, http.StatusBadRequest, "invalid period: use format like 1h, 6h, 24h")
		return
	}

	samples, err := h.collector.History(r.Context(), time.Now().Add(-d))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query player history")
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

// Live pushes each new sample over a websocket.
func (h *PlayersHandler) Live(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := h.collector.Subscribe()
	defer h.collector.Unsubscribe(ch)

	if latest := h.collector.Latest(); latest != nil {
		if err := conn.WriteJSON(latest); err != nil {
			return
		}
	}

	// Reading detects the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(s); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/reedfamily/zomboidbot/internal/rcon"
	"github.com/reedfamily/zomboidbot/internal/supervisor"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RCON runs admin commands on the game server.
type RCON interface {
	Run(ctx context.Context, command string) (string, error)
	Broadcast(ctx context.Context, message string) (string, error)
}

type ConsoleHandler struct {
	server       Session
	rcon         RCON
	pollInterval time.Duration
	log          *zap.Logger
}

func NewConsoleHandler(server Session, rc RCON, log *zap.Logger) *ConsoleHandler {
	return &ConsoleHandler{server: server, rcon: rc, pollInterval: time.Second, log: log}
}

// Handle streams the server console over a websocket. Text frames from the
// client are typed into the console.
func (h *ConsoleHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if _, err := h.server.Output(r.Context()); errors.Is(err, supervisor.ErrSessionNotFound) {
		writeError(w, http.StatusConflict, "server session is not running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Websocket -> console
	go func() {
		defer cancel()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			line := strings.TrimRight(string(msg), "\r\n")
			if line == "" {
				continue
			}
			if _, err := sendLine(ctx, h.server, line); err != nil {
				h.log.Warn("console send", zap.Error(err))
				return
			}
		}
	}()

	// Console -> websocket, only the lines that are new since last poll.
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	var last []string
	for {
		out, err := h.server.Output(ctx)
		if err != nil {
			conn.WriteMessage(websocket.TextMessage, []byte("Error: "+err.Error()))
			return
		}
		lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
		if fresh := newLines(last, lines); len(fresh) > 0 {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(strings.Join(fresh, "\n"))); err != nil {
				return
			}
		}
		last = lines

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// newLines returns the tail of cur that follows the longest suffix of prev
// found at the start of cur. A pane that scrolled keeps its overlap.
func newLines(prev, cur []string) []string {
	for start := 0; start < len(prev); start++ {
		overlap := prev[start:]
		if len(overlap) > len(cur) {
			continue
		}
		match := true
		for i := range overlap {
			if overlap[i] != cur[i] {
				match = false
				break
			}
		}
		if match {
			return cur[len(overlap):]
		}
	}
	return cur
}

// Send types one line into the server console.
func (h *ConsoleHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Line string `json:"line"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Line) == "" {
		writeError(w, http.StatusBadRequest, "line required")
		return
	}
	if status, err := sendLine(r.Context(), h.server, req.Line); err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "sent"})
}

// RCON runs an allow-listed RCON command.
func (h *ConsoleHandler) RCON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Command == "" {
		writeError(w, http.StatusBadRequest, "command required")
		return
	}
	out, err := h.rcon.Run(r.Context(), req.Command)
	if err != nil {
		h.rconError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": out})
}

func (h *ConsoleHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.rcon.Broadcast(r.Context(), req.Message)
	if err != nil {
		h.rconError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": out})
}

func (h *ConsoleHandler) rconError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rcon.ErrNotAllowed):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, rcon.ErrEmptyArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("rcon", zap.Error(err))
		writeError(w, http.StatusBadGateway, "rcon failed")
	}
}

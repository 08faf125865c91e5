package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/reedfamily/zomboidbot/internal/supervisor"
	"go.uber.org/zap"
)

// Session targets.
const (
	TargetServer = "server"
	TargetBot    = "bot"
)

// Session is one supervised tmux session or container.
type Session interface {
	Name() string
	Start(ctx context.Context) (supervisor.Result, error)
	Stop(ctx context.Context) (supervisor.Result, error)
	Restart(ctx context.Context) (supervisor.Result, error)
	Status(ctx context.Context) (supervisor.Status, error)
	Send(ctx context.Context, line string) error
	Output(ctx context.Context) (string, error)
}

type PlayerCounter interface {
	Refresh() error
	ActivePlayers() (int, error)
}

type SessionHandler struct {
	sessions map[string]Session
	players  PlayerCounter
	log      *zap.Logger
}

func NewSessionHandler(sessions map[string]Session, players PlayerCounter, log *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, players: players, log: log}
}

type sessionStatus struct {
	Target  string            `json:"target"`
	Session string            `json:"session"`
	Status  supervisor.Status `json:"status"`
}

// session resolves the ?target= query, defaulting to the game server.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (string, Session, bool) {
	target := r.URL.Query().Get("target")
	if target == "" {
		target = TargetServer
	}
	s, ok := h.sessions[target]
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown target %q", target))
		return "", nil, false
	}
	return target, s, true
}

func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	out := []sessionStatus{}
	for _, target := range []string{TargetServer, TargetBot} {
		s, ok := h.sessions[target]
		if !ok {
			continue
		}
		st, err := s.Status(r.Context())
		if err != nil {
			h.log.Error("session status", zap.String("session", s.Name()), zap.Error(err))
			writeError(w, http.StatusBadGateway, "failed to query session status")
			return
		}
		out = append(out, sessionStatus{Target: target, Session: s.Name(), Status: st})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "start", func(ctx context.Context, s Session) (supervisor.Result, error) {
		return s.Start(ctx)
	})
}

func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.playersGone(w, r) {
		return
	}
	h.run(w, r, "stop", func(ctx context.Context, s Session) (supervisor.Result, error) {
		return s.Stop(ctx)
	})
}

func (h *SessionHandler) Restart(w http.ResponseWriter, r *http.Request) {
	if !h.playersGone(w, r) {
		return
	}
	h.run(w, r, "restart", func(ctx context.Context, s Session) (supervisor.Result, error) {
		return s.Restart(ctx)
	})
}

func (h *SessionHandler) run(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, Session) (supervisor.Result, error)) {
	_, s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := fn(r.Context(), s)
	if err != nil {
		h.log.Error("session "+op, zap.String("session", s.Name()), zap.Error(err))
		writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to %s session: %v", op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// playersGone refuses to take the game server down while anyone is
// playing, unless ?force=true.
func (h *SessionHandler) playersGone(w http.ResponseWriter, r *http.Request) bool {
	target, _, ok := h.session(w, r)
	if !ok {
		return false
	}
	if target != TargetServer || h.players == nil {
		return true
	}
	if force, _ := strconv.ParseBool(r.URL.Query().Get("force")); force {
		return true
	}
	if err := h.players.Refresh(); err != nil {
		return true
	}
	n, err := h.players.ActivePlayers()
	if err != nil || n == 0 {
		return true
	}
	writeError(w, http.StatusConflict, fmt.Sprintf("%d players are online; retry with force=true", n))
	return false
}

// sendLine writes a console line, mapping a missing session to 409.
func sendLine(ctx context.Context, s Session, line string) (int, error) {
	err := s.Send(ctx, line)
	switch {
	case errors.Is(err, supervisor.ErrSessionNotFound):
		return http.StatusConflict, err
	case err != nil:
		return http.StatusBadGateway, err
	}
	return http.StatusOK, nil
}

// Package supervisor owns the lifecycle of one managed process: spawn it when
// absent, health-check it, and terminate it. Every check-then-act sequence on
// a Supervisor is serialized; another process touching the same session
// between the check and the act is not prevented.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
)

// ErrSessionNotFound is returned by operations that need a live session.
var ErrSessionNotFound = errors.New("session does not exist")

// Launch describes how a fresh session starts its managed process: Setup
// prepares the runtime environment, Command starts the process. Both are
// queued without waiting for them to complete.
type Launch struct {
	WorkDir string
	Setup   string
	Command string
	// Label names the process in status lines.
	Label string
}

func (l Launch) lines() []string {
	var out []string
	for _, s := range []string{l.Setup, l.Command} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Backend is a process-hosting facility addressed by a single fixed name.
type Backend interface {
	// Kind names the hosted resource in status lines ("tmux session").
	Kind() string
	Exists(ctx context.Context) (bool, error)
	Spawn(ctx context.Context, l Launch) error
	Terminate(ctx context.Context) error
	Send(ctx context.Context, line string) error
	Output(ctx context.Context) (string, error)
}

type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Result reports what an operation did.
type Result struct {
	Session string `json:"session"`
	Changed bool   `json:"changed"`
	Message string `json:"message"`
}

// Observer receives one call per lifecycle operation.
type Observer func(op, outcome string)

type Supervisor struct {
	name    string
	backend Backend
	launch  Launch

	out    io.Writer
	errOut io.Writer
	log    *zap.Logger
	notify Observer

	mu sync.Mutex
}

type Option func(*Supervisor)

// WithOutput sets where human-readable status lines go. The benign
// "does not exist" line goes to errOut.
func WithOutput(out, errOut io.Writer) Option {
	return func(s *Supervisor) {
		s.out, s.errOut = out, errOut
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

func WithObserver(fn Observer) Option {
	return func(s *Supervisor) { s.notify = fn }
}

// New returns a Supervisor for the session called name.
func New(name string, backend Backend, launch Launch, opts ...Option) *Supervisor {
	s := &Supervisor{
		name:    name,
		backend: backend,
		launch:  launch,
		out:     os.Stdout,
		errOut:  os.Stderr,
		log:     zap.NewNop(),
		notify:  func(string, string) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the session name.
func (s *Supervisor) Name() string { return s.name }

// Start ensures the session exists. An existing session is left alone;
// a new one gets the setup and launch commands queued into it.
func (s *Supervisor) Start(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.backend.Exists(ctx)
	if err != nil {
		s.notify("start", "error")
		return Result{}, fmt.Errorf("start session %q: %w", s.name, err)
	}
	if exists {
		s.notify("start", "noop")
		return s.report(false, s.out, "Session '%s' already exists.", s.name), nil
	}

	res := s.report(true, s.out, "Creating %s '%s' and running %s", s.backend.Kind(), s.name, s.launch.Label)
	if err := s.backend.Spawn(ctx, s.launch); err != nil {
		s.notify("start", "error")
		return Result{}, fmt.Errorf("start session %q: %w", s.name, err)
	}
	s.log.Info("session created", zap.String("session", s.name), zap.String("kind", s.backend.Kind()))
	s.notify("start", "created")
	return res, nil
}

// Stop terminates the session if it exists. A missing session is reported
// on the error stream but is not an error.
func (s *Supervisor) Stop(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.backend.Exists(ctx)
	if err != nil {
		s.notify("stop", "error")
		return Result{}, fmt.Errorf("stop session %q: %w", s.name, err)
	}
	if !exists {
		s.notify("stop", "noop")
		return s.report(false, s.errOut, "Session '%s' does not exist.", s.name), nil
	}

	if err := s.backend.Terminate(ctx); err != nil {
		s.notify("stop", "error")
		return Result{}, fmt.Errorf("stop session %q: %w", s.name, err)
	}
	s.log.Info("session killed", zap.String("session", s.name))
	s.notify("stop", "killed")
	return s.report(true, s.out, "Session '%s' session killed.", s.name), nil
}

// Restart terminates the session when present and spawns a fresh one.
func (s *Supervisor) Restart(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.backend.Exists(ctx)
	if err != nil {
		s.notify("restart", "error")
		return Result{}, fmt.Errorf("restart session %q: %w", s.name, err)
	}
	if exists {
		if err := s.backend.Terminate(ctx); err != nil {
			s.notify("restart", "error")
			return Result{}, fmt.Errorf("restart session %q: %w", s.name, err)
		}
	}
	if err := s.backend.Spawn(ctx, s.launch); err != nil {
		s.notify("restart", "error")
		return Result{}, fmt.Errorf("restart session %q: %w", s.name, err)
	}
	s.log.Info("session restarted", zap.String("session", s.name), zap.Bool("was_running", exists))
	s.notify("restart", "restarted")
	return s.report(true, s.out, "Session '%s' restarted.", s.name), nil
}

// Status is the health check.
func (s *Supervisor) Status(ctx context.Context) (Status, error) {
	exists, err := s.backend.Exists(ctx)
	if err != nil {
		return "", fmt.Errorf("session %q status: %w", s.name, err)
	}
	if exists {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

// Send types one line into the managed process.
func (s *Supervisor) Send(ctx context.Context, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireSession(ctx); err != nil {
		return err
	}
	return s.backend.Send(ctx, line)
}

// Output returns the current console contents of the managed process.
func (s *Supervisor) Output(ctx context.Context) (string, error) {
	if err := s.requireSession(ctx); err != nil {
		return "", err
	}
	return s.backend.Output(ctx)
}

func (s *Supervisor) requireSession(ctx context.Context) error {
	exists, err := s.backend.Exists(ctx)
	if err != nil {
		return fmt.Errorf("session %q: %w", s.name, err)
	}
	if !exists {
		return fmt.Errorf("session %q: %w", s.name, ErrSessionNotFound)
	}
	return nil
}

func (s *Supervisor) report(changed bool, w io.Writer, format string, args ...any) Result {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, msg)
	return Result{Session: s.name, Changed: changed, Message: msg}
}

// Package tmux drives named tmux sessions through the tmux binary. Command
// construction is injectable so tests never need a real tmux server.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner is the session facility: existence check, detached creation,
// keystroke injection and termination of sessions addressed by name.
type Runner interface {
	HasSession(ctx context.Context, name string) (bool, error)

	// NewSession creates a detached session. command and workDir are optional.
	NewSession(ctx context.Context, name, command, workDir string) error

	// SendKeys types text into the session followed by Enter.
	SendKeys(ctx context.Context, name, text string) error

	KillSession(ctx context.Context, name string) error

	// CapturePane returns the visible content of the session's active pane.
	CapturePane(ctx context.Context, name string) (string, error)

	ListSessions(ctx context.Context) ([]string, error)
}

// CmdFunc matches exec.CommandContext.
type CmdFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// CLI implements Runner with the tmux binary.
type CLI struct {
	binary string
	runCmd CmdFunc
}

// NewCLI returns a Runner calling the tmux binary found on PATH.
func NewCLI() *CLI {
	return &CLI{binary: "tmux", runCmd: exec.CommandContext}
}

// NewCLIWithCmd returns a Runner that builds commands with fn.
func NewCLIWithCmd(fn CmdFunc) *CLI {
	return &CLI{binary: "tmux", runCmd: fn}
}

// HasSession reports whether a session named name exists. A non-zero exit
// from tmux means "no"; failing to run tmux at all is an error.
func (c *CLI) HasSession(ctx context.Context, name string) (bool, error) {
	err := c.runCmd(ctx, c.binary, "has-session", "-t", exactTarget(name)).Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("tmux has-session %q: %w", name, err)
}

func (c *CLI) NewSession(ctx context.Context, name, command, workDir string) error {
	args := []string{"new-session", "-d", "-s", name}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	if command != "" {
		args = append(args, command)
	}
	return c.run(ctx, "new-session", name, args...)
}

func (c *CLI) SendKeys(ctx context.Context, name, text string) error {
	return c.run(ctx, "send-keys", name, "send-keys", "-t", paneTarget(name), text, "Enter")
}

func (c *CLI) KillSession(ctx context.Context, name string) error {
	return c.run(ctx, "kill-session", name, "kill-session", "-t", exactTarget(name))
}

func (c *CLI) CapturePane(ctx context.Context, name string) (string, error) {
	out, err := c.runCmd(ctx, c.binary, "capture-pane", "-p", "-t", paneTarget(name)).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tmux capture-pane %q: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func (c *CLI) ListSessions(ctx context.Context) ([]string, error) {
	out, err := c.runCmd(ctx, c.binary, "list-sessions", "-F", "#{session_name}").CombinedOutput()
	if err != nil {
		// tmux exits non-zero when no server is running.
		msg := string(out)
		if strings.Contains(msg, "no server running") || strings.Contains(msg, "no sessions") {
			return nil, nil
		}
		return nil, fmt.Errorf("tmux list-sessions: %w: %s", err, strings.TrimSpace(msg))
	}

	var sessions []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			sessions = append(sessions, line)
		}
	}
	return sessions, nil
}

func (c *CLI) run(ctx context.Context, op, name string, args ...string) error {
	out, err := c.runCmd(ctx, c.binary, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("tmux %s %q: %w: %s", op, name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// exactTarget stops tmux from prefix-matching "pz" against "pz-server".
func exactTarget(name string) string {
	return "=" + name
}

// paneTarget addresses the active pane of the exactly named session.
func paneTarget(name string) string {
	return "=" + name + ":"
}

var _ Runner = (*CLI)(nil)

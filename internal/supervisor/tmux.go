package supervisor

import (
	"context"

	"github.com/reedfamily/zomboidbot/internal/tmux"
)

// TmuxBackend hosts the managed process inside a named tmux session.
type TmuxBackend struct {
	runner  tmux.Runner
	session string
}

func NewTmuxBackend(runner tmux.Runner, session string) *TmuxBackend {
	return &TmuxBackend{runner: runner, session: session}
}

func (b *TmuxBackend) Kind() string { return "tmux session" }

func (b *TmuxBackend) Exists(ctx context.Context) (bool, error) {
	return b.runner.HasSession(ctx, b.session)
}

// Spawn creates the detached session and types the launch lines into it.
func (b *TmuxBackend) Spawn(ctx context.Context, l Launch) error {
	if err := b.runner.NewSession(ctx, b.session, "", l.WorkDir); err != nil {
		return err
	}
	for _, line := range l.lines() {
		if err := b.runner.SendKeys(ctx, b.session, line); err != nil {
			return err
		}
	}
	return nil
}

func (b *TmuxBackend) Terminate(ctx context.Context) error {
	return b.runner.KillSession(ctx, b.session)
}

func (b *TmuxBackend) Send(ctx context.Context, line string) error {
	return b.runner.SendKeys(ctx, b.session, line)
}

func (b *TmuxBackend) Output(ctx context.Context) (string, error) {
	return b.runner.CapturePane(ctx, b.session)
}

var _ Backend = (*TmuxBackend)(nil)

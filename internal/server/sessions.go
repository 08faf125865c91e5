package server

import (
	"fmt"
	"io"

	"github.com/reedfamily/zomboidbot/internal/config"
	"github.com/reedfamily/zomboidbot/internal/docker"
	"github.com/reedfamily/zomboidbot/internal/metrics"
	"github.com/reedfamily/zomboidbot/internal/supervisor"
	"github.com/reedfamily/zomboidbot/internal/tmux"
	"go.uber.org/zap"
)

// Sessions holds the supervisors for the game server and the bot.
type Sessions struct {
	Server *supervisor.Supervisor
	Bot    *supervisor.Supervisor

	docker *docker.Client
}

// NewSessions builds both supervisors. Status lines go to out and errOut.
// The game server runs in tmux or docker per server.backend; the bot
// always runs in tmux.
func NewSessions(cfg *config.Config, m *metrics.Metrics, log *zap.Logger, out, errOut io.Writer) (*Sessions, error) {
	runner := tmux.NewCLI()
	opts := func(name string) []supervisor.Option {
		o := []supervisor.Option{
			supervisor.WithOutput(out, errOut),
			supervisor.WithLogger(log.Named("supervisor").With(zap.String("session", name))),
		}
		if m != nil {
			o = append(o, supervisor.WithObserver(m.SessionObserver(name)))
		}
		return o
	}

	s := &Sessions{}
	botName := cfg.TelegramBot.TmuxSessionName
	s.Bot = supervisor.New(botName, supervisor.NewTmuxBackend(runner, botName), supervisor.BotLaunch(cfg), opts(botName)...)

	serverName := cfg.Server.TmuxSessionName
	switch cfg.Server.Backend {
	case "docker":
		spec, err := supervisor.ContainerSpec(cfg)
		if err != nil {
			return nil, fmt.Errorf("docker container spec: %w", err)
		}
		dc, err := docker.NewClient()
		if err != nil {
			return nil, fmt.Errorf("docker client: %w", err)
		}
		s.docker = dc
		backend := supervisor.NewDockerBackend(dc, spec, log.Named("docker"))
		s.Server = supervisor.New(spec.Name, backend, supervisor.ServerLaunch(cfg), opts(spec.Name)...)
	default:
		s.Server = supervisor.New(serverName, supervisor.NewTmuxBackend(runner, serverName), supervisor.ServerLaunch(cfg), opts(serverName)...)
	}
	return s, nil
}

// Target returns the supervisor for "server" or "bot".
func (s *Sessions) Target(name string) (*supervisor.Supervisor, error) {
	switch name {
	case "server", "":
		return s.Server, nil
	case "bot":
		return s.Bot, nil
	}
	return nil, fmt.Errorf("unknown target %q (want server or bot)", name)
}

func (s *Sessions) Close() error {
	if s.docker != nil {
		return s.docker.Close()
	}
	return nil
}

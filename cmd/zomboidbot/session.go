package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/reedfamily/zomboidbot/internal/server"
	"github.com/reedfamily/zomboidbot/internal/supervisor"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start, stop and inspect the bot and server sessions",
}

// withSession runs fn against the supervisor picked by --target.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *supervisor.Supervisor) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer log.Sync()

	sessions, err := server.NewSessions(cfg, nil, log, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer sessions.Close()

	target, _ := cmd.Flags().GetString("target")
	s, err := sessions.Target(target)
	if err != nil {
		return err
	}
	return fn(cmd.Context(), s)
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Create the session and launch its process unless it already exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *supervisor.Supervisor) error {
			_, err := s.Start(ctx)
			return err
		})
	},
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Kill the session if it exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *supervisor.Supervisor) error {
			_, err := s.Stop(ctx)
			return err
		})
	},
}

var sessionRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Kill the session if it exists and start it again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *supervisor.Supervisor) error {
			_, err := s.Restart(ctx)
			return err
		})
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print whether the session is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *supervisor.Supervisor) error {
			status, err := s.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", s.Name(), status)
			return nil
		})
	},
}

var sessionSendCmd = &cobra.Command{
	Use:   "send <line>...",
	Short: "Type a line into the session's console",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *supervisor.Supervisor) error {
			return s.Send(ctx, strings.Join(args, " "))
		})
	},
}

var sessionOutputCmd = &cobra.Command{
	Use:   "output",
	Short: "Print the visible console of the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *supervisor.Supervisor) error {
			out, err := s.Output(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

func init() {
	sessionCmd.PersistentFlags().String("target", "bot", "Session to manage: bot or server")
	sessionCmd.AddCommand(sessionStartCmd, sessionStopCmd, sessionRestartCmd, sessionStatusCmd, sessionSendCmd, sessionOutputCmd)
	rootCmd.AddCommand(sessionCmd)
}

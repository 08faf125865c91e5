package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/reedfamily/zomboidbot/internal/server"
	"github.com/spf13/cobra"
)

var rconCmd = &cobra.Command{
	Use:   "rcon",
	Short: "Send commands to the running server over RCON",
}

var rconBroadcastCmd = &cobra.Command{
	Use:   "broadcast <message>...",
	Short: "Show a server message to every player",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRCON(cmd, func(c rconRunner) (string, error) {
			return c.Broadcast(cmd.Context(), strings.Join(args, " "))
		})
	},
}

var rconRunCmd = &cobra.Command{
	Use:   "run <command>...",
	Short: "Run an allowed console command",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRCON(cmd, func(c rconRunner) (string, error) {
			return c.Run(cmd.Context(), strings.Join(args, " "))
		})
	},
}

type rconRunner interface {
	Run(ctx context.Context, command string) (string, error)
	Broadcast(ctx context.Context, message string) (string, error)
}

func runRCON(cmd *cobra.Command, fn func(c rconRunner) (string, error)) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer log.Sync()

	resp, err := fn(server.NewRCON(cfg, log))
	if err != nil {
		return err
	}
	if resp != "" {
		fmt.Fprintln(cmd.OutOrStdout(), resp)
	}
	return nil
}

func init() {
	rconCmd.AddCommand(rconBroadcastCmd, rconRunCmd)
	rootCmd.AddCommand(rconCmd)
}

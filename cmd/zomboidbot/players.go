package main

import (
	"fmt"
	"strings"

	"github.com/reedfamily/zomboidbot/internal/server"
	"github.com/spf13/cobra"
)

var playersCmd = &cobra.Command{
	Use:   "players",
	Short: "Show who is online",
	Long:  `Counts players from the newest user log. With --rcon the running server is asked directly.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		defer log.Sync()

		var names []string
		if useRCON, _ := cmd.Flags().GetBool("rcon"); useRCON {
			names, err = server.NewRCON(cfg, log).Players(cmd.Context())
			if err != nil {
				return err
			}
		} else {
			accessor, err := server.NewLogs(cfg, log)
			if err != nil {
				return err
			}
			if err := accessor.Refresh(); err != nil {
				return err
			}
			if names, err = accessor.Players(); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d player(s) online\n", len(names))
		if len(names) > 0 {
			fmt.Fprintln(out, strings.Join(names, "\n"))
		}
		return nil
	},
}

func init() {
	playersCmd.Flags().Bool("rcon", false, "Ask the running server with /players over RCON instead of reading logs")
	rootCmd.AddCommand(playersCmd)
}

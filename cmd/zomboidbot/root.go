package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/reedfamily/zomboidbot/internal/config"
	"github.com/reedfamily/zomboidbot/internal/db"
	"github.com/reedfamily/zomboidbot/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "zomboidbot",
	Short:         "Project Zomboid server bot and session manager",
	Long:          `zomboidbot answers Telegram group commands for a Project Zomboid server and starts or stops its tmux sessions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to the YAML configuration")
}

// loadConfig reads the configuration once for the running command.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logging.NewOrNop(logging.Config{Level: cfg.Env.LogLevel, Development: cfg.Env.LogDev})
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	if err := os.MkdirAll(cfg.Env.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return db.OpenAndMigrate(cfg.Env.DatabasePath)
}

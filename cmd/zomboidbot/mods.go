package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/reedfamily/zomboidbot/internal/mods"
	"github.com/reedfamily/zomboidbot/internal/server"
	"github.com/spf13/cobra"
)

var modsCmd = &cobra.Command{
	Use:   "mods",
	Short: "Inspect and change the server's workshop mods",
}

func withMods(cmd *cobra.Command, fn func(ctx context.Context, m *mods.Manager) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer log.Sync()

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	m, err := server.NewModManager(cmd.Context(), cfg, database, log)
	if err != nil {
		return err
	}
	return fn(cmd.Context(), m)
}

var modsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed mods",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMods(cmd, func(ctx context.Context, m *mods.Manager) error {
			installed, err := m.Installed(ctx)
			if err != nil {
				return err
			}
			for _, mod := range installed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", mod.WorkshopID, mod.Name, strings.Join(mod.ModIDs, ","))
			}
			return nil
		})
	},
}

var modsCheckCmd = &cobra.Command{
	Use:   "check <workshop-id>",
	Short: "Check that a workshop item exists and is not installed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMods(cmd, func(ctx context.Context, m *mods.Manager) error {
			if err := m.Check(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s can be installed: %s\n", args[0], m.ModURL(args[0]))
			return nil
		})
	},
}

var modsInstallCmd = &cobra.Command{
	Use:   "install <workshop-id>",
	Short: "Install a mod and its requirements without a vote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMods(cmd, func(ctx context.Context, m *mods.Manager) error {
			if err := m.Check(ctx, args[0]); err != nil {
				return err
			}
			resolved, err := m.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			added, err := m.Install(ctx, resolved)
			if err != nil {
				return err
			}
			for _, mod := range added {
				fmt.Fprintf(cmd.OutOrStdout(), "installed %s (%s)\n", mod.WorkshopID, mod.Name)
			}
			if len(added) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to install")
			}
			return nil
		})
	},
}

var modsDependentsCmd = &cobra.Command{
	Use:   "dependents <workshop-id|name>",
	Short: "List installed mods that require the given mod",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMods(cmd, func(ctx context.Context, m *mods.Manager) error {
			dependents, err := m.Dependents(args[0])
			if err != nil {
				return err
			}
			for _, id := range dependents {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		})
	},
}

var modsRemoveCmd = &cobra.Command{
	Use:   "remove <workshop-id|name>",
	Short: "Remove a mod from the server ini",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return withMods(cmd, func(ctx context.Context, m *mods.Manager) error {
			if err := m.Remove(ctx, args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		})
	},
}

func init() {
	modsRemoveCmd.Flags().Bool("force", false, "Remove even when other mods require it")
	modsCmd.AddCommand(modsListCmd, modsCheckCmd, modsInstallCmd, modsDependentsCmd, modsRemoveCmd)
	rootCmd.AddCommand(modsCmd)
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/reedfamily/zomboidbot/internal/auth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage admin API operators",
}

var operatorAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an operator, reading the password from the terminal or stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		if err := auth.NewService(database).CreateOperator(args[0], password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "operator %s created\n", args[0])
		return nil
	},
}

func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	operatorCmd.AddCommand(operatorAddCmd)
	rootCmd.AddCommand(operatorCmd)
}

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orrn/printdesk/internal/api/middleware"
)

var passwdValue string

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Set the operator password",
	Long:  "Set the operator password. Without --password the new password is read from the first line of stdin.",
	RunE: func(cmd *cobra.Command, args []string) error {
		password := passwdValue
		if password == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "New operator password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		be, err := openBackend(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer be.close()

		if err := middleware.SetPassword(cmd.Context(), be.settings, password); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "operator password updated")
		return nil
	},
}

func init() {
	passwdCmd.Flags().StringVar(&passwdValue, "password", "", "New password (prefer stdin, flags end up in shell history)")
	rootCmd.AddCommand(passwdCmd)
}

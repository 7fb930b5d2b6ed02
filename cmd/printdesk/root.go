package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/orrn/printdesk/internal/config"
	"github.com/orrn/printdesk/internal/logging"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "printdesk",
	Short:         "Pay-per-print document shop: upload, pay, print.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg != nil {
			return nil
		}
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if _, err := logging.Setup(c.Logging.Level, c.Logging.Format, os.Stderr); err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "printdesk.yaml", "Path to the YAML config file (missing file means defaults)")
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/transer/vortice/internal/config"
	"github.com/transer/vortice/internal/logging"
	"github.com/transer/vortice/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the vortice CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vortice",
		Short: "Vortice - credential and token lifecycle service",
		Long: `Vortice manages user credentials and token lifecycles: login with
brute-force lockout, refresh token rotation, and password resets.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewSweepCmd())

	return cmd
}

// loadConfig resolves the configuration for a subcommand: the --config path
// if given, otherwise the XDG default location, layered under the command's
// own flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := configFile
	if path == "" {
		path = xdg.DefaultConfigFile()
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	logging.SetDefault("vortice", cmd.Root().Version, cfg.Logging.Format, cfg.Logging.Level)
	return cfg, nil
}

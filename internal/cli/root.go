// Package cli implements the cadence command line.
package cli

import (
	"errors"
	"io/fs"

	"cadence/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagEnvFile string
)

// NewRootCmd creates the root cobra command for the cadence CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cadence",
		Short: "cadence runs commands on periodic and calendar schedules",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; a missing default file is not an error.
			if err := godotenv.Load(flagEnvFile); err != nil {
				if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
					return err
				}
			}
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (or "+config.EnvPath+" env, default "+config.DefaultPath+")")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newRunCmd(),
		newCheckCmd(),
		newNextCmd(),
		newPeriodCmd(),
	)
	return root
}

func configPath() string { return config.ResolvePath(flagConfig) }

// loadConfig parses and validates without committing or watching.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewConfigManager(configPath()).Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

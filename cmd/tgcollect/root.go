package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/tgcollect/internal/config"
)

type rootOptions struct {
	configPath string
	envFiles   []string
}

// NewRootCmd returns the root command for the tgcollect CLI
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "tgcollect",
		Short:         "Collect bot events into bounded sessions",
		Long:          "tgcollect runs message, reaction and inline keyboard collectors over a stream of bot updates and keeps a history of finished sessions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "Env files loaded before the config is read")

	rootCmd.AddCommand(newReplayCmd(opts))
	rootCmd.AddCommand(newSessionsCmd(opts))

	return rootCmd
}

// load reads env files and the config and sets up logging
func (o *rootOptions) load() (*config.Config, error) {
	loaded := config.LoadEnv(o.envFiles...)

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogging(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)
	log.Debug().Str("config", o.configPath).Strs("env_files", loaded).Msg("Configuration loaded")
	return cfg, nil
}

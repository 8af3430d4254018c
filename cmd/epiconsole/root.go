package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"epiconsole/internal/api"
	"epiconsole/internal/config"
	"epiconsole/internal/logging"
)

var (
	configPath   string
	apiURL       string
	logLevel     string
	outputFormat string
)

// newRootCmd builds the command tree. Each call binds fresh flag state.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "epiconsole",
		Short:         "Entity console for the epidemic simulation store",
		Long:          "epiconsole lists, creates and edits terrain, virus and simulation records held by a remote store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to YAML configuration")
	pf.StringVar(&apiURL, "api-url", "", "Store API base URL (overrides config and "+config.EnvAPIURL+")")
	pf.StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn or error")
	pf.StringVarP(&outputFormat, "output", "o", "auto", "Output format: auto, table, json or yaml")

	rootCmd.AddCommand(
		newEntityCmd(terrainCommand),
		newEntityCmd(virusCommand),
		newEntityCmd(simulationCommand),
		newConsoleCmd(),
		newServeCmd(),
		newAuditCmd(),
		newDashboardCmd(),
		newImportCmd(),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return logging.NewWithLevel(w, cfg.LogLevel)
}

func newClientSet(cfg *config.Config, log *slog.Logger) (*api.Set, error) {
	return api.NewSet(cfg.APIURL, api.Options{
		Timeout:   cfg.Timeout,
		Logger:    log,
		UserAgent: "epiconsole",
	})
}

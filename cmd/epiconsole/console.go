package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"epiconsole/internal/console"
)

const defaultConsoleLog = "epiconsole.log"

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Browse and edit records in an interactive terminal console",
		Long:  "console shows one tab per entity kind with creation and edit dialogs. Logs go to log_file since the terminal is taken.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isTerminal(os.Stdout) {
				return fmt.Errorf("console needs an interactive terminal")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path := cfg.LogFile
			if path == "" {
				path = defaultConsoleLog
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
			log := newLogger(f, cfg)

			set, err := newClientSet(cfg, log)
			if err != nil {
				return err
			}
			s := console.NewSession(set, console.SessionOptions{AssetPrefix: cfg.AssetPrefix, Logger: log})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log.Info("console started", "api_url", cfg.APIURL)
			return console.Run(ctx, s)
		},
	}
}

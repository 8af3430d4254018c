package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"epiconsole/internal/audit"
	"epiconsole/internal/dashboard"
	"epiconsole/internal/scenario"
)

func newAuditCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "audit",
		Short: "Work with the store audit trail",
	}

	var (
		input string
		speed float64
	)
	replay := &cobra.Command{
		Use:   "replay",
		Short: "Replay an audit log file",
		Long:  "replay feeds events from a JSONL audit file into the sinks of store.audit, or STDOUT when none is configured.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cmd.ErrOrStderr(), cfg)
			sinks := cfg.Store.Audit
			sinks.File = ""
			w, cleanup, err := newAuditWriter(cmd.OutOrStdout(), sinks, log)
			if err != nil {
				return err
			}
			defer cleanup()
			if _, ok := w.(audit.Nop); ok {
				w = audit.NewJSONWriter(cmd.OutOrStdout())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			n, err := audit.ReplayFile(ctx, input, w, speed)
			log.Info("replay finished", "events", n)
			return err
		},
	}
	replay.Flags().StringVar(&input, "input", "", "Path to audit log file (JSONL)")
	replay.Flags().Float64Var(&speed, "speed", 0, "Playback speed multiplier; 0 replays without delay")
	_ = replay.MarkFlagRequired("input")

	c.AddCommand(replay)
	return c
}

func newDashboardCmd() *cobra.Command {
	var outDir string
	c := &cobra.Command{
		Use:   "dashboard",
		Short: "Render Grafana dashboards for store metrics and the audit trail",
		Long: fmt.Sprintf("dashboard writes Grafana dashboards to --out. Datasource uids come from %s and %s.",
			dashboard.EnvPrometheusUID, dashboard.EnvGreptimeUID),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := dashboard.Render(outDir, os.Getenv); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dashboards written to %s\n", outDir)
			return nil
		},
	}
	c.Flags().StringVar(&outDir, "out", "build", "Output directory")
	return c
}

func newImportCmd() *cobra.Command {
	var existOK bool
	c := &cobra.Command{
		Use:   "import FILE",
		Short: "Create the terrain, simulation and virus of a scenario config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cmd.ErrOrStderr(), cfg)
			set, err := newClientSet(cfg, log)
			if err != nil {
				return err
			}
			res, err := scenario.NewImporter(set, existOK, log).Import(cmd.Context(), sc)
			out := cmd.OutOrStdout()
			for _, m := range res.Messages {
				fmt.Fprintln(out, m)
			}
			for _, w := range res.Warnings {
				fmt.Fprintln(out, "warning: "+w)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, res.Summary())
			return nil
		},
	}
	c.Flags().BoolVar(&existOK, "exist-ok", true, "Reuse records that already exist instead of failing")
	return c
}

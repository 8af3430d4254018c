package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"epiconsole/internal/store"
)

func newServeCmd() *cobra.Command {
	var serveAddr string
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference entity store",
		Long:  "serve exposes the terrain, virus and simulation collections over HTTP with validation, audit events and metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Store.Addr = serveAddr
			}
			log := newLogger(cmd.ErrOrStderr(), cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, err := newBackend(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer backend.Close()

			assets, err := newAssets(ctx, cfg.Store.Assets)
			if err != nil {
				return err
			}

			auditWriter, cleanup, err := newAuditWriter(cmd.OutOrStdout(), cfg.Store.Audit, log)
			if err != nil {
				return err
			}
			defer cleanup()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			srv := store.NewServer(store.Options{
				BasePath: cfg.Store.BasePath,
				Backend:  backend,
				Assets:   assets,
				Audit:    auditWriter,
				Logger:   log,
				Registry: reg,
			})
			log.Info("store starting", "backend", cfg.Store.Backend, "assets", cfg.Store.Assets.Driver)
			if err := srv.ListenAndServe(ctx, cfg.Store.Addr); err != nil {
				return err
			}
			log.Info("store stopped")
			return nil
		},
	}
	c.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides store.addr)")
	return c
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"epiconsole/internal/audit"
	"epiconsole/internal/config"
	"epiconsole/internal/store"
)

// newAuditWriter sets up the audit sinks enabled in cfg. It returns the
// writer and a cleanup function to close any resources.
func newAuditWriter(stdout io.Writer, cfg config.Audit, log *slog.Logger) (audit.Writer, func(), error) {
	cleanup := func() {}
	var ws []audit.Writer
	if cfg.Stdout {
		ws = append(ws, audit.NewJSONWriter(stdout))
	}
	if cfg.File != "" {
		fw, err := audit.NewFileWriter(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		ws = append(ws, fw)
		cleanup = func() { fw.Close() }
	}
	if cfg.Greptime.Endpoint != "" {
		gw, err := audit.NewGreptimeDBWriter(cfg.Greptime.Endpoint, cfg.Greptime.Database, log)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		ws = append(ws, gw)
	}
	switch len(ws) {
	case 0:
		return audit.Nop{}, cleanup, nil
	case 1:
		return ws[0], cleanup, nil
	}
	return audit.NewMultiWriter(ws...), cleanup, nil
}

// newBackend opens the record backend selected in cfg.
func newBackend(ctx context.Context, cfg config.Store) (store.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemoryBackend(), nil
	case "sqlite":
		return store.OpenSQLite(ctx, cfg.SQLitePath)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("store.postgres_dsn required for the postgres backend")
		}
		return store.OpenPostgres(ctx, cfg.PostgresDSN)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// newAssets builds the map file checker selected in cfg.
func newAssets(ctx context.Context, cfg config.Assets) (store.AssetChecker, error) {
	switch cfg.Driver {
	case "", "none":
		return store.NoAssets{}, nil
	case "fs":
		return store.DirAssets{Root: cfg.Root}, nil
	case "s3":
		return store.NewS3Assets(ctx, store.S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			Prefix:    cfg.Prefix,
			PathStyle: cfg.PathStyle,

			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
	}
	return nil, fmt.Errorf("unknown asset driver %q", cfg.Driver)
}

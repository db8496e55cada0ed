package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/tenantguard/pkg/archive"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/catalog"
	"github.com/platinummonkey/tenantguard/pkg/cli"
	"github.com/platinummonkey/tenantguard/pkg/config"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	root := cli.NewRootCommand()
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return root.Execute(ctx, &cli.Env{Out: os.Stdout}, args)
	}

	cfg, err := config.LoadOperatorConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr).
		WithField("service", "tenantguard-admin")

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	cat, err := catalog.LoadFile(cfg.Catalog.File)
	if err != nil {
		return err
	}

	diag, diagCloser, err := audit.NewDiagnosticLogger(cfg.Audit.DiagnosticFile, cfg.Audit.DiagnosticLevel)
	if err != nil {
		return err
	}
	defer diagCloser.Close()

	sink, err := audit.NewDBSink(db.DB)
	if err != nil {
		return err
	}

	env := &cli.Env{
		Out:     os.Stdout,
		Logger:  logger,
		DB:      db,
		Catalog: cat,
		Audit:   audit.NewRecorder(sink, diag, audit.WithWriteTimeout(cfg.Audit.WriteTimeout)),
	}
	if cfg.Archive.Enabled() {
		s3Store, err := archive.NewS3Store(ctx, cfg.Archive)
		if err != nil {
			return err
		}
		env.Archive = s3Store
	}

	return root.Execute(ctx, env, args)
}

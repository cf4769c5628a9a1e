// File: cmd/pipeline/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"social-pipeline/internal/config"
	"social-pipeline/internal/infra/logging"
	"social-pipeline/internal/infra/metrics"
	"social-pipeline/internal/infra/scheduler"
	"social-pipeline/internal/infra/web"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		devMode bool
	)
	cmd := &cobra.Command{
		Use:           "pipeline",
		Short:         "Turn queued article links into social posts on a schedule",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := run(cfgPath, devMode)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "pipeline: %v\n", err)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to YAML config file (optional)")
	cmd.Flags().BoolVar(&devMode, "dev", false, "developer mode: console logs, unredacted secrets")
	return cmd
}

func run(cfgPath string, dev bool) error {
	cfg, err := config.LoadConfig(cfgPath, dev)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	proc := scheduler.NewProcess(logger)
	stopSignals := scheduler.SetupSignalHandler(proc)
	defer stopSignals()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := wire(ctx, cfg, proc, logger)
	if err != nil {
		if cerr := proc.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("cleanup after failed startup")
		}
		return err
	}

	sched := scheduler.NewScheduler(cfg.Workflow.Interval, app.pipeline, proc, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return sched.Run(ctx)
	})
	if cfg.Admin.Port > 0 {
		ops := web.NewServer(cfg.Admin.Port, app.status, cfg.Admin.APIKey, logger)
		g.Go(func() error {
			if err := ops.ListenAndServe(gctx); err != nil {
				logger.Error().Err(err).Msg("ops server stopped")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

// Package cmd implements the serial-epub command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/serial-epub/internal/app"
	"github.com/JakeFAU/serial-epub/internal/config"
	"github.com/JakeFAU/serial-epub/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Service is the part of app.Service the command drives. Tests swap in a fake.
type Service interface {
	Run(ctx context.Context, req app.Request) (app.Result, error)
	Close(ctx context.Context, metricsFile string) error
}

// newService is the service factory. It's a variable so tests can replace it.
var newService = func(cfg config.Config, logger *zap.Logger) (Service, error) {
	return app.Build(cfg, logger)
}

// newRootCmd creates the root command and its flags.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "serial-epub",
		Short: "Download a Royal Road story and package it as an EPUB.",
		Long: `serial-epub fetches a story's landing page, its cover and every chapter,
then writes a single EPUB with the chapters in reading order. The output may be
a local path or a gs://bucket/object URI.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LoggerConfig())
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			zap.ReplaceGlobals(logger)

			return run(cmd, cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "optional YAML config file")
	flags.String("url", "", "story landing page or any chapter URL (required)")
	flags.String("out", "", "output path or gs://bucket/object (required)")
	flags.Int("concurrent", 5, "maximum chapters fetched at once")
	flags.String("metrics-file", "", "write Prometheus metrics to this file on exit")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("dev-logs", false, "human-readable console logs")
	return cmd
}

func run(cmd *cobra.Command, cfg config.Config, logger *zap.Logger) error {
	svc, err := newService(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer func() {
		// The run context may already be canceled; flushing still gets a window.
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Close(ctx, cfg.Run.MetricsFile); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	res, err := svc.Run(cmd.Context(), app.Request{
		URL:         cfg.Run.URL,
		Out:         cfg.Run.Out,
		Concurrency: cfg.Run.Concurrent,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d chapters, %d bytes)\n", res.URI, res.Chapters, res.Bytes)
	return err
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "serial-epub: %v\n", err)
		os.Exit(1)
	}
}

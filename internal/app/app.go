// Package app wires long-lived services together and runs the scrape flow.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/serial-epub/internal/clock/system"
	"github.com/JakeFAU/serial-epub/internal/config"
	collyfetcher "github.com/JakeFAU/serial-epub/internal/fetcher/colly"
	"github.com/JakeFAU/serial-epub/internal/fetcher/headless"
	idgen "github.com/JakeFAU/serial-epub/internal/id/uuid"
	"github.com/JakeFAU/serial-epub/internal/progress"
	"github.com/JakeFAU/serial-epub/internal/progress/sinks"
	"github.com/JakeFAU/serial-epub/internal/scrape"
	"github.com/JakeFAU/serial-epub/internal/storage"
	"github.com/JakeFAU/serial-epub/internal/story"
)

// Service holds the shared collaborators for a process. It is built once at
// startup and closed on exit.
type Service struct {
	runner   *Runner
	registry *prometheus.Registry
	hub      *progress.Hub
	headless *headless.Fetcher
	logger   *zap.Logger
}

// Build constructs the fetchers, progress hub and metrics registry from cfg.
// Fetchers report through the run-scoped emitter that Runner places on the
// request context.
func Build(cfg config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)
	svc := &Service{registry: registry, hub: hub, logger: logger}

	resources, err := collyfetcher.New(collyfetcher.Config{
		BaseURL:   cfg.Fetch.BaseURL,
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.Fetch.Timeout,
	}, nil, logger.Named("fetch"))
	if err != nil {
		_ = hub.Close(context.Background())
		return nil, err
	}

	var pages story.PageFetcher = resources
	if cfg.Fetch.Headless {
		hf, err := headless.NewChromedp(headless.Config{
			BaseURL:           cfg.Fetch.BaseURL,
			MaxParallel:       cfg.Fetch.HeadlessMaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: cfg.Fetch.HeadlessNavTimeout,
		}, nil, logger.Named("headless"))
		if err != nil {
			_ = hub.Close(context.Background())
			return nil, err
		}
		logger.Info("using headless page fetcher", zap.Int("max_parallel", cfg.Fetch.HeadlessMaxParallel))
		svc.headless = hf
		pages = hf
	}

	svc.runner = NewRunner(Deps{
		Resolver:  scrape.NewResolver(pages, scrape.RoyalRoad(), logger.Named("scrape")),
		Resources: resources,
		Open: func(ctx context.Context, out string) (*storage.Output, error) {
			return storage.Open(ctx, out)
		},
		IDs:    idgen.New(),
		Clock:  system.New(),
		Events: hub,
		Logger: logger,
	})
	return svc, nil
}

// Run executes one request.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	return s.runner.Run(ctx, req)
}

// Registry exposes the metrics collected by the progress hub.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Close flushes progress events, writes the metrics textfile when metricsFile
// is set, and stops the browser if one was started.
func (s *Service) Close(ctx context.Context, metricsFile string) error {
	var errs []error
	if err := s.hub.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close progress hub: %w", err))
	}
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, s.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		} else {
			s.logger.Debug("metrics written", zap.String("path", metricsFile))
		}
	}
	if s.headless != nil {
		s.headless.Close()
	}
	return errors.Join(errs...)
}

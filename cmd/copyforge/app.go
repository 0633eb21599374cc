package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/lamim/copyforge/internal/api"
	"github.com/lamim/copyforge/internal/composer"
	"github.com/lamim/copyforge/internal/config"
	"github.com/lamim/copyforge/internal/library"
	"github.com/lamim/copyforge/internal/metrics"
	"github.com/lamim/copyforge/internal/pipeline"
	"github.com/lamim/copyforge/internal/rubric"
)

// app holds the services shared by every command
type app struct {
	cfg      *config.Config
	secrets  *config.Secrets
	lib      *library.Library
	metrics  *metrics.Collector
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func consoleLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()}))
}

// loadConfig reads the env file, the config and applies command-line overrides
func loadConfig() (*config.Config, *config.Secrets, error) {
	if envFile != "" {
		if err := config.LoadEnvFile(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
		}
	}

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if templatesDir != "" {
		cfg.Library.TemplatesDir = templatesDir
	}
	if useMock {
		cfg.Backend.Mock = true
	}
	return cfg, secrets, nil
}

// newApp wires library, backend, rubric and pipeline from cfg
func newApp(cfg *config.Config, secrets *config.Secrets, logger *slog.Logger) (*app, error) {
	collector := metrics.NewCollector(logger)

	var (
		lib *library.Library
		err error
	)
	if cfg.Library.TemplatesDir != "" {
		lib, err = library.Load(cfg.Library.TemplatesDir, logger)
	} else {
		lib, err = library.LoadDefault(logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load module library: %w", err)
	}
	collector.SetLibraryFragments(lib.Counts())

	var backend api.Backend
	if cfg.Backend.Mock {
		logger.Warn("Using mock backend, no model will be called")
		backend = api.NewMockBackend(logger)
	} else {
		client := api.NewClient(logger, collector)
		if len(cfg.Backend.ProviderRateLimits) > 0 {
			client.SetProviderRateLimits(cfg.Backend.ProviderRateLimits, cfg.Backend.ProviderBurstPercent)
			logger.Info("Provider rate limits configured",
				"providers", cfg.Backend.ProviderRateLimits,
				"burst_percent", cfg.Backend.ProviderBurstPercent)
		}
		backend = api.NewChatBackend(client, secrets)
	}
	backend = api.Instrument(backend, collector)

	evaluator := rubric.New(backend, cfg.Rubric(), logger, rubric.WithMetrics(collector))
	p := pipeline.New(composer.New(lib, logger), backend, cfg.Generation(), evaluator, collector, logger)

	return &app{
		cfg:      cfg,
		secrets:  secrets,
		lib:      lib,
		metrics:  collector,
		pipeline: p,
		logger:   logger,
	}, nil
}

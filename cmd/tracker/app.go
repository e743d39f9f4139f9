package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rickgao/portfolio-tracker/internal/api"
	"github.com/rickgao/portfolio-tracker/internal/config"
	"github.com/rickgao/portfolio-tracker/internal/dispatch"
	"github.com/rickgao/portfolio-tracker/internal/model"
	"github.com/rickgao/portfolio-tracker/internal/version"
	"github.com/rickgao/portfolio-tracker/internal/watch"
)

// Global flags, shared by every subcommand.
var (
	configPath = flag.String("config", "configs/tracker.local.yaml", "path to config file")
	logLevel   = flag.String("log-level", "", "override log.level (debug, info, warn, error)")
	logFormat  = flag.String("log-format", "", "override log.format (text, json)")
)

// loadConfig loads and validates the config, applying the global overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		return nil, err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the process logger and installs it as the slog default.
// Logs go to stderr so command output on stdout stays clean.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// market is the quote client, the dispatcher pacing it and the watch
// registry on top, shared by every command that talks to the quote API.
type market struct {
	client     *api.Client
	dispatcher *dispatch.Dispatcher
	registry   *watch.Registry
	logger     *slog.Logger
}

func newMarket(cfg *config.Config, logger *slog.Logger) *market {
	client := api.NewClient(cfg.API.BaseURL, cfg.API.Token,
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger.With("component", "api")),
		api.WithUserAgent("portfolio-tracker/"+version.Version),
	)

	d := dispatch.New(dispatch.Config{
		MaxRequestsPerSecond: cfg.Dispatcher.MaxRequestsPerSecond,
		MinDelay:             cfg.Dispatcher.MinDelay,
		MaxRetries:           cfg.Dispatcher.MaxRetries,
		Backoff: dispatch.BackoffPolicy{
			Base:   cfg.Dispatcher.BaseRetryDelay,
			Max:    cfg.Dispatcher.MaxBackoffDelay,
			Jitter: cfg.Dispatcher.Jitter,
		},
	}, logger.With("component", "dispatcher"))

	reg := watch.NewRegistry(watch.Config{
		PollInterval: cfg.Watch.PollInterval,
		MaxSymbols:   cfg.Watch.MaxSymbols,
	}, client, d, logger.With("component", "watch"))

	return &market{
		client:     client,
		dispatcher: d,
		registry:   reg,
		logger:     logger,
	}
}

func (m *market) start(ctx context.Context) error {
	return m.dispatcher.Start(ctx)
}

// stop closes the registry before the dispatcher so no poll is enqueued
// after the worker exits.
func (m *market) stop(ctx context.Context) {
	m.registry.Close()
	if err := m.dispatcher.Stop(ctx); err != nil {
		m.logger.Warn("dispatcher stop", "err", err)
	}
}

// profiles routes company profile lookups through the dispatcher so they
// share the quote rate limit.
type profiles struct {
	client     *api.Client
	dispatcher *dispatch.Dispatcher
}

func (p profiles) GetProfile(ctx context.Context, symbol string) (*model.Profile, error) {
	result := make(chan *model.Profile, 1)
	err := p.dispatcher.Do(ctx, func(opCtx context.Context) error {
		prof, err := p.client.GetProfile(opCtx, symbol)
		if err != nil {
			return err
		}
		result <- prof
		return nil
	})
	if err != nil {
		return nil, err
	}
	return <-result, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

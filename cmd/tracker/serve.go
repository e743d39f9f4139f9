package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/redis/go-redis/v9"

	"github.com/rickgao/portfolio-tracker/internal/cache"
	"github.com/rickgao/portfolio-tracker/internal/config"
	"github.com/rickgao/portfolio-tracker/internal/database"
	"github.com/rickgao/portfolio-tracker/internal/portfolio"
	"github.com/rickgao/portfolio-tracker/internal/server"
	"github.com/rickgao/portfolio-tracker/internal/stream"
	"github.com/rickgao/portfolio-tracker/internal/version"
)

type serveCmd struct {
	shutdownTimeout time.Duration
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the portfolio API and live price stream" }
func (*serveCmd) Usage() string {
	return `tracker [-config <path>] serve [-shutdown-timeout <d>]

  Loads holdings from Postgres, watches every held symbol and serves the
  REST API and the /ws price stream until interrupted. Price changes are
  recorded in price_history and, when redis.addr is set, cached and fanned
  out through Redis.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for graceful shutdown")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fail("failed to load config: %v", err)
		return subcommands.ExitFailure
	}
	if err := cfg.ValidateStorage(); err != nil {
		fail("invalid storage config: %v", err)
		return subcommands.ExitFailure
	}

	logger := newLogger(cfg.Log, os.Stderr)
	logger.Info("starting tracker",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)

	ctx, cancel := signalContext(ctx, logger)
	defer cancel()

	if err := run(ctx, cfg, logger, c.shutdownTimeout); err != nil {
		logger.Error("tracker failed", "err", err)
		return subcommands.ExitFailure
	}
	logger.Info("tracker stopped")
	return subcommands.ExitSuccess
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := database.NewHoldingRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("database connected")

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = cache.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		logger.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	mkt := newMarket(cfg, logger)
	if err := mkt.start(ctx); err != nil {
		return err
	}

	writer := database.NewPriceWriter(database.WriterConfig{
		BatchSize:     cfg.Writer.BatchSize,
		FlushInterval: cfg.Writer.FlushInterval,
		BufferSize:    cfg.Writer.BufferSize,
	}, pool, logger.With("component", "price_writer"))
	if err := writer.Start(ctx); err != nil {
		return err
	}

	svc := portfolio.NewService(repo, mkt.registry, logger.With("component", "portfolio"),
		portfolio.WithProfiles(profiles{client: mkt.client, dispatcher: mkt.dispatcher}),
		portfolio.WithObserver(writer),
	)

	var snapshots stream.Snapshotter = svc
	var priceCache *cache.PriceCache
	if rdb != nil {
		priceCache = cache.New(rdb, cfg.Redis.TTL, logger.With("component", "cache"))
		if err := priceCache.Start(ctx); err != nil {
			mkt.stop(ctx)
			_ = writer.Stop(ctx)
			return err
		}
		snapshots = priceCache
	}

	hub := stream.NewHub(svc, snapshots, logger.With("component", "stream"),
		stream.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)

	// With Redis, prices reach browsers through pub/sub so every instance
	// serving /ws sees them. Without it the hub is fed directly.
	listenDone := make(chan struct{})
	if priceCache != nil {
		svc.AddObserver(priceCache)
		go func() {
			defer close(listenDone)
			if err := priceCache.Listen(ctx, hub.Broadcast); err != nil {
				logger.Error("price listener stopped", "err", err)
			}
		}()
	} else {
		svc.AddObserver(hub)
		close(listenDone)
	}

	var srv *server.Server
	shutdown := func() {
		logger.Info("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http server shutdown", "err", err)
			}
		}
		hub.Close()
		mkt.stop(shutdownCtx)
		if err := writer.Stop(shutdownCtx); err != nil {
			logger.Warn("price writer stop", "err", err)
		}
		if priceCache != nil {
			if err := priceCache.Stop(shutdownCtx); err != nil {
				logger.Warn("price cache stop", "err", err)
			}
		}
	}

	if err := svc.Load(ctx); err != nil {
		shutdown()
		return err
	}

	opts := []server.Option{
		server.WithQuotes(mkt.registry),
		server.WithDispatcher(mkt.dispatcher),
		server.WithStream(hub),
		server.WithHealthCheck("postgres", pool.Ping),
	}
	if rdb != nil {
		opts = append(opts, server.WithHealthCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	srv = server.New(cfg.Server, svc, logger.With("component", "server"), opts...)
	if err := srv.Start(); err != nil {
		srv = nil
		shutdown()
		return err
	}

	<-ctx.Done()
	shutdown()
	<-listenDone

	logger.Info("final stats",
		"dispatcher", mkt.dispatcher.Stats(),
		"watch", mkt.registry.Stats(),
		"writer", writer.Stats(),
		"stream", hub.Stats(),
	)
	if priceCache != nil {
		logger.Info("cache stats", "cache", priceCache.Stats())
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/smartwill/lastwill/internal/config"
	"github.com/smartwill/lastwill/internal/deploy"
	"github.com/smartwill/lastwill/internal/events"
	"github.com/smartwill/lastwill/internal/infra"
	"github.com/smartwill/lastwill/internal/logging"
	"github.com/smartwill/lastwill/internal/metrics"
	"github.com/smartwill/lastwill/internal/routes"
	"github.com/smartwill/lastwill/internal/server"
	"github.com/smartwill/lastwill/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.AppName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		db    *pgxpool.Pool
		cache *redis.Client
		st    store.Store
	)
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, infra.PoolOptions{
			AppName:         cfg.AppName,
			MaxConns:        cfg.DBMaxConns,
			MaxConnLifetime: cfg.DBMaxConnLifetime,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		st = pg
	} else {
		logger.Warn("DATABASE_URL not set, state is kept in memory")
		st = store.NewMemory()
	}

	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			return err
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sys := deploy.NewSystem(nil)
	addrs, err := deploy.Bootstrap(ctx, st, sys, cfg.AdminAddress)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	logger.Info("contracts deployed",
		"admin", addrs.Admin.Hex(),
		"escrow", addrs.Escrow.Hex(),
		"registry", addrs.Registry.Hex(),
		"factory", addrs.Factory.Hex(),
		"bank", addrs.Bank.Hex(),
	)

	publisher, closePublisher, err := newPublisher(ctx, cfg, cache, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	srv, err := server.New(routes.Deps{
		Cfg:       cfg,
		Store:     st,
		System:    sys,
		Addresses: addrs,
		DB:        db,
		Cache:     cache,
		Logger:    logger,
		Metrics:   m,
		Gatherer:  reg,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	relay := events.NewRelay(st, publisher, logger, m, cfg.RelayInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen()
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server exited cleanly")
	return nil
}

func newPublisher(ctx context.Context, cfg config.Config, cache *redis.Client, logger *slog.Logger) (events.Publisher, func(), error) {
	switch cfg.EventSink {
	case config.SinkRedis:
		if cache == nil {
			return nil, nil, fmt.Errorf("EVENT_SINK=redis requires REDIS_URL")
		}
		return events.NewRedisStreamPublisher(cache, cfg.EventStream), func() {}, nil
	case config.SinkKafka:
		client, err := infra.NewKafkaClient(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		return events.NewKafkaPublisher(client, cfg.KafkaTopic), client.Close, nil
	default:
		return events.NewLogPublisher(logger), func() {}, nil
	}
}

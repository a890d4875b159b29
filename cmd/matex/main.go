package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/lastdino/matex-sub001/cmd/matex/cli"
	"github.com/lastdino/matex-sub001/internal/app"
	"github.com/lastdino/matex-sub001/internal/integration"
	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/observability"
	"github.com/lastdino/matex-sub001/internal/platform/cache"
	"github.com/lastdino/matex-sub001/internal/platform/db"
	"github.com/lastdino/matex-sub001/internal/procurement"
	"github.com/lastdino/matex-sub001/internal/receiving"
	"github.com/lastdino/matex-sub001/internal/units"
	"github.com/lastdino/matex-sub001/jobs"
)

const usage = `usage: matex [serve | migrate up|down|version | jobs trigger <name> [args] | jobs stats]`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrateCmd(cfg, logger, args)
	case "jobs":
		err = jobsCmd(ctx, cfg, args)
	default:
		err = errors.New(usage)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(command, slog.Any("error", err))
		os.Exit(1)
	}
}

func migrateCmd(cfg *app.Config, logger *slog.Logger, args []string) error {
	migrator, err := db.NewMigrator(cfg.PGDSN, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("close migrator", slog.Any("error", err))
		}
	}()
	return cli.RunMigrate(os.Stdout, migrator, args)
}

func jobsCmd(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New(usage)
		}
		info, err := jobsCLI.Trigger(ctx, args[1], args[2:]...)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		return errors.New(usage)
	}
	return nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.MigrationsAuto {
		if err := migrateCmd(cfg, logger, []string{"up"}); err != nil {
			return err
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		if !errors.Is(err, cache.ErrDisabled) {
			logger.Warn("redis unavailable, unit cache and job queue disabled", slog.Any("error", err))
		}
		redisClient = nil
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	webhook := integration.NewWebhookClient(cfg.StockSyncURL, cfg.StockSyncTimeout)
	direct := integration.NewAsyncNotifier(webhook, cfg.StockSyncTimeout, logger, metrics)
	defer direct.Wait()

	var (
		notifier   inventory.Notifier = direct
		jobHandler *jobs.Handler
	)
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			return fmt.Errorf("init job client: %w", err)
		}
		defer jobClient.Close()
		if cfg.StockSyncQueued && webhook.Enabled() {
			notifier = &jobs.StockSyncPublisher{Queue: jobClient, Fallback: direct, Logger: logger}
		}
		inspector := asynq.NewInspector(redisOpts)
		defer inspector.Close()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	services := app.BuildServices(app.ServicesParams{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Redis:    redisClient,
		Metrics:  metrics,
		Notifier: notifier,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ReceivingHandler:   receiving.NewHandler(logger, services.Receiving, services.Cascade),
		ProcurementHandler: procurement.NewHandler(logger, services.Procurement),
		InventoryHandler:   inventory.NewHandler(logger, services.Inventory),
		UnitsHandler:       units.NewHandler(logger, services.Units),
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

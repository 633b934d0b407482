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

	"github.com/maelza/maelza-erp/cmd/maelza/cli"
	"github.com/maelza/maelza-erp/internal/app"
	"github.com/maelza/maelza-erp/internal/inventory"
	"github.com/maelza/maelza-erp/internal/observability"
	"github.com/maelza/maelza-erp/internal/orders"
	"github.com/maelza/maelza-erp/internal/parties"
	"github.com/maelza/maelza-erp/internal/platform/cache"
	"github.com/maelza/maelza-erp/internal/platform/db"
	"github.com/maelza/maelza-erp/internal/shared"
	"github.com/maelza/maelza-erp/jobs"
)

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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCommand(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLifetime})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	var locker orders.DocumentLocker
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, document locks disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		locker = cache.NewLocker(redisClient, "maelza:lock:", cfg.DocumentLockTTL)
	}

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	var notifier orders.LowStockNotifier
	if cfg.LowStockAlerts {
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			return fmt.Errorf("init job client: %w", err)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		notifier = jobClient
	}

	orderService := orders.NewService(orders.NewRepository(pool), orders.ServiceConfig{
		Locker:      locker,
		Notifier:    notifier,
		Idempotency: shared.NewIdempotencyStore(pool),
		Metrics:     metrics,
		Logger:      logger,
	})
	inventoryService := inventory.NewService(inventory.NewRepository(pool))
	partyService := parties.NewService(parties.NewRepository(pool))

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SalesHandler:     orders.NewHandler(logger, orderService, orders.KindSale),
		PurchasesHandler: orders.NewHandler(logger, orderService, orders.KindPurchase),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		CustomersHandler: parties.NewHandler(logger, partyService, parties.RoleCustomer),
		SuppliersHandler: parties.NewHandler(logger, partyService, parties.RoleSupplier),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		Database:         pool,
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

func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr, cfg.IdempotencyRetention)
	if err != nil {
		return err
	}
	defer jobsCLI.Close()

	if len(args) == 0 {
		return errors.New("usage: maelza jobs <trigger NAME|stats>")
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: maelza jobs trigger NAME")
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}

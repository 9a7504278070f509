package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stockledger/internal/bootstrap"
	"github.com/angelmondragon/stockledger/internal/cron"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "cron worker exited", err)
		os.Exit(1)
	}
}

func run(once bool) (err error) {
	cfg, logg, err := bootstrap.Load(serviceKind)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
	})

	dbClient, err := bootstrap.Database(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(redisClient))

	service, err := buildCronService(cfg, logg, dbClient, redisClient)
	if err != nil {
		return fmt.Errorf("build cron service: %w", err)
	}

	if once {
		logg.Info(ctx, "running cron jobs once")
		return service.RunOnce(ctx)
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func buildCronService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	stack, err := bootstrap.NewStack(cfg, logg, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}

	sweepJob, err := cron.NewReservationSweepJob(cron.ReservationSweepJobParams{
		Logger:    logg,
		Inventory: stack.Inventory,
		TTL:       cfg.Inventory.ReservationTTL,
		BatchSize: cfg.Inventory.SweepBatchSize,
	})
	if err != nil {
		return nil, err
	}
	reconcileJob, err := cron.NewLedgerReconcileJob(cron.LedgerReconcileJobParams{
		Logger:    logg,
		Ledger:    stack.Ledger,
		Inventory: stack.Inventory,
		Lookback:  cfg.Cron.ReconcileLookback,
		Every:     cfg.Cron.ReconcileEvery,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Outbox:           stack.Outbox,
		DeadLetters:      outbox.NewDLQRepository(dbClient.DB()),
		Retention:        cfg.Outbox.Retention,
		DLQRetention:     cfg.Outbox.DLQRetention,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
		Every:            cfg.Cron.RetentionEvery,
	})
	if err != nil {
		return nil, err
	}

	registry, err := cron.NewRegistry(sweepJob, reconcileJob, retentionJob)
	if err != nil {
		return nil, err
	}
	locker, err := cron.NewRedisLocker(redisClient, redisClient.LockKey("cron"), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locker:   locker,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}

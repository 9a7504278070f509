// Package bootstrap wires the pieces every stockledger binary shares.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/internal/ledger"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/instance"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/migrate"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/retry"
)

// Load reads .env when present, then the environment, and builds the
// process logger for kind.
func Load(kind string) (*config.Config, *logger.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = kind

	return cfg, logger.New(logger.Options{
		ServiceName: kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Instance:    instance.GetID(),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	}), nil
}

// Database connects and applies embedded migrations in dev. Callers own Close.
func Database(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*db.Client, error) {
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

// Stack is the stock core: the ledger, the inventory service on top of it,
// and the outbox it writes events to.
type Stack struct {
	Ledger    ledger.Service
	Inventory inventory.Service
	Outbox    *outbox.Repository
}

func NewStack(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (*Stack, error) {
	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}
	outboxRepo := outbox.NewRepository(dbClient.DB())
	engine, err := inventory.NewEngine(ledgerService, outbox.NewService(outboxRepo, logg))
	if err != nil {
		return nil, err
	}
	inventoryService, err := inventory.NewService(dbClient, engine, ledgerService, inventory.Options{
		Retry: retry.Policy{
			MaxAttempts: cfg.Inventory.RetryMaxAttempts,
			BaseDelay:   cfg.Inventory.RetryBaseDelay,
			MaxDelay:    cfg.Inventory.RetryMaxDelay,
		},
		ConsumptionWindowDays: cfg.Inventory.ConsumptionWindowDays,
		BulkMaxItems:          cfg.Inventory.BulkMaxItems,
		Metrics:               metrics.NewInventoryMetrics(reg),
		Logger:                logg,
	})
	if err != nil {
		return nil, fmt.Errorf("build inventory service: %w", err)
	}
	return &Stack{Ledger: ledgerService, Inventory: inventoryService, Outbox: outboxRepo}, nil
}

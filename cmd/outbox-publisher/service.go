package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/outbox/registry"
	"github.com/angelmondragon/stockledger/pkg/retry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	publishTimeout = 15 * time.Second
	idleBackoffCap = 10 * time.Second
	pollJitter     = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// ServiceParams wires the publisher loop.
type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	Metrics          *metrics.OutboxMetrics
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
}

// settings are the loop knobs after defaults are applied.
type settings struct {
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func resolveSettings(cfg config.OutboxConfig) settings {
	s := settings{
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		pollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
	if s.batchSize <= 0 {
		s.batchSize = 50
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 10
	}
	if s.pollInterval <= 0 {
		s.pollInterval = 500 * time.Millisecond
	}
	return s
}

// Service moves queued stock events from outbox_events to Pub/Sub. Claims use
// SKIP LOCKED, so replicas split the backlog; rows that cannot be delivered
// land in outbox_dlq.
type Service struct {
	settings
	logg      *logger.Logger
	metrics   *metrics.OutboxMetrics
	db        dbClient
	pubsub    pubSubClient
	repo      outboxRepository
	registry  registryResolver
	dlq       dlqRepository
	publishTo publisherFactory
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		name string
		ok   bool
	}{
		{"config", params.Config != nil},
		{"logger", params.Logger != nil},
		{"database client", params.DB != nil},
		{"pubsub client", params.PubSub != nil},
		{"outbox repository", params.Repository != nil},
		{"event registry", params.Registry != nil},
		{"dlq repository", params.DLQRepository != nil},
	}
	for _, dep := range required {
		if !dep.ok {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = topicPublishers(params.PubSub)
	}

	return &Service{
		settings:  resolveSettings(params.Config.Outbox),
		logg:      params.Logger,
		metrics:   params.Metrics,
		db:        params.DB,
		pubsub:    params.PubSub,
		repo:      params.Repository,
		registry:  params.Registry,
		dlq:       params.DLQRepository,
		publishTo: factory,
	}, nil
}

// Run polls until ctx is canceled. A failed poll backs off exponentially up
// to idleBackoffCap; a full poll goes straight to the next one.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		claimed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = retry.NextBackoff(wait, s.pollInterval, idleBackoffCap)
		case claimed:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}

		if err := retry.Sleep(ctx, retry.Jitter(wait, pollJitter)); err != nil {
			if errors.Is(err, context.Canceled) {
				s.logg.Info(ctx, "outbox publisher context canceled")
			}
			return err
		}
	}
}

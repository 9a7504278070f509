package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

const (
	defaultSweepBatchSize = 100
	maxSweepPasses        = 10
)

// ReservationSweepJobParams configure the expired reservation sweeper.
type ReservationSweepJobParams struct {
	Logger    *logger.Logger
	Inventory reservationSweeper
	// TTL is the age after which an open reservation is released. Zero disables the job.
	TTL       time.Duration
	BatchSize int
}

type reservationSweeper interface {
	SweepExpiredReservations(ctx context.Context, olderThan time.Duration, limit int) (*inventory.SweepResult, error)
}

// NewReservationSweepJob builds the job that releases reservations older than the TTL.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.TTL < 0 {
		return nil, fmt.Errorf("reservation ttl must not be negative")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &reservationSweepJob{
		logg:      params.Logger,
		inventory: params.Inventory,
		ttl:       params.TTL,
		batch:     batch,
	}, nil
}

type reservationSweepJob struct {
	logg      *logger.Logger
	inventory reservationSweeper
	ttl       time.Duration
	batch     int
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	if j.ttl == 0 {
		j.logg.Debug(ctx, "reservation ttl disabled; skipping sweep")
		return nil
	}

	var total inventory.SweepResult
	for pass := 0; pass < maxSweepPasses; pass++ {
		result, err := j.inventory.SweepExpiredReservations(ctx, j.ttl, j.batch)
		if result != nil {
			total.Orders += result.Orders
			total.Released += result.Released
			total.Failed += result.Failed
		}
		if err != nil {
			j.logSummary(ctx, total)
			return fmt.Errorf("sweep expired reservations: %w", err)
		}
		// A short page means the backlog is drained.
		if result == nil || result.Orders < j.batch || result.Released == 0 {
			break
		}
	}
	j.logSummary(ctx, total)
	return nil
}

func (j *reservationSweepJob) logSummary(ctx context.Context, total inventory.SweepResult) {
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"ttl":                   j.ttl.String(),
		"orders":                total.Orders,
		"reservations_released": total.Released,
		"orders_failed":         total.Failed,
	}), "reservation sweep complete")
}

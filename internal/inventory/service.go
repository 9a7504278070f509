package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stockledger/internal/ledger"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/pagination"
	"github.com/angelmondragon/stockledger/pkg/retry"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	defaultConsumptionWindowDays = 30
	defaultBulkMaxItems          = 1000
	sweepReleaseReason           = "reservation expired"
)

// Service is the operation surface used by order workflows, admin tooling and import jobs.
type Service interface {
	GetAvailableQuantity(ctx context.Context, ref SubjectRef) (*Availability, error)
	ReserveForOrder(ctx context.Context, orderID uuid.UUID, items []ReserveItemInput, opts ReserveOptions) (*ReservationOutcome, error)
	ConfirmOrderReservations(ctx context.Context, orderID uuid.UUID) (int, error)
	ReleaseOrderReservations(ctx context.Context, orderID uuid.UUID) (int, error)
	AdjustStock(ctx context.Context, input AdjustStockInput) (*StockChangeResult, error)
	BulkAdjustStock(ctx context.Context, storeID uuid.UUID, updates []BulkUpdate) (*BulkResult, error)
	ListLowStockSubjects(ctx context.Context, storeID uuid.UUID) ([]LowStockSubject, error)
	ListMovements(ctx context.Context, ref SubjectRef, params pagination.Params) (*ledger.MovementList, error)
	ReconcileSubject(ctx context.Context, ref SubjectRef) (*ledger.Reconciliation, error)
	SweepExpiredReservations(ctx context.Context, olderThan time.Duration, limit int) (*SweepResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	DB() *gorm.DB
}

// Options tunes the service. Zero values fall back to defaults.
type Options struct {
	Retry                 retry.Policy
	ConsumptionWindowDays int
	BulkMaxItems          int
	Metrics               *metrics.InventoryMetrics
	Logger                *logger.Logger
}

// Availability is the stock snapshot returned to callers.
type Availability struct {
	SubjectType enums.SubjectType `json:"subject_type"`
	SubjectID   uuid.UUID         `json:"subject_id"`
	SKU         string            `json:"sku"`
	OnHand      int               `json:"on_hand"`
	Reserved    int               `json:"reserved"`
	Available   int               `json:"available"`
	Threshold   int               `json:"low_stock_threshold"`
}

// ReserveItemInput is one line of a reservation request.
type ReserveItemInput struct {
	Subject  SubjectRef `json:"subject"`
	Quantity int        `json:"quantity"`
}

// AdjustStockInput is a direct stock correction.
type AdjustStockInput struct {
	Subject       SubjectRef
	Quantity      int
	Operation     enums.StockOperation
	Reason        string
	ReferenceID   *uuid.UUID
	ReferenceType *enums.StockReferenceType
}

// SweepResult summarises one pass over expired reservations.
type SweepResult struct {
	Orders   int `json:"orders"`
	Released int `json:"released"`
	Failed   int `json:"failed"`
}

type service struct {
	tx      txRunner
	engine  *Engine
	ledger  ledger.Service
	retry   retry.Policy
	window  int
	bulkMax int
	metrics *metrics.InventoryMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires the inventory operations over the transactional engine.
func NewService(tx txRunner, engine *Engine, ledgerSvc ledger.Service, opts Options) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if engine == nil {
		return nil, fmt.Errorf("inventory engine required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if opts.ConsumptionWindowDays <= 0 {
		opts.ConsumptionWindowDays = defaultConsumptionWindowDays
	}
	if opts.BulkMaxItems <= 0 {
		opts.BulkMaxItems = defaultBulkMaxItems
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	s := &service{
		tx:      tx,
		engine:  engine,
		ledger:  ledgerSvc,
		window:  opts.ConsumptionWindowDays,
		bulkMax: opts.BulkMaxItems,
		metrics: opts.Metrics,
		logg:    opts.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}

	policy := opts.Retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		s.metrics.IncRetry()
		s.logg.Warn(s.logg.WithFields(context.Background(), map[string]any{
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		}), "retrying stock transaction after transient error")
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
	}
	s.retry = policy
	return s, nil
}

type actorKey struct{}

// WithActor attaches the acting user. Every Service write reads the actor from
// here and stamps it on ledger rows and events.
func WithActor(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor set by WithActor, or nil.
func ActorFromContext(ctx context.Context) *uuid.UUID {
	if id, ok := ctx.Value(actorKey{}).(uuid.UUID); ok && id != uuid.Nil {
		return &id
	}
	return nil
}

// inTx runs fn in a fresh transaction per attempt, retrying transient store errors.
func (s *service) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		err := s.tx.WithTx(ctx, fn)
		return pkgerrors.ClassifyStore(err, "stock transaction failed")
	})
}

func (s *service) GetAvailableQuantity(ctx context.Context, ref SubjectRef) (*Availability, error) {
	subject, err := NewSubject(ref)
	if err != nil {
		return nil, err
	}
	info, err := subject.Describe(ctx, s.tx.DB())
	if err != nil {
		return nil, err
	}
	return &Availability{
		SubjectType: ref.Type,
		SubjectID:   ref.ID,
		SKU:         info.SKU,
		OnHand:      info.Level.OnHand,
		Reserved:    info.Level.Reserved,
		Available:   info.Level.Available(),
		Threshold:   info.Level.Threshold,
	}, nil
}

func (s *service) ReserveForOrder(ctx context.Context, orderID uuid.UUID, items []ReserveItemInput, opts ReserveOptions) (*ReservationOutcome, error) {
	reservationItems := make([]ReservationItem, 0, len(items))
	for i, item := range items {
		subject, err := NewSubject(item.Subject)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("item %d: %s", i, pkgerrors.As(err).Message()))
		}
		reservationItems = append(reservationItems, ReservationItem{Subject: subject, Quantity: item.Quantity})
	}

	ctx = s.logg.WithOrderID(ctx, orderID.String())
	actor := ActorFromContext(ctx)

	var outcome *ReservationOutcome
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		outcome, err = s.engine.Reserve(ctx, tx, orderID, reservationItems, opts, actor)
		return err
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.metrics.AddReservations(metrics.ReservationRejected, len(items))
			s.logg.Info(s.logg.WithField(ctx, "reason", err.Error()), "order reservation rejected")
		}
		return nil, err
	}

	if outcome.Replayed {
		s.metrics.AddReservations(metrics.ReservationReplayed, len(outcome.Reservations))
		s.logg.Info(ctx, "order already reserved, returning existing reservations")
		return outcome, nil
	}
	s.metrics.AddReservations(metrics.ReservationReserved, len(outcome.Reservations))
	s.metrics.AddReservations(metrics.ReservationRejected, len(outcome.Errors))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"reserved": len(outcome.Reservations),
		"rejected": len(outcome.Errors),
	}), "order reservations created")
	return outcome, nil
}

func (s *service) ConfirmOrderReservations(ctx context.Context, orderID uuid.UUID) (int, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	actor := ActorFromContext(ctx)

	var result *ResolutionResult
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.engine.Confirm(ctx, tx, orderID, actor)
		return err
	})
	if err != nil {
		return 0, err
	}

	for _, change := range result.Changes {
		s.metrics.IncStockChange(string(enums.StockOperationSubtract))
		if change.LowStockAlertRaised {
			s.metrics.IncLowStockRaised()
		}
	}
	s.metrics.AddReservations(metrics.ReservationConfirmed, result.Count())
	s.logg.Info(s.logg.WithField(ctx, "confirmed", result.Count()), "order reservations confirmed")
	return result.Count(), nil
}

func (s *service) ReleaseOrderReservations(ctx context.Context, orderID uuid.UUID) (int, error) {
	count, err := s.release(ctx, orderID, defaultReleaseReason)
	if err != nil {
		return 0, err
	}
	s.metrics.AddReservations(metrics.ReservationReleased, count)
	return count, nil
}

func (s *service) release(ctx context.Context, orderID uuid.UUID, reason string) (int, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	actor := ActorFromContext(ctx)

	var result *ResolutionResult
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.engine.Release(ctx, tx, orderID, reason, actor)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"released": result.Count(),
		"reason":   reason,
	}), "order reservations released")
	return result.Count(), nil
}

func (s *service) AdjustStock(ctx context.Context, input AdjustStockInput) (*StockChangeResult, error) {
	subject, err := NewSubject(input.Subject)
	if err != nil {
		return nil, err
	}

	change := StockChangeInput{
		Subject:   subject,
		Quantity:  input.Quantity,
		Operation: input.Operation,
		Reason:    strings.TrimSpace(input.Reason),
		ActorID:   ActorFromContext(ctx),
	}
	if input.ReferenceType != nil {
		change.Reference = &Reference{ID: input.ReferenceID, Type: *input.ReferenceType}
	} else if input.ReferenceID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference type is required with a reference id")
	}
	if err := validateStockChange(change); err != nil {
		return nil, err
	}

	ctx = s.logg.WithSubject(ctx, string(input.Subject.Type), input.Subject.ID.String())
	var result *StockChangeResult
	err = s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.engine.ApplyStockChange(ctx, tx, change)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncStockChange(string(input.Operation))
	if result.LowStockAlertRaised {
		s.metrics.IncLowStockRaised()
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"operation":    input.Operation,
		"delta":        result.Delta,
		"new_quantity": result.NewQuantity,
		"low_stock":    result.LowStockAlertRaised,
	}), "stock adjusted")
	return result, nil
}

func (s *service) ListMovements(ctx context.Context, ref SubjectRef, params pagination.Params) (*ledger.MovementList, error) {
	subject, err := NewSubject(ref)
	if err != nil {
		return nil, err
	}
	if _, err := subject.Describe(ctx, s.tx.DB()); err != nil {
		return nil, err
	}
	return s.ledger.ListMovements(ctx, ref.key(), params)
}

func (s *service) ReconcileSubject(ctx context.Context, ref SubjectRef) (*ledger.Reconciliation, error) {
	subject, err := NewSubject(ref)
	if err != nil {
		return nil, err
	}
	info, err := subject.Describe(ctx, s.tx.DB())
	if err != nil {
		return nil, err
	}
	rec, err := s.ledger.Reconcile(ctx, ref.key(), info.Level.OnHand)
	if err != nil {
		return nil, err
	}
	if !rec.Consistent {
		s.metrics.IncLedgerDrift()
		s.logg.Warn(s.logg.WithFields(s.logg.WithSubject(ctx, string(ref.Type), ref.ID.String()), map[string]any{
			"on_hand":      rec.OnHand,
			"ledger_total": rec.LedgerTotal,
			"breaks":       len(rec.Replay.Breaks),
		}), "stock ledger does not reconcile")
	}
	return rec, nil
}

// SweepExpiredReservations releases orders whose reservations are older than
// olderThan. Each order is released in its own transaction; one failing order
// does not stop the sweep.
func (s *service) SweepExpiredReservations(ctx context.Context, olderThan time.Duration, limit int) (*SweepResult, error) {
	if olderThan <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation ttl must be positive")
	}
	cutoff := s.now().Add(-olderThan)
	orders, err := s.engine.ExpiredOrders(ctx, s.tx.DB(), cutoff, limit)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Orders: len(orders)}
	var errs error
	for _, orderID := range orders {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		count, err := s.release(ctx, orderID, sweepReleaseReason)
		if err != nil {
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("release order %s: %w", orderID, err))
			continue
		}
		result.Released += count
	}
	s.metrics.AddReservations(metrics.ReservationExpired, result.Released)
	return result, errs
}

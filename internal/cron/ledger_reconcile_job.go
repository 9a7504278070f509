package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/internal/ledger"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"go.uber.org/multierr"
)

const (
	defaultReconcileLookback = 24 * time.Hour
	defaultReconcileLimit    = 500
)

// LedgerReconcileJobParams configure the drift check between stock rows and the ledger.
type LedgerReconcileJobParams struct {
	Logger     *logger.Logger
	Ledger     touchedSubjectLister
	Inventory  subjectReconciler
	Lookback   time.Duration
	MaxSubject int
	// Every throttles the job below the cron interval; zero runs it each cycle.
	Every time.Duration
}

type touchedSubjectLister interface {
	SubjectsTouchedSince(ctx context.Context, since time.Time, limit int) ([]ledger.SubjectKey, error)
}

type subjectReconciler interface {
	ReconcileSubject(ctx context.Context, ref inventory.SubjectRef) (*ledger.Reconciliation, error)
}

func NewLedgerReconcileJob(params LedgerReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	limit := params.MaxSubject
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &ledgerReconcileJob{
		logg:      params.Logger,
		ledger:    params.Ledger,
		inventory: params.Inventory,
		lookback:  lookback,
		limit:     limit,
		every:     params.Every,
		now:       time.Now,
	}, nil
}

type ledgerReconcileJob struct {
	logg      *logger.Logger
	ledger    touchedSubjectLister
	inventory subjectReconciler
	lookback  time.Duration
	limit     int
	every     time.Duration
	now       func() time.Time
}

func (j *ledgerReconcileJob) Name() string { return "ledger-reconcile" }

func (j *ledgerReconcileJob) Every() time.Duration { return j.every }

// Run replays the ledger of every subject that moved inside the lookback window
// and compares it with the stored on-hand quantity. Drift is reported, never repaired.
func (j *ledgerReconcileJob) Run(ctx context.Context) error {
	since := j.now().UTC().Add(-j.lookback)
	keys, err := j.ledger.SubjectsTouchedSince(ctx, since, j.limit)
	if err != nil {
		return fmt.Errorf("list touched subjects: %w", err)
	}

	var (
		errs     error
		drifted  int
		verified int
	)
	for _, key := range keys {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = multierr.Append(errs, ctxErr)
			break
		}
		rec, err := j.inventory.ReconcileSubject(ctx, inventory.SubjectRef{Type: key.Type, ID: key.ID})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile %s %s: %w", key.Type, key.ID, err))
			continue
		}
		verified++
		if !rec.Consistent {
			drifted++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"since":    since,
		"subjects": len(keys),
		"verified": verified,
		"drifted":  drifted,
	}), "ledger reconciliation complete")
	return errs
}

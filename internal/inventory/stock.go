package inventory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/angelmondragon/stockledger/internal/ledger"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ledgerRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, input ledger.RecordMovementInput) (*models.StockMovement, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Reference points a ledger entry at the business object that caused it.
type Reference struct {
	ID   *uuid.UUID
	Type enums.StockReferenceType
}

// StockChangeInput is one request to the locked update primitive.
type StockChangeInput struct {
	Subject   StockSubject
	Quantity  int
	Operation enums.StockOperation
	Reason    string
	Reference *Reference
	ActorID   *uuid.UUID
}

// StockChangeResult describes a committed (or about to be committed) stock change.
type StockChangeResult struct {
	SubjectType         enums.SubjectType `json:"subject_type"`
	SubjectID           uuid.UUID         `json:"subject_id"`
	PreviousQuantity    int               `json:"previous_quantity"`
	NewQuantity         int               `json:"new_quantity"`
	Delta               int               `json:"delta"`
	Reserved            int               `json:"reserved"`
	Available           int               `json:"available"`
	LowStockAlertRaised bool              `json:"low_stock_alert_raised"`
	MovementID          int64             `json:"movement_id"`
}

// Engine holds the transactional stock primitives. Every method runs inside
// the caller's transaction and makes exactly one attempt.
type Engine struct {
	ledger ledgerRecorder
	alerts *AlertMonitor
	outbox outboxPublisher
	now    func() time.Time
}

// NewEngine wires the primitives. publisher may be nil when events are not needed.
func NewEngine(recorder ledgerRecorder, publisher outboxPublisher) (*Engine, error) {
	if recorder == nil {
		return nil, fmt.Errorf("ledger recorder required")
	}
	return &Engine{
		ledger: recorder,
		alerts: NewAlertMonitor(publisher),
		outbox: publisher,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// MaxQuantity is the largest stock figure the integer columns can hold.
const MaxQuantity = math.MaxInt32

func validateStockChange(in StockChangeInput) error {
	if in.Subject == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subject is required")
	}
	if !in.Operation.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown operation %q", in.Operation))
	}
	if in.Quantity < 0 || in.Quantity > MaxQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 0 and %d", MaxQuantity))
	}
	if strings.TrimSpace(in.Reason) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if in.Reference != nil && !in.Reference.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid reference type %q", in.Reference.Type))
	}
	return nil
}

// ApplyStockChange locks the subject, applies the operation to on-hand stock,
// appends one ledger entry and evaluates the low stock alert.
func (e *Engine) ApplyStockChange(ctx context.Context, tx *gorm.DB, in StockChangeInput) (*StockChangeResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateStockChange(in); err != nil {
		return nil, err
	}

	level, err := in.Subject.GetStock(ctx, tx)
	if err != nil {
		return nil, err
	}

	var onHand int
	switch in.Operation {
	case enums.StockOperationAdd:
		onHand = level.OnHand + in.Quantity
	case enums.StockOperationSubtract:
		onHand = level.OnHand - in.Quantity
	case enums.StockOperationSet:
		onHand = in.Quantity
	}
	if onHand > MaxQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("resulting stock would exceed %d", MaxQuantity))
	}
	if onHand < level.Reserved {
		return nil, insufficientStock(in.Subject.Ref(), level, level.OnHand-onHand)
	}

	next := level
	next.OnHand = onHand
	return e.commitLevel(ctx, tx, in.Subject, level, next, movementMeta{
		operation: in.Operation,
		reason:    in.Reason,
		reference: in.Reference,
		actorID:   in.ActorID,
	})
}

type movementMeta struct {
	operation enums.StockOperation
	reason    string
	reference *Reference
	actorID   *uuid.UUID
}

// commitLevel writes a new level for a locked subject, records the on-hand
// change in the ledger and keeps alert state in step.
func (e *Engine) commitLevel(ctx context.Context, tx *gorm.DB, subject StockSubject, prev, next StockLevel, meta movementMeta) (*StockChangeResult, error) {
	if err := subject.SetStock(ctx, tx, next); err != nil {
		return nil, err
	}

	ref := subject.Ref()
	input := ledger.RecordMovementInput{
		Subject:        ref.key(),
		QuantityBefore: prev.OnHand,
		QuantityAfter:  next.OnHand,
		Operation:      meta.operation,
		Reason:         meta.reason,
		ActorID:        meta.actorID,
	}
	if meta.reference != nil {
		refType := meta.reference.Type
		input.ReferenceType = &refType
		input.ReferenceID = meta.reference.ID
	}
	movement, err := e.ledger.Record(ctx, tx, input)
	if err != nil {
		return nil, err
	}

	raised, err := e.alerts.Evaluate(ctx, tx, ref, next)
	if err != nil {
		return nil, err
	}

	if e.outbox != nil {
		event := outbox.DomainEvent{
			EventType:     enums.EventStockAdjusted,
			AggregateType: enums.AggregateForSubject(ref.Type),
			AggregateID:   ref.ID,
			Actor:         actorRef(meta.actorID),
			OccurredAt:    movement.CreatedAt,
			Data: payloads.StockAdjustedEvent{
				MovementID:     movement.ID,
				SubjectType:    ref.Type,
				SubjectID:      ref.ID,
				Operation:      movement.Operation,
				QuantityBefore: movement.QuantityBefore,
				QuantityAfter:  movement.QuantityAfter,
				Delta:          movement.Delta,
				Reason:         movement.Reason,
				ReferenceID:    movement.ReferenceID,
				ReferenceType:  movement.ReferenceType,
			},
		}
		if err := e.outbox.Emit(ctx, tx, event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue stock adjusted event")
		}
	}

	return &StockChangeResult{
		SubjectType:         ref.Type,
		SubjectID:           ref.ID,
		PreviousQuantity:    prev.OnHand,
		NewQuantity:         next.OnHand,
		Delta:               movement.Delta,
		Reserved:            next.Reserved,
		Available:           next.Available(),
		LowStockAlertRaised: raised,
		MovementID:          movement.ID,
	}, nil
}

func actorRef(actorID *uuid.UUID) *outbox.ActorRef {
	if actorID == nil || *actorID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: *actorID}
}

func subjectLabel(ref SubjectRef, level StockLevel) string {
	if level.SKU != "" {
		return level.SKU
	}
	return ref.ID.String()
}

func insufficientStock(ref SubjectRef, level StockLevel, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for "+subjectLabel(ref, level)).
		WithDetails(map[string]any{
			"subject_type": ref.Type,
			"subject_id":   ref.ID,
			"sku":          level.SKU,
			"requested":    requested,
			"available":    level.Available(),
			"on_hand":      level.OnHand,
			"reserved":     level.Reserved,
		})
}

package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service records and inspects stock movements.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordMovementInput) (*models.StockMovement, error)
	ListMovements(ctx context.Context, subject SubjectKey, params pagination.Params) (*MovementList, error)
	Reconcile(ctx context.Context, subject SubjectKey, onHand int) (*Reconciliation, error)
	OrderConsumption(ctx context.Context, subjects []SubjectKey, since time.Time) (map[SubjectKey]int, error)
	SubjectsTouchedSince(ctx context.Context, since time.Time, limit int) ([]SubjectKey, error)
}

type service struct {
	repo Repository
}

// RecordMovementInput captures the immutable data a movement requires.
type RecordMovementInput struct {
	Subject        SubjectKey
	QuantityBefore int
	QuantityAfter  int
	Operation      enums.StockOperation
	Reason         string
	ReferenceID    *uuid.UUID
	ReferenceType  *enums.StockReferenceType
	ActorID        *uuid.UUID
}

// MovementSummary is the read model returned by the history endpoint.
type MovementSummary struct {
	ID             int64                     `json:"id"`
	QuantityBefore int                       `json:"quantity_before"`
	QuantityAfter  int                       `json:"quantity_after"`
	Delta          int                       `json:"delta"`
	Operation      enums.StockOperation      `json:"operation"`
	Reason         string                    `json:"reason"`
	ReferenceID    *uuid.UUID                `json:"reference_id,omitempty"`
	ReferenceType  *enums.StockReferenceType `json:"reference_type,omitempty"`
	ActorID        *uuid.UUID                `json:"actor_id,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
}

// MovementList is one page of a subject's history, newest first.
type MovementList struct {
	Movements  []MovementSummary `json:"movements"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// Reconciliation compares the replayed ledger with the stored on-hand quantity.
type Reconciliation struct {
	SubjectType enums.SubjectType `json:"subject_type"`
	SubjectID   uuid.UUID         `json:"subject_id"`
	OnHand      int               `json:"on_hand"`
	LedgerTotal int               `json:"ledger_total"`
	Drift       int               `json:"drift"`
	Consistent  bool              `json:"consistent"`
	Replay      ReplayResult      `json:"replay"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordMovementInput) (*models.StockMovement, error) {
	if !input.Subject.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid subject type %q", input.Subject.Type))
	}
	if input.Subject.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject id is required")
	}
	if !input.Operation.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid stock operation %q", input.Operation))
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if input.ReferenceType != nil && !input.ReferenceType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid reference type %q", *input.ReferenceType))
	}
	if input.QuantityBefore < 0 || input.QuantityAfter < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movement quantities must be non-negative")
	}

	movement := &models.StockMovement{
		SubjectType:    input.Subject.Type,
		SubjectID:      input.Subject.ID,
		QuantityBefore: input.QuantityBefore,
		QuantityAfter:  input.QuantityAfter,
		Delta:          input.QuantityAfter - input.QuantityBefore,
		Operation:      input.Operation,
		Reason:         strings.TrimSpace(input.Reason),
		ReferenceID:    input.ReferenceID,
		ReferenceType:  input.ReferenceType,
		ActorID:        input.ActorID,
	}

	if err := s.repo.WithTx(tx).Append(ctx, movement); err != nil {
		return nil, pkgerrors.ClassifyStore(err, "append stock movement")
	}
	return movement, nil
}

func (s *service) ListMovements(ctx context.Context, subject SubjectKey, params pagination.Params) (*MovementList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var beforeSeq int64
	if cursor != nil {
		beforeSeq = cursor.Seq
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListBySubject(ctx, subject, beforeSeq, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, pkgerrors.ClassifyStore(err, "list stock movements")
	}

	rows, next := pagination.Trim(rows, limit, func(m models.StockMovement) pagination.Cursor {
		return pagination.Cursor{Seq: m.ID, CreatedAt: m.CreatedAt}
	})
	list := &MovementList{Movements: make([]MovementSummary, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		list.Movements = append(list.Movements, MovementSummary{
			ID:             row.ID,
			QuantityBefore: row.QuantityBefore,
			QuantityAfter:  row.QuantityAfter,
			Delta:          row.Delta,
			Operation:      row.Operation,
			Reason:         row.Reason,
			ReferenceID:    row.ReferenceID,
			ReferenceType:  row.ReferenceType,
			ActorID:        row.ActorID,
			CreatedAt:      row.CreatedAt,
		})
	}
	return list, nil
}

func (s *service) Reconcile(ctx context.Context, subject SubjectKey, onHand int) (*Reconciliation, error) {
	chain, err := s.repo.ListChain(ctx, subject)
	if err != nil {
		return nil, pkgerrors.ClassifyStore(err, "load stock movements")
	}

	replay := Replay(chain)
	return &Reconciliation{
		SubjectType: subject.Type,
		SubjectID:   subject.ID,
		OnHand:      onHand,
		LedgerTotal: replay.Final,
		Drift:       onHand - replay.Final,
		Consistent:  replay.Complete && replay.Final == onHand,
		Replay:      replay,
	}, nil
}

func (s *service) OrderConsumption(ctx context.Context, subjects []SubjectKey, since time.Time) (map[SubjectKey]int, error) {
	out, err := s.repo.SumOrderConsumption(ctx, subjects, since)
	if err != nil {
		return nil, pkgerrors.ClassifyStore(err, "sum order consumption")
	}
	return out, nil
}

func (s *service) SubjectsTouchedSince(ctx context.Context, since time.Time, limit int) ([]SubjectKey, error) {
	keys, err := s.repo.ListSubjectsTouchedSince(ctx, since, limit)
	if err != nil {
		return nil, pkgerrors.ClassifyStore(err, "list touched subjects")
	}
	return keys, nil
}

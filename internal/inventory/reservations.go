package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	confirmReason        = "order confirmed"
	defaultReleaseReason = "order released"
)

// ReservationItem asks for quantity of one subject.
type ReservationItem struct {
	Subject  StockSubject
	Quantity int
}

// ReserveOptions tunes how a reservation batch treats failing items.
type ReserveOptions struct {
	// AllowPartial keeps the items that fit when others fail.
	// At least one item must still succeed.
	AllowPartial bool
}

// ReservationView is the caller-facing shape of a reservation row.
type ReservationView struct {
	ID          uuid.UUID               `json:"id"`
	OrderID     uuid.UUID               `json:"order_id"`
	SubjectType enums.SubjectType       `json:"subject_type"`
	SubjectID   uuid.UUID               `json:"subject_id"`
	Quantity    int                     `json:"quantity"`
	Status      enums.ReservationStatus `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
	ResolvedAt  *time.Time              `json:"resolved_at,omitempty"`
}

// ItemError explains why one requested item could not be reserved.
type ItemError struct {
	Index       int               `json:"index"`
	SubjectType enums.SubjectType `json:"subject_type"`
	SubjectID   uuid.UUID         `json:"subject_id"`
	SKU         string            `json:"sku,omitempty"`
	Requested   int               `json:"requested"`
	Available   int               `json:"available"`
	Code        pkgerrors.Code    `json:"code"`
	Message     string            `json:"message"`
}

// ReservationOutcome is the result of a reservation batch.
type ReservationOutcome struct {
	OrderID      uuid.UUID         `json:"order_id"`
	Reservations []ReservationView `json:"reservations"`
	Errors       []ItemError       `json:"errors,omitempty"`
	// Replayed is set when the order already held reservations and nothing new was written.
	Replayed bool `json:"replayed"`
}

// ResolutionResult reports what a confirm or release call changed.
type ResolutionResult struct {
	OrderID      uuid.UUID
	Reservations []ReservationView
	Changes      []StockChangeResult
}

// Count is the number of reservations resolved by this call.
func (r *ResolutionResult) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Reservations)
}

func toView(row models.StockReservation) ReservationView {
	return ReservationView{
		ID:          row.ID,
		OrderID:     row.OrderID,
		SubjectType: row.SubjectType,
		SubjectID:   row.SubjectID,
		Quantity:    row.Quantity,
		Status:      row.Status,
		CreatedAt:   row.CreatedAt,
		ResolvedAt:  row.ResolvedAt,
	}
}

func reservationLines(views []ReservationView) []payloads.ReservationLine {
	lines := make([]payloads.ReservationLine, 0, len(views))
	for _, v := range views {
		lines = append(lines, payloads.ReservationLine{
			ReservationID: v.ID,
			SubjectType:   v.SubjectType,
			SubjectID:     v.SubjectID,
			Quantity:      v.Quantity,
		})
	}
	return lines
}

func validateReserve(orderID uuid.UUID, items []ReservationItem) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for i, item := range items {
		if item.Subject == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: subject is required", i))
		}
		if item.Quantity <= 0 || item.Quantity > MaxQuantity {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: quantity must be between 1 and %d", i, MaxQuantity))
		}
	}
	return nil
}

// lockOrder returns item indexes sorted by subject so that two orders sharing
// subjects always take row locks in the same sequence.
func lockOrder(items []ReservationItem) []int {
	idx := make([]int, len(items))
	for i := range items {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := items[idx[a]].Subject.Ref(), items[idx[b]].Subject.Ref()
		if ra.Type != rb.Type {
			return ra.Type < rb.Type
		}
		return ra.ID.String() < rb.ID.String()
	})
	return idx
}

func (e *Engine) existingReservations(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.ClassifyStore(err, "load order reservations")
	}
	return rows, nil
}

// serializeOrder queues concurrent reservation calls for one order behind a
// transaction-scoped advisory lock. SQLite runs one writer at a time already.
func serializeOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx.Dialector.Name() != db.DriverPostgres {
		return nil
	}
	err := tx.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", orderID.String()).Error
	if err != nil {
		return pkgerrors.ClassifyStore(err, "lock order")
	}
	return nil
}

// replayOf answers a repeated reservation request from the order's existing
// rows. Only open reservations for the same quantities count; anything else
// is a conflict rather than a silent success.
func replayOf(orderID uuid.UUID, existing []models.StockReservation, items []ReservationItem, opts ReserveOptions) (*ReservationOutcome, error) {
	requested := make(map[SubjectRef]int, len(items))
	for _, item := range items {
		requested[item.Subject.Ref()] += item.Quantity
	}

	outcome := &ReservationOutcome{OrderID: orderID, Replayed: true}
	held := map[SubjectRef]int{}
	for _, row := range existing {
		if row.Status != enums.ReservationStatusReserved {
			continue
		}
		held[SubjectRef{Type: row.SubjectType, ID: row.SubjectID}] += row.Quantity
		outcome.Reservations = append(outcome.Reservations, toView(row))
	}
	if len(held) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order reservations were already confirmed or released")
	}

	matches := opts.AllowPartial || len(held) == len(requested)
	for ref, qty := range held {
		if requested[ref] != qty {
			matches = false
		}
	}
	if !matches {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already holds different reservations").
			WithDetails(map[string]any{"reservations": outcome.Reservations})
	}
	return outcome, nil
}

// Reserve holds stock for every item of an order. Unless opts.AllowPartial is
// set, any failing item fails the whole call and the caller must roll back.
// A repeat of a request whose reservations are still open returns them as is.
func (e *Engine) Reserve(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, items []ReservationItem, opts ReserveOptions, actorID *uuid.UUID) (*ReservationOutcome, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateReserve(orderID, items); err != nil {
		return nil, err
	}

	if err := serializeOrder(ctx, tx, orderID); err != nil {
		return nil, err
	}
	existing, err := e.existingReservations(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return replayOf(orderID, existing, items, opts)
	}

	outcome := &ReservationOutcome{OrderID: orderID}
	created := make(map[int]ReservationView, len(items))
	for _, i := range lockOrder(items) {
		item := items[i]
		ref := item.Subject.Ref()

		level, err := item.Subject.GetStock(ctx, tx)
		if err != nil {
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
				return nil, err
			}
			outcome.Errors = append(outcome.Errors, ItemError{
				Index:       i,
				SubjectType: ref.Type,
				SubjectID:   ref.ID,
				Requested:   item.Quantity,
				Code:        pkgerrors.CodeNotFound,
				Message:     typed.Message(),
			})
			continue
		}

		if level.Available() < item.Quantity {
			outcome.Errors = append(outcome.Errors, ItemError{
				Index:       i,
				SubjectType: ref.Type,
				SubjectID:   ref.ID,
				SKU:         level.SKU,
				Requested:   item.Quantity,
				Available:   level.Available(),
				Code:        pkgerrors.CodeInsufficientStock,
				Message:     "insufficient stock for " + subjectLabel(ref, level),
			})
			continue
		}

		level.Reserved += item.Quantity
		if err := item.Subject.SetStock(ctx, tx, level); err != nil {
			return nil, err
		}
		row := models.StockReservation{
			OrderID:     orderID,
			SubjectType: ref.Type,
			SubjectID:   ref.ID,
			Quantity:    item.Quantity,
			Status:      enums.ReservationStatusReserved,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, pkgerrors.ClassifyStore(err, "create reservation")
		}
		created[i] = toView(row)
	}

	sort.Slice(outcome.Errors, func(a, b int) bool { return outcome.Errors[a].Index < outcome.Errors[b].Index })
	if len(outcome.Errors) > 0 && (!opts.AllowPartial || len(created) == 0) {
		return nil, reservationFailure(outcome.Errors)
	}

	for i := range items {
		if view, ok := created[i]; ok {
			outcome.Reservations = append(outcome.Reservations, view)
		}
	}

	if e.outbox != nil {
		event := outbox.DomainEvent{
			EventType:     enums.EventReservationCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         actorRef(actorID),
			Data: payloads.ReservationCreatedEvent{
				OrderID: orderID,
				Lines:   reservationLines(outcome.Reservations),
			},
		}
		if err := e.outbox.Emit(ctx, tx, event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue reservation created event")
		}
	}
	return outcome, nil
}

func reservationFailure(itemErrs []ItemError) error {
	code := pkgerrors.CodeNotFound
	labels := make([]string, 0, len(itemErrs))
	for _, ie := range itemErrs {
		if ie.Code != pkgerrors.CodeNotFound {
			code = pkgerrors.CodeInsufficientStock
		}
		label := ie.SKU
		if label == "" {
			label = ie.SubjectID.String()
		}
		labels = append(labels, label)
	}

	message := "cannot complete order, insufficient stock for " + strings.Join(labels, ", ")
	if code == pkgerrors.CodeNotFound {
		message = "cannot complete order, unknown items " + strings.Join(labels, ", ")
	}
	return pkgerrors.New(code, message).WithDetails(map[string]any{"items": itemErrs})
}

// lockReserved returns the order's open reservations with row locks held,
// in the same subject order Reserve uses.
func (e *Engine) lockReserved(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.StockReservation, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	var rows []models.StockReservation
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND status = ?", orderID, enums.ReservationStatusReserved).
		Order("subject_type ASC").
		Order("subject_id ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.ClassifyStore(err, "lock order reservations")
	}
	return rows, nil
}

func (e *Engine) markResolved(ctx context.Context, tx *gorm.DB, row *models.StockReservation, status enums.ReservationStatus) error {
	resolvedAt := e.now()
	res := tx.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id = ? AND status = ?", row.ID, enums.ReservationStatusReserved).
		UpdateColumns(map[string]any{
			"status":      status,
			"resolved_at": resolvedAt,
		})
	if res.Error != nil {
		return pkgerrors.ClassifyStore(res.Error, "resolve reservation")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is no longer reserved")
	}
	row.Status = status
	row.ResolvedAt = &resolvedAt
	return nil
}

func subjectFor(row models.StockReservation) (StockSubject, error) {
	return NewSubject(SubjectRef{Type: row.SubjectType, ID: row.SubjectID})
}

// Confirm turns an order's open reservations into permanent stock decrements.
// Reservations that are already confirmed or released are skipped.
func (e *Engine) Confirm(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) (*ResolutionResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	rows, err := e.lockReserved(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	result := &ResolutionResult{OrderID: orderID}
	ref := &Reference{ID: &orderID, Type: enums.StockReferenceOrder}
	for i := range rows {
		row := &rows[i]
		subject, err := subjectFor(*row)
		if err != nil {
			return nil, err
		}
		level, err := subject.GetStock(ctx, tx)
		if err != nil {
			return nil, err
		}
		if level.Reserved < row.Quantity || level.OnHand < row.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reserved quantity is lower than reservation for "+subjectLabel(subject.Ref(), level)).
				WithDetails(map[string]any{"reservation_id": row.ID, "reserved": level.Reserved, "on_hand": level.OnHand})
		}

		next := level
		next.OnHand -= row.Quantity
		next.Reserved -= row.Quantity
		change, err := e.commitLevel(ctx, tx, subject, level, next, movementMeta{
			operation: enums.StockOperationSubtract,
			reason:    confirmReason,
			reference: ref,
			actorID:   actorID,
		})
		if err != nil {
			return nil, err
		}
		if err := e.markResolved(ctx, tx, row, enums.ReservationStatusConfirmed); err != nil {
			return nil, err
		}
		result.Changes = append(result.Changes, *change)
		result.Reservations = append(result.Reservations, toView(*row))
	}

	if len(result.Reservations) > 0 && e.outbox != nil {
		event := outbox.DomainEvent{
			EventType:     enums.EventReservationConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         actorRef(actorID),
			Data: payloads.ReservationConfirmedEvent{
				OrderID: orderID,
				Lines:   reservationLines(result.Reservations),
			},
		}
		if err := e.outbox.Emit(ctx, tx, event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue reservation confirmed event")
		}
	}
	return result, nil
}

// Release frees an order's open reservations. On-hand stock is untouched, so
// no ledger entry is written. Already resolved reservations are skipped.
func (e *Engine) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, actorID *uuid.UUID) (*ResolutionResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	rows, err := e.lockReserved(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = defaultReleaseReason
	}

	result := &ResolutionResult{OrderID: orderID}
	for i := range rows {
		row := &rows[i]
		subject, err := subjectFor(*row)
		if err != nil {
			return nil, err
		}
		level, err := subject.GetStock(ctx, tx)
		if err != nil {
			return nil, err
		}
		if level.Reserved < row.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reserved quantity is lower than reservation for "+subjectLabel(subject.Ref(), level)).
				WithDetails(map[string]any{"reservation_id": row.ID, "reserved": level.Reserved})
		}

		level.Reserved -= row.Quantity
		if err := subject.SetStock(ctx, tx, level); err != nil {
			return nil, err
		}
		if err := e.markResolved(ctx, tx, row, enums.ReservationStatusReleased); err != nil {
			return nil, err
		}
		result.Reservations = append(result.Reservations, toView(*row))
	}

	if len(result.Reservations) > 0 && e.outbox != nil {
		event := outbox.DomainEvent{
			EventType:     enums.EventReservationReleased,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         actorRef(actorID),
			Data: payloads.ReservationReleasedEvent{
				OrderID: orderID,
				Lines:   reservationLines(result.Reservations),
				Reason:  reason,
			},
		}
		if err := e.outbox.Emit(ctx, tx, event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue reservation released event")
		}
	}
	return result, nil
}

// ExpiredOrders lists orders holding reservations created before cutoff.
func (e *Engine) ExpiredOrders(ctx context.Context, conn *gorm.DB, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	query := conn.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("status = ? AND created_at < ?", enums.ReservationStatusReserved, cutoff).
		Group("order_id").
		Order("MIN(created_at) ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var ids []uuid.UUID
	if err := query.Pluck("order_id", &ids).Error; err != nil {
		return nil, pkgerrors.ClassifyStore(err, "list expired reservations")
	}
	return ids, nil
}

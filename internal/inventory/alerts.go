package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShouldRaise reports whether on-hand stock sits in the low stock band.
// Zero is out of stock, a different condition, and never raises.
func ShouldRaise(onHand, threshold int) bool {
	return onHand > 0 && onHand <= threshold
}

// ShouldResolve reports whether on-hand stock has recovered above the threshold.
func ShouldResolve(onHand, threshold int) bool {
	return onHand > threshold
}

// AlertMonitor opens and closes low stock alerts in the caller's transaction.
type AlertMonitor struct {
	outbox outboxPublisher
	now    func() time.Time
}

func NewAlertMonitor(publisher outboxPublisher) *AlertMonitor {
	return &AlertMonitor{
		outbox: publisher,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate reconciles alert state with the level just written for subject.
// It reports whether a new alert was opened.
func (m *AlertMonitor) Evaluate(ctx context.Context, tx *gorm.DB, subject SubjectRef, level StockLevel) (bool, error) {
	switch {
	case ShouldRaise(level.OnHand, level.Threshold):
		return m.raise(ctx, tx, subject, level)
	case ShouldResolve(level.OnHand, level.Threshold):
		return false, m.resolve(ctx, tx, subject, level)
	default:
		return false, nil
	}
}

func (m *AlertMonitor) findActive(ctx context.Context, tx *gorm.DB, subject SubjectRef) (*models.StockAlert, error) {
	var alert models.StockAlert
	err := tx.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ? AND alert_type = ? AND status = ?",
			subject.Type, subject.ID, enums.AlertTypeLowStock, enums.AlertStatusActive).
		Take(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.ClassifyStore(err, "load active stock alert")
	}
	return &alert, nil
}

func (m *AlertMonitor) raise(ctx context.Context, tx *gorm.DB, subject SubjectRef, level StockLevel) (bool, error) {
	existing, err := m.findActive(ctx, tx, subject)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if existing.CurrentStock == level.OnHand && existing.Threshold == level.Threshold {
			return false, nil
		}
		err := tx.WithContext(ctx).
			Model(existing).
			UpdateColumns(map[string]any{
				"current_stock": level.OnHand,
				"threshold":     level.Threshold,
			}).Error
		return false, pkgerrors.ClassifyStore(err, "refresh stock alert")
	}

	alert := &models.StockAlert{
		SubjectType:  subject.Type,
		SubjectID:    subject.ID,
		AlertType:    enums.AlertTypeLowStock,
		CurrentStock: level.OnHand,
		Threshold:    level.Threshold,
		Status:       enums.AlertStatusActive,
	}
	// The partial unique index on active alerts turns a duplicate into a no-op.
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(alert)
	if res.Error != nil {
		return false, pkgerrors.ClassifyStore(res.Error, "create stock alert")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	if m.outbox != nil {
		event := outbox.DomainEvent{
			EventType:     enums.EventStockLow,
			AggregateType: enums.AggregateStockAlert,
			AggregateID:   alert.ID,
			Data: payloads.StockLowEvent{
				AlertID:      alert.ID,
				SubjectType:  subject.Type,
				SubjectID:    subject.ID,
				CurrentStock: level.OnHand,
				Threshold:    level.Threshold,
			},
		}
		if err := m.outbox.Emit(ctx, tx, event); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue stock low event")
		}
	}
	return true, nil
}

func (m *AlertMonitor) resolve(ctx context.Context, tx *gorm.DB, subject SubjectRef, level StockLevel) error {
	active, err := m.findActive(ctx, tx, subject)
	if err != nil || active == nil {
		return err
	}

	resolvedAt := m.now()
	err = tx.WithContext(ctx).
		Model(&models.StockAlert{}).
		Where("id = ? AND status = ?", active.ID, enums.AlertStatusActive).
		UpdateColumns(map[string]any{
			"status":        enums.AlertStatusResolved,
			"current_stock": level.OnHand,
			"resolved_at":   resolvedAt,
		}).Error
	if err != nil {
		return pkgerrors.ClassifyStore(err, "resolve stock alert")
	}

	if m.outbox == nil {
		return nil
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventStockAlertResolved,
		AggregateType: enums.AggregateStockAlert,
		AggregateID:   active.ID,
		Data: payloads.StockAlertResolvedEvent{
			AlertID:      active.ID,
			SubjectType:  subject.Type,
			SubjectID:    subject.ID,
			CurrentStock: level.OnHand,
			Threshold:    level.Threshold,
			ResolvedAt:   resolvedAt,
		},
	}
	if err := m.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue stock alert resolved event")
	}
	return nil
}

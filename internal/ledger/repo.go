package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubjectKey identifies one stock record across the product and variant tables.
type SubjectKey struct {
	Type enums.SubjectType `gorm:"column:subject_type"`
	ID   uuid.UUID         `gorm:"column:subject_id"`
}

// Repository manages persistence for stock movements. Rows are only ever inserted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, movement *models.StockMovement) error
	ListBySubject(ctx context.Context, subject SubjectKey, beforeSeq int64, limit int) ([]models.StockMovement, error)
	ListChain(ctx context.Context, subject SubjectKey) ([]models.StockMovement, error)
	SumOrderConsumption(ctx context.Context, subjects []SubjectKey, since time.Time) (map[SubjectKey]int, error)
	ListSubjectsTouchedSince(ctx context.Context, since time.Time, limit int) ([]SubjectKey, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

// ListBySubject returns movements newest first. beforeSeq of zero starts at the latest row.
func (r *repository) ListBySubject(ctx context.Context, subject SubjectKey, beforeSeq int64, limit int) ([]models.StockMovement, error) {
	query := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subject.Type, subject.ID)
	if beforeSeq > 0 {
		query = query.Where("id < ?", beforeSeq)
	}

	var rows []models.StockMovement
	if err := query.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListChain returns every movement of the subject in commit order.
func (r *repository) ListChain(ctx context.Context, subject SubjectKey) ([]models.StockMovement, error) {
	var rows []models.StockMovement
	if err := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subject.Type, subject.ID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type consumptionRow struct {
	SubjectType enums.SubjectType `gorm:"column:subject_type"`
	SubjectID   uuid.UUID         `gorm:"column:subject_id"`
	Consumed    int               `gorm:"column:consumed"`
}

// SumOrderConsumption totals units removed by confirmed orders per subject since the given time.
func (r *repository) SumOrderConsumption(ctx context.Context, subjects []SubjectKey, since time.Time) (map[SubjectKey]int, error) {
	out := make(map[SubjectKey]int, len(subjects))
	if len(subjects) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, 0, len(subjects))
	for _, s := range subjects {
		ids = append(ids, s.ID)
	}

	var rows []consumptionRow
	err := r.db.WithContext(ctx).
		Model(&models.StockMovement{}).
		Select("subject_type, subject_id, COALESCE(SUM(ABS(delta)), 0) AS consumed").
		Where("operation = ?", enums.StockOperationSubtract).
		Where("reference_type = ?", enums.StockReferenceOrder).
		Where("created_at >= ?", since).
		Where("subject_id IN ?", ids).
		Group("subject_type, subject_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	wanted := make(map[SubjectKey]struct{}, len(subjects))
	for _, s := range subjects {
		wanted[s] = struct{}{}
	}
	for _, row := range rows {
		key := SubjectKey{Type: row.SubjectType, ID: row.SubjectID}
		if _, ok := wanted[key]; ok {
			out[key] = row.Consumed
		}
	}
	return out, nil
}

// ListSubjectsTouchedSince returns distinct subjects with at least one movement since the given time.
func (r *repository) ListSubjectsTouchedSince(ctx context.Context, since time.Time, limit int) ([]SubjectKey, error) {
	query := r.db.WithContext(ctx).
		Model(&models.StockMovement{}).
		Distinct("subject_type", "subject_id").
		Where("created_at >= ?", since).
		Order("subject_type").
		Order("subject_id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var keys []SubjectKey
	if err := query.Scan(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

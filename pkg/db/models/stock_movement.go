package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// StockMovement is an immutable ledger entry recording one on-hand quantity change.
// ID is monotonically increasing and orders entries for the same subject.
type StockMovement struct {
	ID             int64                     `gorm:"column:id;primaryKey;autoIncrement"`
	SubjectType    enums.SubjectType         `gorm:"column:subject_type;not null"`
	SubjectID      uuid.UUID                 `gorm:"column:subject_id;type:uuid;not null;index:idx_stock_movements_subject"`
	QuantityBefore int                       `gorm:"column:quantity_before;not null"`
	QuantityAfter  int                       `gorm:"column:quantity_after;not null"`
	Delta          int                       `gorm:"column:delta;not null"`
	Operation      enums.StockOperation      `gorm:"column:operation;not null"`
	Reason         string                    `gorm:"column:reason;not null"`
	ReferenceID    *uuid.UUID                `gorm:"column:reference_id;type:uuid"`
	ReferenceType  *enums.StockReferenceType `gorm:"column:reference_type"`
	ActorID        *uuid.UUID                `gorm:"column:actor_id;type:uuid"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

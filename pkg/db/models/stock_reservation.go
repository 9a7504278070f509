package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// StockReservation holds quantity against a subject for a pending order.
type StockReservation struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	SubjectType enums.SubjectType       `gorm:"column:subject_type;not null"`
	SubjectID   uuid.UUID               `gorm:"column:subject_id;type:uuid;not null"`
	Quantity    int                     `gorm:"column:quantity;not null"`
	Status      enums.ReservationStatus `gorm:"column:status;not null"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt  *time.Time              `gorm:"column:resolved_at"`
}

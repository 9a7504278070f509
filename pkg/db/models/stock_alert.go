package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// StockAlert records a low stock condition for a subject.
type StockAlert struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	SubjectType  enums.SubjectType `gorm:"column:subject_type;not null;uniqueIndex:ux_stock_alerts_active,where:status = 'active'"`
	SubjectID    uuid.UUID         `gorm:"column:subject_id;type:uuid;not null;uniqueIndex:ux_stock_alerts_active"`
	AlertType    enums.AlertType   `gorm:"column:alert_type;not null;uniqueIndex:ux_stock_alerts_active"`
	CurrentStock int               `gorm:"column:current_stock;not null"`
	Threshold    int               `gorm:"column:threshold;not null"`
	Status       enums.AlertStatus `gorm:"column:status;not null"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt   *time.Time        `gorm:"column:resolved_at"`
}

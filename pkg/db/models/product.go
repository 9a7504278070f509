package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a sellable listing that carries its own stock record.
type Product struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	StoreID           uuid.UUID        `gorm:"column:store_id;type:uuid;not null;index"`
	SKU               string           `gorm:"column:sku;not null"`
	Name              string           `gorm:"column:name;not null"`
	StockQuantity     int              `gorm:"column:stock_quantity;not null;default:0"`
	ReservedQuantity  int              `gorm:"column:reserved_quantity;not null;default:0"`
	LowStockThreshold int              `gorm:"column:low_stock_threshold;not null;default:0"`
	Variants          []ProductVariant `gorm:"foreignKey:ProductID"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

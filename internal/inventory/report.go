package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/angelmondragon/stockledger/internal/ledger"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LowStockSubject is one row of the low stock report.
type LowStockSubject struct {
	SubjectType                enums.SubjectType `json:"subject_type"`
	SubjectID                  uuid.UUID         `json:"subject_id"`
	ProductID                  uuid.UUID         `json:"product_id"`
	SKU                        string            `json:"sku"`
	Name                       string            `json:"name"`
	CurrentStock               int               `json:"current_stock"`
	Reserved                   int               `json:"reserved"`
	Threshold                  int               `json:"threshold"`
	EstimatedDaysUntilStockout *int              `json:"estimated_days_until_stockout,omitempty"`
}

type lowStockRow struct {
	ID                uuid.UUID `gorm:"column:id"`
	ProductID         uuid.UUID `gorm:"column:product_id"`
	SKU               string    `gorm:"column:sku"`
	Name              string    `gorm:"column:name"`
	StockQuantity     int       `gorm:"column:stock_quantity"`
	ReservedQuantity  int       `gorm:"column:reserved_quantity"`
	LowStockThreshold int       `gorm:"column:low_stock_threshold"`
}

func (s *service) ListLowStockSubjects(ctx context.Context, storeID uuid.UUID) ([]LowStockSubject, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	db := s.tx.DB().WithContext(ctx)

	var products []lowStockRow
	err := db.Table("products").
		Select("id, id AS product_id, sku, name, stock_quantity, reserved_quantity, low_stock_threshold").
		Where("store_id = ?", storeID).
		Where("stock_quantity > 0 AND stock_quantity <= low_stock_threshold").
		Scan(&products).Error
	if err != nil {
		return nil, pkgerrors.ClassifyStore(err, "list low stock products")
	}

	var variants []lowStockRow
	err = db.Table("product_variants").
		Select("product_variants.id, product_variants.product_id, product_variants.sku, "+
			"products.name || ' - ' || product_variants.name AS name, "+
			"product_variants.stock_quantity, product_variants.reserved_quantity, product_variants.low_stock_threshold").
		Joins("JOIN products ON products.id = product_variants.product_id").
		Where("products.store_id = ?", storeID).
		Where("product_variants.stock_quantity > 0 AND product_variants.stock_quantity <= product_variants.low_stock_threshold").
		Scan(&variants).Error
	if err != nil {
		return nil, pkgerrors.ClassifyStore(err, "list low stock variants")
	}

	out := make([]LowStockSubject, 0, len(products)+len(variants))
	keys := make([]ledger.SubjectKey, 0, cap(out))
	add := func(rows []lowStockRow, subjectType enums.SubjectType) {
		for _, row := range rows {
			out = append(out, LowStockSubject{
				SubjectType:  subjectType,
				SubjectID:    row.ID,
				ProductID:    row.ProductID,
				SKU:          row.SKU,
				Name:         row.Name,
				CurrentStock: row.StockQuantity,
				Reserved:     row.ReservedQuantity,
				Threshold:    row.LowStockThreshold,
			})
			keys = append(keys, ledger.SubjectKey{Type: subjectType, ID: row.ID})
		}
	}
	add(products, enums.SubjectProduct)
	add(variants, enums.SubjectVariant)

	since := s.now().Add(-time.Duration(s.window) * 24 * time.Hour)
	consumed, err := s.ledger.OrderConsumption(ctx, keys, since)
	if err != nil {
		return nil, err
	}
	for i := range out {
		key := ledger.SubjectKey{Type: out[i].SubjectType, ID: out[i].SubjectID}
		out[i].EstimatedDaysUntilStockout = EstimateDaysUntilStockout(out[i].CurrentStock, consumed[key], s.window)
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].CurrentStock != out[b].CurrentStock {
			return out[a].CurrentStock < out[b].CurrentStock
		}
		return out[a].SKU < out[b].SKU
	})
	return out, nil
}

// EstimateDaysUntilStockout divides current stock by the average daily
// consumption over windowDays. It returns nil when nothing was consumed.
func EstimateDaysUntilStockout(currentStock, consumed, windowDays int) *int {
	if consumed <= 0 || windowDays <= 0 {
		return nil
	}
	daily := decimal.NewFromInt(int64(consumed)).Div(decimal.NewFromInt(int64(windowDays)))
	days := int(decimal.NewFromInt(int64(currentStock)).Div(daily).Floor().IntPart())
	return &days
}

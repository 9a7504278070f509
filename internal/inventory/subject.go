package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/stockledger/internal/ledger"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockLevel is the mutable stock state of one subject.
type StockLevel struct {
	OnHand    int
	Reserved  int
	Threshold int
	SKU       string
}

// Available is the quantity that may still be newly reserved.
func (l StockLevel) Available() int {
	return l.OnHand - l.Reserved
}

// SubjectRef names a subject without touching the database.
type SubjectRef struct {
	Type enums.SubjectType `json:"subject_type"`
	ID   uuid.UUID         `json:"subject_id"`
}

func (r SubjectRef) key() ledger.SubjectKey {
	return ledger.SubjectKey{Type: r.Type, ID: r.ID}
}

// SubjectInfo is an unlocked snapshot of a subject and the store that owns it.
type SubjectInfo struct {
	Ref       SubjectRef
	StoreID   uuid.UUID
	ProductID uuid.UUID
	SKU       string
	Name      string
	Level     StockLevel
}

// StockSubject is a row that carries a stock record. Implementations only
// touch their own table, so callers never build table names.
type StockSubject interface {
	Ref() SubjectRef
	// GetStock reads the level and holds a row lock until tx ends.
	GetStock(ctx context.Context, tx *gorm.DB) (StockLevel, error)
	// SetStock writes on-hand and reserved. The row must already be locked by GetStock.
	SetStock(ctx context.Context, tx *gorm.DB, level StockLevel) error
	Describe(ctx context.Context, db *gorm.DB) (*SubjectInfo, error)
}

// NewSubject returns the StockSubject for a reference.
func NewSubject(ref SubjectRef) (StockSubject, error) {
	if ref.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject id is required")
	}
	switch ref.Type {
	case enums.SubjectProduct:
		return ProductSubject{id: ref.ID}, nil
	case enums.SubjectVariant:
		return VariantSubject{id: ref.ID}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid subject type %q", ref.Type))
	}
}

type stockColumns struct {
	SKU               string `gorm:"column:sku"`
	StockQuantity     int    `gorm:"column:stock_quantity"`
	ReservedQuantity  int    `gorm:"column:reserved_quantity"`
	LowStockThreshold int    `gorm:"column:low_stock_threshold"`
}

func (c stockColumns) level() StockLevel {
	return StockLevel{
		OnHand:    c.StockQuantity,
		Reserved:  c.ReservedQuantity,
		Threshold: c.LowStockThreshold,
		SKU:       c.SKU,
	}
}

func lockStock(ctx context.Context, tx *gorm.DB, model any, id uuid.UUID, kind string) (StockLevel, error) {
	var row stockColumns
	err := tx.WithContext(ctx).
		Model(model).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("sku", "stock_quantity", "reserved_quantity", "low_stock_threshold").
		Where("id = ?", id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StockLevel{}, pkgerrors.New(pkgerrors.CodeNotFound, kind+" not found")
	}
	if err != nil {
		return StockLevel{}, pkgerrors.ClassifyStore(err, "lock "+kind+" stock")
	}
	return row.level(), nil
}

func writeStock(ctx context.Context, tx *gorm.DB, model any, id uuid.UUID, level StockLevel, kind string) error {
	if level.OnHand < 0 || level.Reserved < 0 || level.Reserved > level.OnHand {
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("refusing to write invalid %s stock on_hand=%d reserved=%d", kind, level.OnHand, level.Reserved))
	}
	res := tx.WithContext(ctx).
		Model(model).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"stock_quantity":    level.OnHand,
			"reserved_quantity": level.Reserved,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.ClassifyStore(res.Error, "write "+kind+" stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, kind+" not found")
	}
	return nil
}

// ProductSubject is the stock record stored on a product row.
type ProductSubject struct {
	id uuid.UUID
}

func NewProductSubject(id uuid.UUID) ProductSubject { return ProductSubject{id: id} }

func (p ProductSubject) Ref() SubjectRef {
	return SubjectRef{Type: enums.SubjectProduct, ID: p.id}
}

func (p ProductSubject) GetStock(ctx context.Context, tx *gorm.DB) (StockLevel, error) {
	return lockStock(ctx, tx, &models.Product{}, p.id, "product")
}

func (p ProductSubject) SetStock(ctx context.Context, tx *gorm.DB, level StockLevel) error {
	return writeStock(ctx, tx, &models.Product{}, p.id, level, "product")
}

func (p ProductSubject) Describe(ctx context.Context, db *gorm.DB) (*SubjectInfo, error) {
	var product models.Product
	err := db.WithContext(ctx).Where("id = ?", p.id).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.ClassifyStore(err, "load product")
	}
	return &SubjectInfo{
		Ref:       p.Ref(),
		StoreID:   product.StoreID,
		ProductID: product.ID,
		SKU:       product.SKU,
		Name:      product.Name,
		Level: StockLevel{
			OnHand:    product.StockQuantity,
			Reserved:  product.ReservedQuantity,
			Threshold: product.LowStockThreshold,
			SKU:       product.SKU,
		},
	}, nil
}

// VariantSubject is the stock record stored on a product variant row.
type VariantSubject struct {
	id uuid.UUID
}

func NewVariantSubject(id uuid.UUID) VariantSubject { return VariantSubject{id: id} }

func (v VariantSubject) Ref() SubjectRef {
	return SubjectRef{Type: enums.SubjectVariant, ID: v.id}
}

func (v VariantSubject) GetStock(ctx context.Context, tx *gorm.DB) (StockLevel, error) {
	return lockStock(ctx, tx, &models.ProductVariant{}, v.id, "variant")
}

func (v VariantSubject) SetStock(ctx context.Context, tx *gorm.DB, level StockLevel) error {
	return writeStock(ctx, tx, &models.ProductVariant{}, v.id, level, "variant")
}

type variantWithStore struct {
	models.ProductVariant
	StoreID     uuid.UUID `gorm:"column:store_id"`
	ProductName string    `gorm:"column:product_name"`
}

func (v VariantSubject) Describe(ctx context.Context, db *gorm.DB) (*SubjectInfo, error) {
	var row variantWithStore
	err := db.WithContext(ctx).
		Table("product_variants").
		Select("product_variants.*, products.store_id AS store_id, products.name AS product_name").
		Joins("JOIN products ON products.id = product_variants.product_id").
		Where("product_variants.id = ?", v.id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	if err != nil {
		return nil, pkgerrors.ClassifyStore(err, "load variant")
	}
	name := row.Name
	if row.ProductName != "" && row.ProductName != row.Name {
		name = row.ProductName + " - " + row.Name
	}
	return &SubjectInfo{
		Ref:       v.Ref(),
		StoreID:   row.StoreID,
		ProductID: row.ProductID,
		SKU:       row.SKU,
		Name:      name,
		Level: StockLevel{
			OnHand:    row.StockQuantity,
			Reserved:  row.ReservedQuantity,
			Threshold: row.LowStockThreshold,
			SKU:       row.SKU,
		},
	}, nil
}

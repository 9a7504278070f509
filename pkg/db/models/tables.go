package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TableName overrides keep gorm aligned with the goose migrations.

func (Product) TableName() string          { return "products" }
func (ProductVariant) TableName() string   { return "product_variants" }
func (StockMovement) TableName() string    { return "stock_movements" }
func (StockReservation) TableName() string { return "stock_reservations" }
func (StockAlert) TableName() string       { return "stock_alerts" }
func (OutboxEvent) TableName() string      { return "outbox_events" }
func (OutboxDLQ) TableName() string        { return "outbox_dlq" }

// UUID keys are minted client side so sqlite and postgres behave the same.

func (p *Product) BeforeCreate(*gorm.DB) error          { return assignID(&p.ID) }
func (v *ProductVariant) BeforeCreate(*gorm.DB) error   { return assignID(&v.ID) }
func (r *StockReservation) BeforeCreate(*gorm.DB) error { return assignID(&r.ID) }
func (a *StockAlert) BeforeCreate(*gorm.DB) error       { return assignID(&a.ID) }
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error      { return assignID(&e.ID) }
func (d *OutboxDLQ) BeforeCreate(*gorm.DB) error        { return assignID(&d.ID) }

func assignID(id *uuid.UUID) error {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	return nil
}

// All lists every persisted model, for sqlite AutoMigrate in dev and tests.
func All() []any {
	return []any{
		&Product{},
		&ProductVariant{},
		&StockMovement{},
		&StockReservation{},
		&StockAlert{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}

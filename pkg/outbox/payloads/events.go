package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// StockAdjustedEvent mirrors a ledger entry after it has been committed.
type StockAdjustedEvent struct {
	MovementID     int64                     `json:"movement_id"`
	SubjectType    enums.SubjectType         `json:"subject_type"`
	SubjectID      uuid.UUID                 `json:"subject_id"`
	Operation      enums.StockOperation      `json:"operation"`
	QuantityBefore int                       `json:"quantity_before"`
	QuantityAfter  int                       `json:"quantity_after"`
	Delta          int                       `json:"delta"`
	Reason         string                    `json:"reason"`
	ReferenceID    *uuid.UUID                `json:"reference_id,omitempty"`
	ReferenceType  *enums.StockReferenceType `json:"reference_type,omitempty"`
}

// StockLowEvent is emitted when a subject drops into the low stock band.
type StockLowEvent struct {
	AlertID      uuid.UUID         `json:"alert_id"`
	SubjectType  enums.SubjectType `json:"subject_type"`
	SubjectID    uuid.UUID         `json:"subject_id"`
	CurrentStock int               `json:"current_stock"`
	Threshold    int               `json:"threshold"`
}

// StockAlertResolvedEvent is emitted when stock recovers above the threshold.
type StockAlertResolvedEvent struct {
	AlertID      uuid.UUID         `json:"alert_id"`
	SubjectType  enums.SubjectType `json:"subject_type"`
	SubjectID    uuid.UUID         `json:"subject_id"`
	CurrentStock int               `json:"current_stock"`
	Threshold    int               `json:"threshold"`
	ResolvedAt   time.Time         `json:"resolved_at"`
}

// ReservationLine describes one reserved quantity within an order.
type ReservationLine struct {
	ReservationID uuid.UUID         `json:"reservation_id"`
	SubjectType   enums.SubjectType `json:"subject_type"`
	SubjectID     uuid.UUID         `json:"subject_id"`
	Quantity      int               `json:"quantity"`
}

// ReservationCreatedEvent lists the reservations held for an order.
type ReservationCreatedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	Lines   []ReservationLine `json:"lines"`
}

// ReservationConfirmedEvent lists reservations converted into stock decrements.
type ReservationConfirmedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	Lines   []ReservationLine `json:"lines"`
}

// ReservationReleasedEvent lists reservations returned to available stock.
type ReservationReleasedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	Lines   []ReservationLine `json:"lines"`
	Reason  string            `json:"reason"`
}

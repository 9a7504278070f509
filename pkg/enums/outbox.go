package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateProduct    OutboxAggregateType = "product"
	AggregateVariant    OutboxAggregateType = "variant"
	AggregateOrder      OutboxAggregateType = "order"
	AggregateStockAlert OutboxAggregateType = "stock_alert"
)

var aggregateTypes = []OutboxAggregateType{AggregateProduct, AggregateVariant, AggregateOrder, AggregateStockAlert}

func (a OutboxAggregateType) IsValid() bool { return known(aggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(aggregateTypes, "aggregate type", value)
}

// AggregateForSubject maps a stock subject onto its outbox aggregate.
func AggregateForSubject(subject SubjectType) OutboxAggregateType {
	if subject == SubjectVariant {
		return AggregateVariant
	}
	return AggregateProduct
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventStockAdjusted        OutboxEventType = "stock_adjusted"
	EventStockLow             OutboxEventType = "stock_low"
	EventStockAlertResolved   OutboxEventType = "stock_alert_resolved"
	EventReservationCreated   OutboxEventType = "reservation_created"
	EventReservationConfirmed OutboxEventType = "reservation_confirmed"
	EventReservationReleased  OutboxEventType = "reservation_released"
)

var eventTypes = []OutboxEventType{
	EventStockAdjusted,
	EventStockLow,
	EventStockAlertResolved,
	EventReservationCreated,
	EventReservationConfirmed,
	EventReservationReleased,
}

func (e OutboxEventType) IsValid() bool { return known(eventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(eventTypes, "event type", value)
}

// OutboxDLQErrorReason records why an event was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}

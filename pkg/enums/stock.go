package enums

// SubjectType identifies which table holds a stock record.
type SubjectType string

const (
	SubjectProduct SubjectType = "product"
	SubjectVariant SubjectType = "variant"
)

var subjectTypes = []SubjectType{SubjectProduct, SubjectVariant}

func (s SubjectType) IsValid() bool { return known(subjectTypes, s) }

func ParseSubjectType(value string) (SubjectType, error) {
	return parse(subjectTypes, "subject type", value)
}

// StockOperation is the kind of quantity change applied to a stock record.
type StockOperation string

const (
	StockOperationAdd      StockOperation = "add"
	StockOperationSubtract StockOperation = "subtract"
	StockOperationSet      StockOperation = "set"
)

var stockOperations = []StockOperation{StockOperationAdd, StockOperationSubtract, StockOperationSet}

func (o StockOperation) IsValid() bool { return known(stockOperations, o) }

func ParseStockOperation(value string) (StockOperation, error) {
	return parse(stockOperations, "stock operation", value)
}

// StockReferenceType names the business object a ledger entry points at.
type StockReferenceType string

const (
	StockReferenceOrder      StockReferenceType = "order"
	StockReferenceAdjustment StockReferenceType = "adjustment"
	StockReferenceReturn     StockReferenceType = "return"
	StockReferenceTransfer   StockReferenceType = "transfer"
	StockReferenceImport     StockReferenceType = "import"
)

var stockReferenceTypes = []StockReferenceType{
	StockReferenceOrder,
	StockReferenceAdjustment,
	StockReferenceReturn,
	StockReferenceTransfer,
	StockReferenceImport,
}

func (r StockReferenceType) IsValid() bool { return known(stockReferenceTypes, r) }

func ParseStockReferenceType(value string) (StockReferenceType, error) {
	return parse(stockReferenceTypes, "stock reference type", value)
}

// ReservationStatus tracks the lifecycle of a stock reservation.
// reserved -> confirmed | released; both targets are terminal.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "reserved"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusReleased  ReservationStatus = "released"
)

var reservationStatuses = []ReservationStatus{ReservationStatusReserved, ReservationStatusConfirmed, ReservationStatusReleased}

func (s ReservationStatus) IsValid() bool { return known(reservationStatuses, s) }

func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusConfirmed || s == ReservationStatusReleased
}

// CanTransitionTo reports whether s may move to next.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	return s == ReservationStatusReserved && next.IsTerminal()
}

type AlertType string

const AlertTypeLowStock AlertType = "low_stock"

func (a AlertType) IsValid() bool { return a == AlertTypeLowStock }

// AlertStatus tracks whether an alert still applies.
type AlertStatus string

const (
	AlertStatusActive   AlertStatus = "active"
	AlertStatusResolved AlertStatus = "resolved"
)

func (a AlertStatus) IsValid() bool {
	return a == AlertStatusActive || a == AlertStatusResolved
}

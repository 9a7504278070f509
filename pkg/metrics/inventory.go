package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stockledger"

// Reservation outcome labels.
const (
	ReservationReserved  = "reserved"
	ReservationRejected  = "rejected"
	ReservationReplayed  = "replayed"
	ReservationConfirmed = "confirmed"
	ReservationReleased  = "released"
	ReservationExpired   = "expired"
)

// InventoryMetrics tracks stock mutations and their failure modes.
// A nil *InventoryMetrics is valid and records nothing.
type InventoryMetrics struct {
	stockChanges *prometheus.CounterVec
	reservations *prometheus.CounterVec
	retries      prometheus.Counter
	lowStock     prometheus.Counter
	ledgerDrift  prometheus.Counter
}

// NewInventoryMetrics registers the inventory metrics on the provided registerer.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	m := &InventoryMetrics{
		stockChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_changes_total",
			Help:      "Committed ledger entries by operation.",
		}, []string{"operation"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_reservation_outcomes_total",
			Help:      "Reservation lines by outcome.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_store_retries_total",
			Help:      "Transactions retried after a transient store error.",
		}),
		lowStock: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_low_alerts_raised_total",
			Help:      "Low stock alerts raised.",
		}),
		ledgerDrift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_ledger_drift_total",
			Help:      "Subjects whose ledger replay did not match current stock.",
		}),
	}
	reg.MustRegister(m.stockChanges, m.reservations, m.retries, m.lowStock, m.ledgerDrift)
	return m
}

func (m *InventoryMetrics) IncStockChange(operation string) {
	if m == nil || m.stockChanges == nil {
		return
	}
	m.stockChanges.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *InventoryMetrics) AddReservations(result string, n int) {
	if m == nil || m.reservations == nil || n <= 0 {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(result)).Add(float64(n))
}

func (m *InventoryMetrics) IncRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

func (m *InventoryMetrics) IncLowStockRaised() {
	if m == nil || m.lowStock == nil {
		return
	}
	m.lowStock.Inc()
}

func (m *InventoryMetrics) IncLedgerDrift() {
	if m == nil || m.ledgerDrift == nil {
		return
	}
	m.ledgerDrift.Inc()
}

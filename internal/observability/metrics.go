// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pump-sniper/internal/domain"
)

// Metrics holds all Prometheus metrics for the bot. One instance is
// created at startup and injected into the components that record.
type Metrics struct {
	// Intake metrics
	CandidatesEvaluated prometheus.Counter
	CandidatesSkipped   prometheus.Counter

	// Entry metrics
	EntriesOpened   prometheus.Counter
	EntriesRejected *prometheus.CounterVec

	// Exit metrics
	ExitsCompleted prometheus.Counter
	ExitReasons    *prometheus.CounterVec

	// Settlement metrics
	SettlementLatency  *prometheus.HistogramVec
	SettlementFailures *prometheus.CounterVec

	// Position metrics
	OpenPositions  prometheus.Gauge
	FatalPositions prometheus.Gauge

	// Capital metrics
	TotalCapital    prometheus.Gauge
	ReservedCapital prometheus.Gauge
	RealizedPnL     prometheus.Gauge

	// Archive metrics
	TicksArchived prometheus.Counter
}

// New creates a Metrics instance registered on the given registerer.
// Tests pass a fresh prometheus.NewRegistry to avoid collisions.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "pump_sniper"
	}
	factory := promauto.With(reg)

	return &Metrics{
		CandidatesEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "candidates_evaluated_total",
			Help:      "Total number of launch candidates that reached the entry gates",
		}),
		CandidatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "candidates_skipped_total",
			Help:      "Total number of launches dropped before evaluation",
		}),
		EntriesOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "entries_opened_total",
			Help:      "Total number of positions opened",
		}),
		EntriesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "entries_rejected_total",
			Help:      "Total number of entry requests rejected by reason",
		}, []string{"reason"}),
		ExitsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "exits_completed_total",
			Help:      "Total number of positions closed",
		}),
		ExitReasons: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "exit_reasons_total",
			Help:      "Total number of exits by triggering condition",
		}, []string{"reason"}),
		SettlementLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "latency_seconds",
			Help:      "Swap settlement latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"side"}),
		SettlementFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "failures_total",
			Help:      "Total number of failed settlement attempts by side",
		}, []string{"side"}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Number of positions currently counting against the concurrency cap",
		}),
		FatalPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "fatal",
			Help:      "Number of positions abandoned after exhausting exit retries",
		}),
		TotalCapital: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "total_capital_sol",
			Help:      "Total capital in SOL, available plus reserved",
		}),
		ReservedCapital: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "reserved_capital_sol",
			Help:      "Capital reserved against open positions in SOL",
		}),
		RealizedPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "realized_pnl_sol",
			Help:      "Cumulative realized P&L in SOL",
		}),
		TicksArchived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ticks_archived_total",
			Help:      "Total number of price observations written to the tick archive",
		}),
	}
}

// ObserveLedger updates the capital gauges from a ledger snapshot.
func (m *Metrics) ObserveLedger(s domain.LedgerSummary) {
	m.TotalCapital.Set(s.TotalCapital)
	m.ReservedCapital.Set(s.ReservedCapital)
	m.RealizedPnL.Set(s.RealizedPnL)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

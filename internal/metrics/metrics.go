package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deluge_ledger_operations_total",
		Help: "Total ledger operations by kind and outcome",
	}, []string{"operation", "outcome"})

	LedgerOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deluge_ledger_operation_duration_seconds",
		Help:    "Ledger operation latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"operation"})

	ReserveBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deluge_reserve_balance_minor_units",
		Help: "Current platform reserve balance in minor currency units",
	})
)

// Observe records one completed ledger operation.
func Observe(operation string, err error, seconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	LedgerOpsTotal.WithLabelValues(operation, outcome).Inc()
	LedgerOpDuration.WithLabelValues(operation).Observe(seconds)
}

package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of a node.
type Metrics struct {
	Calls          *prometheus.CounterVec
	DispatchErrors *prometheus.CounterVec
	Events         *prometheus.CounterVec
	Height         prometheus.Gauge
	RPCDuration    *prometheus.HistogramVec
}

// NewMetrics creates the node collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bucketkeeper",
				Subsystem: "ledger",
				Name:      "calls_total",
				Help:      "Submitted calls by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		DispatchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bucketkeeper",
				Subsystem: "ledger",
				Name:      "dispatch_errors_total",
				Help:      "Calls rejected by the ledger rules, by error name.",
			},
			[]string{"error"},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bucketkeeper",
				Subsystem: "ledger",
				Name:      "events_total",
				Help:      "Emitted ledger events by name.",
			},
			[]string{"event"},
		),
		Height: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bucketkeeper",
				Subsystem: "ledger",
				Name:      "block_height",
				Help:      "Number of the last produced block.",
			},
		),
		RPCDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bucketkeeper",
				Subsystem: "ledger",
				Name:      "rpc_duration_seconds",
				Help:      "gRPC handling time by method and status code.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "code"},
		),
	}
	reg.MustRegister(m.Calls, m.DispatchErrors, m.Events, m.Height, m.RPCDuration)
	return m
}

const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeDropped  = "dropped"
)

// Package metrics holds the Prometheus collectors shared by the RPC client and
// the dashboard watcher. They are registered on a private registry so tests and
// the HTTP surface see the same set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var Registry = prometheus.NewRegistry()

var (
	RPCCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jupiterdash",
		Name:      "rpc_calls_total",
		Help:      "JSON-RPC calls by method and outcome.",
	}, []string{"method", "outcome"})

	Cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jupiterdash",
		Name:      "cycles_total",
		Help:      "Dashboard update cycles by outcome.",
	}, []string{"outcome"})

	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jupiterdash",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of a dashboard update cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	Transfers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jupiterdash",
		Name:      "transfers_total",
		Help:      "Fixed transfers submitted to the wallet, by outcome.",
	}, []string{"outcome"})
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

func init() {
	Registry.MustRegister(
		RPCCalls,
		Cycles,
		CycleDuration,
		Transfers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

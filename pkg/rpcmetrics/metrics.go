// Package rpcmetrics provides optional Prometheus instrumentation for the
// dispatcher, capacity, and discovery-index components. Nothing in the
// core registers these automatically; an embedding application opts in by
// calling New with its own registerer. No other package of the core
// updates these collectors; the embedding application sets them.
package rpcmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors an embedding application can register
// against its own prometheus.Registerer. All construction goes through
// promauto so every collector is created and registered together; callers
// that want a private registry pass one in via reg.
type Metrics struct {
	CapacityTokenEstimate *prometheus.GaugeVec
	CapacityHealth        *prometheus.GaugeVec
	ItemLatencyEwma       *prometheus.GaugeVec

	DispatchRetries   *prometheus.CounterVec
	DispatchFailovers *prometheus.CounterVec
	DispatchGiveUps   *prometheus.CounterVec
	DispatchNoCapacity *prometheus.CounterVec

	CoverSize      prometheus.Histogram
	PartitionFetch *prometheus.HistogramVec
}

// New constructs and registers the collector set against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or a
// process-wide registerer (e.g. prometheus.DefaultRegisterer) in
// production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CapacityTokenEstimate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rpc_core_capacity_tokens_estimate",
			Help: "Estimated available tokens for a backend, sampled at read time.",
		}, []string{"backend"}),
		CapacityHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rpc_core_capacity_health",
			Help: "Backend health score in [0,1], computed over the recent outcome window.",
		}, []string{"backend"}),
		ItemLatencyEwma: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rpc_core_item_latency_ewma_milliseconds",
			Help: "Exponentially weighted moving average of observed call latency, in milliseconds.",
		}, []string{"backend"}),
		DispatchRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_core_dispatch_retries_total",
			Help: "Number of retry attempts on the same backend.",
		}, []string{"backend"}),
		DispatchFailovers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_core_dispatch_failovers_total",
			Help: "Number of times dispatch rotated to a different backend mid-call.",
		}, []string{"from_backend"}),
		DispatchGiveUps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_core_dispatch_give_ups_total",
			Help: "Number of calls that exhausted retries or hit a fatal classification.",
		}, []string{"backend"}),
		DispatchNoCapacity: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_core_dispatch_no_capacity_total",
			Help: "Number of courteous-mode calls that returned a null result for lack of capacity.",
		}, []string{}),
		CoverSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rpc_core_lookup_cover_size",
			Help:    "Number of tables returned by a discovery-index query.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		PartitionFetch: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rpc_core_partition_fetch_duration_seconds",
			Help:    "Duration of a single partition fetch cycle.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
}

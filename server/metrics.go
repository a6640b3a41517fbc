package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	registry      *prometheus.Registry
	queriesTotal  *prometheus.CounterVec
	queryDuration prometheus.Histogram
	documentCount prometheus.Gauge
	stateVisits   *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &metrics{
		registry: registry,
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allion",
			Name:      "queries_total",
			Help:      "Queries answered, labelled by answer source.",
		}, []string{"source_type"}),
		queryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "allion",
			Name:      "query_duration_seconds",
			Help:      "End to end query latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		documentCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "allion",
			Name:      "indexed_documents",
			Help:      "Chunks currently indexed in the vector store.",
		}),
		stateVisits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allion",
			Name:      "state_visits_total",
			Help:      "Pipeline states visited while answering queries.",
		}, []string{"state"}),
	}
}

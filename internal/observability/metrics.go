// Package observability holds the Prometheus metrics exported by cityserve.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cityserve"

// Metrics holds the counters, gauges and histograms for the index and its
// query facade. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Loads         *prometheus.CounterVec   // labels: outcome={success,error}
	LoadDuration  prometheus.Histogram
	Records       prometheus.Gauge
	Queries       *prometheus.CounterVec   // labels: kind={all,prefix,exact}
	QueryDuration *prometheus.HistogramVec // labels: kind={all,prefix,exact}
	QueryResults  prometheus.Histogram
	Cache         *prometheus.CounterVec // labels: result={hit,miss}
	Mutations     *prometheus.CounterVec // labels: op={insert,remove}, outcome={applied,ignored}
}

func newMetrics() *Metrics {
	return &Metrics{
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Index loads by outcome.",
		}, []string{"outcome"}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of decode, sort and bulk insert.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records currently held by the index.",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries served by kind.",
		}, []string{"kind"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query latency by kind.",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"kind"}),
		QueryResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_results",
			Help:      "Number of records returned per prefix query.",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		Cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prefix_cache_total",
			Help:      "Prefix cache lookups by result.",
		}, []string{"result"}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Inserts and removes after load.",
		}, []string{"op", "outcome"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Loads,
		m.LoadDuration,
		m.Records,
		m.Queries,
		m.QueryDuration,
		m.QueryResults,
		m.Cache,
		m.Mutations,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// ObserveLoad records a finished load attempt.
func (m *Metrics) ObserveLoad(err error, d time.Duration, records int) {
	if m == nil {
		return
	}
	if err != nil {
		m.Loads.WithLabelValues("error").Inc()
		return
	}
	m.Loads.WithLabelValues("success").Inc()
	m.LoadDuration.Observe(d.Seconds())
	m.Records.Set(float64(records))
}

// ObserveQuery records one served query.
func (m *Metrics) ObserveQuery(kind string, d time.Duration, results int) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(kind).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(d.Seconds())
	if kind == "prefix" {
		m.QueryResults.Observe(float64(results))
	}
}

// ObserveCache records a prefix cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.Cache.WithLabelValues("hit").Inc()
	} else {
		m.Cache.WithLabelValues("miss").Inc()
	}
}

// ObserveMutation records an insert or remove and the resulting record count.
func (m *Metrics) ObserveMutation(op string, applied bool, records int) {
	if m == nil {
		return
	}
	outcome := "ignored"
	if applied {
		outcome = "applied"
	}
	m.Mutations.WithLabelValues(op, outcome).Inc()
	m.Records.Set(float64(records))
}

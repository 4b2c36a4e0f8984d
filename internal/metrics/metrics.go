package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters. A private registry keeps repeated
// construction (tests, reruns) free of duplicate-registration panics.
type Metrics struct {
	reg *prometheus.Registry

	FetchAttempts      *prometheus.CounterVec // attempts by dataset and outcome
	TokenRenewals      *prometheus.CounterVec // renewal attempts by outcome
	RecordsPartitioned *prometheus.CounterVec
	RecordsSkipped     *prometheus.CounterVec
	FilesWritten       *prometheus.CounterVec // files by dataset and kind
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	m.FetchAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_ingester",
		Name:      "fetch_attempts_total",
		Help:      "Dataset fetch attempts by outcome",
	}, []string{"dataset", "outcome"})
	m.TokenRenewals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_ingester",
		Name:      "token_renewals_total",
		Help:      "Automatic token acquisition attempts by outcome",
	}, []string{"outcome"})
	m.RecordsPartitioned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_ingester",
		Name:      "records_partitioned_total",
		Help:      "Records placed into day buckets",
	}, []string{"dataset"})
	m.RecordsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_ingester",
		Name:      "records_skipped_total",
		Help:      "Records dropped during day partitioning (missing or empty datum)",
	}, []string{"dataset"})
	m.FilesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traffic_ingester",
		Name:      "files_written_total",
		Help:      "Files persisted by kind (full, day, raw, unexpected)",
	}, []string{"dataset", "kind"})

	m.reg.MustRegister(
		m.FetchAttempts, m.TokenRenewals,
		m.RecordsPartitioned, m.RecordsSkipped, m.FilesWritten,
	)
	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Package metrics exposes Prometheus metrics of rir2cidr runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paepcke.de/rir2cidr/delegation"
)

const namespace = "rir2cidr"

// Metrics holds all collectors on a private registry.
type Metrics struct {
	reg         *prometheus.Registry
	records     prometheus.Counter
	rejected    *prometheus.CounterVec
	blocks      *prometheus.GaugeVec
	fetches     *prometheus.CounterVec
	lastSuccess prometheus.Gauge
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Delegation records interpreted.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Delegation records rejected, by reason.",
		}, []string{"reason"}),
		blocks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blocks",
			Help:      "Blocks of the last run by family and stage (raw|aggregated).",
		}, []string{"family", "stage"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Source preparations by source and result status.",
		}, []string{"source", "status"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by result (ok|error).",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full run.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
	m.reg.MustRegister(m.records, m.rejected, m.blocks, m.fetches, m.lastSuccess, m.runs, m.duration)
	for _, r := range delegation.Reasons {
		m.rejected.WithLabelValues(r.String())
	}
	return m
}

// RegisterRuntime adds the go and process collectors, for long running processes.
// Registering twice is a no-op.
func (m *Metrics) RegisterRuntime() {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		_ = m.reg.Register(c)
	}
}

// ObserveFetch implements rirfetch.Observer.
func (m *Metrics) ObserveFetch(source, status string) {
	m.fetches.WithLabelValues(source, status).Inc()
}

func (m *Metrics) AddRecords(n uint64) { m.records.Add(float64(n)) }

func (m *Metrics) AddRejected(reason delegation.Reason, n uint64) {
	if n == 0 {
		return
	}
	m.rejected.WithLabelValues(reason.String()).Add(float64(n))
}

// SetBlocks records the block count of family at stage.
func (m *Metrics) SetBlocks(family, stage string, n int) {
	m.blocks.WithLabelValues(family, stage).Set(float64(n))
}

// ObserveRun records a finished run; only successful runs move the
// last success timestamp.
func (m *Metrics) ObserveRun(d time.Duration, err error) {
	m.duration.Observe(d.Seconds())
	if err != nil {
		m.runs.WithLabelValues("error").Inc()
		return
	}
	m.runs.WithLabelValues("ok").Inc()
	m.lastSuccess.SetToCurrentTime()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// WriteTextfile writes all metrics in node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

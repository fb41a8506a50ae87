// Package metrics counts what a run did. A run is a batch job, so the
// counters are written once to a Prometheus textfile instead of being served.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the run counters on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	FoldersVisited prometheus.Counter
	FolderErrors   prometheus.Counter
	Videos         *prometheus.CounterVec
	LedgerAppends  *prometheus.CounterVec
	LastRun        prometheus.Gauge
	RunDuration    prometheus.Gauge
}

// New registers the counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		FoldersVisited: f.NewCounter(prometheus.CounterOpts{
			Namespace: "framegrab",
			Name:      "folders_visited_total",
			Help:      "Folders listed during the run",
		}),
		FolderErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "framegrab",
			Name:      "folder_errors_total",
			Help:      "Folders whose listing failed and whose subtree was skipped",
		}),
		Videos: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framegrab",
			Name:      "videos_total",
			Help:      "Videos by pipeline outcome",
		}, []string{"status"}),
		LedgerAppends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framegrab",
			Name:      "ledger_appends_total",
			Help:      "Ledger row appends by result",
		}, []string{"result"}),
		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "framegrab",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "framegrab",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) FolderVisited() {
	if m != nil {
		m.FoldersVisited.Inc()
	}
}

func (m *Metrics) FolderFailed() {
	if m != nil {
		m.FolderErrors.Inc()
	}
}

func (m *Metrics) VideoDone(status string) {
	if m != nil {
		m.Videos.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) LedgerAppend(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.LedgerAppends.WithLabelValues(result).Inc()
}

// RunFinished stamps the run end time and duration.
func (m *Metrics) RunFinished(started, finished time.Time) {
	if m == nil {
		return
	}
	m.LastRun.Set(float64(finished.Unix()))
	m.RunDuration.Set(finished.Sub(started).Seconds())
}

// WriteTextfile writes every metric in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

// Package metrics records run metrics for the load and writes them as a node-exporter textfile.
package metrics

import (
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qtlcandidateload"

// TextfileName is the metrics file written to the report directory.
const TextfileName = "qtlcandidateload.prom"

// Row counts recorded per run.
const (
	RowsDerived = "derived"
	RowsWritten = "written"
	RowsDeleted = "deleted"
	RowsOwned   = "owned"
)

type Metrics struct {
	registry *prometheus.Registry

	// Rows tracks row counts by kind
	Rows *prometheus.GaugeVec

	// StageDuration tracks how long each stage of the run took
	StageDuration *prometheus.GaugeVec

	// RunSuccess is 1 when the last run succeeded
	RunSuccess prometheus.Gauge

	// ExitCode is the process exit status of the last run
	ExitCode prometheus.Gauge

	// LastSuccess is the unix time of the last successful run. Only registered once a run
	// succeeds, so a failed run leaves it out of the textfile.
	LastSuccess prometheus.Gauge

	// CountMismatch is 1 when the post-load count differs from the records written
	CountMismatch prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Rows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "relationships",
				Help:      "Number of QTL candidate gene relationships by kind",
			},
			[]string{"kind"},
		),
		StageDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each stage of the last run in seconds",
			},
			[]string{"stage"},
		),
		RunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "Whether the last run succeeded",
		}),
		ExitCode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exit_code",
			Help:      "Process exit status of the last run",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
		CountMismatch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "count_mismatch",
			Help:      "Whether loaded rows differ from records written",
		}),
	}
}

func (m *Metrics) SetRows(kind string, n int64) {
	m.Rows.WithLabelValues(kind).Set(float64(n))
}

// ObserveStage returns a func that records the elapsed time of stage when called.
func (m *Metrics) ObserveStage(stage string) func() {
	start := time.Now()
	return func() {
		m.StageDuration.WithLabelValues(stage).Set(time.Since(start).Seconds())
	}
}

// Finish records the run outcome.
func (m *Metrics) Finish(exitCode int, at time.Time) {
	m.ExitCode.Set(float64(exitCode))
	if exitCode == 0 {
		m.RunSuccess.Set(1)
		m.LastSuccess.Set(float64(at.Unix()))
		_ = m.registry.Register(m.LastSuccess)
		return
	}
	m.RunSuccess.Set(0)
}

// WriteTextfile writes every metric to dir/qtlcandidateload.prom.
func (m *Metrics) WriteTextfile(dir string) (string, error) {
	path := filepath.Join(dir, TextfileName)
	return path, prometheus.WriteToTextfile(path, m.registry)
}

// Package metrics exposes Prometheus instruments for snapshot imports and restores.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricNamespace      = "followtrack"
	importsTotalName     = "imports_total"
	importsTotalHelp     = "Snapshot imports by outcome"
	restoresTotalName    = "restores_total"
	restoresTotalHelp    = "Backup restores by result"
	persistWarningsName  = "persist_warnings_total"
	persistWarningsHelp  = "History mutations whose durable write failed"
	historySnapshotsName = "history_snapshots"
	historySnapshotsHelp = "Snapshots currently held in history"
	labelOutcome         = "outcome"
	labelResult          = "result"
)

const (
	// ResultSuccess labels a completed operation.
	ResultSuccess = "success"
	// ResultFailure labels a rejected operation.
	ResultFailure = "failure"
)

// Collector records snapshot history activity on a Prometheus registry.
type Collector struct {
	imports          *prometheus.CounterVec
	restores         *prometheus.CounterVec
	persistWarnings  prometheus.Counter
	historySnapshots prometheus.Gauge
}

// NewCollector registers the instruments on registerer. A nil registerer leaves them
// unregistered, which keeps tests isolated.
func NewCollector(registerer prometheus.Registerer) *Collector {
	factory := promauto.With(registerer)
	return &Collector{
		imports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      importsTotalName,
			Help:      importsTotalHelp,
		}, []string{labelOutcome}),
		restores: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      restoresTotalName,
			Help:      restoresTotalHelp,
		}, []string{labelResult}),
		persistWarnings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      persistWarningsName,
			Help:      persistWarningsHelp,
		}),
		historySnapshots: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      historySnapshotsName,
			Help:      historySnapshotsHelp,
		}),
	}
}

// RecordImport counts one import with the given outcome label.
func (collector *Collector) RecordImport(outcome string) {
	collector.imports.WithLabelValues(outcome).Inc()
}

// RecordRestore counts one restore attempt.
func (collector *Collector) RecordRestore(result string) {
	collector.restores.WithLabelValues(result).Inc()
}

// RecordPersistWarning counts one failed durable write.
func (collector *Collector) RecordPersistWarning() {
	collector.persistWarnings.Inc()
}

// SetHistorySize publishes the current history length.
func (collector *Collector) SetHistorySize(snapshotCount int) {
	collector.historySnapshots.Set(float64(snapshotCount))
}

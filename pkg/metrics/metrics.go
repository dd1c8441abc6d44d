// Package metrics counts the work done by an indexing run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sourcedigger"

// Metrics holds the run counters on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ObjectsWritten  prometheus.Counter
	ObjectsSkipped  prometheus.Counter
	SymbolsWritten  *prometheus.CounterVec // by type
	TagFilesWritten prometheus.Counter
	DiffsWritten    prometheus.Counter
	DiffRecords     *prometheus.CounterVec // by action
	TagsSkipped     prometheus.Counter
	StageDuration   *prometheus.HistogramVec
}

// New registers the counters for project.
func New(project string) *Metrics {
	labels := prometheus.Labels{"project": project}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ObjectsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "objects_written_total",
			Help:        "Objects newly written to the object store.",
			ConstLabels: labels,
		}),
		ObjectsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "objects_skipped_total",
			Help:        "Objects already present in the store.",
			ConstLabels: labels,
		}),
		SymbolsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "symbols_written_total",
			Help:        "Symbols written to per-object tag files.",
			ConstLabels: labels,
		}, []string{"type"}),
		TagFilesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tag_files_written_total",
			Help:        "Per-object tag files written.",
			ConstLabels: labels,
		}),
		DiffsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "diffs_written_total",
			Help:        "Version diffs written.",
			ConstLabels: labels,
		}),
		DiffRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "diff_records_total",
			Help:        "Diff records emitted.",
			ConstLabels: labels,
		}, []string{"action"}),
		TagsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tags_skipped_total",
			Help:        "Tags whose revision could not be resolved.",
			ConstLabels: labels,
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "stage_duration_seconds",
			Help:        "Wall time of each pipeline stage.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		m.ObjectsWritten, m.ObjectsSkipped, m.SymbolsWritten, m.TagFilesWritten,
		m.DiffsWritten, m.DiffRecords, m.TagsSkipped, m.StageDuration,
	)
	return m
}

func (m *Metrics) ObjectWritten(created bool) {
	if m == nil {
		return
	}
	if created {
		m.ObjectsWritten.Inc()
	} else {
		m.ObjectsSkipped.Inc()
	}
}

func (m *Metrics) TagFileWritten(symbols map[string]int) {
	if m == nil {
		return
	}
	m.TagFilesWritten.Inc()
	for typ, n := range symbols {
		m.SymbolsWritten.WithLabelValues(typ).Add(float64(n))
	}
}

func (m *Metrics) DiffWritten(added, removed int) {
	if m == nil {
		return
	}
	m.DiffsWritten.Inc()
	m.DiffRecords.WithLabelValues("add").Add(float64(added))
	m.DiffRecords.WithLabelValues("remove").Add(float64(removed))
}

func (m *Metrics) TagSkipped() {
	if m == nil {
		return
	}
	m.TagsSkipped.Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// WriteFile writes the registry in the text exposition format, for the node
// exporter's textfile collector.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

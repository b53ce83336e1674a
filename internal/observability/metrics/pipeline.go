package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "birdnet_pipeline"

// PipelineMetrics contains the Prometheus collectors of the analysis pipeline.
type PipelineMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec
	DetectionsTotal   *prometheus.CounterVec
	QueueDepth        *prometheus.GaugeVec
	AudioLevel        prometheus.Gauge

	registry *prometheus.Registry
}

// NewPipelineMetrics creates the collectors and registers them with registry.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Pipeline operations partitioned by operation and status.",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of pipeline operations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"operation"},
	)

	m.ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Pipeline errors partitioned by operation and error category.",
		},
		[]string{"operation", "error_type"},
	)

	m.DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Reported detections partitioned by source and species.",
		},
		[]string{"source", "species"},
	)

	m.QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of items in a bounded pipeline queue.",
		},
		[]string{"queue"},
	)

	m.AudioLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_level_dbfs",
			Help:      "Most recent live input level in dBFS.",
		},
	)
}

// RecordOperation implements Recorder.
func (m *PipelineMetrics) RecordOperation(operation, status string) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *PipelineMetrics) RecordDuration(operation string, seconds float64) {
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *PipelineMetrics) RecordError(operation, errorType string) {
	m.ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordDetection implements Recorder.
func (m *PipelineMetrics) RecordDetection(source, species string) {
	m.DetectionsTotal.WithLabelValues(source, species).Inc()
}

// SetQueueDepth implements Recorder.
func (m *PipelineMetrics) SetQueueDepth(queue string, depth int) {
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// SetAudioLevel implements Recorder.
func (m *PipelineMetrics) SetAudioLevel(db float64) {
	m.AudioLevel.Set(db)
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.OperationsTotal.Describe(ch)
	m.OperationDuration.Describe(ch)
	m.ErrorsTotal.Describe(ch)
	m.DetectionsTotal.Describe(ch)
	m.QueueDepth.Describe(ch)
	ch <- m.AudioLevel.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.OperationsTotal.Collect(ch)
	m.OperationDuration.Collect(ch)
	m.ErrorsTotal.Collect(ch)
	m.DetectionsTotal.Collect(ch)
	m.QueueDepth.Collect(ch)
	ch <- m.AudioLevel
}

var _ Recorder = (*PipelineMetrics)(nil)

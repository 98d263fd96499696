// Package metrics exposes Prometheus metrics for the processing and
// restoration engines: a promauto factory bound to a registry, one
// struct field per metric.
package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var defaultRegistry = prometheus.DefaultRegisterer

// Config holds metrics configuration.
type Config struct {
	EnableAlgorithmLabel bool
}

// Metrics holds every engine-scoped metric.
type Metrics struct {
	config              Config
	runsTotal           *prometheus.CounterVec
	runDuration         *prometheus.HistogramVec
	runErrors           *prometheus.CounterVec
	chunksProcessed     *prometheus.CounterVec
	bytesProcessed      *prometheus.CounterVec
	stageDuration       *prometheus.HistogramVec
	stageErrors         *prometheus.CounterVec
	compressionRatio    *prometheus.HistogramVec
	workerPoolSize      prometheus.Gauge
	resourcePermitsUsed *prometheus.GaugeVec
	goroutines          prometheus.Gauge
	memoryAllocBytes    prometheus.Gauge
}

// NewMetrics creates a metrics instance registered against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(Config{EnableAlgorithmLabel: true})
}

func NewMetricsWithConfig(cfg Config) *Metrics {
	return newMetricsWithRegistry(defaultRegistry, cfg)
}

// NewMetricsWithRegistry binds to a custom registry, for test isolation.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetricsWithRegistry(reg, Config{EnableAlgorithmLabel: true})
}

func newMetricsWithRegistry(reg prometheus.Registerer, cfg Config) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		config: cfg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "adapipe_runs_total", Help: "Total number of process/restore runs"},
			[]string{"kind", "outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{Name: "adapipe_run_duration_seconds", Help: "Run duration in seconds", Buckets: prometheus.DefBuckets},
			[]string{"kind"},
		),
		runErrors: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "adapipe_run_errors_total", Help: "Total run errors by kind"},
			[]string{"kind", "error_kind"},
		),
		chunksProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "adapipe_chunks_processed_total", Help: "Total chunks processed"},
			[]string{"kind"},
		),
		bytesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "adapipe_bytes_processed_total", Help: "Total bytes processed"},
			[]string{"kind", "direction"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adapipe_stage_duration_seconds",
				Help:    "Per-stage execution duration in seconds",
				Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"stage_kind", "algorithm"},
		),
		stageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "adapipe_stage_errors_total", Help: "Total stage execution errors"},
			[]string{"stage_kind", "algorithm", "error_kind"},
		),
		compressionRatio: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adapipe_compression_ratio",
				Help:    "output_size / input_size for compression stages",
				Buckets: []float64{0.1, 0.25, 0.4, 0.55, 0.7, 0.85, 1.0, 1.2},
			},
			[]string{"algorithm"},
		),
		workerPoolSize: factory.NewGauge(
			prometheus.GaugeOpts{Name: "adapipe_worker_pool_size", Help: "Adaptive worker count of the current run"},
		),
		resourcePermitsUsed: factory.NewGaugeVec(
			prometheus.GaugeOpts{Name: "adapipe_resource_permits_in_use", Help: "Permits currently checked out from the resource manager"},
			[]string{"pool"},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{Name: "adapipe_goroutines", Help: "Number of goroutines"},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{Name: "adapipe_memory_alloc_bytes", Help: "Bytes allocated and not yet freed"},
		),
	}
}

// RecordRun records a completed process/restore run.
func (m *Metrics) RecordRun(kind string, outcome string, elapsed time.Duration) {
	m.runsTotal.WithLabelValues(kind, outcome).Inc()
	m.runDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordRunError increments the run error counter for kind/errorKind.
func (m *Metrics) RecordRunError(kind, errorKind string) {
	m.runErrors.WithLabelValues(kind, errorKind).Inc()
}

// RecordChunk records one completed chunk's size for a run kind.
func (m *Metrics) RecordChunk(kind, direction string, bytes int) {
	m.chunksProcessed.WithLabelValues(kind).Inc()
	m.bytesProcessed.WithLabelValues(kind, direction).Add(float64(bytes))
}

// RecordStage records one stage execution's duration and, on failure,
// its error kind.
func (m *Metrics) RecordStage(stageKind, algorithm string, elapsed time.Duration, errKind string) {
	m.stageDuration.WithLabelValues(stageKind, algorithm).Observe(elapsed.Seconds())
	if errKind != "" {
		m.stageErrors.WithLabelValues(stageKind, algorithm, errKind).Inc()
	}
}

// RecordCompressionRatio records output/input size ratio for a compression algorithm.
func (m *Metrics) RecordCompressionRatio(algorithm string, inputLen, outputLen int) {
	if inputLen == 0 {
		return
	}
	m.compressionRatio.WithLabelValues(algorithm).Observe(float64(outputLen) / float64(inputLen))
}

// SetWorkerPoolSize records the adaptive worker count picked for the
// current run.
func (m *Metrics) SetWorkerPoolSize(n int) {
	m.workerPoolSize.Set(float64(n))
}

// SetPermitsInUse records the current occupancy of a resource pool
// ("cpu" or "io").
func (m *Metrics) SetPermitsInUse(pool string, n int) {
	m.resourcePermitsUsed.WithLabelValues(pool).Set(float64(n))
}

// CollectRuntimeStats samples goroutine count and heap allocation into
// the corresponding gauges, intended to be called periodically by the
// serve-mode health server.
func (m *Metrics) CollectRuntimeStats() {
	m.goroutines.Set(float64(runtime.NumGoroutine()))
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
}

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики исполнителя.
//
// Все методы безопасны на nil-получателе: компоненты без метрик
// получают nil и не проверяют его.
type Metrics struct {
	bundlesProcessed *prometheus.CounterVec
	bundlesFailed    *prometheus.CounterVec
	lanesCreated     prometheus.Counter
	lanesActive      prometheus.Gauge
	workersActive    prometheus.Gauge
	checkpoints      *prometheus.CounterVec
	completions      *prometheus.CounterVec
	outputs          *prometheus.CounterVec
	pipelines        *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// Для глобального реестра передайте prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		bundlesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flume_bundles_processed_total",
			Help: "Bundles evaluated successfully, per stage",
		}, []string{"stage"}),
		bundlesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flume_bundles_failed_total",
			Help: "Bundles whose evaluation failed, per stage",
		}, []string{"stage"}),
		lanesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "flume_serial_lanes_created_total",
			Help: "Serial lanes created by the lane cache",
		}),
		lanesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flume_serial_lanes_active",
			Help: "Serial lanes currently cached",
		}),
		workersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flume_pool_workers_active",
			Help: "Pool workers currently running a task",
		}),
		checkpoints: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flume_sdf_checkpoints_total",
			Help: "Work item attempts that left a residual, per stage",
		}, []string{"stage"}),
		completions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flume_sdf_completions_total",
			Help: "Work items that finished all their work, per stage",
		}, []string{"stage"}),
		outputs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flume_outputs_total",
			Help: "Elements emitted by stage evaluators, per stage",
		}, []string{"stage"}),
		pipelines: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flume_pipelines_finished_total",
			Help: "Pipelines that reached a terminal state, per state",
		}, []string{"state"}),
	}
}

// BundleProcessed учитывает успешно обработанный bundle.
func (m *Metrics) BundleProcessed(stage string) {
	if m == nil {
		return
	}
	m.bundlesProcessed.WithLabelValues(stage).Inc()
}

// BundleFailed учитывает упавший bundle.
func (m *Metrics) BundleFailed(stage string) {
	if m == nil {
		return
	}
	m.bundlesFailed.WithLabelValues(stage).Inc()
}

// LaneCreated учитывает новый serial lane.
func (m *Metrics) LaneCreated() {
	if m == nil {
		return
	}
	m.lanesCreated.Inc()
	m.lanesActive.Inc()
}

// LaneEvicted учитывает вытесненный serial lane.
func (m *Metrics) LaneEvicted() {
	if m == nil {
		return
	}
	m.lanesActive.Dec()
}

// WorkerStarted и WorkerFinished отслеживают занятые воркеры пула.
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.workersActive.Inc()
}

func (m *Metrics) WorkerFinished() {
	if m == nil {
		return
	}
	m.workersActive.Dec()
}

// Checkpoint учитывает попытку, оставившую остаток.
func (m *Metrics) Checkpoint(stage string) {
	if m == nil {
		return
	}
	m.checkpoints.WithLabelValues(stage).Inc()
}

// Completion учитывает завершённый work item.
func (m *Metrics) Completion(stage string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(stage).Inc()
}

// Outputs учитывает n выданных элементов.
func (m *Metrics) Outputs(stage string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.outputs.WithLabelValues(stage).Add(float64(n))
}

// PipelineFinished учитывает терминальное состояние pipeline.
func (m *Metrics) PipelineFinished(state string) {
	if m == nil {
		return
	}
	m.pipelines.WithLabelValues(state).Inc()
}

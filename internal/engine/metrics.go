package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла оценка
	AssessmentDuration *prometheus.HistogramVec

	// Traffic: успешные оценки по уровню риска
	AssessmentsTotal *prometheus.CounterVec

	// Errors: неуспешные попытки (ComputationError)
	ErrorTotal *prometheus.CounterVec

	// Saturation: сколько оценок выполняется прямо сейчас
	ActiveAssessments *prometheus.GaugeVec

	// Health: статус агента (0=offline, 1=healthy, 2=warning, 3=critical)
	AgentStatus *prometheus.GaugeVec

	// Синтетическая нагрузка из ResourceSampler
	CPUUsage    *prometheus.GaugeVec
	MemoryUsage *prometheus.GaugeVec

	// Export: заполненность буфера выгрузки (backpressure)
	ExportBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		AssessmentDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_assessment_duration_seconds",
			Help:    "Histogram of risk assessment latencies.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"agent_id", "status"}),

		AssessmentsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Total number of completed risk assessments by level.",
		}, []string{"agent_id", "level"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "risk_assessment_errors_total",
			Help: "Total number of failed risk assessments.",
		}, []string{"agent_id"}),

		ActiveAssessments: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_agent_active_assessments",
			Help: "Number of in-flight assessments per agent.",
		}, []string{"agent_id"}),

		AgentStatus: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_agent_status",
			Help: "Current agent status (0=offline, 1=healthy, 2=warning, 3=critical).",
		}, []string{"agent_id"}),

		CPUUsage: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_agent_cpu_usage_percent",
			Help: "Sampled CPU usage of the agent.",
		}, []string{"agent_id"}),

		MemoryUsage: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_agent_memory_usage_percent",
			Help: "Sampled memory usage of the agent.",
		}, []string{"agent_id"}),

		ExportBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "risk_export_buffer_utilization",
			Help: "Current number of records in the export buffer.",
		}),
	}
}

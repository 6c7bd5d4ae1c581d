package domain

import "time"

type AgentStatus string

const (
	StatusHealthy  AgentStatus = "healthy"  // Все показатели в норме
	StatusWarning  AgentStatus = "warning"  // Медленные ответы или перегрузка CPU
	StatusCritical AgentStatus = "critical" // Сглаженный error rate выше порога
	StatusOffline  AgentStatus = "offline"  // Агент не запущен или остановлен
)

// Gauge — числовое представление статуса для Prometheus.
func (s AgentStatus) Gauge() float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusWarning:
		return 2
	case StatusCritical:
		return 3
	default:
		return 0
	}
}

// AgentHealthMetrics — операционное состояние одного скорингового агента.
// Наружу отдается только копия (snapshot), сам экземпляр принадлежит агенту.
type AgentHealthMetrics struct {
	AgentID string      `json:"agent_id"`
	Status  AgentStatus `json:"status"`

	Uptime       float64 `json:"uptime"`        // секунды с момента Start
	ResponseTime float64 `json:"response_time"` // секунды, EMA
	ErrorRate    float64 `json:"error_rate"`    // 0..1, EMA
	Throughput   float64 `json:"throughput"`    // оценок в секунду

	// Синтетические показатели, а не реальная телеметрия хоста
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`

	LastHeartbeat     time.Time `json:"last_heartbeat"`
	ActiveAssessments int       `json:"active_assessments"`
}

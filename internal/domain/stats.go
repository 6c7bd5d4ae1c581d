package domain

// SystemHealth — агрегированная сводка по всем агентам системы.
type SystemHealth struct {
	TotalAssessments    int64   `json:"total_assessments"`
	AverageResponseTime float64 `json:"average_response_time"` // только по активным агентам
	SystemUptime        float64 `json:"system_uptime"`
	ActiveAgents        int     `json:"active_agents"`
	TotalAgents         int     `json:"total_agents"`
}

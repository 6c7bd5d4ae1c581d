package domain

import (
	"maps"
	"time"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Ключи факторов риска. Набор фиксирован.
const (
	FactorFinancialExposure    = "financial_exposure"
	FactorCreditHistory        = "credit_history"
	FactorMarketVolatility     = "market_volatility"
	FactorRegulatoryCompliance = "regulatory_compliance"
	FactorOperationalRisk      = "operational_risk"
)

// RiskAssessment — неизменяемый результат одной оценки.
// Создается внутри AssessRisk и больше никогда не модифицируется.
type RiskAssessment struct {
	ID         string             `json:"id"`
	TraceID    string             `json:"trace_id,omitempty"`
	EntityID   string             `json:"entity_id"`
	RiskScore  float64            `json:"risk_score"`
	RiskLevel  RiskLevel          `json:"risk_level"`
	Factors    map[string]float64 `json:"factors"`
	Confidence float64            `json:"confidence"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Clone возвращает копию с отдельной картой факторов,
// чтобы вызывающий код не мог изменить историю агента.
func (a RiskAssessment) Clone() RiskAssessment {
	a.Factors = maps.Clone(a.Factors)
	return a
}

// AssessmentRecord — формат выгрузки для внешних потребителей (экспорт, аналитика).
type AssessmentRecord struct {
	ID         string             `json:"id"`
	TraceID    string             `json:"trace_id,omitempty"`
	AgentID    string             `json:"agent_id"`
	EntityID   string             `json:"entity_id"`
	RiskScore  float64            `json:"risk_score"`
	RiskLevel  string             `json:"risk_level"` // lowercase
	Confidence float64            `json:"confidence"`
	Timestamp  string             `json:"timestamp"` // ISO-8601
	Factors    map[string]float64 `json:"factors"`
}

func (a RiskAssessment) ToRecord(agentID string) AssessmentRecord {
	return AssessmentRecord{
		ID:         a.ID,
		TraceID:    a.TraceID,
		AgentID:    agentID,
		EntityID:   a.EntityID,
		RiskScore:  a.RiskScore,
		RiskLevel:  string(a.RiskLevel),
		Confidence: a.Confidence,
		Timestamp:  a.Timestamp.Format(time.RFC3339Nano),
		Factors:    maps.Clone(a.Factors),
	}
}

package risk

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
)

// Значения по умолчанию для отсутствующих полей и нормирующие константы.
const (
	DefaultCreditScore      = 750
	DefaultMarketVolatility = 0.2
	DefaultComplianceScore  = 0.9

	exposureScale = 1_000_000.0
	creditSpan    = 300.0
	incidentScale = 10.0

	UnknownEntityID = "unknown"
)

// factorOrder задает порядок суммирования. Менять нельзя: от него зависит
// побитовый результат взвешенной суммы.
var factorOrder = []string{
	domain.FactorFinancialExposure,
	domain.FactorCreditHistory,
	domain.FactorMarketVolatility,
	domain.FactorRegulatoryCompliance,
	domain.FactorOperationalRisk,
}

// FactorNames возвращает ключи факторов в каноническом порядке.
func FactorNames() []string {
	return slices.Clone(factorOrder)
}

type Weights map[string]float64

// DefaultWeights возвращает свежую копию фиксированной таблицы весов (сумма = 1.0).
func DefaultWeights() Weights {
	return Weights{
		domain.FactorFinancialExposure:    0.30,
		domain.FactorCreditHistory:        0.25,
		domain.FactorMarketVolatility:     0.20,
		domain.FactorRegulatoryCompliance: 0.15,
		domain.FactorOperationalRisk:      0.10,
	}
}

// Sum — сумма весов в каноническом порядке.
func (w Weights) Sum() float64 {
	var s float64
	for _, name := range factorOrder {
		s += w[name]
	}
	return s
}

// ComputeFactors переводит входные данные в нормированные факторы.
//
// Квирки сохранены намеренно: credit_history больше 1 при кредитном рейтинге ниже 450,
// regulatory_compliance отрицателен при compliance_score выше 1.
func ComputeFactors(in domain.EntityInput) (map[string]float64, error) {
	exposure := 0.0
	if in.FinancialExposure != nil {
		exposure = *in.FinancialExposure
	}
	creditScore := DefaultCreditScore
	if in.CreditScore != nil {
		creditScore = *in.CreditScore
	}
	volatility := DefaultMarketVolatility
	if in.MarketVolatility != nil {
		volatility = *in.MarketVolatility
	}
	compliance := DefaultComplianceScore
	if in.ComplianceScore != nil {
		compliance = *in.ComplianceScore
	}
	incidents := 0
	if in.OperationalIncidents != nil {
		incidents = *in.OperationalIncidents
	}

	for field, v := range map[string]float64{
		"financial_exposure": exposure,
		"market_volatility":  volatility,
		"compliance_score":   compliance,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ComputationError{Field: field, Cause: fmt.Errorf("non-finite value %v", v)}
		}
	}

	return map[string]float64{
		domain.FactorFinancialExposure:    math.Min(exposure/exposureScale, 1.0),
		domain.FactorCreditHistory:        math.Max(0, float64(DefaultCreditScore-creditScore)/creditSpan),
		domain.FactorMarketVolatility:     math.Min(volatility, 1.0),
		domain.FactorRegulatoryCompliance: 1.0 - compliance,
		domain.FactorOperationalRisk:      math.Min(float64(incidents)/incidentScale, 1.0),
	}, nil
}

// ComputeRiskScore — взвешенная сумма факторов. Отсутствующий фактор считается нулем.
func ComputeRiskScore(factors map[string]float64, weights Weights) float64 {
	var score float64
	for _, name := range factorOrder {
		score += factors[name] * weights[name]
	}
	return score
}

// Classify — ступенчатая функция: нижняя граница каждого диапазона включается в него.
func Classify(score float64) domain.RiskLevel {
	switch {
	case score < 0.25:
		return domain.RiskLow
	case score < 0.5:
		return domain.RiskMedium
	case score < 0.75:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}

// ComputeConfidence — доля переданных обязательных полей.
// operational_incidents в число обязательных не входит.
func ComputeConfidence(in domain.EntityInput) float64 {
	present := 0
	for _, ok := range []bool{
		in.EntityID != nil,
		in.FinancialExposure != nil,
		in.CreditScore != nil,
		in.MarketVolatility != nil,
		in.ComplianceScore != nil,
	} {
		if ok {
			present++
		}
	}
	return float64(present) / 5
}

// ResolveEntityID возвращает "unknown" для отсутствующего или пустого идентификатора.
// Это деградация ввода, а не ошибка.
func ResolveEntityID(in domain.EntityInput) string {
	if in.EntityID == nil || *in.EntityID == "" {
		return UnknownEntityID
	}
	return *in.EntityID
}

type Evaluation struct {
	EntityID   string
	Factors    map[string]float64
	Score      float64
	Level      domain.RiskLevel
	Confidence float64
}

// Model — чистая функция оценки с зафиксированными весами. Состояния нет,
// поэтому один экземпляр можно вызывать из любого числа горутин.
type Model struct {
	weights Weights
}

func NewModel(weights Weights) *Model {
	if weights == nil {
		weights = DefaultWeights()
	}
	return &Model{weights: maps.Clone(weights)}
}

func (m *Model) Weights() Weights {
	return maps.Clone(m.weights)
}

func (m *Model) Evaluate(in domain.EntityInput) (Evaluation, error) {
	factors, err := ComputeFactors(in)
	if err != nil {
		return Evaluation{}, err
	}

	score := ComputeRiskScore(factors, m.weights)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Evaluation{}, &ComputationError{Cause: errors.New("risk score is not finite")}
	}

	return Evaluation{
		EntityID:   ResolveEntityID(in),
		Factors:    factors,
		Score:      score,
		Level:      Classify(score),
		Confidence: ComputeConfidence(in),
	}, nil
}

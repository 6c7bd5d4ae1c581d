package domain

// EntityInput — входные данные оценки. Все поля опциональны:
// nil означает "поле не передано", и модель подставляет значение по умолчанию.
type EntityInput struct {
	EntityID             *string  `json:"entity_id,omitempty"`
	FinancialExposure    *float64 `json:"financial_exposure,omitempty"`
	CreditScore          *int     `json:"credit_score,omitempty"`
	MarketVolatility     *float64 `json:"market_volatility,omitempty"`
	ComplianceScore      *float64 `json:"compliance_score,omitempty"`
	OperationalIncidents *int     `json:"operational_incidents,omitempty"`
}

// Ptr — хелпер для сборки EntityInput в коде и тестах.
func Ptr[T any](v T) *T {
	return &v
}

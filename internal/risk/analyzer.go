package risk

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
)

// DecodeEntity разбирает произвольный JSON-payload клиента в EntityInput.
//
// Правила:
//   - числовое поле с нечисловым значением (строка, bool, null, объект) — ComputationError;
//   - credit_score и operational_incidents должны быть целыми;
//   - entity_id не строкой или пустой строкой — деградация: поле считается переданным
//     (для confidence), но в оценке будет "unknown";
//   - неизвестные ключи игнорируются.
func DecodeEntity(payload []byte) (domain.EntityInput, error) {
	var in domain.EntityInput

	// В JSON числа всегда парсятся в float64
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return in, &ComputationError{Cause: fmt.Errorf("decode payload: %w", err)}
	}
	if raw == nil {
		return in, &ComputationError{Cause: errors.New("payload must be a JSON object")}
	}

	if v, ok := raw["entity_id"]; ok {
		id, _ := v.(string)
		in.EntityID = &id
	}

	var err error
	if in.FinancialExposure, err = floatField(raw, "financial_exposure"); err != nil {
		return in, err
	}
	if in.CreditScore, err = intField(raw, "credit_score"); err != nil {
		return in, err
	}
	if in.MarketVolatility, err = floatField(raw, "market_volatility"); err != nil {
		return in, err
	}
	if in.ComplianceScore, err = floatField(raw, "compliance_score"); err != nil {
		return in, err
	}
	if in.OperationalIncidents, err = intField(raw, "operational_incidents"); err != nil {
		return in, err
	}

	return in, nil
}

func floatField(raw map[string]interface{}, key string) (*float64, error) {
	rawValue, ok := raw[key]
	if !ok {
		return nil, nil
	}
	val, ok := rawValue.(float64)
	if !ok {
		return nil, &ComputationError{Field: key, Cause: fmt.Errorf("expected number, got %T", rawValue)}
	}
	return &val, nil
}

func intField(raw map[string]interface{}, key string) (*int, error) {
	f, err := floatField(raw, key)
	if err != nil || f == nil {
		return nil, err
	}
	if *f != math.Trunc(*f) || *f < math.MinInt64 || *f >= math.MaxInt64 {
		return nil, &ComputationError{Field: key, Cause: fmt.Errorf("expected integer, got %v", *f)}
	}
	v := int(*f)
	return &v, nil
}

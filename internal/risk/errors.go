package risk

import "fmt"

// ComputationError — сбой при расчете факторов или итогового балла
// (нечисловой ввод, NaN/Inf). Для агента это неуспешная попытка: она учитывается в error_rate.
type ComputationError struct {
	Field string // пусто, если ошибка не привязана к конкретному полю
	Cause error
}

func (e *ComputationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("risk computation failed: %v", e.Cause)
	}
	return fmt.Sprintf("risk computation failed on %s: %v", e.Field, e.Cause)
}

func (e *ComputationError) Unwrap() error {
	return e.Cause
}

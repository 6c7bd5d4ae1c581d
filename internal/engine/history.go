package engine

import (
	"sync"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
)

// History — журнал оценок агента, только на добавление.
// Порядок вставки совпадает с хронологическим. Отдельный RWMutex,
// чтобы чтение истории не конкурировало с обновлением health-метрик.
type History struct {
	mu    sync.RWMutex
	items []domain.RiskAssessment
	limit int   // 0 — без ограничения
	total int64 // сколько оценок записано за все время, включая вытесненные
}

func NewHistory(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{limit: limit}
}

// Append добавляет оценку и возвращает общее число записанных оценок.
func (h *History) Append(a domain.RiskAssessment) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.limit > 0 && len(h.items) >= h.limit {
		h.items = h.items[1:]
	}
	h.items = append(h.items, a)
	h.total++
	return h.total
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

func (h *History) Total() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Recent возвращает последние limit оценок в хронологическом порядке (limit <= 0 — все).
// Результат — независимая копия.
func (h *History) Recent(limit int) []domain.RiskAssessment {
	h.mu.RLock()
	defer h.mu.RUnlock()

	items := h.items
	if limit > 0 && limit < len(items) {
		items = items[len(items)-limit:]
	}

	out := make([]domain.RiskAssessment, len(items))
	for i, a := range items {
		out[i] = a.Clone()
	}
	return out
}

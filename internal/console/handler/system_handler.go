package handler

import (
	"net/http"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
)

// SystemService Описываем, что нам нужно от системы
type SystemService interface {
	SystemHealth() domain.SystemHealth
}

type SystemHandler struct {
	service SystemService
}

func NewSystemHandler(s SystemService) *SystemHandler {
	return &SystemHandler{service: s}
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.SystemHealth())
}

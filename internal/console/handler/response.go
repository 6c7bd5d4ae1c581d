package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/risk-scoring-agents/internal/engine"
	"github.com/xela07ax/risk-scoring-agents/internal/risk"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError разделяет типы ошибок на 404 / 409 / 422 / 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var cErr *risk.ComputationError
	switch {
	case errors.Is(err, engine.ErrAgentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrDuplicateAgent), errors.Is(err, engine.ErrAgentRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrInvalidAgentID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &cErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: cErr.Error(), Field: cErr.Field})
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
	"github.com/xela07ax/risk-scoring-agents/internal/engine"
)

const maxPayloadBytes = 1 << 20

// AgentRegistry — то, что обработчику нужно от реестра агентов.
type AgentRegistry interface {
	AddAgent(id string) (*engine.ScoringAgent, error)
	Agent(id string) (*engine.ScoringAgent, error)
	AllAgentHealth() []domain.AgentHealthMetrics
	StartAgent(ctx context.Context, id string) error
	StopAgent(id string) error
}

// RateLimit — лимит оценок на одного агента. RPS = 0 отключает лимит.
type RateLimit struct {
	RPS   float64
	Burst int
}

type AgentHandler struct {
	registry AgentRegistry
	// baseCtx — контекст жизни сервиса: мониторы, запущенные через API,
	// не должны умирать вместе с HTTP-запросом
	baseCtx context.Context
	limit   RateLimit
	logger  *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewAgentHandler(baseCtx context.Context, registry AgentRegistry, limit RateLimit, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{
		registry: registry,
		baseCtx:  baseCtx,
		limit:    limit,
		logger:   logger.Named("agent-api"),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Routes Маршруты для Chi
func (h *AgentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/start", h.Start)
		r.Post("/stop", h.Stop)
		r.Post("/assess", h.Assess)
		r.Get("/history", h.History)
		r.Get("/export", h.Export)
	})
	return r
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.AllAgentHealth())
}

type createAgentRequest struct {
	ID string `json:"id"`
}

func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agent, err := h.registry.AddAgent(req.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent.HealthMetrics())
}

func (h *AgentHandler) Health(w http.ResponseWriter, r *http.Request) {
	agent, err := h.registry.Agent(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent.HealthMetrics())
}

func (h *AgentHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.registry.StartAgent(h.baseCtx, id); err != nil {
		writeDomainError(w, err)
		return
	}
	h.logger.Info("agent started via api", zap.String("agent_id", id))
	h.Health(w, r)
}

func (h *AgentHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.registry.StopAgent(id); err != nil {
		writeDomainError(w, err)
		return
	}
	h.logger.Info("agent stopped via api", zap.String("agent_id", id))
	h.Health(w, r)
}

func (h *AgentHandler) Assess(w http.ResponseWriter, r *http.Request) {
	agent, err := h.registry.Agent(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !h.allow(agent.ID()) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	assessment, err := agent.AssessPayload(r.Context(), payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (h *AgentHandler) History(w http.ResponseWriter, r *http.Request) {
	agent, limit, ok := h.agentWithLimit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, agent.History(limit))
}

// Export отдает историю в формате выгрузки (agent_id, уровень в нижнем регистре, ISO-8601).
func (h *AgentHandler) Export(w http.ResponseWriter, r *http.Request) {
	agent, limit, ok := h.agentWithLimit(w, r)
	if !ok {
		return
	}

	history := agent.History(limit)
	records := make([]domain.AssessmentRecord, 0, len(history))
	for _, a := range history {
		records = append(records, a.ToRecord(agent.ID()))
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *AgentHandler) agentWithLimit(w http.ResponseWriter, r *http.Request) (*engine.ScoringAgent, int, bool) {
	agent, err := h.registry.Agent(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return nil, 0, false
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return nil, 0, false
		}
	}
	return agent, limit, true
}

// allow — token bucket на агента. Лимитеры создаются лениво.
func (h *AgentHandler) allow(agentID string) bool {
	if h.limit.RPS <= 0 {
		return true
	}

	h.mu.Lock()
	l, ok := h.limiters[agentID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(h.limit.RPS), max(h.limit.Burst, 1))
		h.limiters[agentID] = l
	}
	h.mu.Unlock()

	return l.Allow()
}

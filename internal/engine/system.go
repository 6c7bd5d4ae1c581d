package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
)

// System — реестр агентов и агрегированные показатели.
// Сама система агентам статусы не меняет, только вызывает Start/Stop.
type System struct {
	mu     sync.RWMutex
	agents map[string]*ScoringAgent
	order  []string

	cfg       AgentConfig
	metrics   *Metrics
	recorder  Recorder
	logger    *zap.Logger
	startedAt time.Time
}

func NewSystem(cfg AgentConfig, metrics *Metrics, recorder Recorder, logger *zap.Logger) *System {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &System{
		agents:    make(map[string]*ScoringAgent),
		cfg:       cfg,
		metrics:   metrics,
		recorder:  recorder,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// AddAgent регистрирует нового агента в состоянии OFFLINE.
// Существующий агент с тем же id не перезаписывается.
func (s *System) AddAgent(id string) (*ScoringAgent, error) {
	if id == "" {
		return nil, ErrInvalidAgentID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, id)
	}

	agent := NewScoringAgent(id, s.cfg, s.metrics, s.recorder, s.logger)
	s.agents[id] = agent
	s.order = append(s.order, id)

	s.logger.Info("agent registered", zap.String("agent_id", id))
	return agent, nil
}

func (s *System) Agent(id string) (*ScoringAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return agent, nil
}

// Agents возвращает агентов в порядке регистрации.
func (s *System) Agents() []*ScoringAgent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ScoringAgent, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.agents[id])
	}
	return out
}

// StartAll запускает всех неработающих агентов параллельно.
func (s *System) StartAll(ctx context.Context) error {
	var g errgroup.Group
	for _, agent := range s.Agents() {
		agent := agent
		if agent.Running() {
			continue
		}
		g.Go(func() error {
			if err := agent.Start(ctx); err != nil && !errors.Is(err, ErrAgentRunning) {
				return fmt.Errorf("start agent %s: %w", agent.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// StopAll останавливает всех агентов и ждет выхода их мониторов.
func (s *System) StopAll() {
	var g errgroup.Group
	for _, agent := range s.Agents() {
		agent := agent
		g.Go(func() error {
			agent.Stop()
			return nil
		})
	}
	_ = g.Wait()
}

func (s *System) StartAgent(ctx context.Context, id string) error {
	agent, err := s.Agent(id)
	if err != nil {
		return err
	}
	return agent.Start(ctx)
}

func (s *System) StopAgent(id string) error {
	agent, err := s.Agent(id)
	if err != nil {
		return err
	}
	agent.Stop()
	return nil
}

// SystemHealth агрегирует снимки всех агентов.
// Среднее время ответа считается только по активным агентам (статус не OFFLINE).
func (s *System) SystemHealth() domain.SystemHealth {
	agents := s.Agents()

	var (
		total       int64
		active      int
		responseSum float64
	)
	for _, agent := range agents {
		total += agent.TotalAssessments()

		h := agent.HealthMetrics()
		if h.Status != domain.StatusOffline {
			active++
			responseSum += h.ResponseTime
		}
	}

	var avg float64
	if active > 0 {
		avg = responseSum / float64(active)
	}

	return domain.SystemHealth{
		TotalAssessments:    total,
		AverageResponseTime: avg,
		SystemUptime:        time.Since(s.startedAt).Seconds(),
		ActiveAgents:        active,
		TotalAgents:         len(agents),
	}
}

// AllAgentHealth — снимки всех агентов в порядке регистрации.
func (s *System) AllAgentHealth() []domain.AgentHealthMetrics {
	agents := s.Agents()
	out := make([]domain.AgentHealthMetrics, 0, len(agents))
	for _, agent := range agents {
		out = append(out, agent.HealthMetrics())
	}
	return out
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
	"github.com/xela07ax/risk-scoring-agents/internal/risk"
)

const (
	DefaultMonitorInterval = 5 * time.Second
	DefaultMonitorBackoff  = 1 * time.Second

	// Пороги перехода статусов
	criticalErrorRate    = 0.1
	warningResponseTime  = 5.0 // секунды
	warningCPUPercentage = 90.0

	responseTimeAlpha = 0.1
	errorDecayFailure = 0.9
	errorDecaySuccess = 0.95
)

// Recorder принимает запись каждой успешной оценки (экспорт во внешние системы).
// Реализация не должна блокировать вызывающего.
type Recorder interface {
	Record(rec domain.AssessmentRecord)
}

type AgentConfig struct {
	MonitorInterval time.Duration
	MonitorBackoff  time.Duration
	HistoryLimit    int
	Weights         risk.Weights
	Sampler         ResourceSampler
}

// ScoringAgent — независимый исполнитель оценок со своей историей и health-метриками.
type ScoringAgent struct {
	id       string
	model    *risk.Model
	history  *History
	sampler  ResourceSampler
	recorder Recorder
	metrics  *Metrics
	logger   *zap.Logger

	interval time.Duration
	backoff  time.Duration

	// mu защищает health, running, startedAt и generation
	mu         sync.Mutex
	health     domain.AgentHealthMetrics
	running    bool
	startedAt  time.Time
	generation uint64

	// lifecycle сериализует Start/Stop
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewScoringAgent(id string, cfg AgentConfig, metrics *Metrics, recorder Recorder, logger *zap.Logger) *ScoringAgent {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = DefaultMonitorInterval
	}
	if cfg.MonitorBackoff <= 0 {
		cfg.MonitorBackoff = DefaultMonitorBackoff
	}
	if cfg.Sampler == nil {
		cfg.Sampler = SyntheticSampler{}
	}

	a := &ScoringAgent{
		id:       id,
		model:    risk.NewModel(cfg.Weights),
		history:  NewHistory(cfg.HistoryLimit),
		sampler:  cfg.Sampler,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger.Named("agent").With(zap.String("agent_id", id)),
		interval: cfg.MonitorInterval,
		backoff:  cfg.MonitorBackoff,
		health: domain.AgentHealthMetrics{
			AgentID:       id,
			Status:        domain.StatusOffline,
			LastHeartbeat: time.Now(),
		},
	}
	a.metrics.AgentStatus.WithLabelValues(id).Set(domain.StatusOffline.Gauge())
	return a
}

func (a *ScoringAgent) ID() string { return a.id }

func (a *ScoringAgent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Start переводит агента в HEALTHY и запускает health-монитор.
// Монитор живет до Stop или до отмены ctx.
func (a *ScoringAgent) Start(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAgentRunning
	}
	a.mu.Unlock()

	// Монитор мог завершиться сам по отмене родительского контекста
	a.waitMonitor()

	now := time.Now()
	a.mu.Lock()
	a.running = true
	a.startedAt = now
	a.generation++
	gen := a.generation
	a.health.Status = domain.StatusHealthy
	a.health.Uptime = 0
	a.health.LastHeartbeat = now
	a.mu.Unlock()

	monitorCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.monitor(monitorCtx, gen, a.done)

	a.metrics.AgentStatus.WithLabelValues(a.id).Set(domain.StatusHealthy.Gauge())
	a.logger.Info("agent started")
	return nil
}

// Stop переводит агента в OFFLINE и дожидается выхода монитора.
// Повторный вызов ничего не делает.
func (a *ScoringAgent) Stop() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	wasRunning := a.running
	a.running = false
	a.health.Status = domain.StatusOffline
	a.mu.Unlock()

	a.waitMonitor()
	a.metrics.AgentStatus.WithLabelValues(a.id).Set(domain.StatusOffline.Gauge())

	if wasRunning {
		a.logger.Info("agent stopped")
	}
}

// waitMonitor вызывается только под lifecycle.
func (a *ScoringAgent) waitMonitor() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	<-a.done
	a.cancel = nil
	a.done = nil
}

// HealthMetrics возвращает снимок метрик. Изменения снимка на агента не влияют.
func (a *ScoringAgent) HealthMetrics() domain.AgentHealthMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.health
}

// History возвращает последние limit оценок в хронологическом порядке (limit <= 0 — все).
func (a *ScoringAgent) History(limit int) []domain.RiskAssessment {
	return a.history.Recent(limit)
}

// TotalAssessments — число успешных оценок за все время, включая вытесненные из истории.
func (a *ScoringAgent) TotalAssessments() int64 {
	return a.history.Total()
}

// AssessRisk оценивает уже разобранные данные сущности.
// ctx используется только для Trace-ID: начатая оценка не прерывается.
func (a *ScoringAgent) AssessRisk(ctx context.Context, in domain.EntityInput) (*domain.RiskAssessment, error) {
	return a.assess(ctx, func() (domain.EntityInput, error) { return in, nil })
}

// AssessPayload разбирает сырой JSON и оценивает его.
// Ошибка разбора учитывается в error_rate так же, как ошибка расчета.
func (a *ScoringAgent) AssessPayload(ctx context.Context, payload []byte) (*domain.RiskAssessment, error) {
	return a.assess(ctx, func() (domain.EntityInput, error) { return risk.DecodeEntity(payload) })
}

func (a *ScoringAgent) assess(ctx context.Context, decode func() (domain.EntityInput, error)) (*domain.RiskAssessment, error) {
	start := time.Now()
	traceID := TraceIDFromContext(ctx)

	a.trackActive(1)
	defer a.trackActive(-1)

	ev, err := a.evaluate(decode)
	if err != nil {
		elapsed := time.Since(start)
		a.updatePerformance(elapsed, false)
		a.metrics.ErrorTotal.WithLabelValues(a.id).Inc()
		a.metrics.AssessmentDuration.WithLabelValues(a.id, "error").Observe(elapsed.Seconds())
		a.logger.Error("risk assessment failed", zap.String("trace_id", traceID), zap.Error(err))
		return nil, err
	}

	assessment := domain.RiskAssessment{
		ID:         uuid.New().String(),
		TraceID:    traceID,
		EntityID:   ev.EntityID,
		RiskScore:  ev.Score,
		RiskLevel:  ev.Level,
		Factors:    ev.Factors,
		Confidence: ev.Confidence,
		Timestamp:  time.Now(),
	}
	a.history.Append(assessment.Clone())

	elapsed := time.Since(start)
	a.updatePerformance(elapsed, true)

	a.metrics.AssessmentsTotal.WithLabelValues(a.id, string(assessment.RiskLevel)).Inc()
	a.metrics.AssessmentDuration.WithLabelValues(a.id, "success").Observe(elapsed.Seconds())

	if a.recorder != nil {
		a.recorder.Record(assessment.ToRecord(a.id))
	}

	a.logger.Debug("risk assessment completed",
		zap.String("trace_id", traceID),
		zap.String("entity_id", assessment.EntityID),
		zap.Float64("score", assessment.RiskScore),
		zap.String("level", string(assessment.RiskLevel)),
	)
	return &assessment, nil
}

// evaluate превращает любую ошибку или панику расчета в *risk.ComputationError.
func (a *ScoringAgent) evaluate(decode func() (domain.EntityInput, error)) (ev risk.Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &risk.ComputationError{Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	in, err := decode()
	if err == nil {
		ev, err = a.model.Evaluate(in)
	}
	if err != nil {
		var cErr *risk.ComputationError
		if !errors.As(err, &cErr) {
			err = &risk.ComputationError{Cause: err}
		}
		return risk.Evaluation{}, err
	}
	return ev, nil
}

func (a *ScoringAgent) trackActive(delta int) {
	a.mu.Lock()
	a.health.ActiveAssessments += delta
	active := a.health.ActiveAssessments
	a.mu.Unlock()

	a.metrics.ActiveAssessments.WithLabelValues(a.id).Set(float64(active))
}

// updatePerformance обновляет сглаженные показатели.
// Порядок блокировок: a.mu, затем history.mu.
func (a *ScoringAgent) updatePerformance(elapsed time.Duration, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := &a.health
	h.ResponseTime = h.ResponseTime*(1-responseTimeAlpha) + elapsed.Seconds()*responseTimeAlpha

	if success {
		h.ErrorRate *= errorDecaySuccess
	} else {
		h.ErrorRate = h.ErrorRate*errorDecayFailure + 0.1
	}

	var sinceStart float64
	if !a.startedAt.IsZero() {
		sinceStart = time.Since(a.startedAt).Seconds()
	}
	h.Throughput = float64(a.history.Total()) / max(1, sinceStart)
}

func (a *ScoringAgent) monitor(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	defer a.markOffline(gen)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := a.interval
		if err := a.safeTick(ctx, gen); err != nil {
			a.logger.Error("health monitor tick failed", zap.Error(err))
			wait = a.backoff
		}
		timer.Reset(wait)
	}
}

// markOffline срабатывает, когда монитор завершился без Stop (отменили родительский ctx).
func (a *ScoringAgent) markOffline(gen uint64) {
	a.mu.Lock()
	changed := a.generation == gen && a.running
	if changed {
		a.running = false
		a.health.Status = domain.StatusOffline
	}
	a.mu.Unlock()

	if changed {
		a.metrics.AgentStatus.WithLabelValues(a.id).Set(domain.StatusOffline.Gauge())
		a.logger.Info("agent monitor cancelled, agent is offline")
	}
}

func (a *ScoringAgent) safeTick(ctx context.Context, gen uint64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in health tick: %v", r)
		}
	}()
	return a.tick(ctx, gen)
}

func (a *ScoringAgent) tick(ctx context.Context, gen uint64) error {
	usage, err := a.sampler.Sample(ctx)
	if err != nil {
		return fmt.Errorf("sample resources: %w", err)
	}

	now := time.Now()
	a.mu.Lock()
	// Тик, гонящийся со Stop, не должен вернуть агента из OFFLINE
	if !a.running || a.generation != gen {
		a.mu.Unlock()
		return nil
	}
	h := &a.health
	h.Uptime = now.Sub(a.startedAt).Seconds()
	h.CPUUsage = usage.CPU
	h.MemoryUsage = usage.Memory
	h.LastHeartbeat = now
	h.Status = deriveStatus(h.ErrorRate, h.ResponseTime, h.CPUUsage)
	status := h.Status
	a.mu.Unlock()

	a.metrics.AgentStatus.WithLabelValues(a.id).Set(status.Gauge())
	a.metrics.CPUUsage.WithLabelValues(a.id).Set(usage.CPU)
	a.metrics.MemoryUsage.WithLabelValues(a.id).Set(usage.Memory)
	return nil
}

// deriveStatus: правила проверяются по порядку, первое совпадение выигрывает.
func deriveStatus(errorRate, responseTime, cpu float64) domain.AgentStatus {
	switch {
	case errorRate > criticalErrorRate:
		return domain.StatusCritical
	case responseTime > warningResponseTime || cpu > warningCPUPercentage:
		return domain.StatusWarning
	default:
		return domain.StatusHealthy
	}
}

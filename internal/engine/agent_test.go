package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
	"github.com/xela07ax/risk-scoring-agents/internal/risk"
)

type recorderStub struct {
	mu      sync.Mutex
	records []domain.AssessmentRecord
}

func (r *recorderStub) Record(rec domain.AssessmentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorderStub) all() []domain.AssessmentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AssessmentRecord(nil), r.records...)
}

func fixedSampler(cpu, mem float64) ResourceSampler {
	return SamplerFunc(func(context.Context) (ResourceUsage, error) {
		return ResourceUsage{CPU: cpu, Memory: mem}, nil
	})
}

func newTestAgent(t *testing.T, cfg AgentConfig) (*ScoringAgent, *Metrics) {
	t.Helper()
	if cfg.MonitorInterval == 0 {
		cfg.MonitorInterval = 10 * time.Millisecond
	}
	if cfg.MonitorBackoff == 0 {
		cfg.MonitorBackoff = 5 * time.Millisecond
	}
	if cfg.Sampler == nil {
		cfg.Sampler = fixedSampler(20, 40)
	}
	m := NewMetrics(prometheus.NewRegistry())
	a := NewScoringAgent("agent_1", cfg, m, nil, zaptest.NewLogger(t))
	t.Cleanup(a.Stop)
	return a, m
}

func corpInput() domain.EntityInput {
	return domain.EntityInput{
		EntityID:             domain.Ptr("CORP_001"),
		FinancialExposure:    domain.Ptr(2_500_000.0),
		CreditScore:          domain.Ptr(720),
		MarketVolatility:     domain.Ptr(0.15),
		ComplianceScore:      domain.Ptr(0.95),
		OperationalIncidents: domain.Ptr(1),
	}
}

func TestScoringAgent_NewIsOffline(t *testing.T) {
	a, _ := newTestAgent(t, AgentConfig{})

	h := a.HealthMetrics()
	assert.Equal(t, "agent_1", h.AgentID)
	assert.Equal(t, domain.StatusOffline, h.Status)
	assert.Zero(t, h.ErrorRate)
	assert.Zero(t, h.ActiveAssessments)
	assert.False(t, a.Running())
	assert.Empty(t, a.History(0))
}

func TestScoringAgent_AssessRisk(t *testing.T) {
	rec := &recorderStub{}
	m := NewMetrics(prometheus.NewRegistry())
	a := NewScoringAgent("agent_1", AgentConfig{Sampler: fixedSampler(20, 40)}, m, rec, zaptest.NewLogger(t))
	t.Cleanup(a.Stop)

	ctx := WithTraceID(context.Background(), "trace-42")
	res, err := a.AssessRisk(ctx, corpInput())
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "trace-42", res.TraceID)
	assert.Equal(t, "CORP_001", res.EntityID)
	assert.InDelta(t, 0.3725, res.RiskScore, 1e-9)
	assert.Equal(t, domain.RiskMedium, res.RiskLevel)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Len(t, res.Factors, 5)

	history := a.History(0)
	require.Len(t, history, 1)
	assert.Equal(t, res.ID, history[0].ID)

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, "agent_1", records[0].AgentID)
	assert.Equal(t, "medium", records[0].RiskLevel)

	h := a.HealthMetrics()
	assert.Zero(t, h.ActiveAssessments)
	assert.Zero(t, h.ErrorRate)
	assert.Greater(t, h.ResponseTime, 0.0)
	// агент не запускался: делитель равен 1
	assert.Equal(t, 1.0, h.Throughput)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssessmentsTotal.WithLabelValues("agent_1", "medium")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveAssessments.WithLabelValues("agent_1")))
}

func TestScoringAgent_ResultIsDetachedFromHistory(t *testing.T) {
	a, _ := newTestAgent(t, AgentConfig{})

	res, err := a.AssessRisk(context.Background(), corpInput())
	require.NoError(t, err)
	res.Factors[domain.FactorCreditHistory] = 99

	got := a.History(0)
	got[0].Factors[domain.FactorMarketVolatility] = 99

	again := a.History(0)
	assert.InDelta(t, 0.1, again[0].Factors[domain.FactorCreditHistory], 1e-9)
	assert.InDelta(t, 0.15, again[0].Factors[domain.FactorMarketVolatility], 1e-9)
}

func TestScoringAgent_FailuresRaiseErrorRate(t *testing.T) {
	a, m := newTestAgent(t, AgentConfig{})

	_, err := a.AssessPayload(context.Background(), []byte(`{"credit_score": "bad"}`))
	var cErr *risk.ComputationError
	require.ErrorAs(t, err, &cErr)
	assert.InDelta(t, 0.1, a.HealthMetrics().ErrorRate, 1e-12)

	_, err = a.AssessRisk(context.Background(), domain.EntityInput{FinancialExposure: domain.Ptr(math.NaN())})
	require.Error(t, err)
	assert.InDelta(t, 0.19, a.HealthMetrics().ErrorRate, 1e-12)

	_, err = a.AssessRisk(context.Background(), corpInput())
	require.NoError(t, err)
	assert.InDelta(t, 0.19*0.95, a.HealthMetrics().ErrorRate, 1e-12)

	assert.Len(t, a.History(0), 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorTotal.WithLabelValues("agent_1")))
	assert.Zero(t, a.HealthMetrics().ActiveAssessments)
}

func TestScoringAgent_ConcurrentAssessments(t *testing.T) {
	a, _ := newTestAgent(t, AgentConfig{})
	require.NoError(t, a.Start(context.Background()))

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.AssessRisk(context.Background(), corpInput())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, a.History(0), n)
	assert.Equal(t, int64(n), a.TotalAssessments())
	assert.Zero(t, a.HealthMetrics().ActiveAssessments)
}

func TestScoringAgent_HistoryLimit(t *testing.T) {
	a, _ := newTestAgent(t, AgentConfig{HistoryLimit: 3})

	for i := 0; i < 5; i++ {
		in := corpInput()
		in.OperationalIncidents = domain.Ptr(i)
		_, err := a.AssessRisk(context.Background(), in)
		require.NoError(t, err)
	}

	all := a.History(0)
	require.Len(t, all, 3)
	assert.InDelta(t, 0.2, all[0].Factors[domain.FactorOperationalRisk], 1e-9)
	assert.InDelta(t, 0.4, all[2].Factors[domain.FactorOperationalRisk], 1e-9)
	assert.Equal(t, int64(5), a.TotalAssessments())

	last := a.History(2)
	require.Len(t, last, 2)
	assert.Equal(t, all[1].ID, last[0].ID)
}

func TestScoringAgent_StartStop(t *testing.T) {
	a, m := newTestAgent(t, AgentConfig{})

	require.NoError(t, a.Start(context.Background()))
	assert.True(t, a.Running())
	assert.Equal(t, domain.StatusHealthy, a.HealthMetrics().Status)
	assert.ErrorIs(t, a.Start(context.Background()), ErrAgentRunning)

	require.Eventually(t, func() bool {
		return a.HealthMetrics().CPUUsage == 20
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 40.0, a.HealthMetrics().MemoryUsage)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentStatus.WithLabelValues("agent_1")))

	a.Stop()
	assert.False(t, a.Running())
	assert.Equal(t, domain.StatusOffline, a.HealthMetrics().Status)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AgentStatus.WithLabelValues("agent_1")))

	// повторный Stop ничего не делает
	a.Stop()
	assert.Equal(t, domain.StatusOffline, a.HealthMetrics().Status)

	// рестарт разрешен
	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, domain.StatusHealthy, a.HealthMetrics().Status)
}

func TestScoringAgent_StopIsPrompt(t *testing.T) {
	a, _ := newTestAgent(t, AgentConfig{MonitorInterval: time.Hour})
	require.NoError(t, a.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		a.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestScoringAgent_ParentContextCancel(t *testing.T) {
	a, _ := newTestAgent(t, AgentConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !a.Running() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.StatusOffline, a.HealthMetrics().Status)

	require.NoError(t, a.Start(context.Background()))
	assert.True(t, a.Running())
}

func TestScoringAgent_BecomesCriticalOnErrors(t *testing.T) {
	a, m := newTestAgent(t, AgentConfig{})
	require.NoError(t, a.Start(context.Background()))

	for i := 0; i < 2; i++ {
		_, err := a.AssessPayload(context.Background(), []byte(`not json`))
		require.Error(t, err)
	}

	require.Eventually(t, func() bool {
		return a.HealthMetrics().Status == domain.StatusCritical
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AgentStatus.WithLabelValues("agent_1")))
}

func TestScoringAgent_WarningOnHighCPU(t *testing.T) {
	a, _ := newTestAgent(t, AgentConfig{Sampler: fixedSampler(95, 50)})
	require.NoError(t, a.Start(context.Background()))

	require.Eventually(t, func() bool {
		return a.HealthMetrics().Status == domain.StatusWarning
	}, time.Second, 5*time.Millisecond)
}

func TestScoringAgent_MonitorSurvivesFaults(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	sampler := SamplerFunc(func(context.Context) (ResourceUsage, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		switch calls {
		case 1:
			return ResourceUsage{}, errors.New("sampler unavailable")
		case 2:
			panic("sampler exploded")
		default:
			return ResourceUsage{CPU: 33, Memory: 44}, nil
		}
	})

	a, _ := newTestAgent(t, AgentConfig{Sampler: sampler})
	require.NoError(t, a.Start(context.Background()))

	require.Eventually(t, func() bool {
		return a.HealthMetrics().CPUUsage == 33
	}, time.Second, 5*time.Millisecond)
	assert.True(t, a.Running())
	assert.Equal(t, domain.StatusHealthy, a.HealthMetrics().Status)
}

func TestScoringAgent_TickAfterStopKeepsOffline(t *testing.T) {
	a, _ := newTestAgent(t, AgentConfig{MonitorInterval: time.Hour})
	require.NoError(t, a.Start(context.Background()))

	a.mu.Lock()
	gen := a.generation
	a.mu.Unlock()

	a.Stop()
	require.NoError(t, a.tick(context.Background(), gen))
	assert.Equal(t, domain.StatusOffline, a.HealthMetrics().Status)
}

func TestScoringAgent_SnapshotIsStable(t *testing.T) {
	a, _ := newTestAgent(t, AgentConfig{})
	_, err := a.AssessRisk(context.Background(), corpInput())
	require.NoError(t, err)

	first := a.HealthMetrics()
	second := a.HealthMetrics()
	assert.Equal(t, first, second)

	first.ErrorRate = 1
	assert.Zero(t, a.HealthMetrics().ErrorRate)
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name      string
		errorRate float64
		rt        float64
		cpu       float64
		want      domain.AgentStatus
	}{
		{"all fine", 0, 0.01, 50, domain.StatusHealthy},
		{"error rate at threshold", 0.1, 0, 0, domain.StatusHealthy},
		{"error rate above threshold", 0.11, 0, 0, domain.StatusCritical},
		{"critical wins over warning", 0.5, 10, 99, domain.StatusCritical},
		{"slow responses", 0, 5.1, 10, domain.StatusWarning},
		{"hot cpu", 0, 0, 90.5, domain.StatusWarning},
		{"cpu at threshold", 0, 5, 90, domain.StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveStatus(tt.errorRate, tt.rt, tt.cpu))
		})
	}
}

package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	s := NewSystem(AgentConfig{
		MonitorInterval: 10 * time.Millisecond,
		MonitorBackoff:  5 * time.Millisecond,
		Sampler:         fixedSampler(20, 40),
	}, nil, nil, zaptest.NewLogger(t))
	t.Cleanup(s.StopAll)
	return s
}

func TestSystem_AddAgent(t *testing.T) {
	s := newTestSystem(t)

	first, err := s.AddAgent("risk_agent_1")
	require.NoError(t, err)
	assert.Equal(t, "risk_agent_1", first.ID())

	_, err = s.AddAgent("risk_agent_1")
	assert.ErrorIs(t, err, ErrDuplicateAgent)

	// существующий агент не перезаписан
	got, err := s.Agent("risk_agent_1")
	require.NoError(t, err)
	assert.Same(t, first, got)

	_, err = s.AddAgent("")
	assert.ErrorIs(t, err, ErrInvalidAgentID)

	_, err = s.Agent("missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestSystem_RegistrationOrder(t *testing.T) {
	s := newTestSystem(t)
	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		_, err := s.AddAgent(id)
		require.NoError(t, err)
	}

	var got []string
	for _, a := range s.Agents() {
		got = append(got, a.ID())
	}
	assert.Equal(t, ids, got)

	health := s.AllAgentHealth()
	require.Len(t, health, 3)
	for i, h := range health {
		assert.Equal(t, ids[i], h.AgentID)
		assert.Equal(t, domain.StatusOffline, h.Status)
	}
}

func TestSystem_StartAllStopAll(t *testing.T) {
	s := newTestSystem(t)
	for _, id := range []string{"a1", "a2", "a3"} {
		_, err := s.AddAgent(id)
		require.NoError(t, err)
	}

	require.NoError(t, s.StartAll(context.Background()))
	assert.Equal(t, 3, s.SystemHealth().ActiveAgents)

	// повторный запуск не ошибка
	require.NoError(t, s.StartAll(context.Background()))

	s.StopAll()
	sh := s.SystemHealth()
	assert.Zero(t, sh.ActiveAgents)
	assert.Equal(t, 3, sh.TotalAgents)
	assert.Zero(t, sh.AverageResponseTime)
}

func TestSystem_StartStopAgent(t *testing.T) {
	s := newTestSystem(t)
	_, err := s.AddAgent("a1")
	require.NoError(t, err)

	require.NoError(t, s.StartAgent(context.Background(), "a1"))
	assert.ErrorIs(t, s.StartAgent(context.Background(), "a1"), ErrAgentRunning)
	assert.ErrorIs(t, s.StartAgent(context.Background(), "nope"), ErrAgentNotFound)

	require.NoError(t, s.StopAgent("a1"))
	assert.ErrorIs(t, s.StopAgent("nope"), ErrAgentNotFound)
}

func TestSystem_SystemHealth(t *testing.T) {
	s := newTestSystem(t)
	active, err := s.AddAgent("active")
	require.NoError(t, err)
	idle, err := s.AddAgent("idle")
	require.NoError(t, err)

	require.NoError(t, active.Start(context.Background()))

	for i := 0; i < 3; i++ {
		_, err := active.AssessRisk(context.Background(), corpInput())
		require.NoError(t, err)
	}
	// оценка на остановленном агенте тоже учитывается в total
	_, err = idle.AssessRisk(context.Background(), corpInput())
	require.NoError(t, err)

	sh := s.SystemHealth()
	assert.Equal(t, int64(4), sh.TotalAssessments)
	assert.Equal(t, 1, sh.ActiveAgents)
	assert.Equal(t, 2, sh.TotalAgents)
	assert.Equal(t, active.HealthMetrics().ResponseTime, sh.AverageResponseTime)
	assert.GreaterOrEqual(t, sh.SystemUptime, 0.0)
}

func TestSystem_ConcurrentRegistration(t *testing.T) {
	s := newTestSystem(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddAgent("same")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateAgent)
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 19, dup)
}

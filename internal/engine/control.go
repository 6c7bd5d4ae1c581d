package engine

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/risk-scoring-agents/internal/infra"
)

// ListenControl подписывается на команды запуска/остановки агентов из Redis.
// Блокирует до отмены ctx; запущенные по команде агенты живут в рамках того же ctx.
func (s *System) ListenControl(ctx context.Context, rdb *redis.Client) {
	logger := s.logger.With(zap.String("mod", "control"))

	ListenStateResilient(ctx, rdb, logger, infra.RedisChanControl,
		func() error {
			logger.Info("control channel subscribed", zap.String("chan", infra.RedisChanControl))
			return nil
		},
		func(agentID string, on bool) {
			s.applyControl(ctx, logger, agentID, on)
		},
	)
}

func (s *System) applyControl(ctx context.Context, logger *zap.Logger, agentID string, on bool) {
	var err error
	if on {
		err = s.StartAgent(ctx, agentID)
	} else {
		err = s.StopAgent(agentID)
	}

	switch {
	case errors.Is(err, ErrAgentRunning):
		logger.Debug("agent already running", zap.String("agent_id", agentID))
	case err != nil:
		logger.Warn("control signal rejected", zap.String("agent_id", agentID), zap.Bool("on", on), zap.Error(err))
	default:
		logger.Info("control signal applied", zap.String("agent_id", agentID), zap.Bool("on", on))
	}
}

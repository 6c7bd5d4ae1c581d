package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/risk-scoring-agents/internal/infra"
)

// HealthPublisher периодически выгружает снимки агентов в Redis:
// hash RedisKeyAgentHealth (agent_id -> JSON) и сводку системы в RedisChanSystemHealth.
type HealthPublisher struct {
	system   *System
	rdb      *redis.Client
	logger   *zap.Logger
	interval time.Duration
}

func NewHealthPublisher(system *System, rdb *redis.Client, interval time.Duration, logger *zap.Logger) *HealthPublisher {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthPublisher{
		system:   system,
		rdb:      rdb,
		logger:   logger.With(zap.String("mod", "health-publisher")),
		interval: interval,
	}
}

// PublishOnce пишет все снимки одним pipeline.
func (p *HealthPublisher) PublishOnce(ctx context.Context) error {
	snapshots := p.system.AllAgentHealth()
	summary, err := json.Marshal(p.system.SystemHealth())
	if err != nil {
		return fmt.Errorf("marshal system health: %w", err)
	}

	pipe := p.rdb.Pipeline()
	for _, h := range snapshots {
		data, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("marshal agent %s health: %w", h.AgentID, err)
		}
		pipe.HSet(ctx, infra.RedisKeyAgentHealth, h.AgentID, data)
	}
	pipe.Publish(ctx, infra.RedisChanSystemHealth, summary)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish health: %w", err)
	}
	return nil
}

// Run публикует снимки каждые interval до отмены ctx. Ошибки Redis только логируются.
func (p *HealthPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("health publish failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
)

type ReliableConfig struct {
	Attempts   uint
	RetryDelay time.Duration

	// Настройки Circuit Breaker
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
	CBFailures    uint32 // столько ошибок подряд открывают предохранитель
}

// ReliableStorage оборачивает Storage ретраями и предохранителем,
// чтобы лежащая БД не тормозила воркер экспорта бесконечными попытками.
type ReliableStorage struct {
	next   Storage
	cb     *gobreaker.CircuitBreaker
	cfg    ReliableConfig
	logger *zap.Logger
}

func NewReliableStorage(next Storage, cfg ReliableConfig, logger *zap.Logger) *ReliableStorage {
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.CBMaxRequests == 0 {
		cfg.CBMaxRequests = 3
	}
	if cfg.CBTimeout <= 0 {
		cfg.CBTimeout = 30 * time.Second // Время, через которое CB попробует "закрыться"
	}
	if cfg.CBFailures == 0 {
		cfg.CBFailures = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("mod", "reliable-storage"))

	failures := cfg.CBFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "risk-export-storage",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &ReliableStorage{next: next, cb: cb, cfg: cfg, logger: logger}
}

func (s *ReliableStorage) WriteBatch(ctx context.Context, records []domain.AssessmentRecord) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(s.cfg.Attempts),
			retry.Delay(s.cfg.RetryDelay),
			// стандартный экспоненциальный бэкофф от RetryDelay
			retry.DelayType(retry.BackOffDelay),
		)
		return nil, r.Do(func() error {
			return s.next.WriteBatch(ctx, records)
		})
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("export storage unavailable: %w", err)
	}
	return err
}

// State — текущее состояние предохранителя.
func (s *ReliableStorage) State() gobreaker.State {
	return s.cb.State()
}

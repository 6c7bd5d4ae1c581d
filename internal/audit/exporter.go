package audit

/*
Exporter — неблокирующая выгрузка записей об оценках риска во внешнее хранилище.

- Non-blocking: Record никогда не ждет хранилище, запись уходит в буферизованный канал.
- Batching: пакетная запись по достижении BatchSize или по таймеру FlushInterval.
- Load Shedding: при переполнении буфера запись отбрасывается и логируется.
- Drain Pattern: Stop закрывает канал, воркер вычитывает остаток и делает финальный flush.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
)

const (
	DefaultBufferSize    = 10000
	DefaultBatchSize     = 100
	DefaultFlushInterval = 500 * time.Millisecond

	flushTimeout = 10 * time.Second
)

// Storage определяет, куда физически будут сохраняться записи
type Storage interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, records []domain.AssessmentRecord) error
}

type ExporterConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

type Exporter struct {
	ch      chan domain.AssessmentRecord
	storage Storage
	cfg     ExporterConfig
	fill    prometheus.Gauge
	logger  *zap.Logger
	wg      sync.WaitGroup

	// closeMu: Record держит RLock на время отправки, Stop берет Lock перед close(ch)
	closeMu  sync.RWMutex
	closed   bool
	stopOnce sync.Once

	dropped atomic.Int64
	written atomic.Int64
}

// NewExporter. fill — gauge заполненности буфера, может быть nil.
func NewExporter(storage Storage, cfg ExporterConfig, fill prometheus.Gauge, logger *zap.Logger) *Exporter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		ch:      make(chan domain.AssessmentRecord, cfg.BufferSize),
		storage: storage,
		cfg:     cfg,
		fill:    fill,
		logger:  logger.With(zap.String("mod", "exporter")),
	}
}

func (e *Exporter) Start() {
	e.wg.Add(1)
	go e.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет. Повторный вызов безопасен.
func (e *Exporter) Stop() {
	e.stopOnce.Do(func() {
		e.closeMu.Lock()
		e.closed = true
		close(e.ch) // Новые записи больше не принимаются
		e.closeMu.Unlock()

		e.logger.Info("stopping exporter: flushing buffer...")
		e.wg.Wait()
		e.logger.Info("exporter stopped gracefully",
			zap.Int64("written", e.written.Load()),
			zap.Int64("dropped", e.dropped.Load()),
		)
	})
}

// Record ставит запись в очередь. Никогда не блокируется.
func (e *Exporter) Record(rec domain.AssessmentRecord) {
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()

	if e.closed {
		e.dropped.Add(1)
		e.logger.Warn("record dropped: exporter is stopping", zap.String("id", rec.ID))
		return
	}

	// используем стратегию Load Shedding (сброс нагрузки)
	select {
	case e.ch <- rec:
		e.setFill()
	default:
		e.dropped.Add(1)
		e.logger.Error("export_buffer_overflow",
			zap.String("agent_id", rec.AgentID),
			zap.String("trace_id", rec.TraceID),
		)
	}
}

// Dropped — сколько записей потеряно из-за переполнения или остановки.
func (e *Exporter) Dropped() int64 { return e.dropped.Load() }

// Written — сколько записей успешно передано в хранилище.
func (e *Exporter) Written() int64 { return e.written.Load() }

func (e *Exporter) setFill() {
	if e.fill != nil {
		e.fill.Set(float64(len(e.ch)))
	}
}

func (e *Exporter) worker() {
	defer e.wg.Done()

	batch := make([]domain.AssessmentRecord, 0, e.cfg.BatchSize)
	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: к моменту финального flush основной контекст уже может быть закрыт
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()

		if err := e.storage.WriteBatch(ctx, batch); err != nil {
			e.logger.Error("export flush failed", zap.Int("size", len(batch)), zap.Error(err))
		} else {
			e.written.Add(int64(len(batch)))
		}
		batch = make([]domain.AssessmentRecord, 0, e.cfg.BatchSize)
		e.setFill()
	}

	for {
		select {
		case rec, ok := <-e.ch:
			if !ok {
				// Канал закрыт в Stop: остаток уже вычитан, делаем финальный flush
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= e.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

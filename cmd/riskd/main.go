package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/risk-scoring-agents/internal/audit"
	"github.com/xela07ax/risk-scoring-agents/internal/console/handler"
	"github.com/xela07ax/risk-scoring-agents/internal/console/server"
	"github.com/xela07ax/risk-scoring-agents/internal/engine"
	"github.com/xela07ax/risk-scoring-agents/internal/infra"
	"github.com/xela07ax/risk-scoring-agents/internal/repository/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: ./config.yaml or ./configs/config.yaml)")
	flag.Parse()

	// 1. Конфигурация и логгер
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, level, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	// При SIGINT/SIGTERM cancel() остановит мониторы и слушателей
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		// Hot reload: на лету меняем только уровень логирования
		err := infra.WatchConfig(*configPath, logger, func(next *infra.Config) {
			if err := infra.SetLogLevel(level, next.Logger.Level); err != nil {
				logger.Warn("log level not changed", zap.Error(err))
				return
			}
			logger.Info("log level updated", zap.String("level", level.String()))
		})
		if err != nil {
			logger.Warn("config watch disabled", zap.Error(err))
		}
	}

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 3. Экспорт оценок в Postgres (опционально)
	var recorder engine.Recorder
	var exporter *audit.Exporter
	if cfg.Export.Enabled {
		db, err := postgres.Open(appCtx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			logger.Fatal("database unreachable", zap.Error(err))
		}
		defer db.Close()

		repo := postgres.NewAssessmentRepo(db)
		if err := repo.EnsureSchema(appCtx); err != nil {
			logger.Fatal("failed to prepare schema", zap.Error(err))
		}

		// Оборачиваем в Reliability (Retries, Circuit Breaker)
		storage := audit.NewReliableStorage(repo, audit.ReliableConfig{
			Attempts:      cfg.Export.RetryAttempts,
			CBMaxRequests: cfg.Export.CBMaxRequests,
			CBInterval:    cfg.Export.CBInterval,
			CBTimeout:     cfg.Export.CBTimeout,
			CBFailures:    cfg.Export.CBFailures,
		}, logger)

		exporter = audit.NewExporter(storage, audit.ExporterConfig{
			BufferSize:    cfg.Export.BufferSize,
			BatchSize:     cfg.Export.BatchSize,
			FlushInterval: cfg.Export.FlushInterval,
		}, metrics.ExportBufferFill, logger)
		exporter.Start()
		recorder = exporter
	}

	// 4. Core: реестр агентов
	system := engine.NewSystem(engine.AgentConfig{
		MonitorInterval: cfg.Engine.MonitorInterval,
		MonitorBackoff:  cfg.Engine.MonitorBackoff,
		HistoryLimit:    cfg.Engine.HistoryLimit,
		Sampler:         engine.SyntheticSampler{},
	}, metrics, recorder, logger)

	for _, id := range cfg.Engine.Agents {
		if _, err := system.AddAgent(id); err != nil {
			logger.Fatal("failed to register agent", zap.String("agent_id", id), zap.Error(err))
		}
	}
	if err := system.StartAll(appCtx); err != nil {
		logger.Fatal("failed to start agents", zap.Error(err))
	}

	// 5. Control Plane через Redis (опционально)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		go system.ListenControl(appCtx, rdb)
		go engine.NewHealthPublisher(system, rdb, cfg.Redis.HealthInterval, logger).Run(appCtx)
	}

	// 6. HTTP Server
	api := server.NewAPIServer(logger, reg,
		handler.NewAgentHandler(appCtx, system, handler.RateLimit{
			RPS:   cfg.Engine.AssessRPS,
			Burst: cfg.Engine.AssessBurst,
		}, logger),
		handler.NewSystemHandler(system),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("risk scoring service started",
			zap.String("addr", srv.Addr),
			zap.Strings("agents", cfg.Engine.Agents),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	// 7. Graceful Shutdown
	<-appCtx.Done()
	logger.Info("risk scoring service stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}

	system.StopAll()
	if exporter != nil {
		// Финальный flush: записи, принятые до остановки, уходят в БД
		exporter.Stop()
	}
	logger.Info("risk scoring service exited properly")
}

func loadConfig(path string) (*infra.Config, error) {
	if path == "" {
		return infra.LoadConfig()
	}
	return infra.LoadConfigFile(path)
}

package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/risk-scoring-agents/internal/console/handler"
	"github.com/xela07ax/risk-scoring-agents/internal/engine"
)

type APIServer struct {
	router *chi.Mux
	logger *zap.Logger

	gatherer prometheus.Gatherer

	// Обработчики бизнес-доменов
	agentHandler  *handler.AgentHandler  // /v1/agents
	systemHandler *handler.SystemHandler // /v1/system
}

// NewAPIServer собирает HTTP API сервиса. gatherer может быть nil — тогда /metrics не публикуется.
func NewAPIServer(
	logger *zap.Logger,
	gatherer prometheus.Gatherer,
	agentH *handler.AgentHandler,
	systemH *handler.SystemHandler,
) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &APIServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("api"),
		gatherer:      gatherer,
		agentHandler:  agentH,
		systemHandler: systemH,
	}

	s.routes()
	return s
}

func (s *APIServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// --- 2. Служебные роуты ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// --- 3. API ---
	r.Get("/v1/system/health", s.systemHandler.Health)
	r.Mount("/v1/agents", s.agentHandler.Routes())
}

// requestLogger пишет access-лог в zap вместо стандартного log.
func (s *APIServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("trace_id", engine.TraceIDFromContext(r.Context())),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ServeHTTP позволяет использовать APIServer как стандартный http.Handler
func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

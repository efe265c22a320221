package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Harshitk-cp/synapse/internal/api/handlers"
	mw "github.com/Harshitk-cp/synapse/internal/api/middleware"
	"github.com/Harshitk-cp/synapse/internal/buildconfig"
	"github.com/Harshitk-cp/synapse/internal/config"
	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/Harshitk-cp/synapse/internal/embedding"
	"github.com/Harshitk-cp/synapse/internal/llm"
	"github.com/Harshitk-cp/synapse/internal/observability"
	"github.com/Harshitk-cp/synapse/internal/service"
	"github.com/Harshitk-cp/synapse/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pinger reports database liveness for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router serves. Nodes, Stats, Scheduler and
// Breaker may be nil; the routes that need them degrade accordingly.
type Deps struct {
	DB        Pinger
	Loop      *service.ControlLoop
	Scheduler *service.ConsolidationScheduler
	Nodes     domain.MemoryNodeStore
	Stats     domain.LayerStatsProvider
	Breaker   handlers.BreakerState
	Metrics   *observability.Collector
	Limiter   *mw.RateLimiter

	APIKey       string
	QueryTimeout time.Duration
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Loop      *service.ControlLoop
	Scheduler *service.ConsolidationScheduler
	Limiter   *mw.RateLimiter
}

// NewApp wires the graph store, providers and control loop from config.
func NewApp(db *pgxpool.Pool, logger *zap.Logger) (*App, error) {
	llmProvider := config.LLMProvider()
	oracle, err := llm.NewClient(llmProvider, config.LLMAPIKey())
	if err != nil {
		return nil, fmt.Errorf("init reasoning oracle: %w", err)
	}
	logger.Info("reasoning oracle initialized", zap.String("provider", llmProvider))

	breakerCfg := llm.DefaultBreakerConfig()
	breakerCfg.FailureThreshold = config.OracleBreakerFailureRatio()
	breaker := llm.NewBreakerOracle(oracle, breakerCfg, logger)

	embeddingProvider := config.EmbeddingProvider()
	embedder, err := embedding.NewClient(embeddingProvider, config.EmbeddingAPIKey())
	switch {
	case err != nil:
		logger.Warn("embedding client initialization failed, using full-text search",
			zap.String("provider", embeddingProvider), zap.Error(err))
		embedder = nil
	case embedder != nil:
		logger.Info("embedding client initialized", zap.String("provider", embeddingProvider))
	}

	graph := store.NewGraphStore(db, embedder)
	graph.SetCapacity(config.MemoryCapacity())
	graph.SetLogger(logger)

	cfg := config.Cognition()
	loop, err := service.NewDefaultControlLoop(cfg, graph, breaker, logger)
	if err != nil {
		return nil, fmt.Errorf("init control loop: %w", err)
	}

	collector := observability.NewCollector("synapse")
	loop.SetMetricsRecorder(collector)

	scheduler := service.NewConsolidationScheduler(graph, graph, cfg.ConsolidationInterval, logger)
	scheduler.SetObserver(collector)

	deps := Deps{
		DB:           db,
		Loop:         loop,
		Scheduler:    scheduler,
		Nodes:        graph,
		Stats:        graph,
		Breaker:      breaker,
		Metrics:      collector,
		Limiter:      mw.NewRateLimiter(config.RateLimitRPS(), config.RateLimitBurst()),
		APIKey:       config.APIKey(),
		QueryTimeout: config.QueryTimeout(),
	}

	return &App{
		Router:    NewRouter(deps, logger),
		Loop:      loop,
		Scheduler: scheduler,
		Limiter:   deps.Limiter,
	}, nil
}

func NewRouter(d Deps, logger *zap.Logger) *chi.Mux {
	var sink handlers.ConnectionSink
	var runner handlers.ConsolidationRunner
	if d.Scheduler != nil {
		sink = d.Scheduler
		runner = d.Scheduler
	}

	queryHandler := handlers.NewQueryHandler(d.Loop, sink, d.QueryTimeout, logger)
	statusHandler := handlers.NewStatusHandler(d.Loop, d.Breaker)
	cognitiveHandler := handlers.NewCognitiveHandler(runner, logger)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(mw.RequestID)      // Generate/extract request ID first
	r.Use(middleware.RealIP) // Extract real IP
	if d.Metrics != nil {
		r.Use(mw.Metrics(d.Metrics))
	}
	r.Use(mw.Logging(logger))   // Log all requests
	r.Use(middleware.Recoverer) // Recover from panics
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware)
	}

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(d.DB))
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(buildconfig.VersionInfo())
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(d.APIKey))

		r.Post("/query", queryHandler.Query)

		r.Route("/status", func(r chi.Router) {
			r.Get("/", statusHandler.Get)
			r.Post("/reset", statusHandler.Reset)
		})

		r.Post("/consolidate", cognitiveHandler.TriggerConsolidation)

		if d.Nodes != nil {
			nodeHandler := handlers.NewNodeHandler(d.Nodes, d.Stats, logger)
			r.Get("/layers/stats", nodeHandler.LayerStats)
			r.Route("/nodes", func(r chi.Router) {
				r.Post("/", nodeHandler.Create)
				r.Get("/{id}", nodeHandler.GetByID)
				r.Delete("/{id}", nodeHandler.Delete)
			})
		}
	})

	return r
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.MemoryGraphStore       = (*store.GraphStore)(nil)
	_ domain.MemoryNodeStore        = (*store.GraphStore)(nil)
	_ domain.LayerStatsProvider     = (*store.GraphStore)(nil)
	_ domain.FusionLinker           = (*store.GraphStore)(nil)
	_ domain.EdgeMaintainer         = (*store.GraphStore)(nil)
	_ domain.EmbeddingClient        = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient        = (*embedding.MockClient)(nil)
	_ domain.ReasoningOracle        = (*llm.OpenAIClient)(nil)
	_ domain.ReasoningOracle        = (*llm.AnthropicClient)(nil)
	_ domain.ReasoningOracle        = (*llm.GeminiClient)(nil)
	_ domain.ReasoningOracle        = (*llm.CerebrasClient)(nil)
	_ domain.ReasoningOracle        = (*llm.MockOracle)(nil)
	_ domain.ReasoningOracle        = (*llm.BreakerOracle)(nil)
	_ domain.AnswerRenderer         = (*llm.OpenAIClient)(nil)
	_ domain.AnswerRenderer         = (*llm.AnthropicClient)(nil)
	_ domain.AnswerRenderer         = (*llm.GeminiClient)(nil)
	_ domain.AnswerRenderer         = (*llm.CerebrasClient)(nil)
	_ domain.AnswerRenderer         = (*llm.MockOracle)(nil)
	_ domain.AnswerRenderer         = (*llm.BreakerOracle)(nil)
	_ service.MetricsRecorder       = (*observability.Collector)(nil)
	_ service.ConsolidationObserver = (*observability.Collector)(nil)
)

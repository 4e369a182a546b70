package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/bayesd/internal/api/handlers"
	mw "github.com/Harshitk-cp/bayesd/internal/api/middleware"
	"github.com/Harshitk-cp/bayesd/internal/belief"
	"github.com/Harshitk-cp/bayesd/internal/buildconfig"
	"github.com/Harshitk-cp/bayesd/internal/cache"
	"github.com/Harshitk-cp/bayesd/internal/config"
	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/inference"
	"github.com/Harshitk-cp/bayesd/internal/model"
	"github.com/Harshitk-cp/bayesd/internal/service"
	"github.com/Harshitk-cp/bayesd/internal/store"
	"github.com/Harshitk-cp/bayesd/internal/telemetry"
	"github.com/Harshitk-cp/bayesd/internal/uncertainty"
)

// Deps are the optional external resources the app can use. Nil fields disable the
// feature that needs them.
type Deps struct {
	DB      *pgxpool.Pool
	Cache   domain.InferenceCache
	Metrics *telemetry.Metrics
	Library *model.Library
}

// Services groups the reasoning services shared by the HTTP and MCP front ends.
type Services struct {
	Reasoning *service.ReasoningService
	Beliefs   *service.BeliefService
	Decisions *service.DecisionService
	Models    *service.ModelService
}

// NewServices builds the reasoning core from config defaults and wires optional
// persistence and caching.
func NewServices(deps Deps, logger *zap.Logger) *Services {
	library := deps.Library
	if library == nil {
		library = model.NewLibrary(logger)
	}

	engine := inference.NewEngine(library, logger)
	quantifier := uncertainty.NewQuantifier(config.UncertaintyDefaults(), logger)
	updater := belief.NewUpdater(engine, config.BeliefDefaults(), logger)

	reasoning := service.NewReasoningService(engine, quantifier, config.BayesianDefaults(), config.RequestTimeout(), deps.Metrics, logger)
	if deps.Cache != nil {
		reasoning.SetCache(deps.Cache, config.CacheTTL())
		reasoning.SetModelGeneration(library.Generation)
	}
	beliefs := service.NewBeliefService(updater, config.BayesianDefaults(), deps.Metrics, logger)
	if deps.DB != nil {
		beliefs.SetStore(store.NewBeliefUpdateStore(deps.DB))
	}

	return &Services{
		Reasoning: reasoning,
		Beliefs:   beliefs,
		Decisions: service.NewDecisionService(beliefs, quantifier, config.DecisionDefaults(), config.RequestTimeout(), deps.Metrics, logger),
		Models:    service.NewModelService(library, deps.Metrics, logger),
	}
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router       *chi.Mux
	Services     *Services
	Expirer      *service.ExpirerService
	deps         Deps
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewApp(deps Deps, logger *zap.Logger) *App {
	svcs := NewServices(deps, logger)

	var historyStore domain.BeliefUpdateStore
	if deps.DB != nil {
		historyStore = store.NewBeliefUpdateStore(deps.DB)
	}
	expirer := service.NewExpirerService(svcs.Beliefs.Updater(), historyStore, config.SubjectIdleTTL(), config.HistoryRetention(), deps.Metrics, logger)

	// Handlers
	inferenceHandler := handlers.NewInferenceHandler(svcs.Reasoning)
	beliefHandler := handlers.NewBeliefHandler(svcs.Beliefs)
	decisionHandler := handlers.NewDecisionHandler(svcs.Decisions)
	modelHandler := handlers.NewModelHandler(svcs.Models)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Services:  svcs,
		Expirer:   expirer,
		deps:      deps,
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}

	// Metrics collector for middleware
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount, deps.Metrics)

	// Global middleware (order matters)
	r.Use(mw.RequestID)                                                             // Generate/extract request ID first
	r.Use(middleware.RealIP)                                                        // Extract real IP
	r.Use(metricsCollector.Middleware)                                              // Collect metrics
	r.Use(mw.Logging(logger))                                                       // Log all requests
	r.Use(middleware.Recoverer)                                                     // Recover from panics
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst(), app.stopCh)) // Rate limiting

	// Operational endpoints (no auth)
	r.Get("/health", app.healthHandler())
	r.Get("/stats", app.statsHandler())
	r.Handle("/metrics", deps.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(config.APIKeys()))

		r.Post("/infer", inferenceHandler.Infer)
		r.Post("/quantify", inferenceHandler.Quantify)
		r.Post("/calibrate", inferenceHandler.Calibrate)
		r.Post("/decide", decisionHandler.Decide)

		// Belief subjects
		r.Route("/beliefs", func(r chi.Router) {
			r.Get("/", beliefHandler.List)
			r.Route("/{subject}", func(r chi.Router) {
				r.Post("/", beliefHandler.Track)
				r.Get("/", beliefHandler.Get)
				r.Delete("/", beliefHandler.Delete)
				r.Post("/updates", beliefHandler.Update)
				r.Get("/history", beliefHandler.History)
				r.Post("/reset", beliefHandler.Reset)
			})
		})

		// Model library
		r.Route("/models", func(r chi.Router) {
			r.Get("/", modelHandler.List)
			r.Route("/{name}", func(r chi.Router) {
				r.Put("/", modelHandler.Put)
				r.Delete("/", modelHandler.Delete)
				r.Post("/fit", modelHandler.Fit)
				r.Post("/evaluate", modelHandler.Evaluate)
			})
		})
	})

	return app
}

// Close stops goroutines owned by the router.
func (app *App) Close() {
	app.stopOnce.Do(func() { close(app.stopCh) })
}

// healthHandler reports ok when every configured dependency answers. Missing
// dependencies are reported as disabled, not as failures.
func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"database": "disabled", "cache": "disabled"}
		status := http.StatusOK
		if app.deps.DB != nil {
			checks["database"] = "ok"
			if err := app.deps.DB.Ping(ctx); err != nil {
				checks["database"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		if app.deps.Cache != nil {
			checks["cache"] = "ok"
			if err := app.deps.Cache.Ping(ctx); err != nil {
				checks["cache"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "error"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  overall,
			"checks":  checks,
			"version": buildconfig.Version(),
		})
	}
}

func (app *App) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds":  uptime.Seconds(),
			"uptime_human":    uptime.Round(time.Second).String(),
			"request_count":   app.requestCount.Load(),
			"error_count":     app.errorCount.Load(),
			"goroutines":      runtime.NumGoroutine(),
			"belief_subjects": len(app.Services.Beliefs.Subjects()),
			"models":          len(app.Services.Models.List()),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.Current(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure adapters satisfy interfaces at compile time.
var (
	_ domain.BeliefUpdateStore = (*store.BeliefUpdateStore)(nil)
	_ domain.InferenceCache    = (*cache.RedisCache)(nil)
	_ inference.ModelSource    = (*model.Library)(nil)
)

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/bayesd/internal/buildconfig"
	"github.com/Harshitk-cp/bayesd/internal/cache"
	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/inference"
	"github.com/Harshitk-cp/bayesd/internal/telemetry"
	"github.com/Harshitk-cp/bayesd/internal/uncertainty"
)

// ErrTimeout is returned when a request exceeds the configured request timeout.
// The computation itself is bounded by max_iterations and finishes in the background.
var ErrTimeout = errors.New("request timed out")

// QuantificationRequest picks the uncertainty method and levels for a response.
// Zero values fall back to the quantifier defaults.
type QuantificationRequest struct {
	Method domain.QuantificationMethod `json:"method,omitempty" yaml:"method,omitempty"`
	Levels []float64                   `json:"levels,omitempty" yaml:"levels,omitempty"`
}

type InferenceRequest struct {
	Hypotheses     []domain.Hypothesis    `json:"hypotheses" yaml:"hypotheses"`
	Evidence       []domain.Evidence      `json:"evidence" yaml:"evidence"`
	Config         *domain.BayesianConfig `json:"config,omitempty" yaml:"config,omitempty"`
	Quantification *QuantificationRequest `json:"quantification,omitempty" yaml:"quantification,omitempty"`
}

type ServerStatus struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	// Cached reports that the response was served from the inference cache. The result
	// is the stored one, so its ID and CreatedAt are those of the original computation.
	Cached     bool    `json:"cached"`
	DurationMS float64 `json:"duration_ms"`
}

type InferenceResponse struct {
	Result       *domain.InferenceResult    `json:"result"`
	Uncertainty  *domain.UncertaintyMeasure `json:"uncertainty"`
	ServerStatus ServerStatus               `json:"server_status"`
}

// ReasoningService is the boundary around the inference engine and the uncertainty
// quantifier. It applies request timeouts, caching and metrics; the core stays pure.
type ReasoningService struct {
	engine     *inference.Engine
	quantifier *uncertainty.Quantifier
	defaults   domain.BayesianConfig
	timeout    time.Duration

	cache    domain.InferenceCache
	cacheTTL time.Duration
	// models reports the library generation; model-backed requests are cached per generation.
	models func() uint64

	metrics *telemetry.Metrics
	logger  *zap.Logger
}

func NewReasoningService(engine *inference.Engine, quantifier *uncertainty.Quantifier, defaults domain.BayesianConfig, timeout time.Duration, metrics *telemetry.Metrics, logger *zap.Logger) *ReasoningService {
	return &ReasoningService{
		engine:     engine,
		quantifier: quantifier,
		defaults:   defaults.WithDefaults(),
		timeout:    timeout,
		metrics:    metrics,
		logger:     logger,
	}
}

// SetCache enables response caching. A nil cache disables it.
func (s *ReasoningService) SetCache(c domain.InferenceCache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

// SetModelGeneration ties cached model-backed responses to the library state
// reported by fn, so refitting, replacing or removing a model invalidates them.
func (s *ReasoningService) SetModelGeneration(fn func() uint64) {
	s.models = fn
}

// Infer runs one inference call and quantifies the uncertainty of its MAP hypothesis.
func (s *ReasoningService) Infer(ctx context.Context, req InferenceRequest) (*InferenceResponse, error) {
	start := time.Now()

	cfg := s.defaults
	if req.Config != nil {
		cfg = req.Config.WithDefaults()
	}

	key := s.cacheKey(req, cfg)
	if resp := s.cached(ctx, key); resp != nil {
		resp.ServerStatus = status(start, true)
		return resp, nil
	}

	resp, err := withTimeout(ctx, s.timeout, func() (*InferenceResponse, error) {
		res, err := s.engine.Infer(req.Hypotheses, req.Evidence, cfg)
		if err != nil {
			return nil, err
		}
		method, levels := s.quantification(req.Quantification)
		um, err := s.quantifier.QuantifyLevels(res, method, levels)
		if err != nil {
			return nil, fmt.Errorf("quantifying result: %w", err)
		}
		return &InferenceResponse{Result: res, Uncertainty: um}, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveInference(string(resp.Result.ModelType), string(resp.Result.ConvergenceStatus), resp.Result.EvidenceCount, time.Since(start))
	s.metrics.ObserveQuantification(string(resp.Uncertainty.Method))
	if resp.Result.DegenerateEvidence {
		s.logger.Warn("inference hit degenerate evidence",
			zap.String("result_id", resp.Result.ID),
			zap.Int("evidence_count", resp.Result.EvidenceCount))
	}

	s.store(ctx, key, resp)
	resp.ServerStatus = status(start, false)
	return resp, nil
}

// Quantify computes an uncertainty measure for an existing result.
func (s *ReasoningService) Quantify(ctx context.Context, res *domain.InferenceResult, q *QuantificationRequest) (*domain.UncertaintyMeasure, error) {
	if res == nil {
		return nil, &domain.InvalidHypothesisSetError{Reason: "missing inference result"}
	}
	method, levels := s.quantification(q)
	um, err := withTimeout(ctx, s.timeout, func() (*domain.UncertaintyMeasure, error) {
		return s.quantifier.QuantifyLevels(res, method, levels)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveQuantification(string(um.Method))
	return um, nil
}

// Calibrate scores predicted probabilities against observed binary outcomes.
func (s *ReasoningService) Calibrate(predictions []float64, outcomes []bool, bins int) (*domain.CalibrationReport, error) {
	return uncertainty.Calibrate(predictions, outcomes, bins)
}

func (s *ReasoningService) quantification(q *QuantificationRequest) (domain.QuantificationMethod, []float64) {
	if q == nil {
		return "", nil
	}
	return q.Method, q.Levels
}

type cacheScope struct {
	Request    InferenceRequest `json:"request"`
	Generation uint64           `json:"generation"`
}

func (s *ReasoningService) cacheKey(req InferenceRequest, cfg domain.BayesianConfig) string {
	if s.cache == nil {
		return ""
	}
	scope := cacheScope{Request: req}
	if cfg.ModelType != domain.ModelDirect {
		if s.models == nil {
			// Without a generation there is no way to tell when the model changes.
			return ""
		}
		scope.Generation = s.models()
	}
	key, err := cache.Fingerprint(scope)
	if err != nil {
		s.logger.Warn("failed to fingerprint inference request", zap.Error(err))
		return ""
	}
	return key
}

func (s *ReasoningService) cached(ctx context.Context, key string) *InferenceResponse {
	if key == "" {
		return nil
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.ObserveCache(telemetry.CacheError)
		s.logger.Warn("inference cache lookup failed", zap.Error(err))
		return nil
	}
	if !ok {
		s.metrics.ObserveCache(telemetry.CacheMiss)
		return nil
	}
	var resp InferenceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.metrics.ObserveCache(telemetry.CacheError)
		s.logger.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		return nil
	}
	s.metrics.ObserveCache(telemetry.CacheHit)
	return &resp
}

func (s *ReasoningService) store(ctx context.Context, key string, resp *InferenceResponse) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("failed to encode inference response", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache inference response", zap.Error(err))
	}
}

func status(start time.Time, cached bool) ServerStatus {
	return ServerStatus{
		Version:    buildconfig.Version(),
		Commit:     buildconfig.Commit(),
		Cached:     cached,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000,
	}
}

// withTimeout runs fn and returns ErrTimeout if ctx or the timeout fires first.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn()
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

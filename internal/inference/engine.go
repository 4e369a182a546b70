// Package inference computes posterior distributions over hypotheses by sequential
// Bayesian updating in log space.
package inference

import (
	"fmt"
	"math"
	"time"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// Engine runs inference calls. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	models ModelSource
	logger *zap.Logger
}

func NewEngine(models ModelSource, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{models: models, logger: logger}
}

// Infer folds evidence into the hypothesis priors and returns the posterior.
// All evidence is validated before any of it is applied.
func (e *Engine) Infer(hyps []domain.Hypothesis, evidence []domain.Evidence, cfg domain.BayesianConfig) (*domain.InferenceResult, error) {
	acc, err := e.Stream(hyps, cfg)
	if err != nil {
		return nil, err
	}

	prepared := make([]domain.Evidence, len(evidence))
	for i, ev := range evidence {
		ev = ev.Normalize()
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("evidence %d: %w", i, err)
		}
		prepared[i] = ev
	}

	for i, ev := range prepared {
		if err := acc.Fold(ev); err != nil {
			return nil, fmt.Errorf("evidence %d: %w", i, err)
		}
	}

	res := acc.Result()
	e.logger.Debug("inference complete",
		zap.String("result_id", res.ID),
		zap.String("model_type", string(res.ModelType)),
		zap.Int("hypotheses", len(hyps)),
		zap.Int("evidence", res.EvidenceCount),
		zap.String("status", string(res.ConvergenceStatus)))
	return res, nil
}

// Stream validates the hypothesis set and returns an accumulator that evidence can be
// folded into one item at a time. Folding the same evidence in the same order gives the
// same posterior as Infer.
func (e *Engine) Stream(hyps []domain.Hypothesis, cfg domain.BayesianConfig) (*Accumulator, error) {
	cfg = cfg.WithDefaults()
	priors, err := domain.ValidateHypotheses(hyps)
	if err != nil {
		return nil, err
	}
	src, err := newSource(hyps, cfg, e.models)
	if err != nil {
		return nil, err
	}

	acc := &Accumulator{
		cfg:    cfg,
		hyps:   append([]domain.Hypothesis(nil), hyps...),
		logp:   make([]float64, len(hyps)),
		ll:     make([]float64, len(hyps)),
		source: src,
		logger: e.logger,
	}
	for i, h := range hyps {
		acc.logp[i] = logOf(priors[h.Key()])
	}
	return acc, nil
}

// Accumulator holds the running log-posterior of one inference. It is not safe for
// concurrent use.
type Accumulator struct {
	cfg    domain.BayesianConfig
	hyps   []domain.Hypothesis
	logp   []float64
	ll     []float64
	source likelihoodSource
	logger *zap.Logger

	iterations int
	truncated  bool
	degenerate bool
	lastDelta  float64
}

// Fold applies one evidence item. Once MaxIterations items have been folded further
// evidence is ignored and the result reports max_iterations_reached.
func (a *Accumulator) Fold(ev domain.Evidence) error {
	ev = ev.Normalize()
	if err := ev.Validate(); err != nil {
		return err
	}
	if a.iterations >= a.cfg.MaxIterations {
		a.truncated = true
		return nil
	}
	if err := a.source.logLikelihoods(ev, a.ll); err != nil {
		return err
	}

	before := a.probabilities()

	next := make([]float64, len(a.logp))
	possible := false
	for i, lp := range a.logp {
		next[i] = lp + ev.Weight*a.ll[i]
		if !math.IsInf(next[i], -1) {
			possible = true
		}
	}

	if !possible {
		uniform := math.Log(1 / float64(len(a.logp)))
		for i := range next {
			next[i] = uniform
		}
		a.degenerate = true
		a.logger.Warn("evidence has zero likelihood under every hypothesis, resetting to uniform",
			zap.String("evidence_id", ev.ID))
	} else {
		norm := floats.LogSumExp(next)
		for i := range next {
			next[i] -= norm
		}
	}

	a.logp = next
	a.iterations++

	after := a.probabilities()
	var delta float64
	for i := range after {
		delta = math.Max(delta, math.Abs(after[i]-before[i]))
	}
	a.lastDelta = delta
	return nil
}

func (a *Accumulator) probabilities() []float64 {
	p := make([]float64, len(a.logp))
	norm := floats.LogSumExp(a.logp)
	for i, lp := range a.logp {
		p[i] = math.Exp(lp - norm)
	}
	return p
}

// Snapshot returns the current posterior keyed by hypothesis key.
func (a *Accumulator) Snapshot() domain.Distribution {
	p := a.probabilities()
	d := make(domain.Distribution, len(a.hyps))
	for i, h := range a.hyps {
		d[h.Key()] = p[i]
	}
	d.Normalize()
	return d
}

// Iterations is the number of evidence items folded so far.
func (a *Accumulator) Iterations() int { return a.iterations }

func (a *Accumulator) Status() domain.ConvergenceStatus {
	switch {
	case a.truncated:
		return domain.ConvergenceMaxIterations
	case a.iterations == 0 || a.lastDelta < a.cfg.ConfidenceThreshold/10:
		return domain.ConvergenceConverged
	default:
		return domain.ConvergenceNotConverged
	}
}

// Result freezes the current state into an InferenceResult.
func (a *Accumulator) Result() *domain.InferenceResult {
	return &domain.InferenceResult{
		ID:                 uuid.NewString(),
		Posteriors:         a.Snapshot(),
		Method:             domain.MethodSequentialBayes,
		ModelType:          a.cfg.ModelType,
		ConvergenceStatus:  a.Status(),
		Iterations:         a.iterations,
		EvidenceCount:      a.iterations,
		DegenerateEvidence: a.degenerate,
		MaxDelta:           a.lastDelta,
		CreatedAt:          time.Now().UTC(),
	}
}

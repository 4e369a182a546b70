// Package uncertainty turns posterior distributions into interval estimates.
package uncertainty

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Quantifier computes uncertainty measures for inference results. It holds only
// configuration and is safe for concurrent use.
type Quantifier struct {
	cfg    domain.UncertaintyQuantifierConfig
	logger *zap.Logger
}

func NewQuantifier(cfg domain.UncertaintyQuantifierConfig, logger *zap.Logger) *Quantifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Quantifier{cfg: cfg.WithDefaults(), logger: logger}
}

func (q *Quantifier) Config() domain.UncertaintyQuantifierConfig { return q.cfg }

// Quantify measures the uncertainty of the MAP hypothesis of res at the configured
// confidence levels. An empty method selects the configured default.
func (q *Quantifier) Quantify(res *domain.InferenceResult, method domain.QuantificationMethod) (*domain.UncertaintyMeasure, error) {
	return q.QuantifyLevels(res, method, q.cfg.ConfidenceLevels)
}

// QuantifyLevels is Quantify with explicit confidence levels.
func (q *Quantifier) QuantifyLevels(res *domain.InferenceResult, method domain.QuantificationMethod, levels []float64) (*domain.UncertaintyMeasure, error) {
	if err := validatePosteriors(res); err != nil {
		return nil, err
	}
	if method == "" {
		method = q.cfg.DefaultMethod
	}
	if len(levels) == 0 {
		levels = q.cfg.ConfidenceLevels
	}
	for _, l := range levels {
		if !(l > 0 && l < 1) {
			return nil, &domain.UnsupportedMethodError{Method: string(method), Reason: fmt.Sprintf("confidence level %v outside (0,1)", l)}
		}
	}

	key, p := res.MAP()
	h, hn := entropy(res.Posteriors)
	n := float64(res.EvidenceCount) + q.cfg.PriorStrength

	m := &domain.UncertaintyMeasure{
		ResultID:          res.ID,
		Hypothesis:        key,
		PointEstimate:     p,
		Entropy:           h,
		NormalizedEntropy: hn,
		Method:            method,
	}

	switch method {
	case domain.QuantifyAnalytic:
		m.Variance = p * (1 - p) / (n + 1)
		sd := math.Sqrt(m.Variance)
		for _, l := range levels {
			z := distuv.UnitNormal.Quantile(0.5 + l/2)
			m.Intervals = append(m.Intervals, bounded(l, p, p-z*sd, p+z*sd))
		}

	case domain.QuantifyBootstrap:
		if len(res.Posteriors) < 2 {
			return nil, &domain.UnsupportedMethodError{Method: string(method), Reason: "bootstrap needs at least two hypotheses"}
		}
		samples, err := q.bootstrap(res.Posteriors, key, n)
		if err != nil {
			return nil, err
		}
		m.Samples = len(samples)
		m.Variance = stat.Variance(samples, nil)
		sort.Float64s(samples)
		for _, l := range levels {
			lo := stat.Quantile((1-l)/2, stat.Empirical, samples, nil)
			hi := stat.Quantile((1+l)/2, stat.Empirical, samples, nil)
			m.Intervals = append(m.Intervals, bounded(l, p, lo, hi))
		}

	case domain.QuantifyEntropy:
		m.Variance = p * (1 - p) / (n + 1)
		for _, l := range levels {
			spread := hn * l
			m.Intervals = append(m.Intervals, bounded(l, p, p*(1-spread), p+(1-p)*spread))
		}

	default:
		return nil, &domain.UnsupportedMethodError{Method: string(method), Reason: "unknown quantification method"}
	}

	m.StdDev = math.Sqrt(m.Variance)
	return m, nil
}

// validatePosteriors rejects results that are not a probability distribution.
// Results may come from callers rather than the engine.
func validatePosteriors(res *domain.InferenceResult) error {
	if res == nil || len(res.Posteriors) == 0 {
		return &domain.InvalidHypothesisSetError{Reason: "result has no posteriors"}
	}
	if res.EvidenceCount < 0 {
		return &domain.InvalidHypothesisSetError{Reason: fmt.Sprintf("evidence count %d is negative", res.EvidenceCount)}
	}
	var total float64
	for k, p := range res.Posteriors {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return &domain.InvalidHypothesisSetError{Reason: fmt.Sprintf("posterior of %s is %v, outside [0,1]", k, p)}
		}
		total += p
	}
	if math.Abs(total-1) > domain.Epsilon {
		return &domain.InvalidHypothesisSetError{Reason: fmt.Sprintf("posteriors sum to %v, not 1", total)}
	}
	return nil
}

// entropy returns the Shannon entropy in nats and its value normalized by ln(n).
func entropy(d domain.Distribution) (h, normalized float64) {
	for _, p := range d {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	if len(d) > 1 {
		normalized = h / math.Log(float64(len(d)))
	}
	return h, normalized
}

// bounded clamps [lo, hi] to [0,1] and widens it to contain the point estimate.
func bounded(level, point, lo, hi float64) domain.ConfidenceInterval {
	lo = math.Max(0, math.Min(lo, point))
	hi = math.Min(1, math.Max(hi, point))
	return domain.ConfidenceInterval{Level: level, Lower: lo, Upper: hi}
}

// bootstrapBlock is the number of resamples drawn from one seeded generator.
const bootstrapBlock = 64

// bootstrap draws MonteCarloSamples multinomial resamples of size n from the posterior
// and returns the resampled frequency of key in each. Every block of resamples has its
// own generator seeded from the block index, so output depends only on the seed and not
// on how blocks are spread over workers.
func (q *Quantifier) bootstrap(d domain.Distribution, key string, n float64) ([]float64, error) {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cumulative := make([]float64, len(keys))
	target := -1
	var acc float64
	for i, k := range keys {
		acc += d[k]
		cumulative[i] = acc
		if k == key {
			target = i
		}
	}
	cumulative[len(cumulative)-1] = math.Max(acc, 1)

	draws := int(math.Round(n))
	if draws < 1 {
		draws = 1
	}
	total := q.cfg.MonteCarloSamples
	workers := q.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > total {
		workers = total
	}

	samples := make([]float64, total)
	blocks := (total + bootstrapBlock - 1) / bootstrapBlock

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for b := w; b < blocks; b += workers {
				rng := rand.New(rand.NewSource(q.cfg.Seed + int64(b)))
				end := min((b+1)*bootstrapBlock, total)
				for i := b * bootstrapBlock; i < end; i++ {
					hits := 0
					for k := 0; k < draws; k++ {
						if sort.SearchFloat64s(cumulative, rng.Float64()) == target {
							hits++
						}
					}
					samples[i] = float64(hits) / float64(draws)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	q.logger.Debug("bootstrap complete",
		zap.Int("samples", total),
		zap.Int("workers", workers),
		zap.Int("draws", draws))
	return samples, nil
}

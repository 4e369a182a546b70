package inference

import (
	"fmt"
	"math"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/model"
)

// ModelSource resolves library models by name. *model.Library implements it.
type ModelSource interface {
	Get(name string) (model.ProbabilisticModel, error)
}

// likelihoodSource writes log L(e|h) for every hypothesis into out, in hypothesis order.
type likelihoodSource interface {
	logLikelihoods(e domain.Evidence, out []float64) error
}

func newSource(hyps []domain.Hypothesis, cfg domain.BayesianConfig, models ModelSource) (likelihoodSource, error) {
	switch cfg.ModelType {
	case domain.ModelDirect:
		return directSource{hyps: hyps}, nil
	case domain.ModelBayesianNetwork:
		return newNetworkSource(hyps, cfg, models)
	case domain.ModelMarkovChain, domain.ModelHiddenMarkov, domain.ModelGaussianProcess:
		return newPerHypothesisSource(hyps, cfg, models)
	default:
		return nil, &domain.UnsupportedMethodError{Method: string(cfg.ModelType), Reason: "unknown model type"}
	}
}

// directSource reads likelihoods attached to the evidence.
type directSource struct {
	hyps []domain.Hypothesis
}

func (s directSource) logLikelihoods(e domain.Evidence, out []float64) error {
	if e.Type != domain.EvidenceLikelihood {
		return fmt.Errorf("%w: %s evidence cannot be scored by the direct model", domain.ErrInvalidEvidence, e.Type)
	}
	for i, h := range s.hyps {
		l, ok := e.Likelihoods[h.Key()]
		if !ok {
			l, ok = e.Likelihoods[h.Name]
		}
		if !ok {
			return fmt.Errorf("%w: evidence %s has no likelihood for %s", domain.ErrInvalidEvidence, e.ID, h.Key())
		}
		if math.IsNaN(l) || math.IsInf(l, 0) || l < 0 {
			return fmt.Errorf("%w: evidence %s has likelihood %v for %s", domain.ErrInvalidEvidence, e.ID, l, h.Key())
		}
		out[i] = logOf(l)
	}
	return nil
}

// networkSource scores assignment evidence against one Bayesian network in which each
// hypothesis is a state of the query variable.
type networkSource struct {
	hyps     []domain.Hypothesis
	network  model.ProbabilisticModel
	variable string
}

func newNetworkSource(hyps []domain.Hypothesis, cfg domain.BayesianConfig, models ModelSource) (likelihoodSource, error) {
	if cfg.Network == "" || cfg.QueryVariable == "" {
		return nil, fmt.Errorf("%w: bayesian_network inference needs network and query_variable", domain.ErrInvalidModel)
	}
	m, err := resolve(models, cfg.Network, domain.ModelBayesianNetwork)
	if err != nil {
		return nil, err
	}
	if bn, ok := m.(*model.BayesianNetwork); ok {
		states, found := bn.StatesOf(cfg.QueryVariable)
		if !found {
			return nil, fmt.Errorf("%w: network %s has no variable %q", domain.ErrInvalidModel, cfg.Network, cfg.QueryVariable)
		}
		valid := make(map[string]bool, len(states))
		for _, s := range states {
			valid[s] = true
		}
		for _, h := range hyps {
			if !valid[h.Name] {
				return nil, &domain.InvalidHypothesisSetError{
					Reason: fmt.Sprintf("hypothesis %q is not a state of %s", h.Name, cfg.QueryVariable),
				}
			}
		}
	}
	return networkSource{hyps: hyps, network: m, variable: cfg.QueryVariable}, nil
}

func (s networkSource) logLikelihoods(e domain.Evidence, out []float64) error {
	if e.Type != domain.EvidenceAssignment {
		return fmt.Errorf("%w: %s evidence cannot be scored by a bayesian network", domain.ErrInvalidEvidence, e.Type)
	}
	for i, h := range s.hyps {
		q := model.Query{
			Observation: domain.Observation{Assignment: e.Observation.Assignment},
			Given:       map[string]string{s.variable: h.Name},
		}
		l, err := s.network.Evaluate(q)
		if err != nil {
			return err
		}
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return fmt.Errorf("%w: network produced likelihood %v", domain.ErrInvalidEvidence, l)
		}
		out[i] = logOf(l)
	}
	return nil
}

// perHypothesisSource scores evidence against one library model per hypothesis.
type perHypothesisSource struct {
	evidenceType domain.EvidenceType
	models       []model.ProbabilisticModel
}

func newPerHypothesisSource(hyps []domain.Hypothesis, cfg domain.BayesianConfig, models ModelSource) (likelihoodSource, error) {
	src := perHypothesisSource{
		evidenceType: domain.EvidenceSequence,
		models:       make([]model.ProbabilisticModel, len(hyps)),
	}
	if cfg.ModelType == domain.ModelGaussianProcess {
		src.evidenceType = domain.EvidenceNumeric
	}
	for i, h := range hyps {
		name, ok := cfg.Bindings[h.Key()]
		if !ok {
			name = h.Name
		}
		m, err := resolve(models, name, cfg.ModelType)
		if err != nil {
			return nil, fmt.Errorf("hypothesis %s: %w", h.Key(), err)
		}
		src.models[i] = m
	}
	return src, nil
}

func (s perHypothesisSource) logLikelihoods(e domain.Evidence, out []float64) error {
	if e.Type != s.evidenceType {
		return fmt.Errorf("%w: expected %s evidence, got %s", domain.ErrInvalidEvidence, s.evidenceType, e.Type)
	}
	q := model.QueryFromEvidence(e)
	for i, m := range s.models {
		ll, err := model.LogLikelihood(m, q)
		if err != nil {
			return err
		}
		// -Inf is a zero likelihood and takes the degenerate-evidence path.
		if math.IsNaN(ll) || math.IsInf(ll, 1) {
			return fmt.Errorf("%w: model produced log-likelihood %v", domain.ErrInvalidEvidence, ll)
		}
		out[i] = ll
	}
	return nil
}

func resolve(models ModelSource, name string, want domain.ModelType) (model.ProbabilisticModel, error) {
	if models == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, name)
	}
	m, err := models.Get(name)
	if err != nil {
		return nil, err
	}
	if m.Type() != want {
		return nil, fmt.Errorf("%w: model %s is %s, want %s", domain.ErrInvalidModel, name, m.Type(), want)
	}
	return m, nil
}

func logOf(l float64) float64 {
	if l <= 0 {
		return math.Inf(-1)
	}
	return math.Log(l)
}

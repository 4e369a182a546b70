// Package model is the probabilistic model library: Bayesian networks, Markov chains,
// hidden Markov models and Gaussian processes behind one ProbabilisticModel capability set.
//
// Every variant keeps its parameters behind an atomic pointer. Fit builds a complete new
// parameter set and swaps it in, so concurrent Evaluate calls see either the old or the
// new parameters, never a mix.
package model

import (
	"fmt"
	"math"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"go.uber.org/zap"
)

// Type is the tag used to dispatch between model variants.
type Type = domain.ModelType

// ProbabilisticModel is implemented by every model variant.
type ProbabilisticModel interface {
	Type() Type
	// Fit replaces the model parameters with ones estimated from obs.
	Fit(obs Observations) error
	// Evaluate returns the likelihood of the query under the current parameters.
	Evaluate(q Query) (float64, error)
}

// LogEvaluator is implemented by models that can return log-likelihoods directly,
// which avoids underflow on long sequences.
type LogEvaluator interface {
	LogEvaluate(q Query) (float64, error)
}

// Observations is the training data accepted by Fit. Each variant reads the field it needs.
type Observations struct {
	Sequences [][]string          `json:"sequences,omitempty" yaml:"sequences,omitempty"`
	Records   []map[string]string `json:"records,omitempty" yaml:"records,omitempty"`
	Inputs    [][]float64         `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs   []float64           `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// Query is what Evaluate scores. Given conditions Bayesian network queries.
type Query struct {
	domain.Observation `yaml:",inline"`
	Given              map[string]string `json:"given,omitempty" yaml:"given,omitempty"`
}

// QueryFromEvidence builds the query a model evaluates for an evidence item.
func QueryFromEvidence(e domain.Evidence) Query {
	return Query{Observation: e.Observation}
}

// LogLikelihood evaluates q under m in log space.
func LogLikelihood(m ProbabilisticModel, q Query) (float64, error) {
	if le, ok := m.(LogEvaluator); ok {
		return le.LogEvaluate(q)
	}
	p, err := m.Evaluate(q)
	if err != nil {
		return 0, err
	}
	if p <= 0 {
		return math.Inf(-1), nil
	}
	return math.Log(p), nil
}

// VariableSpec declares one Bayesian network variable. CPT rows are keyed by the
// comma-joined parent states in Parents order; roots use the empty key.
type VariableSpec struct {
	Name    string               `json:"name" yaml:"name"`
	States  []string             `json:"states" yaml:"states"`
	Parents []string             `json:"parents,omitempty" yaml:"parents,omitempty"`
	CPT     map[string][]float64 `json:"cpt,omitempty" yaml:"cpt,omitempty"`
}

// Spec declares a model of any variant. It is the shape used by the YAML catalog and the API.
type Spec struct {
	Name       string           `json:"name" yaml:"name"`
	Type       Type             `json:"type" yaml:"type"`
	States     []string         `json:"states,omitempty" yaml:"states,omitempty"`
	Symbols    []string         `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Initial    []float64        `json:"initial,omitempty" yaml:"initial,omitempty"`
	Transition [][]float64      `json:"transition,omitempty" yaml:"transition,omitempty"`
	Emission   [][]float64      `json:"emission,omitempty" yaml:"emission,omitempty"`
	Smoothing  float64          `json:"smoothing,omitempty" yaml:"smoothing,omitempty"`
	Variables  []VariableSpec   `json:"variables,omitempty" yaml:"variables,omitempty"`
	GP         *domain.GPConfig `json:"gp,omitempty" yaml:"gp,omitempty"`
	Training   *Observations    `json:"training,omitempty" yaml:"training,omitempty"`
}

// New constructs the variant named by spec.Type and fits it when training data is attached.
func New(spec Spec, logger *zap.Logger) (ProbabilisticModel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		m   ProbabilisticModel
		err error
	)
	switch spec.Type {
	case domain.ModelMarkovChain:
		var mc *MarkovChain
		mc, err = NewMarkovChain(spec.States, spec.Initial, spec.Transition, logger)
		if mc != nil {
			mc.Smoothing = spec.Smoothing
		}
		m = mc
	case domain.ModelHiddenMarkov:
		m, err = NewHiddenMarkov(spec.States, spec.Symbols, spec.Initial, spec.Transition, spec.Emission, logger)
	case domain.ModelBayesianNetwork:
		var bn *BayesianNetwork
		bn, err = NewBayesianNetwork(spec.Variables, logger)
		if bn != nil && spec.Smoothing > 0 {
			bn.Smoothing = spec.Smoothing
		}
		m = bn
	case domain.ModelGaussianProcess:
		cfg := domain.DefaultGPConfig()
		if spec.GP != nil {
			cfg = spec.GP.WithDefaults()
		}
		m, err = NewGaussianProcess(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown model type %q", domain.ErrInvalidModel, spec.Type)
	}
	if err != nil {
		return nil, err
	}

	if spec.Training != nil {
		if err := m.Fit(*spec.Training); err != nil {
			return nil, fmt.Errorf("fitting %s: %w", spec.Name, err)
		}
	}
	return m, nil
}

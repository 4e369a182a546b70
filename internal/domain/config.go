package domain

// ModelType selects the probabilistic model family used to compute likelihoods.
type ModelType string

const (
	ModelDirect          ModelType = "direct"
	ModelBayesianNetwork ModelType = "bayesian_network"
	ModelMarkovChain     ModelType = "markov_chain"
	ModelHiddenMarkov    ModelType = "hidden_markov"
	ModelGaussianProcess ModelType = "gaussian_process"
)

func ValidModelType(t string) bool {
	switch ModelType(t) {
	case ModelDirect, ModelBayesianNetwork, ModelMarkovChain, ModelHiddenMarkov, ModelGaussianProcess:
		return true
	}
	return false
}

// BayesianConfig configures one inference call.
type BayesianConfig struct {
	ModelType ModelType `json:"model_type" yaml:"model_type"`
	// ConfidenceThreshold/10 is the max-delta below which inference counts as converged.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// MaxIterations bounds how many evidence items are folded in one call.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// Network names the library model used when ModelType is bayesian_network.
	Network string `json:"network,omitempty" yaml:"network,omitempty"`
	// QueryVariable is the network variable whose states are the hypotheses.
	QueryVariable string `json:"query_variable,omitempty" yaml:"query_variable,omitempty"`
	// Bindings maps hypothesis keys to library model names. Unbound hypotheses
	// resolve to the model registered under the hypothesis name.
	Bindings map[string]string `json:"bindings,omitempty" yaml:"bindings,omitempty"`
}

func DefaultBayesianConfig() BayesianConfig {
	return BayesianConfig{
		ModelType:           ModelDirect,
		ConfidenceThreshold: 0.01,
		MaxIterations:       1000,
	}
}

// WithDefaults returns c with zero fields replaced by defaults.
func (c BayesianConfig) WithDefaults() BayesianConfig {
	d := DefaultBayesianConfig()
	if c.ModelType == "" {
		c.ModelType = d.ModelType
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	return c
}

// BeliefUpdaterConfig configures per-subject belief tracking.
type BeliefUpdaterConfig struct {
	DefaultStrategy      UpdateStrategy `json:"default_strategy" yaml:"default_strategy"`
	ConvergenceThreshold float64        `json:"convergence_threshold" yaml:"convergence_threshold"`
	StabilityWindow      int            `json:"stability_window" yaml:"stability_window"`
	// DecayFactor in (0,1] multiplies the weight of evidence once per newer item.
	DecayFactor float64 `json:"decay_factor" yaml:"decay_factor"`
	// WindowSize is how many recent evidence items the windowed strategy keeps.
	WindowSize int `json:"window_size" yaml:"window_size"`
	// MaxHistory caps retained BeliefUpdate records per subject.
	MaxHistory int `json:"max_history" yaml:"max_history"`
}

func DefaultBeliefUpdaterConfig() BeliefUpdaterConfig {
	return BeliefUpdaterConfig{
		DefaultStrategy:      StrategyImmediate,
		ConvergenceThreshold: 1e-3,
		StabilityWindow:      3,
		DecayFactor:          0.9,
		WindowSize:           10,
		MaxHistory:           500,
	}
}

func (c BeliefUpdaterConfig) WithDefaults() BeliefUpdaterConfig {
	d := DefaultBeliefUpdaterConfig()
	if c.DefaultStrategy == "" {
		c.DefaultStrategy = d.DefaultStrategy
	}
	if c.ConvergenceThreshold <= 0 {
		c.ConvergenceThreshold = d.ConvergenceThreshold
	}
	if c.StabilityWindow <= 0 {
		c.StabilityWindow = d.StabilityWindow
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		c.DecayFactor = d.DecayFactor
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = d.MaxHistory
	}
	return c
}

// UncertaintyQuantifierConfig configures interval estimation.
type UncertaintyQuantifierConfig struct {
	DefaultMethod     QuantificationMethod `json:"default_method" yaml:"default_method"`
	ConfidenceLevels  []float64            `json:"confidence_levels" yaml:"confidence_levels"`
	MonteCarloSamples int                  `json:"monte_carlo_samples" yaml:"monte_carlo_samples"`
	// PriorStrength is the pseudo-count added to the evidence count when treating
	// a posterior as a Dirichlet with finite concentration.
	PriorStrength float64 `json:"prior_strength" yaml:"prior_strength"`
	Seed          int64   `json:"seed" yaml:"seed"`
	// Workers bounds bootstrap parallelism. Zero means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`
}

func DefaultUncertaintyQuantifierConfig() UncertaintyQuantifierConfig {
	return UncertaintyQuantifierConfig{
		DefaultMethod:     QuantifyAnalytic,
		ConfidenceLevels:  []float64{0.90, 0.95, 0.99},
		MonteCarloSamples: 1000,
		PriorStrength:     2,
		Seed:              1,
	}
}

func (c UncertaintyQuantifierConfig) WithDefaults() UncertaintyQuantifierConfig {
	d := DefaultUncertaintyQuantifierConfig()
	if c.DefaultMethod == "" {
		c.DefaultMethod = d.DefaultMethod
	}
	if len(c.ConfidenceLevels) == 0 {
		c.ConfidenceLevels = d.ConfidenceLevels
	}
	if c.MonteCarloSamples <= 0 {
		c.MonteCarloSamples = d.MonteCarloSamples
	}
	if c.PriorStrength <= 0 {
		c.PriorStrength = d.PriorStrength
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	return c
}

type ChanceMode string

const (
	ChanceExpectation ChanceMode = "expectation"
	ChanceSample      ChanceMode = "sample"
)

type Criterion string

const (
	CriterionExpectedValue  Criterion = "expected_value"
	CriterionRiskAdjusted   Criterion = "risk_adjusted"
	CriterionMaxProbability Criterion = "max_probability"
)

// DecisionTreeConfig bounds tree growth and picks resolution rules.
type DecisionTreeConfig struct {
	MaxDepth           int        `json:"max_depth" yaml:"max_depth"`
	MaxBranchesPerNode int        `json:"max_branches_per_node" yaml:"max_branches_per_node"`
	ChanceMode         ChanceMode `json:"chance_mode" yaml:"chance_mode"`
	Criterion          Criterion  `json:"criterion" yaml:"criterion"`
	// RiskAversion scales the uncertainty penalty of the risk_adjusted criterion.
	RiskAversion float64 `json:"risk_aversion" yaml:"risk_aversion"`
	Seed         int64   `json:"seed" yaml:"seed"`
}

func DefaultDecisionTreeConfig() DecisionTreeConfig {
	return DecisionTreeConfig{
		MaxDepth:           8,
		MaxBranchesPerNode: 10,
		ChanceMode:         ChanceExpectation,
		Criterion:          CriterionExpectedValue,
		RiskAversion:       0.5,
		Seed:               1,
	}
}

func (c DecisionTreeConfig) WithDefaults() DecisionTreeConfig {
	d := DefaultDecisionTreeConfig()
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MaxBranchesPerNode <= 0 {
		c.MaxBranchesPerNode = d.MaxBranchesPerNode
	}
	if c.ChanceMode == "" {
		c.ChanceMode = d.ChanceMode
	}
	if c.Criterion == "" {
		c.Criterion = d.Criterion
	}
	if c.RiskAversion < 0 {
		c.RiskAversion = d.RiskAversion
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	return c
}

// GPConfig holds Gaussian process kernel hyperparameters.
type GPConfig struct {
	Kernel             string  `json:"kernel" yaml:"kernel"`
	LengthScale        float64 `json:"length_scale" yaml:"length_scale"`
	SignalVariance     float64 `json:"signal_variance" yaml:"signal_variance"`
	NoiseVariance      float64 `json:"noise_variance" yaml:"noise_variance"`
	MaxConditionNumber float64 `json:"max_condition_number" yaml:"max_condition_number"`
}

func DefaultGPConfig() GPConfig {
	return GPConfig{
		Kernel:             "rbf",
		LengthScale:        1,
		SignalVariance:     1,
		NoiseVariance:      1e-4,
		MaxConditionNumber: 1e12,
	}
}

func (c GPConfig) WithDefaults() GPConfig {
	d := DefaultGPConfig()
	if c.Kernel == "" {
		c.Kernel = d.Kernel
	}
	if c.LengthScale <= 0 {
		c.LengthScale = d.LengthScale
	}
	if c.SignalVariance <= 0 {
		c.SignalVariance = d.SignalVariance
	}
	if c.NoiseVariance <= 0 {
		c.NoiseVariance = d.NoiseVariance
	}
	if c.MaxConditionNumber <= 0 {
		c.MaxConditionNumber = d.MaxConditionNumber
	}
	return c
}

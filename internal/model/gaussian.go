package model

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	KernelRBF      = "rbf"
	KernelMatern52 = "matern52"
)

type gpParams struct {
	inputs [][]float64
	chol   *mat.Cholesky
	alpha  *mat.VecDense
	dim    int
}

// GaussianProcess is a zero-mean GP regressor. Before Fit it evaluates under the prior.
type GaussianProcess struct {
	cfg    domain.GPConfig
	kernel func(a, b []float64) float64
	params atomic.Pointer[gpParams]
}

// NewGaussianProcess returns an unfitted process with the given hyperparameters.
func NewGaussianProcess(cfg domain.GPConfig) (*GaussianProcess, error) {
	cfg = cfg.WithDefaults()
	gp := &GaussianProcess{cfg: cfg}
	switch cfg.Kernel {
	case KernelRBF:
		gp.kernel = gp.rbf
	case KernelMatern52:
		gp.kernel = gp.matern52
	default:
		return nil, fmt.Errorf("%w: unknown kernel %q", domain.ErrInvalidModel, cfg.Kernel)
	}
	return gp, nil
}

func (gp *GaussianProcess) Type() Type { return domain.ModelGaussianProcess }

// Config returns the hyperparameters in use.
func (gp *GaussianProcess) Config() domain.GPConfig { return gp.cfg }

func (gp *GaussianProcess) rbf(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return gp.cfg.SignalVariance * math.Exp(-d*d/(2*gp.cfg.LengthScale*gp.cfg.LengthScale))
}

func (gp *GaussianProcess) matern52(a, b []float64) float64 {
	r := math.Sqrt(5) * floats.Distance(a, b, 2) / gp.cfg.LengthScale
	return gp.cfg.SignalVariance * (1 + r + r*r/3) * math.Exp(-r)
}

// Fit conditions the process on (Inputs, Outputs). The Gram matrix must factorize and
// its condition number must stay under MaxConditionNumber; otherwise a
// *domain.SingularMatrixError is returned and the previous parameters are kept.
func (gp *GaussianProcess) Fit(obs Observations) error {
	n := len(obs.Inputs)
	if n < 2 {
		return &domain.InsufficientDataError{Model: string(domain.ModelGaussianProcess), Need: 2, Got: n}
	}
	if len(obs.Outputs) != n {
		return fmt.Errorf("%w: %d inputs but %d outputs", domain.ErrInvalidModel, n, len(obs.Outputs))
	}
	dim := len(obs.Inputs[0])
	if dim == 0 {
		return fmt.Errorf("%w: empty input vector", domain.ErrInvalidModel)
	}
	inputs := make([][]float64, n)
	for i, x := range obs.Inputs {
		if len(x) != dim {
			return fmt.Errorf("%w: input %d has dimension %d, want %d", domain.ErrInvalidModel, i, len(x), dim)
		}
		inputs[i] = append([]float64(nil), x...)
	}

	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := gp.kernel(inputs[i], inputs[j])
			if i == j {
				v += gp.cfg.NoiseVariance
			}
			k.SetSym(i, j, v)
		}
	}

	chol := new(mat.Cholesky)
	if ok := chol.Factorize(k); !ok {
		return &domain.SingularMatrixError{Threshold: gp.cfg.MaxConditionNumber}
	}
	if cond := chol.Cond(); cond > gp.cfg.MaxConditionNumber {
		return &domain.SingularMatrixError{Condition: cond, Threshold: gp.cfg.MaxConditionNumber}
	}

	alpha := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(alpha, mat.NewVecDense(n, append([]float64(nil), obs.Outputs...))); err != nil {
		return &domain.SingularMatrixError{Threshold: gp.cfg.MaxConditionNumber}
	}

	gp.params.Store(&gpParams{inputs: inputs, chol: chol, alpha: alpha, dim: dim})
	return nil
}

// Predict returns the posterior mean and latent variance at x.
func (gp *GaussianProcess) Predict(x []float64) (mean, variance float64, err error) {
	if len(x) == 0 {
		return 0, 0, fmt.Errorf("%w: empty input vector", domain.ErrInvalidEvidence)
	}
	prior := gp.kernel(x, x)
	p := gp.params.Load()
	if p == nil {
		return 0, prior, nil
	}
	if len(x) != p.dim {
		return 0, 0, fmt.Errorf("%w: input has dimension %d, want %d", domain.ErrInvalidEvidence, len(x), p.dim)
	}

	ks := mat.NewVecDense(len(p.inputs), nil)
	for i, xi := range p.inputs {
		ks.SetVec(i, gp.kernel(xi, x))
	}
	mean = mat.Dot(ks, p.alpha)

	v := mat.NewVecDense(len(p.inputs), nil)
	if err := p.chol.SolveVecTo(v, ks); err != nil {
		return 0, 0, &domain.SingularMatrixError{Threshold: gp.cfg.MaxConditionNumber}
	}
	variance = prior - mat.Dot(ks, v)
	if variance < 0 {
		variance = 0
	}
	return mean, variance, nil
}

// Evaluate returns the predictive density of q.Output at q.Input.
func (gp *GaussianProcess) Evaluate(q Query) (float64, error) {
	d, y, err := gp.predictive(q)
	if err != nil {
		return 0, err
	}
	return d.Prob(y), nil
}

func (gp *GaussianProcess) LogEvaluate(q Query) (float64, error) {
	d, y, err := gp.predictive(q)
	if err != nil {
		return 0, err
	}
	return d.LogProb(y), nil
}

func (gp *GaussianProcess) predictive(q Query) (distuv.Normal, float64, error) {
	if q.Output == nil {
		return distuv.Normal{}, 0, fmt.Errorf("%w: gaussian process query needs an output", domain.ErrInvalidEvidence)
	}
	mean, variance, err := gp.Predict(q.Input)
	if err != nil {
		return distuv.Normal{}, 0, err
	}
	return distuv.Normal{Mu: mean, Sigma: math.Sqrt(variance + gp.cfg.NoiseVariance)}, *q.Output, nil
}

package model

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"go.uber.org/zap"
)

const (
	stationaryMaxIterations = 10000
	stationaryTolerance     = 1e-12
)

type markovParams struct {
	states     []string
	index      map[string]int
	initial    []float64
	transition [][]float64
}

// MarkovChain is a discrete-state chain with a row-stochastic transition matrix.
type MarkovChain struct {
	// Smoothing is the Laplace pseudo-count added to every transition during Fit.
	Smoothing float64

	params atomic.Pointer[markovParams]
	logger *zap.Logger
}

// NewMarkovChain builds a chain over states. A nil transition matrix or initial
// distribution defaults to uniform. Rows that do not sum to one are renormalized with a
// warning. States may be empty, in which case they are learned by the first Fit.
func NewMarkovChain(states []string, initial []float64, transition [][]float64, logger *zap.Logger) (*MarkovChain, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mc := &MarkovChain{logger: logger}
	if len(states) == 0 {
		if len(transition) > 0 {
			return nil, fmt.Errorf("%w: transition matrix given without states", domain.ErrInvalidModel)
		}
		mc.params.Store(&markovParams{index: map[string]int{}})
		return mc, nil
	}

	p, err := buildMarkovParams(states, initial, transition, logger)
	if err != nil {
		return nil, err
	}
	mc.params.Store(p)
	return mc, nil
}

func buildMarkovParams(states []string, initial []float64, transition [][]float64, logger *zap.Logger) (*markovParams, error) {
	idx, err := indexOf(states)
	if err != nil {
		return nil, err
	}
	n := len(states)

	if transition == nil {
		transition = uniformMatrix(n, n)
	}
	if len(transition) != n {
		return nil, fmt.Errorf("%w: transition has %d rows for %d states", domain.ErrInvalidModel, len(transition), n)
	}
	rows, err := normalizeRows("transition", transition, n, logger)
	if err != nil {
		return nil, err
	}

	if initial == nil {
		initial = uniformVector(n)
	}
	if len(initial) != n {
		return nil, fmt.Errorf("%w: initial has %d entries for %d states", domain.ErrInvalidModel, len(initial), n)
	}
	init, fixed, err := normalizeVector(initial)
	if err != nil {
		return nil, err
	}
	if fixed {
		logger.Warn("initial distribution is not normalized, renormalized", zap.Float64("sum", sum(initial)))
	}

	return &markovParams{
		states:     append([]string(nil), states...),
		index:      idx,
		initial:    init,
		transition: rows,
	}, nil
}

func (mc *MarkovChain) Type() Type { return domain.ModelMarkovChain }

// States returns the state names in matrix order.
func (mc *MarkovChain) States() []string {
	return append([]string(nil), mc.params.Load().states...)
}

// TransitionMatrix returns a copy of the current transition matrix.
func (mc *MarkovChain) TransitionMatrix() [][]float64 {
	return copyMatrix(mc.params.Load().transition)
}

// Initial returns a copy of the initial state distribution.
func (mc *MarkovChain) Initial() []float64 {
	return append([]float64(nil), mc.params.Load().initial...)
}

// Fit estimates transition probabilities from observed state sequences by counting
// transitions. The chain needs at least one transition. When the chain was created
// without states they are taken from the data in sorted order.
func (mc *MarkovChain) Fit(obs Observations) error {
	cur := mc.params.Load()

	transitions := 0
	for _, seq := range obs.Sequences {
		if len(seq) > 1 {
			transitions += len(seq) - 1
		}
	}
	if transitions < 1 {
		return &domain.InsufficientDataError{Model: string(domain.ModelMarkovChain), Need: 1, Got: transitions}
	}

	states := cur.states
	if len(states) == 0 {
		seen := map[string]bool{}
		for _, seq := range obs.Sequences {
			for _, s := range seq {
				if !seen[s] {
					seen[s] = true
					states = append(states, s)
				}
			}
		}
		sort.Strings(states)
	}
	idx, err := indexOf(states)
	if err != nil {
		return err
	}
	n := len(states)

	counts := make([][]float64, n)
	for i := range counts {
		counts[i] = make([]float64, n)
		for j := range counts[i] {
			counts[i][j] = mc.Smoothing
		}
	}
	starts := make([]float64, n)
	for i := range starts {
		starts[i] = mc.Smoothing
	}

	for _, seq := range obs.Sequences {
		for t, s := range seq {
			j, ok := idx[s]
			if !ok {
				return fmt.Errorf("%w: unknown state %q", domain.ErrInvalidModel, s)
			}
			if t == 0 {
				starts[j]++
				continue
			}
			counts[idx[seq[t-1]]][j]++
		}
	}

	next, err := buildMarkovParams(states, starts, counts, zap.NewNop())
	if err != nil {
		return err
	}
	mc.params.Store(next)
	mc.logger.Debug("markov chain fitted",
		zap.Int("states", n),
		zap.Int("transitions", transitions))
	return nil
}

// Evaluate returns the probability of observing q.Symbols as a path through the chain.
func (mc *MarkovChain) Evaluate(q Query) (float64, error) {
	lp, err := mc.LogEvaluate(q)
	if err != nil {
		return 0, err
	}
	return math.Exp(lp), nil
}

// LogEvaluate returns the log-probability of the path q.Symbols. Unknown states have
// probability zero.
func (mc *MarkovChain) LogEvaluate(q Query) (float64, error) {
	p := mc.params.Load()
	if len(p.states) == 0 {
		return 0, &domain.InsufficientDataError{Model: string(domain.ModelMarkovChain), Need: 1, Got: 0}
	}
	if len(q.Symbols) == 0 {
		return 0, fmt.Errorf("%w: empty sequence", domain.ErrInvalidEvidence)
	}

	first, ok := p.index[q.Symbols[0]]
	if !ok {
		return math.Inf(-1), nil
	}
	lp := math.Log(p.initial[first])
	prev := first
	for _, s := range q.Symbols[1:] {
		cur, ok := p.index[s]
		if !ok {
			return math.Inf(-1), nil
		}
		lp += math.Log(p.transition[prev][cur])
		prev = cur
	}
	return lp, nil
}

// StepDistribution returns the state distribution after n steps starting from start.
func (mc *MarkovChain) StepDistribution(start string, n int) (domain.Distribution, error) {
	p := mc.params.Load()
	i, ok := p.index[start]
	if !ok {
		return nil, fmt.Errorf("%w: unknown state %q", domain.ErrInvalidEvidence, start)
	}
	v := make([]float64, len(p.states))
	v[i] = 1
	for step := 0; step < n; step++ {
		v = multiply(v, p.transition)
	}
	return toDistribution(p.states, v), nil
}

// Stationary returns the stationary distribution by bounded power iteration from the
// initial distribution. Periodic chains may not settle; the last iterate is returned.
func (mc *MarkovChain) Stationary() domain.Distribution {
	p := mc.params.Load()
	v := append([]float64(nil), p.initial...)
	for it := 0; it < stationaryMaxIterations; it++ {
		next := multiply(v, p.transition)
		var delta float64
		for i := range next {
			delta = math.Max(delta, math.Abs(next[i]-v[i]))
		}
		v = next
		if delta < stationaryTolerance {
			break
		}
	}
	return toDistribution(p.states, v)
}

func multiply(v []float64, m [][]float64) []float64 {
	out := make([]float64, len(v))
	for i, vi := range v {
		if vi == 0 {
			continue
		}
		for j, mij := range m[i] {
			out[j] += vi * mij
		}
	}
	return out
}

func toDistribution(names []string, v []float64) domain.Distribution {
	d := make(domain.Distribution, len(names))
	for i, n := range names {
		d[n] = v[i]
	}
	return d
}

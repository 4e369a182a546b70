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
	defaultBaumWelchIterations = 100
	defaultBaumWelchTolerance  = 1e-6
	probabilityFloor           = 1e-10
)

type hmmParams struct {
	states     []string
	symbols    []string
	symbolIdx  map[string]int
	initial    []float64
	transition [][]float64
	emission   [][]float64
}

// HiddenMarkov is a discrete hidden Markov model: hidden states, observable symbols,
// a transition matrix and an emission matrix.
type HiddenMarkov struct {
	MaxIterations int
	Tolerance     float64

	params atomic.Pointer[hmmParams]
	logger *zap.Logger
}

// NewHiddenMarkov builds an HMM. Missing matrices get a deterministic, slightly
// asymmetric starting point so Baum-Welch can separate the states. Symbols may be
// empty, in which case they are learned by the first Fit.
func NewHiddenMarkov(states, symbols []string, initial []float64, transition, emission [][]float64, logger *zap.Logger) (*HiddenMarkov, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: hidden markov model needs states", domain.ErrInvalidModel)
	}
	h := &HiddenMarkov{
		MaxIterations: defaultBaumWelchIterations,
		Tolerance:     defaultBaumWelchTolerance,
		logger:        logger,
	}
	p, err := buildHMMParams(states, symbols, initial, transition, emission, logger)
	if err != nil {
		return nil, err
	}
	h.params.Store(p)
	return h, nil
}

func buildHMMParams(states, symbols []string, initial []float64, transition, emission [][]float64, logger *zap.Logger) (*hmmParams, error) {
	if _, err := indexOf(states); err != nil {
		return nil, err
	}
	symIdx, err := indexOf(symbols)
	if err != nil {
		return nil, err
	}
	n, m := len(states), len(symbols)

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

	if transition == nil {
		transition = seededTransition(n)
	}
	if len(transition) != n {
		return nil, fmt.Errorf("%w: transition has %d rows for %d states", domain.ErrInvalidModel, len(transition), n)
	}
	trans, err := normalizeRows("transition", transition, n, logger)
	if err != nil {
		return nil, err
	}

	var emit [][]float64
	if m > 0 {
		if emission == nil {
			emission = seededEmission(n, m)
		}
		if len(emission) != n {
			return nil, fmt.Errorf("%w: emission has %d rows for %d states", domain.ErrInvalidModel, len(emission), n)
		}
		emit, err = normalizeRows("emission", emission, m, logger)
		if err != nil {
			return nil, err
		}
	}

	return &hmmParams{
		states:     append([]string(nil), states...),
		symbols:    append([]string(nil), symbols...),
		symbolIdx:  symIdx,
		initial:    init,
		transition: trans,
		emission:   emit,
	}, nil
}

func seededTransition(n int) [][]float64 {
	t := make([][]float64, n)
	for i := range t {
		t[i] = make([]float64, n)
		for j := range t[i] {
			t[i][j] = 1
			if i == j {
				t[i][j] = 2
			}
		}
	}
	return t
}

func seededEmission(n, m int) [][]float64 {
	e := make([][]float64, n)
	for i := range e {
		e[i] = make([]float64, m)
		for k := range e[i] {
			e[i][k] = 1 + 0.5*float64((i+k)%m)/float64(m)
		}
	}
	return e
}

func (h *HiddenMarkov) Type() Type { return domain.ModelHiddenMarkov }

func (h *HiddenMarkov) States() []string {
	return append([]string(nil), h.params.Load().states...)
}

func (h *HiddenMarkov) Symbols() []string {
	return append([]string(nil), h.params.Load().symbols...)
}

func (h *HiddenMarkov) TransitionMatrix() [][]float64 {
	return copyMatrix(h.params.Load().transition)
}

func (h *HiddenMarkov) EmissionMatrix() [][]float64 {
	return copyMatrix(h.params.Load().emission)
}

// Evaluate returns P(q.Symbols) under the model.
func (h *HiddenMarkov) Evaluate(q Query) (float64, error) {
	lp, err := h.LogEvaluate(q)
	if err != nil {
		return 0, err
	}
	return math.Exp(lp), nil
}

// LogEvaluate runs the scaled forward algorithm and returns log P(q.Symbols).
func (h *HiddenMarkov) LogEvaluate(q Query) (float64, error) {
	p := h.params.Load()
	if len(p.symbols) == 0 {
		return 0, &domain.InsufficientDataError{Model: string(domain.ModelHiddenMarkov), Need: 2 * len(p.states), Got: 0}
	}
	if len(q.Symbols) == 0 {
		return 0, fmt.Errorf("%w: empty sequence", domain.ErrInvalidEvidence)
	}
	obs, ok := p.encode(q.Symbols)
	if !ok {
		return math.Inf(-1), nil
	}
	_, scales := p.forward(obs)
	var lp float64
	for _, c := range scales {
		if c == 0 {
			return math.Inf(-1), nil
		}
		lp += math.Log(c)
	}
	return lp, nil
}

func (p *hmmParams) encode(symbols []string) ([]int, bool) {
	out := make([]int, len(symbols))
	for i, s := range symbols {
		k, ok := p.symbolIdx[s]
		if !ok {
			return nil, false
		}
		out[i] = k
	}
	return out, true
}

// forward returns the per-step normalized forward variables and the scale factors.
// The product of scales is the sequence likelihood.
func (p *hmmParams) forward(obs []int) ([][]float64, []float64) {
	n := len(p.states)
	alpha := make([][]float64, len(obs))
	scales := make([]float64, len(obs))

	for t, o := range obs {
		alpha[t] = make([]float64, n)
		for j := 0; j < n; j++ {
			var a float64
			if t == 0 {
				a = p.initial[j]
			} else {
				for i := 0; i < n; i++ {
					a += alpha[t-1][i] * p.transition[i][j]
				}
			}
			alpha[t][j] = a * p.emission[j][o]
			scales[t] += alpha[t][j]
		}
		if scales[t] == 0 {
			return alpha, scales
		}
		for j := range alpha[t] {
			alpha[t][j] /= scales[t]
		}
	}
	return alpha, scales
}

// backward returns beta variables scaled with the forward scale factors.
func (p *hmmParams) backward(obs []int, scales []float64) [][]float64 {
	n := len(p.states)
	T := len(obs)
	beta := make([][]float64, T)
	beta[T-1] = make([]float64, n)
	for i := range beta[T-1] {
		beta[T-1][i] = 1
	}
	for t := T - 2; t >= 0; t-- {
		beta[t] = make([]float64, n)
		for i := 0; i < n; i++ {
			var b float64
			for j := 0; j < n; j++ {
				b += p.transition[i][j] * p.emission[j][obs[t+1]] * beta[t+1][j]
			}
			beta[t][i] = b / scales[t+1]
		}
	}
	return beta
}

// Fit runs Baum-Welch over the observed symbol sequences. The model needs at least
// two observed symbols per hidden state.
func (h *HiddenMarkov) Fit(obs Observations) error {
	cur := h.params.Load()
	n := len(cur.states)

	total := 0
	for _, seq := range obs.Sequences {
		total += len(seq)
	}
	if need := 2 * n; total < need {
		return &domain.InsufficientDataError{Model: string(domain.ModelHiddenMarkov), Need: need, Got: total}
	}

	params := cur
	if len(cur.symbols) == 0 {
		seen := map[string]bool{}
		var symbols []string
		for _, seq := range obs.Sequences {
			for _, s := range seq {
				if !seen[s] {
					seen[s] = true
					symbols = append(symbols, s)
				}
			}
		}
		sort.Strings(symbols)
		var err error
		params, err = buildHMMParams(cur.states, symbols, cur.initial, cur.transition, nil, h.logger)
		if err != nil {
			return err
		}
	}

	encoded := make([][]int, 0, len(obs.Sequences))
	for _, seq := range obs.Sequences {
		if len(seq) == 0 {
			continue
		}
		e, ok := params.encode(seq)
		if !ok {
			return fmt.Errorf("%w: sequence contains unknown symbols", domain.ErrInvalidModel)
		}
		encoded = append(encoded, e)
	}

	maxIter := h.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultBaumWelchIterations
	}
	prevLL := math.Inf(-1)
	iterations := 0
	for iterations < maxIter {
		iterations++
		next, ll := params.baumWelchStep(encoded)
		params = next
		if math.Abs(ll-prevLL) < h.Tolerance {
			break
		}
		prevLL = ll
	}

	h.params.Store(params)
	h.logger.Debug("hidden markov model fitted",
		zap.Int("states", n),
		zap.Int("symbols", len(params.symbols)),
		zap.Int("iterations", iterations),
		zap.Float64("log_likelihood", prevLL))
	return nil
}

// baumWelchStep performs one EM re-estimation and returns the new parameters along with
// the log-likelihood of the data under the old ones.
func (p *hmmParams) baumWelchStep(seqs [][]int) (*hmmParams, float64) {
	n, m := len(p.states), len(p.symbols)

	piNum := make([]float64, n)
	aNum := make([][]float64, n)
	bNum := make([][]float64, n)
	for i := 0; i < n; i++ {
		aNum[i] = make([]float64, n)
		bNum[i] = make([]float64, m)
	}

	var ll float64
	for _, obs := range seqs {
		alpha, scales := p.forward(obs)
		degenerate := false
		for _, c := range scales {
			if c == 0 {
				degenerate = true
				break
			}
			ll += math.Log(c)
		}
		if degenerate {
			continue
		}
		beta := p.backward(obs, scales)

		for t := range obs {
			gamma := make([]float64, n)
			var gsum float64
			for i := 0; i < n; i++ {
				gamma[i] = alpha[t][i] * beta[t][i]
				gsum += gamma[i]
			}
			for i := 0; i < n; i++ {
				g := gamma[i] / gsum
				if t == 0 {
					piNum[i] += g
				}
				bNum[i][obs[t]] += g
			}

			if t == len(obs)-1 {
				continue
			}
			var xsum float64
			xi := make([][]float64, n)
			for i := 0; i < n; i++ {
				xi[i] = make([]float64, n)
				for j := 0; j < n; j++ {
					xi[i][j] = alpha[t][i] * p.transition[i][j] * p.emission[j][obs[t+1]] * beta[t+1][j]
					xsum += xi[i][j]
				}
			}
			if xsum == 0 {
				continue
			}
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					aNum[i][j] += xi[i][j] / xsum
				}
			}
		}
	}

	next := &hmmParams{
		states:     p.states,
		symbols:    p.symbols,
		symbolIdx:  p.symbolIdx,
		initial:    floorAndNormalize(piNum),
		transition: make([][]float64, n),
		emission:   make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		next.transition[i] = floorAndNormalize(aNum[i])
		next.emission[i] = floorAndNormalize(bNum[i])
	}
	return next, ll
}

func floorAndNormalize(v []float64) []float64 {
	out := make([]float64, len(v))
	var s float64
	for i, x := range v {
		out[i] = math.Max(x, probabilityFloor)
		s += out[i]
	}
	for i := range out {
		out[i] /= s
	}
	return out
}

// Viterbi returns the most likely hidden state path for symbols and its log-probability.
func (h *HiddenMarkov) Viterbi(symbols []string) ([]string, float64, error) {
	p := h.params.Load()
	if len(symbols) == 0 {
		return nil, 0, fmt.Errorf("%w: empty sequence", domain.ErrInvalidEvidence)
	}
	obs, ok := p.encode(symbols)
	if !ok {
		return nil, math.Inf(-1), fmt.Errorf("%w: sequence contains unknown symbols", domain.ErrInvalidEvidence)
	}
	n := len(p.states)
	T := len(obs)

	delta := make([][]float64, T)
	back := make([][]int, T)
	for t := 0; t < T; t++ {
		delta[t] = make([]float64, n)
		back[t] = make([]int, n)
		for j := 0; j < n; j++ {
			emit := math.Log(p.emission[j][obs[t]])
			if t == 0 {
				delta[t][j] = math.Log(p.initial[j]) + emit
				continue
			}
			best, arg := math.Inf(-1), 0
			for i := 0; i < n; i++ {
				if v := delta[t-1][i] + math.Log(p.transition[i][j]); v > best {
					best, arg = v, i
				}
			}
			delta[t][j] = best + emit
			back[t][j] = arg
		}
	}

	best, last := math.Inf(-1), 0
	for j := 0; j < n; j++ {
		if delta[T-1][j] > best {
			best, last = delta[T-1][j], j
		}
	}
	path := make([]string, T)
	for t := T - 1; t >= 0; t-- {
		path[t] = p.states[last]
		last = back[t][last]
	}
	return path, best, nil
}

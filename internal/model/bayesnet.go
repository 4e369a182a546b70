package model

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"go.uber.org/zap"
)

const defaultNetworkSmoothing = 1.0

type bnVariable struct {
	name       string
	states     []string
	stateIndex map[string]int
	parents    []int
	// cpt is indexed by the flattened parent configuration, then by state.
	cpt [][]float64
}

type networkParams struct {
	vars  []*bnVariable // topological order
	index map[string]int
}

// BayesianNetwork is a DAG of discrete variables with conditional probability tables.
type BayesianNetwork struct {
	// Smoothing is the Laplace pseudo-count used by Fit.
	Smoothing float64

	params atomic.Pointer[networkParams]
	logger *zap.Logger
}

// NewBayesianNetwork validates the variable declarations, orders them topologically
// and builds the CPTs. Variables without a CPT get uniform rows; rows that do not sum
// to one are renormalized with a warning.
func NewBayesianNetwork(specs []VariableSpec, logger *zap.Logger) (*BayesianNetwork, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: network has no variables", domain.ErrInvalidModel)
	}

	order, err := topologicalOrder(specs)
	if err != nil {
		return nil, err
	}

	p := &networkParams{index: make(map[string]int, len(specs))}
	for pos, si := range order {
		p.index[specs[si].Name] = pos
	}

	for _, si := range order {
		s := specs[si]
		if len(s.States) == 0 {
			return nil, fmt.Errorf("%w: variable %q has no states", domain.ErrInvalidModel, s.Name)
		}
		stateIdx, err := indexOf(s.States)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", s.Name, err)
		}
		v := &bnVariable{
			name:       s.Name,
			states:     append([]string(nil), s.States...),
			stateIndex: stateIdx,
		}
		for _, parent := range s.Parents {
			v.parents = append(v.parents, p.index[parent])
		}
		p.vars = append(p.vars, v)

		configs := p.parentConfigurations(v)
		v.cpt = make([][]float64, configs)
		for c := 0; c < configs; c++ {
			key := p.configKey(v, c)
			row, ok := s.CPT[key]
			if !ok {
				v.cpt[c] = uniformVector(len(v.states))
				continue
			}
			if len(row) != len(v.states) {
				return nil, fmt.Errorf("%w: cpt row %q of %q has %d entries, want %d",
					domain.ErrInvalidModel, key, s.Name, len(row), len(v.states))
			}
			norm, fixed, err := normalizeVector(row)
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", s.Name, err)
			}
			if fixed {
				logger.Warn("cpt row is not normalized, renormalized",
					zap.String("variable", s.Name),
					zap.String("parents", key))
			}
			v.cpt[c] = norm
		}
	}

	bn := &BayesianNetwork{Smoothing: defaultNetworkSmoothing, logger: logger}
	bn.params.Store(p)
	return bn, nil
}

// topologicalOrder validates names and parents and returns spec indices in Kahn order.
func topologicalOrder(specs []VariableSpec) ([]int, error) {
	byName := make(map[string]int, len(specs))
	for i, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: variable without a name", domain.ErrInvalidModel)
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate variable %q", domain.ErrInvalidModel, s.Name)
		}
		byName[s.Name] = i
	}

	indegree := make([]int, len(specs))
	children := make([][]int, len(specs))
	for i, s := range specs {
		for _, parent := range s.Parents {
			pi, ok := byName[parent]
			if !ok {
				return nil, fmt.Errorf("%w: variable %q has unknown parent %q", domain.ErrInvalidModel, s.Name, parent)
			}
			indegree[i]++
			children[pi] = append(children[pi], i)
		}
	}

	var queue, order []int
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, i)
		for _, c := range children[i] {
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	if len(order) != len(specs) {
		return nil, fmt.Errorf("%w: network contains a cycle", domain.ErrInvalidModel)
	}
	return order, nil
}

func (p *networkParams) parentConfigurations(v *bnVariable) int {
	n := 1
	for _, pi := range v.parents {
		n *= len(p.vars[pi].states)
	}
	return n
}

// configIndex flattens the parent states in assign (indexed by topological position)
// into a CPT row index. Parents are most-significant first.
func (p *networkParams) configIndex(v *bnVariable, assign []int) int {
	idx := 0
	for _, pi := range v.parents {
		idx = idx*len(p.vars[pi].states) + assign[pi]
	}
	return idx
}

func (p *networkParams) configKey(v *bnVariable, config int) string {
	if len(v.parents) == 0 {
		return ""
	}
	parts := make([]string, len(v.parents))
	for k := len(v.parents) - 1; k >= 0; k-- {
		parent := p.vars[v.parents[k]]
		n := len(parent.states)
		parts[k] = parent.states[config%n]
		config /= n
	}
	return strings.Join(parts, ",")
}

func (bn *BayesianNetwork) Type() Type { return domain.ModelBayesianNetwork }

// Variables returns the variable names in topological order.
func (bn *BayesianNetwork) Variables() []string {
	p := bn.params.Load()
	out := make([]string, len(p.vars))
	for i, v := range p.vars {
		out[i] = v.name
	}
	return out
}

// StatesOf returns the states of the named variable.
func (bn *BayesianNetwork) StatesOf(name string) ([]string, bool) {
	p := bn.params.Load()
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), p.vars[i].states...), true
}

// Fit re-estimates every CPT from complete or partial records with Laplace smoothing.
// A record contributes to a variable's row only when the variable and all its parents
// are observed. The network needs at least one record per variable.
func (bn *BayesianNetwork) Fit(obs Observations) error {
	cur := bn.params.Load()
	if need := len(cur.vars); len(obs.Records) < need {
		return &domain.InsufficientDataError{Model: string(domain.ModelBayesianNetwork), Need: need, Got: len(obs.Records)}
	}

	next := &networkParams{index: cur.index, vars: make([]*bnVariable, len(cur.vars))}
	counts := make([][][]float64, len(cur.vars))
	for i, v := range cur.vars {
		configs := cur.parentConfigurations(v)
		counts[i] = make([][]float64, configs)
		for c := range counts[i] {
			counts[i][c] = make([]float64, len(v.states))
			for s := range counts[i][c] {
				counts[i][c][s] = bn.Smoothing
			}
		}
	}

	for _, rec := range obs.Records {
		assign, err := cur.encode(rec)
		if err != nil {
			return err
		}
		for i, v := range cur.vars {
			if assign[i] < 0 {
				continue
			}
			complete := true
			for _, pi := range v.parents {
				if assign[pi] < 0 {
					complete = false
					break
				}
			}
			if complete {
				counts[i][cur.configIndex(v, assign)][assign[i]]++
			}
		}
	}

	for i, v := range cur.vars {
		nv := &bnVariable{
			name:       v.name,
			states:     v.states,
			stateIndex: v.stateIndex,
			parents:    v.parents,
			cpt:        make([][]float64, len(counts[i])),
		}
		for c, row := range counts[i] {
			norm, _, err := normalizeVector(row)
			if err != nil {
				return err
			}
			nv.cpt[c] = norm
		}
		next.vars[i] = nv
	}

	bn.params.Store(next)
	bn.logger.Debug("bayesian network fitted",
		zap.Int("variables", len(next.vars)),
		zap.Int("records", len(obs.Records)))
	return nil
}

// encode maps a name->state record onto topological positions; unobserved variables are -1.
func (p *networkParams) encode(rec map[string]string) ([]int, error) {
	assign := make([]int, len(p.vars))
	for i := range assign {
		assign[i] = -1
	}
	for name, state := range rec {
		i, ok := p.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown variable %q", domain.ErrInvalidEvidence, name)
		}
		s, ok := p.vars[i].stateIndex[state]
		if !ok {
			return nil, fmt.Errorf("%w: unknown state %q for %q", domain.ErrInvalidEvidence, state, name)
		}
		assign[i] = s
	}
	return assign, nil
}

// Evaluate returns P(q.Assignment | q.Given).
func (bn *BayesianNetwork) Evaluate(q Query) (float64, error) {
	return bn.Conditional(q.Assignment, q.Given)
}

// Conditional computes P(assignment | given) by enumeration over unobserved variables.
// Conflicting assignments yield zero; impossible conditions yield zero.
func (bn *BayesianNetwork) Conditional(assignment, given map[string]string) (float64, error) {
	p := bn.params.Load()

	joint := make(map[string]string, len(assignment)+len(given))
	for k, v := range given {
		joint[k] = v
	}
	for k, v := range assignment {
		if g, ok := joint[k]; ok && g != v {
			return 0, nil
		}
		joint[k] = v
	}

	num, err := p.encode(joint)
	if err != nil {
		return 0, err
	}
	numerator := p.enumerate(0, num)
	if len(given) == 0 {
		return numerator, nil
	}

	den, err := p.encode(given)
	if err != nil {
		return 0, err
	}
	denominator := p.enumerate(0, den)
	if denominator == 0 {
		return 0, nil
	}
	return numerator / denominator, nil
}

// enumerate sums the joint probability over all completions of assign from position i.
func (p *networkParams) enumerate(i int, assign []int) float64 {
	if i == len(p.vars) {
		return 1
	}
	v := p.vars[i]
	if assign[i] >= 0 {
		pr := v.cpt[p.configIndex(v, assign)][assign[i]]
		if pr == 0 {
			return 0
		}
		return pr * p.enumerate(i+1, assign)
	}

	var total float64
	row := v.cpt[p.configIndex(v, assign)]
	for s, pr := range row {
		if pr == 0 {
			continue
		}
		assign[i] = s
		total += pr * p.enumerate(i+1, assign)
	}
	assign[i] = -1
	return total
}

package decision

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Harshitk-cp/bayesd/internal/domain"
)

// Step is one node on the chosen path.
type Step struct {
	NodeID      string   `json:"node_id"`
	Label       string   `json:"label"`
	Type        NodeType `json:"type"`
	Probability float64  `json:"probability"`
	Value       float64  `json:"value"`
	Score       float64  `json:"score"`
}

// Path is the outcome of evaluating a tree: the steps from the root to a terminal.
type Path struct {
	Steps             []Step            `json:"steps"`
	Value             float64           `json:"value"`
	Score             float64           `json:"score"`
	Criterion         domain.Criterion  `json:"criterion"`
	ChanceMode        domain.ChanceMode `json:"chance_mode"`
	DepthLimitReached bool              `json:"depth_limit_reached"`
	Truncated         bool              `json:"truncated"`
}

// Terminal returns the last step of the path.
func (p *Path) Terminal() Step {
	return p.Steps[len(p.Steps)-1]
}

type evaluator struct {
	tree *Tree
	cfg  domain.DecisionTreeConfig
	rng  *rand.Rand
}

// Evaluate resolves every node of t bottom-up and returns the chosen path. Decision
// nodes follow the child with the highest criterion score; chance nodes follow their
// sampled child, or the most probable one under expectation. A tree is evaluated once.
func Evaluate(t *Tree) (*Path, error) {
	if t == nil || t.Root == nil {
		return nil, fmt.Errorf("%w: empty tree", domain.ErrInvalidTree)
	}
	if t.Root.State != StateUnevaluated {
		return nil, fmt.Errorf("%w: tree already evaluated", domain.ErrInvalidTree)
	}

	ev := &evaluator{tree: t, cfg: t.Config, rng: rand.New(rand.NewSource(t.Config.Seed))}
	switch ev.cfg.Criterion {
	case domain.CriterionExpectedValue, domain.CriterionRiskAdjusted, domain.CriterionMaxProbability:
	default:
		return nil, &domain.UnsupportedMethodError{Method: string(ev.cfg.Criterion), Reason: "unknown decision criterion"}
	}
	switch ev.cfg.ChanceMode {
	case domain.ChanceExpectation, domain.ChanceSample:
	default:
		return nil, &domain.UnsupportedMethodError{Method: string(ev.cfg.ChanceMode), Reason: "unknown chance mode"}
	}

	ev.resolve(t.Root)

	path := &Path{
		Value:      t.Root.Value,
		Score:      t.Root.Score,
		Criterion:  ev.cfg.Criterion,
		ChanceMode: ev.cfg.ChanceMode,
		Truncated:  t.Truncated,
	}
	for n := t.Root; n != nil; {
		path.Steps = append(path.Steps, Step{
			NodeID:      n.ID,
			Label:       n.Label,
			Type:        n.Type,
			Probability: n.Probability,
			Value:       n.Value,
			Score:       n.Score,
		})
		// A choice made over a cut set of branches is as approximate as a depth cut.
		if n.DepthLimitReached || n.Truncated {
			path.DepthLimitReached = true
		}
		if n.Chosen < 0 {
			break
		}
		n = n.Children[n.Chosen]
	}
	return path, nil
}

func (e *evaluator) resolve(n *Node) {
	n.State = StateEvaluating

	switch n.Type {
	case NodeTerminal:
		e.resolveTerminal(n)

	case NodeChance:
		for _, c := range n.Children {
			e.resolve(c)
			n.beliefDependent = n.beliefDependent || c.beliefDependent
		}
		if e.cfg.ChanceMode == domain.ChanceSample {
			i := e.sample(n.Children)
			c := n.Children[i]
			n.Chosen = i
			n.Value, n.StdDev, n.Success = c.Value, c.StdDev, c.Success
			break
		}
		var mean, second, success, best float64
		for i, c := range n.Children {
			mean += c.Probability * c.Value
			second += c.Probability * (c.StdDev*c.StdDev + c.Value*c.Value)
			success += c.Probability * c.Success
			if n.Chosen < 0 || c.Probability > best {
				n.Chosen, best = i, c.Probability
			}
		}
		n.Value = mean
		n.StdDev = math.Sqrt(math.Max(0, second-mean*mean))
		n.Success = success

	case NodeDecision:
		for i, c := range n.Children {
			e.resolve(c)
			if n.Chosen < 0 || c.Score > n.Children[n.Chosen].Score {
				n.Chosen = i
			}
		}
		c := n.Children[n.Chosen]
		n.Value, n.StdDev, n.Success = c.Value, c.StdDev, c.Success
		n.beliefDependent = c.beliefDependent
	}

	n.Score = e.score(n)
	n.State = StateResolved
}

// resolveTerminal sets the payoff of a terminal: the fixed payoff when present,
// otherwise the belief-weighted utility. A depth-limit marker with neither is worth zero.
func (e *evaluator) resolveTerminal(n *Node) {
	switch {
	case n.Payoff != nil:
		n.Value = *n.Payoff
		if n.Value > 0 {
			n.Success = 1
		}
	case len(n.Utilities) > 0:
		n.beliefDependent = true
		for h, b := range e.tree.beliefs {
			u := n.Utilities[h]
			n.Value += b * u
			if u > 0 {
				n.Success += b
			}
		}
		var variance float64
		for h, b := range e.tree.beliefs {
			d := n.Utilities[h] - n.Value
			variance += b * d * d
		}
		n.StdDev = math.Sqrt(variance)
	}
}

func (e *evaluator) sample(children []*Node) int {
	r := e.rng.Float64()
	var acc float64
	for i, c := range children {
		acc += c.Probability
		if r < acc {
			return i
		}
	}
	return len(children) - 1
}

// score applies the configured criterion. risk_adjusted penalizes outcome spread and,
// for branches whose value depends on beliefs, the widest confidence interval.
func (e *evaluator) score(n *Node) float64 {
	switch e.cfg.Criterion {
	case domain.CriterionRiskAdjusted:
		risk := n.StdDev
		if n.beliefDependent {
			risk += e.tree.uncertainty
		}
		return n.Value - e.cfg.RiskAversion*risk
	case domain.CriterionMaxProbability:
		return n.Success
	default:
		return n.Value
	}
}

// Package decision builds and resolves decision trees whose chance probabilities and
// payoffs can be bound to the current belief state.
package decision

import (
	"fmt"
	"math"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"go.uber.org/zap"
)

type NodeType string

const (
	NodeDecision NodeType = "decision"
	NodeChance   NodeType = "chance"
	NodeTerminal NodeType = "terminal"
)

type NodeState string

const (
	StateUnevaluated NodeState = "unevaluated"
	StateEvaluating  NodeState = "evaluating"
	StateResolved    NodeState = "resolved"
)

// NodeSpec declares a node and its subtree.
type NodeSpec struct {
	Label string   `json:"label" yaml:"label"`
	Type  NodeType `json:"type" yaml:"type"`
	// Probability is the branch probability when the parent is a chance node.
	Probability *float64 `json:"probability,omitempty" yaml:"probability,omitempty"`
	// Hypothesis binds the branch probability to the belief in that hypothesis.
	Hypothesis string `json:"hypothesis,omitempty" yaml:"hypothesis,omitempty"`
	// Payoff is a fixed terminal payoff.
	Payoff *float64 `json:"payoff,omitempty" yaml:"payoff,omitempty"`
	// Utilities gives a terminal payoff per hypothesis, weighted by belief.
	Utilities map[string]float64 `json:"utilities,omitempty" yaml:"utilities,omitempty"`
	Children  []NodeSpec         `json:"children,omitempty" yaml:"children,omitempty"`
}

// RootContext is everything Build needs for one decision episode.
type RootContext struct {
	Beliefs     domain.Distribution        `json:"beliefs"`
	Uncertainty *domain.UncertaintyMeasure `json:"uncertainty,omitempty"`
	Spec        NodeSpec                   `json:"tree"`
}

// Node is one node of a built tree. Nodes belong to exactly one tree.
type Node struct {
	ID          string             `json:"id"`
	Label       string             `json:"label"`
	Type        NodeType           `json:"type"`
	State       NodeState          `json:"state"`
	Depth       int                `json:"depth"`
	Probability float64            `json:"probability"`
	Hypothesis  string             `json:"hypothesis,omitempty"`
	Payoff      *float64           `json:"payoff,omitempty"`
	Utilities   map[string]float64 `json:"utilities,omitempty"`
	Children    []*Node            `json:"children,omitempty"`

	// DepthLimitReached marks a terminal standing in for growth beyond a limit: a subtree
	// deeper than MaxDepth, or the branches cut from a node with too many children.
	DepthLimitReached bool `json:"depth_limit_reached,omitempty"`
	// Truncated marks a node that kept only MaxBranchesPerNode children; its last child
	// is the marker for the rest.
	Truncated bool `json:"truncated,omitempty"`

	Value   float64 `json:"value"`
	StdDev  float64 `json:"std_dev"`
	Success float64 `json:"success_probability"`
	Score   float64 `json:"score"`
	Chosen  int     `json:"chosen"`

	beliefDependent bool
}

// Tree is a decision tree built for one episode.
type Tree struct {
	Root      *Node                     `json:"root"`
	Config    domain.DecisionTreeConfig `json:"config"`
	NodeCount int                       `json:"node_count"`
	Truncated bool                      `json:"truncated"`

	beliefs     domain.Distribution
	uncertainty float64
}

// Builder builds trees under one configuration.
type Builder struct {
	cfg    domain.DecisionTreeConfig
	logger *zap.Logger
}

func NewBuilder(cfg domain.DecisionTreeConfig, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg.WithDefaults(), logger: logger}
}

func (b *Builder) Config() domain.DecisionTreeConfig { return b.cfg }

// Build creates a fresh tree from ctx.Spec. Subtrees below MaxDepth are replaced by
// DepthLimitReached terminals and children beyond MaxBranchesPerNode collapse into one
// such terminal; neither is an error.
func (b *Builder) Build(ctx RootContext) (*Tree, error) {
	if len(ctx.Beliefs) > 0 && !ctx.Beliefs.IsNormalized() {
		return nil, fmt.Errorf("%w: beliefs sum to %v", domain.ErrInvalidTree, ctx.Beliefs.Sum())
	}
	t := &Tree{Config: b.cfg, beliefs: ctx.Beliefs.Clone()}
	if ctx.Uncertainty != nil {
		for _, ci := range ctx.Uncertainty.Intervals {
			t.uncertainty = math.Max(t.uncertainty, ci.Width())
		}
	}

	root, err := b.build(t, ctx.Spec, 0, 1)
	if err != nil {
		return nil, err
	}
	t.Root = root

	b.logger.Debug("decision tree built",
		zap.Int("nodes", t.NodeCount),
		zap.Bool("truncated", t.Truncated))
	return t, nil
}

func (b *Builder) build(t *Tree, spec NodeSpec, depth int, prob float64) (*Node, error) {
	n := &Node{
		ID:          fmt.Sprintf("n%d", t.NodeCount),
		Label:       spec.Label,
		Type:        spec.Type,
		State:       StateUnevaluated,
		Depth:       depth,
		Probability: prob,
		Hypothesis:  spec.Hypothesis,
		Payoff:      spec.Payoff,
		Utilities:   spec.Utilities,
		Chosen:      -1,
	}
	t.NodeCount++

	switch spec.Type {
	case NodeTerminal:
		if len(spec.Children) > 0 {
			return nil, fmt.Errorf("%w: terminal %q has children", domain.ErrInvalidTree, spec.Label)
		}
		if err := b.checkUtilities(t, spec); err != nil {
			return nil, err
		}
		return n, nil
	case NodeDecision, NodeChance:
		if len(spec.Children) == 0 {
			return nil, fmt.Errorf("%w: %s node %q has no children", domain.ErrInvalidTree, spec.Type, spec.Label)
		}
	default:
		return nil, fmt.Errorf("%w: unknown node type %q", domain.ErrInvalidTree, spec.Type)
	}

	if depth >= b.cfg.MaxDepth {
		n.Type = NodeTerminal
		n.DepthLimitReached = true
		t.Truncated = true
		if err := b.checkUtilities(t, spec); err != nil {
			return nil, err
		}
		return n, nil
	}

	probs := make([]float64, len(spec.Children))
	if spec.Type == NodeChance {
		var err error
		if probs, err = b.branchProbabilities(t, spec.Label, spec.Children); err != nil {
			return nil, err
		}
	} else {
		for i := range probs {
			probs[i] = 1
		}
	}

	children := spec.Children
	var cut []NodeSpec
	if len(children) > b.cfg.MaxBranchesPerNode {
		children, cut = children[:b.cfg.MaxBranchesPerNode], children[b.cfg.MaxBranchesPerNode:]
		n.Truncated = true
		t.Truncated = true
	}

	for i, cs := range children {
		child, err := b.build(t, cs, depth+1, probs[i])
		if err != nil {
			return nil, err
		}
		if spec.Type == NodeChance && cs.Hypothesis != "" {
			child.beliefDependent = true
		}
		n.Children = append(n.Children, child)
	}
	if len(cut) > 0 {
		n.Children = append(n.Children, b.branchLimitMarker(t, spec, cut, probs[len(children):], depth+1))
	}
	return n, nil
}

// branchLimitMarker stands in for the cut branches of a chance or decision node. It
// carries their combined probability and, having no payoff, is worth zero.
func (b *Builder) branchLimitMarker(t *Tree, parent NodeSpec, cut []NodeSpec, probs []float64, depth int) *Node {
	prob := 1.0
	if parent.Type == NodeChance {
		prob = 0
		for _, p := range probs {
			prob += p
		}
	}
	marker := &Node{
		ID:                fmt.Sprintf("n%d", t.NodeCount),
		Label:             fmt.Sprintf("%s: %d more", parent.Label, len(cut)),
		Type:              NodeTerminal,
		State:             StateUnevaluated,
		Depth:             depth,
		Probability:       prob,
		DepthLimitReached: true,
		Chosen:            -1,
	}
	t.NodeCount++
	b.logger.Debug("branches beyond limit collapsed",
		zap.String("node", parent.Label),
		zap.Int("cut", len(cut)),
		zap.Float64("probability", prob))
	return marker
}

// branchProbabilities resolves explicit or belief-bound probabilities of chance
// branches and rescales them to sum to one.
func (b *Builder) branchProbabilities(t *Tree, label string, children []NodeSpec) ([]float64, error) {
	probs := make([]float64, len(children))
	var total float64
	for i, c := range children {
		switch {
		case c.Hypothesis != "":
			p, ok := t.beliefs[c.Hypothesis]
			if !ok {
				return nil, fmt.Errorf("%w: branch %q binds unknown hypothesis %q", domain.ErrInvalidTree, c.Label, c.Hypothesis)
			}
			probs[i] = p
		case c.Probability != nil:
			probs[i] = *c.Probability
		default:
			return nil, fmt.Errorf("%w: branch %q of chance node %q has no probability", domain.ErrInvalidTree, c.Label, label)
		}
		if math.IsNaN(probs[i]) || probs[i] < 0 || probs[i] > 1 {
			return nil, fmt.Errorf("%w: branch %q probability %v outside [0,1]", domain.ErrInvalidTree, c.Label, probs[i])
		}
		total += probs[i]
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: chance node %q has zero total probability", domain.ErrInvalidTree, label)
	}
	if math.Abs(total-1) > domain.Epsilon {
		b.logger.Debug("rescaling chance probabilities",
			zap.String("node", label),
			zap.Float64("sum", total))
		for i := range probs {
			probs[i] /= total
		}
	}
	return probs, nil
}

func (b *Builder) checkUtilities(t *Tree, spec NodeSpec) error {
	for h := range spec.Utilities {
		if _, ok := t.beliefs[h]; !ok {
			return fmt.Errorf("%w: terminal %q has utility for unknown hypothesis %q", domain.ErrInvalidTree, spec.Label, h)
		}
	}
	return nil
}

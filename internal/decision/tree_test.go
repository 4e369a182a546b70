package decision

import (
	"testing"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func f(v float64) *float64 { return &v }

func terminal(label string, payoff float64) NodeSpec {
	return NodeSpec{Label: label, Type: NodeTerminal, Payoff: f(payoff)}
}

// umbrellaSpec decides whether to carry an umbrella given the belief in rain.
func umbrellaSpec() NodeSpec {
	return NodeSpec{
		Label: "plan",
		Type:  NodeDecision,
		Children: []NodeSpec{
			{
				Label:     "take umbrella",
				Type:      NodeTerminal,
				Utilities: map[string]float64{"rain": 8, "dry": 6},
			},
			{
				Label: "leave umbrella",
				Type:  NodeChance,
				Children: []NodeSpec{
					{Label: "soaked", Type: NodeTerminal, Hypothesis: "rain", Payoff: f(-10)},
					{Label: "free hands", Type: NodeTerminal, Hypothesis: "dry", Payoff: f(10)},
				},
			},
		},
	}
}

func TestBuildAndEvaluate_ExpectedValue(t *testing.T) {
	b := NewBuilder(domain.DefaultDecisionTreeConfig(), zap.NewNop())

	tree, err := b.Build(RootContext{
		Beliefs: domain.Distribution{"rain": 0.3, "dry": 0.7},
		Spec:    umbrellaSpec(),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, tree.NodeCount)
	assert.Equal(t, StateUnevaluated, tree.Root.State)

	path, err := Evaluate(tree)
	require.NoError(t, err)

	// take: 0.3*8 + 0.7*6 = 6.6; leave: 0.3*-10 + 0.7*10 = 4
	assert.InDelta(t, 6.6, path.Value, 1e-9)
	require.Len(t, path.Steps, 2)
	assert.Equal(t, "take umbrella", path.Terminal().Label)
	assert.False(t, path.DepthLimitReached)

	assert.Equal(t, StateResolved, tree.Root.State)
	for _, c := range tree.Root.Children {
		assert.Equal(t, StateResolved, c.State)
	}
	assert.InDelta(t, 4.0, tree.Root.Children[1].Value, 1e-9)
}

func TestBuildAndEvaluate_BeliefsChangeTheChoice(t *testing.T) {
	b := NewBuilder(domain.DefaultDecisionTreeConfig(), zap.NewNop())

	tree, err := b.Build(RootContext{
		Beliefs: domain.Distribution{"rain": 0.05, "dry": 0.95},
		Spec:    umbrellaSpec(),
	})
	require.NoError(t, err)

	path, err := Evaluate(tree)
	require.NoError(t, err)
	// leave: 0.05*-10 + 0.95*10 = 9 beats take: 6.1
	assert.Equal(t, "leave umbrella", path.Steps[1].Label)
	assert.Equal(t, "free hands", path.Terminal().Label)
	assert.InDelta(t, 9.0, path.Value, 1e-9)
}

func TestEvaluate_RiskAdjusted(t *testing.T) {
	spec := NodeSpec{
		Label: "invest",
		Type:  NodeDecision,
		Children: []NodeSpec{
			terminal("bonds", 5),
			{
				Label: "stocks",
				Type:  NodeChance,
				Children: []NodeSpec{
					{Label: "boom", Type: NodeTerminal, Probability: f(0.5), Payoff: f(20)},
					{Label: "bust", Type: NodeTerminal, Probability: f(0.5), Payoff: f(-8)},
				},
			},
		},
	}

	neutral := NewBuilder(domain.DecisionTreeConfig{Criterion: domain.CriterionExpectedValue}, nil)
	tree, err := neutral.Build(RootContext{Spec: spec})
	require.NoError(t, err)
	path, err := Evaluate(tree)
	require.NoError(t, err)
	assert.Equal(t, "stocks", path.Steps[1].Label)

	averse := NewBuilder(domain.DecisionTreeConfig{Criterion: domain.CriterionRiskAdjusted, RiskAversion: 0.5}, nil)
	tree, err = averse.Build(RootContext{Spec: spec})
	require.NoError(t, err)
	path, err = Evaluate(tree)
	require.NoError(t, err)
	// stocks: 6 - 0.5*14 = -1 < bonds: 5
	assert.Equal(t, "bonds", path.Terminal().Label)
	assert.InDelta(t, 5.0, path.Score, 1e-9)
}

func TestEvaluate_RiskAdjustedPenalizesUncertainBeliefs(t *testing.T) {
	spec := NodeSpec{
		Label: "act",
		Type:  NodeDecision,
		Children: []NodeSpec{
			terminal("safe", 5),
			{Label: "bet", Type: NodeTerminal, Utilities: map[string]float64{"a": 6, "b": 6}},
		},
	}
	beliefs := domain.Distribution{"a": 0.6, "b": 0.4}
	b := NewBuilder(domain.DecisionTreeConfig{Criterion: domain.CriterionRiskAdjusted, RiskAversion: 2}, nil)

	tree, err := b.Build(RootContext{Beliefs: beliefs, Spec: spec})
	require.NoError(t, err)
	path, err := Evaluate(tree)
	require.NoError(t, err)
	assert.Equal(t, "bet", path.Terminal().Label)

	uncertain := &domain.UncertaintyMeasure{Intervals: []domain.ConfidenceInterval{{Level: 0.95, Lower: 0.2, Upper: 0.9}}}
	tree, err = b.Build(RootContext{Beliefs: beliefs, Uncertainty: uncertain, Spec: spec})
	require.NoError(t, err)
	path, err = Evaluate(tree)
	require.NoError(t, err)
	assert.Equal(t, "safe", path.Terminal().Label)
}

func TestEvaluate_MaxProbability(t *testing.T) {
	spec := NodeSpec{
		Label: "route",
		Type:  NodeDecision,
		Children: []NodeSpec{
			{
				Label: "highway",
				Type:  NodeChance,
				Children: []NodeSpec{
					{Label: "on time", Type: NodeTerminal, Probability: f(0.9), Payoff: f(1)},
					{Label: "late", Type: NodeTerminal, Probability: f(0.1), Payoff: f(-1)},
				},
			},
			{
				Label: "shortcut",
				Type:  NodeChance,
				Children: []NodeSpec{
					{Label: "early", Type: NodeTerminal, Probability: f(0.5), Payoff: f(10)},
					{Label: "stuck", Type: NodeTerminal, Probability: f(0.5), Payoff: f(-2)},
				},
			},
		},
	}

	b := NewBuilder(domain.DecisionTreeConfig{Criterion: domain.CriterionMaxProbability}, nil)
	tree, err := b.Build(RootContext{Spec: spec})
	require.NoError(t, err)

	path, err := Evaluate(tree)
	require.NoError(t, err)
	assert.Equal(t, "highway", path.Steps[1].Label)
	assert.InDelta(t, 0.9, path.Score, 1e-9)
	assert.Equal(t, "on time", path.Terminal().Label)
}

func TestEvaluate_SampleModeIsSeeded(t *testing.T) {
	spec := NodeSpec{
		Label: "flip",
		Type:  NodeChance,
		Children: []NodeSpec{
			{Label: "heads", Type: NodeTerminal, Probability: f(0.5), Payoff: f(1)},
			{Label: "tails", Type: NodeTerminal, Probability: f(0.5), Payoff: f(0)},
		},
	}
	cfg := domain.DecisionTreeConfig{ChanceMode: domain.ChanceSample, Seed: 7}

	var labels []string
	for i := 0; i < 3; i++ {
		tree, err := NewBuilder(cfg, nil).Build(RootContext{Spec: spec})
		require.NoError(t, err)
		path, err := Evaluate(tree)
		require.NoError(t, err)
		labels = append(labels, path.Terminal().Label)
		assert.Contains(t, []float64{0, 1}, path.Value)
	}
	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[1], labels[2])
}

func chain(depth int) NodeSpec {
	if depth == 0 {
		return terminal("leaf", 1)
	}
	return NodeSpec{Label: "step", Type: NodeDecision, Children: []NodeSpec{chain(depth - 1)}}
}

func TestBuild_DepthLimitReached(t *testing.T) {
	b := NewBuilder(domain.DecisionTreeConfig{MaxDepth: 3}, zap.NewNop())

	tree, err := b.Build(RootContext{Spec: chain(10)})
	require.NoError(t, err)
	assert.True(t, tree.Truncated)
	assert.Equal(t, 4, tree.NodeCount)

	path, err := Evaluate(tree)
	require.NoError(t, err)
	assert.True(t, path.DepthLimitReached)

	last := path.Terminal()
	assert.Equal(t, NodeTerminal, last.Type)
	assert.Len(t, path.Steps, 4)
}

func TestBuild_MaxBranchesTruncates(t *testing.T) {
	spec := NodeSpec{Label: "pick", Type: NodeDecision}
	for i := 0; i < 5; i++ {
		spec.Children = append(spec.Children, terminal("option", float64(i)))
	}

	tree, err := NewBuilder(domain.DecisionTreeConfig{MaxBranchesPerNode: 3}, nil).Build(RootContext{Spec: spec})
	require.NoError(t, err)
	assert.True(t, tree.Root.Truncated)
	require.Len(t, tree.Root.Children, 4)
	assert.Equal(t, 5, tree.NodeCount)

	marker := tree.Root.Children[3]
	assert.True(t, marker.DepthLimitReached)
	assert.Equal(t, NodeTerminal, marker.Type)
	assert.Equal(t, "pick: 2 more", marker.Label)

	path, err := Evaluate(tree)
	require.NoError(t, err)
	assert.True(t, path.Truncated)
	assert.True(t, path.DepthLimitReached)
	assert.InDelta(t, 2.0, path.Value, 1e-12)
	assert.Equal(t, "option", path.Terminal().Label)
}

func TestBuild_MaxBranchesMarkerCanBeChosen(t *testing.T) {
	spec := NodeSpec{Label: "pick", Type: NodeDecision, Children: []NodeSpec{
		terminal("bad", -3),
		terminal("worse", -5),
		terminal("unseen", 7),
	}}

	tree, err := NewBuilder(domain.DecisionTreeConfig{MaxBranchesPerNode: 2}, nil).Build(RootContext{Spec: spec})
	require.NoError(t, err)
	path, err := Evaluate(tree)
	require.NoError(t, err)

	last := path.Terminal()
	assert.Equal(t, "pick: 1 more", last.Label)
	assert.InDelta(t, 0.0, path.Value, 1e-12)
	assert.True(t, path.DepthLimitReached)
}

func TestBuild_MaxBranchesChanceMarkerKeepsProbabilityMass(t *testing.T) {
	spec := NodeSpec{Label: "weather", Type: NodeChance}
	for i := 0; i < 4; i++ {
		c := terminal("outcome", 4)
		c.Probability = f(0.25)
		spec.Children = append(spec.Children, c)
	}

	tree, err := NewBuilder(domain.DecisionTreeConfig{MaxBranchesPerNode: 2}, nil).Build(RootContext{Spec: spec})
	require.NoError(t, err)
	require.Len(t, tree.Root.Children, 3)
	marker := tree.Root.Children[2]
	assert.True(t, marker.DepthLimitReached)
	assert.InDelta(t, 0.5, marker.Probability, 1e-12)

	var total float64
	for _, c := range tree.Root.Children {
		total += c.Probability
	}
	assert.InDelta(t, 1.0, total, 1e-12)

	path, err := Evaluate(tree)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, path.Value, 1e-12)
	assert.True(t, path.DepthLimitReached)
}

func TestBuild_InvalidTrees(t *testing.T) {
	beliefs := domain.Distribution{"a": 1}
	tests := []struct {
		name string
		spec NodeSpec
	}{
		{"unknown type", NodeSpec{Label: "x", Type: "loop"}},
		{"empty decision", NodeSpec{Label: "x", Type: NodeDecision}},
		{"terminal with children", NodeSpec{Label: "x", Type: NodeTerminal, Children: []NodeSpec{terminal("y", 1)}}},
		{"chance without probability", NodeSpec{Label: "x", Type: NodeChance, Children: []NodeSpec{terminal("y", 1)}}},
		{"unknown hypothesis", NodeSpec{Label: "x", Type: NodeChance, Children: []NodeSpec{
			{Label: "y", Type: NodeTerminal, Hypothesis: "zzz", Payoff: f(1)},
		}}},
		{"probability above one", NodeSpec{Label: "x", Type: NodeChance, Children: []NodeSpec{
			{Label: "y", Type: NodeTerminal, Probability: f(1.5), Payoff: f(1)},
		}}},
		{"utility for unknown hypothesis", NodeSpec{Label: "x", Type: NodeTerminal, Utilities: map[string]float64{"q": 1}}},
	}

	b := NewBuilder(domain.DefaultDecisionTreeConfig(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(RootContext{Beliefs: beliefs, Spec: tt.spec})
			assert.ErrorIs(t, err, domain.ErrInvalidTree)
		})
	}
}

func TestEvaluate_OncePerTree(t *testing.T) {
	tree, err := NewBuilder(domain.DefaultDecisionTreeConfig(), nil).Build(RootContext{Spec: terminal("only", 3)})
	require.NoError(t, err)

	path, err := Evaluate(tree)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, path.Value, 1e-12)

	_, err = Evaluate(tree)
	assert.ErrorIs(t, err, domain.ErrInvalidTree)

	_, err = Evaluate(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTree)
}

func TestEvaluate_UnknownCriterion(t *testing.T) {
	tree, err := NewBuilder(domain.DecisionTreeConfig{Criterion: "regret"}, nil).Build(RootContext{Spec: terminal("only", 1)})
	require.NoError(t, err)

	_, err = Evaluate(tree)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMethod)
}

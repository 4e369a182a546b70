package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/bayesd/internal/decision"
	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/uncertainty"
)

func fp(v float64) *float64 { return &v }

func umbrellaTree() decision.NodeSpec {
	return decision.NodeSpec{
		Label: "umbrella?",
		Type:  decision.NodeDecision,
		Children: []decision.NodeSpec{
			{Label: "take", Type: decision.NodeTerminal, Utilities: map[string]float64{"rain": 8, "dry": 6}},
			{Label: "leave", Type: decision.NodeTerminal, Utilities: map[string]float64{"rain": -10, "dry": 10}},
		},
	}
}

func newTestDecisionService(beliefs *BeliefService) *DecisionService {
	q := uncertainty.NewQuantifier(domain.DefaultUncertaintyQuantifierConfig(), zap.NewNop())
	return NewDecisionService(beliefs, q, domain.DefaultDecisionTreeConfig(), time.Second, nil, zap.NewNop())
}

func TestDecisionService_InlineBeliefs(t *testing.T) {
	svc := newTestDecisionService(newTestBeliefService())

	resp, err := svc.Decide(context.Background(), DecisionRequest{
		Beliefs: domain.Distribution{"rain": 0.3, "dry": 0.7},
		Tree:    umbrellaTree(),
	})
	require.NoError(t, err)
	// take: 0.3*8+0.7*6 = 6.6; leave: -3+7 = 4
	assert.Equal(t, "take", resp.Path.Terminal().Label)
	assert.InDelta(t, 6.6, resp.Path.Value, 1e-9)
	assert.Nil(t, resp.Uncertainty)
}

func TestDecisionService_SubjectBeliefs(t *testing.T) {
	beliefs := newTestBeliefService()
	_, err := beliefs.Track(context.Background(), "weather", TrackRequest{
		Hypotheses: []domain.Hypothesis{{ID: "rain", Prior: 0.5}, {ID: "dry", Prior: 0.5}},
	})
	require.NoError(t, err)
	_, err = beliefs.Update(context.Background(), "weather", UpdateRequest{
		Evidence: domain.Evidence{Likelihoods: map[string]float64{"rain": 0.05, "dry": 0.95}},
	})
	require.NoError(t, err)

	svc := newTestDecisionService(beliefs)
	resp, err := svc.Decide(context.Background(), DecisionRequest{
		SubjectID: "weather",
		Tree:      umbrellaTree(),
		Quantify:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "leave", resp.Path.Terminal().Label)
	require.NotNil(t, resp.Uncertainty)
	assert.Equal(t, "dry", resp.Uncertainty.Hypothesis)
}

func TestDecisionService_Errors(t *testing.T) {
	svc := newTestDecisionService(newTestBeliefService())

	_, err := svc.Decide(context.Background(), DecisionRequest{SubjectID: "nobody", Tree: umbrellaTree()})
	assert.ErrorIs(t, err, domain.ErrSubjectNotFound)

	_, err = svc.Decide(context.Background(), DecisionRequest{
		Beliefs: domain.Distribution{"rain": 0.9, "dry": 0.9},
		Tree:    umbrellaTree(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTree)

	_, err = svc.Decide(context.Background(), DecisionRequest{
		Tree:   decision.NodeSpec{Label: "x", Type: decision.NodeTerminal, Payoff: fp(1)},
		Config: &domain.DecisionTreeConfig{Criterion: "luck"},
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedMethod)
}

package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/bayesd/internal/belief"
	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/inference"
	"github.com/Harshitk-cp/bayesd/internal/model"
	"github.com/Harshitk-cp/bayesd/internal/service"
	"github.com/Harshitk-cp/bayesd/internal/uncertainty"
)

func newTestTools() *tools {
	logger := zap.NewNop()
	engine := inference.NewEngine(model.NewLibrary(logger), logger)
	q := uncertainty.NewQuantifier(domain.DefaultUncertaintyQuantifierConfig(), logger)
	beliefs := service.NewBeliefService(belief.NewUpdater(engine, domain.DefaultBeliefUpdaterConfig(), logger), domain.DefaultBayesianConfig(), nil, logger)
	return &tools{
		svc: Services{
			Reasoning: service.NewReasoningService(engine, q, domain.DefaultBayesianConfig(), time.Second, nil, logger),
			Beliefs:   beliefs,
			Decisions: service.NewDecisionService(beliefs, q, domain.DefaultDecisionTreeConfig(), time.Second, nil, logger),
		},
		logger: logger,
	}
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestInferTool(t *testing.T) {
	tl := newTestTools()

	res, err := tl.infer(context.Background(), call("infer", map[string]any{
		"hypotheses": []any{
			map[string]any{"id": "h1", "prior": 0.5},
			map[string]any{"id": "h2", "prior": 0.5},
		},
		"evidence": []any{
			map[string]any{"likelihoods": map[string]any{"h1": 0.9, "h2": 0.3}},
		},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var out service.InferenceResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	assert.InDelta(t, 0.75, out.Result.Posterior("h1"), 1e-9)
	assert.NotNil(t, out.Uncertainty)
}

func TestInferTool_InvalidInputIsToolError(t *testing.T) {
	tl := newTestTools()

	res, err := tl.infer(context.Background(), call("infer", map[string]any{"hypotheses": []any{}}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "infer failed")
}

func TestUpdateBeliefQuantifyDecide(t *testing.T) {
	tl := newTestTools()
	ctx := context.Background()

	res, err := tl.updateBelief(ctx, call("update_belief", map[string]any{
		"subject_id": "weather",
		"hypotheses": []any{
			map[string]any{"id": "rain", "prior": 0.5},
			map[string]any{"id": "dry", "prior": 0.5},
		},
		"evidence": map[string]any{"likelihoods": map[string]any{"rain": 0.05, "dry": 0.95}},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var u domain.BeliefUpdate
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &u))
	assert.InDelta(t, 0.95, u.Posterior["dry"], 1e-9)

	res, err = tl.quantify(ctx, call("quantify", map[string]any{"subject_id": "weather", "method": "entropy"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var um domain.UncertaintyMeasure
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &um))
	assert.Equal(t, "dry", um.Hypothesis)

	res, err = tl.decide(ctx, call("decide", map[string]any{
		"subject_id": "weather",
		"tree": map[string]any{
			"label": "umbrella?", "type": "decision",
			"children": []any{
				map[string]any{"label": "take", "type": "terminal", "utilities": map[string]any{"rain": 8, "dry": 6}},
				map[string]any{"label": "leave", "type": "terminal", "utilities": map[string]any{"rain": -10, "dry": 10}},
			},
		},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), `"leave"`)
}

func TestUpdateBelief_UnknownSubjectWithoutHypotheses(t *testing.T) {
	tl := newTestTools()
	res, err := tl.updateBelief(context.Background(), call("update_belief", map[string]any{
		"subject_id": "ghost",
		"evidence":   map[string]any{"likelihoods": map[string]any{"a": 1}},
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestQuantify_RequiresInput(t *testing.T) {
	tl := newTestTools()
	res, err := tl.quantify(context.Background(), call("quantify", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNew_RegistersTools(t *testing.T) {
	s := New(newTestTools().svc, zap.NewNop())
	ctx := context.Background()

	s.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`))
	resp := s.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range []string{"infer", "update_belief", "quantify", "decide"} {
		assert.Contains(t, string(raw), `"name":"`+name+`"`)
	}
}

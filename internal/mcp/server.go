// Package mcp exposes the reasoning services as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/bayesd/internal/buildconfig"
	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/service"
)

// Services is the subset of the reasoning services the tools call.
type Services struct {
	Reasoning *service.ReasoningService
	Beliefs   *service.BeliefService
	Decisions *service.DecisionService
}

type tools struct {
	svc    Services
	logger *zap.Logger
}

// New creates the MCP server with the infer, update_belief, quantify and decide tools.
func New(svc Services, logger *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"bayesd",
		buildconfig.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	t := &tools{svc: svc, logger: logger}
	s.AddTool(inferTool(), t.infer)
	s.AddTool(updateBeliefTool(), t.updateBelief)
	s.AddTool(quantifyTool(), t.quantify)
	s.AddTool(decideTool(), t.decide)
	return s
}

// ServeStdio blocks serving s on stdin/stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `bayesd computes posterior beliefs over a set of hypotheses from evidence.
Use infer for one-shot inference, update_belief to track a subject over time,
quantify for confidence intervals on a result, and decide to pick the best branch
of a decision tree under the current beliefs.`

func inferTool() mcp.Tool {
	return mcp.NewTool("infer",
		mcp.WithDescription("Compute posterior probabilities for hypotheses given evidence, with uncertainty."),
		mcp.WithArray("hypotheses", mcp.Required(),
			mcp.Description("Hypotheses as {id, name, prior} objects; priors are normalized.")),
		mcp.WithArray("evidence",
			mcp.Description("Evidence items as {type, likelihoods, observation, weight}.")),
		mcp.WithObject("config",
			mcp.Description("Optional BayesianConfig: model_type, confidence_threshold, max_iterations, bindings.")),
		mcp.WithObject("quantification",
			mcp.Description("Optional {method, levels}; method is analytic, bootstrap or entropy.")),
	)
}

func updateBeliefTool() mcp.Tool {
	return mcp.NewTool("update_belief",
		mcp.WithDescription("Fold one evidence item into a tracked subject's beliefs. Pass hypotheses to start tracking a new subject."),
		mcp.WithString("subject_id", mcp.Required(), mcp.Description("Subject identifier")),
		mcp.WithObject("evidence", mcp.Required(), mcp.Description("The evidence item")),
		mcp.WithString("strategy",
			mcp.Description("Update strategy"),
			mcp.Enum(string(domain.StrategyImmediate), string(domain.StrategyExponentialDecay), string(domain.StrategyWindowed))),
		mcp.WithArray("hypotheses", mcp.Description("Hypotheses used when the subject is not tracked yet")),
	)
}

func quantifyTool() mcp.Tool {
	return mcp.NewTool("quantify",
		mcp.WithDescription("Confidence intervals and entropy for an inference result or a tracked subject."),
		mcp.WithObject("result", mcp.Description("An inference result with posteriors and evidence_count")),
		mcp.WithString("subject_id", mcp.Description("Quantify a tracked subject's current beliefs instead")),
		mcp.WithString("method", mcp.Description("analytic, bootstrap or entropy")),
		mcp.WithArray("levels", mcp.Description("Confidence levels in (0,1)")),
	)
}

func decideTool() mcp.Tool {
	return mcp.NewTool("decide",
		mcp.WithDescription("Evaluate a decision tree and return the best path under the given or tracked beliefs."),
		mcp.WithObject("tree", mcp.Required(), mcp.Description("Root node: {label, type, children, payoff, utilities, probability, hypothesis}")),
		mcp.WithObject("beliefs", mcp.Description("Belief distribution keyed by hypothesis")),
		mcp.WithString("subject_id", mcp.Description("Use a tracked subject's beliefs")),
		mcp.WithObject("config", mcp.Description("Optional DecisionTreeConfig")),
		mcp.WithBoolean("quantify", mcp.Description("Penalize uncertain beliefs under risk_adjusted")),
	)
}

func (t *tools) infer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in service.InferenceRequest
	if err := req.BindArguments(&in); err != nil {
		return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
	}
	resp, err := t.svc.Reasoning.Infer(ctx, in)
	if err != nil {
		return t.fail("infer", err), nil
	}
	return jsonResult(resp)
}

type updateBeliefArgs struct {
	SubjectID  string                `json:"subject_id"`
	Evidence   domain.Evidence       `json:"evidence"`
	Strategy   domain.UpdateStrategy `json:"strategy"`
	Hypotheses []domain.Hypothesis   `json:"hypotheses"`
}

func (t *tools) updateBelief(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in updateBeliefArgs
	if err := req.BindArguments(&in); err != nil {
		return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
	}

	if _, err := t.svc.Beliefs.Snapshot(in.SubjectID); errors.Is(err, domain.ErrSubjectNotFound) && len(in.Hypotheses) > 0 {
		if _, err := t.svc.Beliefs.Track(ctx, in.SubjectID, service.TrackRequest{Hypotheses: in.Hypotheses}); err != nil {
			return t.fail("update_belief", err), nil
		}
	}

	u, err := t.svc.Beliefs.Update(ctx, in.SubjectID, service.UpdateRequest{Evidence: in.Evidence, Strategy: in.Strategy})
	if err != nil {
		return t.fail("update_belief", err), nil
	}
	return jsonResult(u)
}

type quantifyArgs struct {
	Result    *domain.InferenceResult `json:"result"`
	SubjectID string                  `json:"subject_id"`
	service.QuantificationRequest
}

func (t *tools) quantify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in quantifyArgs
	if err := req.BindArguments(&in); err != nil {
		return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
	}

	res := in.Result
	if in.SubjectID != "" {
		snap, err := t.svc.Beliefs.Snapshot(in.SubjectID)
		if err != nil {
			return t.fail("quantify", err), nil
		}
		res = &domain.InferenceResult{Posteriors: snap.Beliefs, EvidenceCount: snap.EvidenceCount}
	}
	if res == nil {
		return mcp.NewToolResultError("either result or subject_id is required"), nil
	}

	um, err := t.svc.Reasoning.Quantify(ctx, res, &in.QuantificationRequest)
	if err != nil {
		return t.fail("quantify", err), nil
	}
	return jsonResult(um)
}

func (t *tools) decide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in service.DecisionRequest
	if err := req.BindArguments(&in); err != nil {
		return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
	}
	resp, err := t.svc.Decisions.Decide(ctx, in)
	if err != nil {
		return t.fail("decide", err), nil
	}
	// The full tree is large and the caller only needs the chosen path.
	return jsonResult(struct {
		Path        any `json:"path"`
		Uncertainty any `json:"uncertainty,omitempty"`
		NodeCount   int `json:"node_count"`
	}{resp.Path, resp.Uncertainty, resp.Tree.NodeCount})
}

// fail reports caller errors as tool errors so the model can correct its input.
func (t *tools) fail(tool string, err error) *mcp.CallToolResult {
	t.logger.Info("mcp tool call failed", zap.String("tool", tool), zap.Error(err))
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", tool, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

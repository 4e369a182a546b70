package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/bayesd/internal/decision"
	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/telemetry"
	"github.com/Harshitk-cp/bayesd/internal/uncertainty"
)

// DecisionRequest builds and evaluates one tree. Beliefs come either inline or from a
// tracked subject; when Quantify is set the belief uncertainty feeds risk_adjusted scoring.
type DecisionRequest struct {
	SubjectID string                     `json:"subject_id,omitempty" yaml:"subject_id,omitempty"`
	Beliefs   domain.Distribution        `json:"beliefs,omitempty" yaml:"beliefs,omitempty"`
	Tree      decision.NodeSpec          `json:"tree" yaml:"tree"`
	Config    *domain.DecisionTreeConfig `json:"config,omitempty" yaml:"config,omitempty"`
	Quantify  bool                       `json:"quantify,omitempty" yaml:"quantify,omitempty"`
}

type DecisionResponse struct {
	Path        *decision.Path             `json:"path"`
	Tree        *decision.Tree             `json:"tree"`
	Uncertainty *domain.UncertaintyMeasure `json:"uncertainty,omitempty"`
}

type DecisionService struct {
	beliefs    *BeliefService
	quantifier *uncertainty.Quantifier
	defaults   domain.DecisionTreeConfig
	timeout    time.Duration
	metrics    *telemetry.Metrics
	logger     *zap.Logger
}

func NewDecisionService(beliefs *BeliefService, quantifier *uncertainty.Quantifier, defaults domain.DecisionTreeConfig, timeout time.Duration, metrics *telemetry.Metrics, logger *zap.Logger) *DecisionService {
	return &DecisionService{
		beliefs:    beliefs,
		quantifier: quantifier,
		defaults:   defaults.WithDefaults(),
		timeout:    timeout,
		metrics:    metrics,
		logger:     logger,
	}
}

func (s *DecisionService) Decide(ctx context.Context, req DecisionRequest) (*DecisionResponse, error) {
	beliefs := req.Beliefs
	evidenceCount := 0
	if req.SubjectID != "" {
		snap, err := s.beliefs.Snapshot(req.SubjectID)
		if err != nil {
			return nil, err
		}
		beliefs = snap.Beliefs
		evidenceCount = snap.EvidenceCount
	}

	cfg := s.defaults
	if req.Config != nil {
		cfg = req.Config.WithDefaults()
	}

	resp, err := withTimeout(ctx, s.timeout, func() (*DecisionResponse, error) {
		var um *domain.UncertaintyMeasure
		if req.Quantify && len(beliefs) > 0 {
			var err error
			um, err = s.quantifier.Quantify(&domain.InferenceResult{
				Posteriors:    beliefs.Clone(),
				EvidenceCount: evidenceCount,
			}, "")
			if err != nil {
				return nil, fmt.Errorf("quantifying beliefs: %w", err)
			}
		}

		tree, err := decision.NewBuilder(cfg, s.logger).Build(decision.RootContext{
			Beliefs:     beliefs,
			Uncertainty: um,
			Spec:        req.Tree,
		})
		if err != nil {
			return nil, err
		}
		path, err := decision.Evaluate(tree)
		if err != nil {
			return nil, err
		}
		return &DecisionResponse{Path: path, Tree: tree, Uncertainty: um}, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveDecision(string(cfg.Criterion))
	if resp.Path.DepthLimitReached || resp.Path.Truncated {
		s.logger.Info("decision tree was bounded",
			zap.Int("max_depth", cfg.MaxDepth),
			zap.Int("max_branches", cfg.MaxBranchesPerNode),
			zap.Bool("depth_limit_reached", resp.Path.DepthLimitReached),
			zap.Bool("truncated", resp.Path.Truncated))
	}
	return resp, nil
}

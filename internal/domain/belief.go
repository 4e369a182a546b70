package domain

import "time"

// UpdateStrategy selects how a belief state folds in new evidence.
type UpdateStrategy string

const (
	StrategyImmediate        UpdateStrategy = "immediate"
	StrategyExponentialDecay UpdateStrategy = "exponential_decay"
	StrategyWindowed         UpdateStrategy = "windowed"
)

func ValidUpdateStrategy(s string) bool {
	switch UpdateStrategy(s) {
	case StrategyImmediate, StrategyExponentialDecay, StrategyWindowed:
		return true
	}
	return false
}

// BeliefUpdate records one transition of a subject's belief state.
type BeliefUpdate struct {
	ID             string         `json:"id"`
	SubjectID      string         `json:"subject_id"`
	Sequence       int            `json:"sequence"`
	Prior          Distribution   `json:"prior"`
	Evidence       Evidence       `json:"evidence"`
	Posterior      Distribution   `json:"posterior"`
	Strategy       UpdateStrategy `json:"strategy"`
	TotalVariation float64        `json:"total_variation"`
	IsStable       bool           `json:"is_stable"`
	Degenerate     bool           `json:"degenerate"`
	Timestamp      time.Time      `json:"timestamp"`
}

// BeliefSnapshot is a read-only view of a subject's current state.
type BeliefSnapshot struct {
	SubjectID     string       `json:"subject_id"`
	Beliefs       Distribution `json:"beliefs"`
	Hypotheses    []Hypothesis `json:"hypotheses"`
	EvidenceCount int          `json:"evidence_count"`
	UpdateCount   int          `json:"update_count"`
	IsStable      bool         `json:"is_stable"`
	StableStreak  int          `json:"stable_streak"`
	LastUpdatedAt time.Time    `json:"last_updated_at"`
}

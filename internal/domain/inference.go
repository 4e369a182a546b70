package domain

import "time"

type ConvergenceStatus string

const (
	ConvergenceConverged     ConvergenceStatus = "converged"
	ConvergenceNotConverged  ConvergenceStatus = "not_converged"
	ConvergenceMaxIterations ConvergenceStatus = "max_iterations_reached"
)

const MethodSequentialBayes = "sequential_bayes"

// InferenceResult is produced once per inference call and never mutated afterwards.
// Accessors return copies so consumers can treat it as a value.
type InferenceResult struct {
	ID                 string            `json:"id"`
	Posteriors         Distribution      `json:"posteriors"`
	Method             string            `json:"method"`
	ModelType          ModelType         `json:"model_type"`
	ConvergenceStatus  ConvergenceStatus `json:"convergence_status"`
	Iterations         int               `json:"iterations"`
	EvidenceCount      int               `json:"evidence_count"`
	DegenerateEvidence bool              `json:"degenerate_evidence"`
	MaxDelta           float64           `json:"max_delta"`
	CreatedAt          time.Time         `json:"created_at"`
}

func (r *InferenceResult) Posterior(key string) float64 {
	return r.Posteriors[key]
}

func (r *InferenceResult) Distribution() Distribution {
	return r.Posteriors.Clone()
}

func (r *InferenceResult) MAP() (string, float64) {
	return r.Posteriors.MAP()
}

func (r *InferenceResult) HypothesisCount() int {
	return len(r.Posteriors)
}

package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// EvidenceType tags the shape of the observation an Evidence item carries.
type EvidenceType string

const (
	// EvidenceLikelihood carries P(e|h) per hypothesis directly in Likelihoods.
	EvidenceLikelihood EvidenceType = "likelihood"
	// EvidenceSequence carries a symbol sequence (Markov chain, HMM).
	EvidenceSequence EvidenceType = "sequence"
	// EvidenceNumeric carries an output observed at an input point (Gaussian process).
	EvidenceNumeric EvidenceType = "numeric"
	// EvidenceAssignment carries observed variable states (Bayesian network).
	EvidenceAssignment EvidenceType = "assignment"
)

func ValidEvidenceType(t string) bool {
	switch EvidenceType(t) {
	case EvidenceLikelihood, EvidenceSequence, EvidenceNumeric, EvidenceAssignment:
		return true
	}
	return false
}

// Observation is the payload a probabilistic model evaluates.
type Observation struct {
	Symbols    []string          `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Input      []float64         `json:"input,omitempty" yaml:"input,omitempty"`
	Output     *float64          `json:"output,omitempty" yaml:"output,omitempty"`
	Assignment map[string]string `json:"assignment,omitempty" yaml:"assignment,omitempty"`
}

// Evidence is a single observation used to update beliefs. Evidence is append-only:
// once applied it is never edited.
type Evidence struct {
	ID          string             `json:"id" yaml:"id"`
	Type        EvidenceType       `json:"type" yaml:"type"`
	Observation Observation        `json:"observation,omitempty" yaml:"observation,omitempty"`
	Likelihoods map[string]float64 `json:"likelihoods,omitempty" yaml:"likelihoods,omitempty"`
	Weight      float64            `json:"weight" yaml:"weight"`
	Timestamp   time.Time          `json:"timestamp" yaml:"timestamp"`
}

// Normalize fills defaults: a generated ID, weight 1 and the current time.
// It returns a copy; the receiver is left untouched.
func (e Evidence) Normalize() Evidence {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Weight == 0 {
		e.Weight = 1
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Type == "" && len(e.Likelihoods) > 0 {
		e.Type = EvidenceLikelihood
	}
	return e
}

// Validate checks the weight range and that the payload matches the type tag.
func (e Evidence) Validate() error {
	if math.IsNaN(e.Weight) || e.Weight <= 0 || e.Weight > 1 {
		return fmt.Errorf("%w: weight %v outside (0,1]", ErrInvalidEvidence, e.Weight)
	}
	switch e.Type {
	case EvidenceLikelihood:
		if len(e.Likelihoods) == 0 {
			return fmt.Errorf("%w: likelihood evidence without likelihoods", ErrInvalidEvidence)
		}
		for k, l := range e.Likelihoods {
			if math.IsNaN(l) || math.IsInf(l, 0) || l < 0 {
				return fmt.Errorf("%w: likelihood for %s is %v, want a finite non-negative value", ErrInvalidEvidence, k, l)
			}
		}
	case EvidenceSequence:
		if len(e.Observation.Symbols) == 0 {
			return fmt.Errorf("%w: sequence evidence without symbols", ErrInvalidEvidence)
		}
	case EvidenceNumeric:
		if len(e.Observation.Input) == 0 || e.Observation.Output == nil {
			return fmt.Errorf("%w: numeric evidence needs input and output", ErrInvalidEvidence)
		}
	case EvidenceAssignment:
		if len(e.Observation.Assignment) == 0 {
			return fmt.Errorf("%w: assignment evidence without assignment", ErrInvalidEvidence)
		}
	default:
		return fmt.Errorf("%w: unknown evidence type %q", ErrInvalidEvidence, e.Type)
	}
	return nil
}

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidHypothesisSet = errors.New("invalid hypothesis set")
	ErrInsufficientData     = errors.New("insufficient data")
	ErrSingularMatrix       = errors.New("singular matrix")
	ErrUnsupportedMethod    = errors.New("unsupported method")
	ErrInvalidEvidence      = errors.New("invalid evidence")
	ErrInvalidModel         = errors.New("invalid model")
	ErrModelNotFound        = errors.New("model not found")
	ErrSubjectNotFound      = errors.New("belief subject not found")
	ErrInvalidTree          = errors.New("invalid decision tree")
)

// InvalidHypothesisSetError reports malformed hypotheses. Not retryable.
type InvalidHypothesisSetError struct {
	Reason string
}

func (e *InvalidHypothesisSetError) Error() string {
	return fmt.Sprintf("invalid hypothesis set: %s", e.Reason)
}

func (e *InvalidHypothesisSetError) Is(target error) bool { return target == ErrInvalidHypothesisSet }

// InsufficientDataError means a model needs more observations before it can be fitted.
type InsufficientDataError struct {
	Model string
	Need  int
	Got   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need %d observations, got %d", e.Model, e.Need, e.Got)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// SingularMatrixError means a covariance matrix could not be factorized reliably.
// Callers should add jitter (noise variance) or fall back to a simpler model.
type SingularMatrixError struct {
	Condition float64
	Threshold float64
}

func (e *SingularMatrixError) Error() string {
	if e.Condition == 0 {
		return "singular matrix: covariance is not positive definite"
	}
	return fmt.Sprintf("singular matrix: condition number %.3g exceeds %.3g", e.Condition, e.Threshold)
}

func (e *SingularMatrixError) Is(target error) bool { return target == ErrSingularMatrix }

// UnsupportedMethodError means the requested method does not apply to the input.
type UnsupportedMethodError struct {
	Method string
	Reason string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported method %q: %s", e.Method, e.Reason)
}

func (e *UnsupportedMethodError) Is(target error) bool { return target == ErrUnsupportedMethod }

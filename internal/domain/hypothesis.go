package domain

import (
	"math"

	"github.com/google/uuid"
)

// Epsilon is the tolerance used when checking that a distribution is normalized.
const Epsilon = 1e-6

// Hypothesis is a named proposition with a prior probability.
// Values are immutable; use WithPrior to supersede one.
type Hypothesis struct {
	ID    string  `json:"id" yaml:"id"`
	Name  string  `json:"name" yaml:"name"`
	Prior float64 `json:"prior" yaml:"prior"`
}

func NewHypothesis(name string, prior float64) Hypothesis {
	return Hypothesis{ID: uuid.NewString(), Name: name, Prior: prior}
}

// WithPrior returns a copy of h carrying a new prior.
func (h Hypothesis) WithPrior(p float64) Hypothesis {
	h.Prior = p
	return h
}

// Key returns the identifier used to address the hypothesis in distributions.
// Hypotheses supplied without an ID are addressed by name.
func (h Hypothesis) Key() string {
	if h.ID != "" {
		return h.ID
	}
	return h.Name
}

// ValidateHypotheses checks a hypothesis set and returns normalized priors keyed by Key().
// Priors that do not sum to one are rescaled.
func ValidateHypotheses(hs []Hypothesis) (map[string]float64, error) {
	if len(hs) == 0 {
		return nil, &InvalidHypothesisSetError{Reason: "hypothesis set is empty"}
	}

	priors := make(map[string]float64, len(hs))
	var total float64
	for _, h := range hs {
		key := h.Key()
		if key == "" {
			return nil, &InvalidHypothesisSetError{Reason: "hypothesis has neither id nor name"}
		}
		if _, dup := priors[key]; dup {
			return nil, &InvalidHypothesisSetError{Reason: "duplicate hypothesis " + key}
		}
		if math.IsNaN(h.Prior) || h.Prior < 0 || h.Prior > 1 {
			return nil, &InvalidHypothesisSetError{Reason: "prior of " + key + " outside [0,1]"}
		}
		priors[key] = h.Prior
		total += h.Prior
	}

	if total <= 0 {
		return nil, &InvalidHypothesisSetError{Reason: "priors sum to zero"}
	}
	if math.Abs(total-1) > Epsilon {
		for k, p := range priors {
			priors[k] = p / total
		}
	}
	return priors, nil
}

// Distribution maps hypothesis keys to probabilities.
type Distribution map[string]float64

// Clone returns an independent copy.
func (d Distribution) Clone() Distribution {
	out := make(Distribution, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Sum returns the total probability mass.
func (d Distribution) Sum() float64 {
	var s float64
	for _, v := range d {
		s += v
	}
	return s
}

// IsNormalized reports whether the mass sums to one within Epsilon.
func (d Distribution) IsNormalized() bool {
	return math.Abs(d.Sum()-1) <= Epsilon
}

// Normalize rescales d in place. A zero-mass distribution becomes uniform.
func (d Distribution) Normalize() {
	s := d.Sum()
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		u := 1 / float64(len(d))
		for k := range d {
			d[k] = u
		}
		return
	}
	for k, v := range d {
		d[k] = v / s
	}
}

// MAP returns the key with the highest probability. Ties break on the smaller key
// so the answer is stable across map iteration orders.
func (d Distribution) MAP() (string, float64) {
	var bestKey string
	best := -1.0
	for k, v := range d {
		if v > best || (v == best && k < bestKey) {
			bestKey, best = k, v
		}
	}
	return bestKey, best
}

// TotalVariation returns half the L1 distance between two distributions over the same keys.
// Keys missing from one side count as zero mass.
func TotalVariation(a, b Distribution) float64 {
	var sum float64
	for k, v := range a {
		sum += math.Abs(v - b[k])
	}
	for k, v := range b {
		if _, ok := a[k]; !ok {
			sum += math.Abs(v)
		}
	}
	return sum / 2
}

// MaxAbsDelta returns the largest per-key change between two distributions.
func MaxAbsDelta(a, b Distribution) float64 {
	var m float64
	for k, v := range a {
		if d := math.Abs(v - b[k]); d > m {
			m = d
		}
	}
	for k, v := range b {
		if _, ok := a[k]; !ok && math.Abs(v) > m {
			m = math.Abs(v)
		}
	}
	return m
}

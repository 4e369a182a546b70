package uncertainty

import (
	"math"
	"testing"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func result(evidence int, posteriors domain.Distribution) *domain.InferenceResult {
	return &domain.InferenceResult{ID: "r1", Posteriors: posteriors, EvidenceCount: evidence}
}

func TestQuantify_IntervalsContainPointEstimate(t *testing.T) {
	q := NewQuantifier(domain.UncertaintyQuantifierConfig{MonteCarloSamples: 400}, zap.NewNop())

	posteriors := []domain.Distribution{
		{"a": 0.75, "b": 0.25},
		{"a": 0.999, "b": 0.001},
		{"a": 0.4, "b": 0.35, "c": 0.25},
		{"a": 0.5, "b": 0.5},
		{"a": 1, "b": 0},
	}
	methods := []domain.QuantificationMethod{domain.QuantifyAnalytic, domain.QuantifyBootstrap, domain.QuantifyEntropy}

	for _, method := range methods {
		for _, d := range posteriors {
			for _, evidence := range []int{0, 3, 50} {
				m, err := q.Quantify(result(evidence, d), method)
				require.NoError(t, err)
				require.Len(t, m.Intervals, 3)
				for _, ci := range m.Intervals {
					assert.True(t, ci.Contains(m.PointEstimate), "%s %v level %v: [%v,%v] misses %v",
						method, d, ci.Level, ci.Lower, ci.Upper, m.PointEstimate)
					assert.GreaterOrEqual(t, ci.Lower, 0.0)
					assert.LessOrEqual(t, ci.Upper, 1.0)
				}
			}
		}
	}
}

func TestQuantify_Analytic(t *testing.T) {
	q := NewQuantifier(domain.DefaultUncertaintyQuantifierConfig(), zap.NewNop())

	m, err := q.Quantify(result(8, domain.Distribution{"a": 0.75, "b": 0.25}), domain.QuantifyAnalytic)
	require.NoError(t, err)
	assert.Equal(t, "a", m.Hypothesis)
	assert.Equal(t, 0.75, m.PointEstimate)
	assert.Equal(t, "r1", m.ResultID)
	// N = 8 evidence + 2 prior strength.
	assert.InDelta(t, 0.75*0.25/11, m.Variance, 1e-12)

	ci90, ok := m.Interval(0.90)
	require.True(t, ok)
	ci99, ok := m.Interval(0.99)
	require.True(t, ok)
	assert.Greater(t, ci99.Width(), ci90.Width())
	assert.InDelta(t, 0.75-1.6448536*m.StdDev, ci90.Lower, 1e-6)
}

func TestQuantify_MoreEvidenceNarrowsIntervals(t *testing.T) {
	q := NewQuantifier(domain.DefaultUncertaintyQuantifierConfig(), zap.NewNop())
	d := domain.Distribution{"a": 0.6, "b": 0.4}

	few, err := q.Quantify(result(2, d), domain.QuantifyAnalytic)
	require.NoError(t, err)
	many, err := q.Quantify(result(200, d), domain.QuantifyAnalytic)
	require.NoError(t, err)

	f, _ := few.Interval(0.95)
	m, _ := many.Interval(0.95)
	assert.Less(t, m.Width(), f.Width())
}

func TestQuantify_Entropy(t *testing.T) {
	q := NewQuantifier(domain.DefaultUncertaintyQuantifierConfig(), zap.NewNop())

	uniform, err := q.Quantify(result(1, domain.Distribution{"a": 0.5, "b": 0.5}), domain.QuantifyEntropy)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, uniform.NormalizedEntropy, 1e-12)

	certain, err := q.Quantify(result(1, domain.Distribution{"a": 1, "b": 0}), domain.QuantifyEntropy)
	require.NoError(t, err)
	assert.Equal(t, 0.0, certain.Entropy)
	for _, ci := range certain.Intervals {
		assert.Equal(t, 0.0, ci.Width())
	}
}

func TestQuantify_BootstrapDeterministic(t *testing.T) {
	cfg := domain.UncertaintyQuantifierConfig{MonteCarloSamples: 500, Seed: 42}
	d := domain.Distribution{"a": 0.7, "b": 0.2, "c": 0.1}

	cfg.Workers = 1
	one, err := NewQuantifier(cfg, nil).Quantify(result(20, d), domain.QuantifyBootstrap)
	require.NoError(t, err)

	cfg.Workers = 4
	four, err := NewQuantifier(cfg, nil).Quantify(result(20, d), domain.QuantifyBootstrap)
	require.NoError(t, err)

	assert.Equal(t, one.Intervals, four.Intervals)
	assert.Equal(t, one.Variance, four.Variance)
	assert.Equal(t, 500, four.Samples)
}

func TestQuantify_Unsupported(t *testing.T) {
	q := NewQuantifier(domain.DefaultUncertaintyQuantifierConfig(), zap.NewNop())

	_, err := q.Quantify(result(3, domain.Distribution{"only": 1}), domain.QuantifyBootstrap)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMethod)

	_, err = q.Quantify(result(3, domain.Distribution{"a": 0.5, "b": 0.5}), "bayes_factor")
	assert.ErrorIs(t, err, domain.ErrUnsupportedMethod)

	_, err = q.QuantifyLevels(result(3, domain.Distribution{"a": 0.5, "b": 0.5}), domain.QuantifyAnalytic, []float64{1.5})
	assert.ErrorIs(t, err, domain.ErrUnsupportedMethod)

	_, err = q.Quantify(nil, domain.QuantifyAnalytic)
	assert.ErrorIs(t, err, domain.ErrInvalidHypothesisSet)
}

func TestQuantify_RejectsInvalidPosteriors(t *testing.T) {
	q := NewQuantifier(domain.DefaultUncertaintyQuantifierConfig(), zap.NewNop())

	tests := []struct {
		name string
		res  *domain.InferenceResult
	}{
		{"empty", result(1, domain.Distribution{})},
		{"above one", result(1, domain.Distribution{"a": 3, "b": 1})},
		{"negative", result(1, domain.Distribution{"a": 1.5, "b": -0.5})},
		{"sums below one", result(1, domain.Distribution{"a": 0.5, "b": 0.2})},
		{"nan", result(1, domain.Distribution{"a": math.NaN(), "b": 0.5})},
		{"infinite", result(1, domain.Distribution{"a": math.Inf(1), "b": 0})},
		{"negative evidence count", result(-5, domain.Distribution{"a": 0.5, "b": 0.5})},
	}
	methods := []domain.QuantificationMethod{domain.QuantifyAnalytic, domain.QuantifyBootstrap, domain.QuantifyEntropy}

	for _, tt := range tests {
		for _, method := range methods {
			t.Run(tt.name+"/"+string(method), func(t *testing.T) {
				_, err := q.Quantify(tt.res, method)
				assert.ErrorIs(t, err, domain.ErrInvalidHypothesisSet)
			})
		}
	}
}

func TestQuantify_DefaultMethod(t *testing.T) {
	q := NewQuantifier(domain.UncertaintyQuantifierConfig{DefaultMethod: domain.QuantifyEntropy}, zap.NewNop())

	m, err := q.Quantify(result(1, domain.Distribution{"a": 0.9, "b": 0.1}), "")
	require.NoError(t, err)
	assert.Equal(t, domain.QuantifyEntropy, m.Method)
}

package domain

type QuantificationMethod string

const (
	QuantifyAnalytic  QuantificationMethod = "analytic"
	QuantifyBootstrap QuantificationMethod = "bootstrap"
	QuantifyEntropy   QuantificationMethod = "entropy"
)

// ConfidenceInterval is a two-sided interval at a given confidence level.
type ConfidenceInterval struct {
	Level float64 `json:"level"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

func (ci ConfidenceInterval) Contains(v float64) bool {
	return v >= ci.Lower && v <= ci.Upper
}

func (ci ConfidenceInterval) Width() float64 {
	return ci.Upper - ci.Lower
}

// UncertaintyMeasure quantifies how sure an InferenceResult is about its MAP hypothesis.
type UncertaintyMeasure struct {
	ResultID          string               `json:"result_id,omitempty"`
	Hypothesis        string               `json:"hypothesis"`
	PointEstimate     float64              `json:"point_estimate"`
	Variance          float64              `json:"variance"`
	StdDev            float64              `json:"std_dev"`
	Entropy           float64              `json:"entropy"`
	NormalizedEntropy float64              `json:"normalized_entropy"`
	Intervals         []ConfidenceInterval `json:"intervals"`
	Method            QuantificationMethod `json:"method"`
	Samples           int                  `json:"samples,omitempty"`
}

// Interval returns the interval at the given level, if present.
func (u *UncertaintyMeasure) Interval(level float64) (ConfidenceInterval, bool) {
	for _, ci := range u.Intervals {
		if ci.Level == level {
			return ci, true
		}
	}
	return ConfidenceInterval{}, false
}

// CalibrationReport summarizes how well predicted probabilities match outcomes.
type CalibrationReport struct {
	Count                    int              `json:"count"`
	BrierScore               float64          `json:"brier_score"`
	LogLoss                  float64          `json:"log_loss"`
	ExpectedCalibrationError float64          `json:"expected_calibration_error"`
	Bins                     []CalibrationBin `json:"bins"`
}

type CalibrationBin struct {
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	Count         int     `json:"count"`
	MeanPredicted float64 `json:"mean_predicted"`
	ObservedRate  float64 `json:"observed_rate"`
}

package uncertainty

import (
	"fmt"
	"math"

	"github.com/Harshitk-cp/bayesd/internal/domain"
)

const (
	defaultCalibrationBins = 10
	logLossClip            = 1e-15
)

// Calibrate scores predicted probabilities against observed outcomes with the Brier
// score, log loss and expected calibration error over equal-width bins.
func Calibrate(predictions []float64, outcomes []bool, bins int) (*domain.CalibrationReport, error) {
	if len(predictions) == 0 {
		return nil, &domain.InsufficientDataError{Model: "calibration", Need: 1, Got: 0}
	}
	if len(predictions) != len(outcomes) {
		return nil, fmt.Errorf("%w: %d predictions but %d outcomes", domain.ErrInvalidEvidence, len(predictions), len(outcomes))
	}
	if bins <= 0 {
		bins = defaultCalibrationBins
	}

	report := &domain.CalibrationReport{
		Count: len(predictions),
		Bins:  make([]domain.CalibrationBin, bins),
	}
	width := 1 / float64(bins)
	for i := range report.Bins {
		report.Bins[i].Lower = float64(i) * width
		report.Bins[i].Upper = float64(i+1) * width
	}

	n := float64(len(predictions))
	for i, p := range predictions {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("%w: prediction %d is %v", domain.ErrInvalidEvidence, i, p)
		}
		o := 0.0
		if outcomes[i] {
			o = 1
		}
		report.BrierScore += (p - o) * (p - o) / n

		c := math.Min(math.Max(p, logLossClip), 1-logLossClip)
		report.LogLoss -= (o*math.Log(c) + (1-o)*math.Log(1-c)) / n

		b := min(int(p*float64(bins)), bins-1)
		bin := &report.Bins[b]
		bin.Count++
		bin.MeanPredicted += p
		bin.ObservedRate += o
	}

	for i := range report.Bins {
		bin := &report.Bins[i]
		if bin.Count == 0 {
			continue
		}
		bin.MeanPredicted /= float64(bin.Count)
		bin.ObservedRate /= float64(bin.Count)
		report.ExpectedCalibrationError += float64(bin.Count) / n * math.Abs(bin.MeanPredicted-bin.ObservedRate)
	}
	return report, nil
}

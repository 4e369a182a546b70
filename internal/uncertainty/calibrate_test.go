package uncertainty

import (
	"math"
	"testing"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrate_PerfectPredictions(t *testing.T) {
	report, err := Calibrate([]float64{1, 0, 1, 0}, []bool{true, false, true, false}, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Count)
	assert.InDelta(t, 0.0, report.BrierScore, 1e-12)
	assert.InDelta(t, 0.0, report.ExpectedCalibrationError, 1e-12)
	assert.Less(t, report.LogLoss, 1e-10)
	assert.Len(t, report.Bins, 5)
}

func TestCalibrate_Scores(t *testing.T) {
	preds := []float64{0.8, 0.8, 0.8, 0.8, 0.2}
	outcomes := []bool{true, true, true, false, false}

	report, err := Calibrate(preds, outcomes, 0)
	require.NoError(t, err)
	assert.Len(t, report.Bins, 10)

	brier := (3*0.04 + 0.64 + 0.04) / 5
	assert.InDelta(t, brier, report.BrierScore, 1e-12)

	logLoss := -(3*math.Log(0.8) + math.Log(0.2) + math.Log(0.8)) / 5
	assert.InDelta(t, logLoss, report.LogLoss, 1e-12)

	// bin 8 holds four 0.8 predictions with three hits; bin 2 holds one miss at 0.2.
	assert.InDelta(t, 4.0/5*0.05+1.0/5*0.2, report.ExpectedCalibrationError, 1e-12)
	assert.Equal(t, 4, report.Bins[8].Count)
	assert.InDelta(t, 0.75, report.Bins[8].ObservedRate, 1e-12)
}

func TestCalibrate_InvalidInput(t *testing.T) {
	_, err := Calibrate(nil, nil, 10)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = Calibrate([]float64{0.5}, []bool{true, false}, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidEvidence)

	_, err = Calibrate([]float64{1.2}, []bool{true}, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidEvidence)
}

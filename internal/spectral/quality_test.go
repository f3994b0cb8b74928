package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = QualityLimits{SNRMin: 3.0, BaselineMax: 5.0, IntegrityMin: 0.9}

func TestQualityCleanSignal(t *testing.T) {
	t.Parallel()

	// A sine-like spread with healthy dynamic range
	v := make([]float64, 100)
	for i := range v {
		v[i] = math.Sin(float64(i) / 5.0)
	}

	m := EvaluateQuality(v, testLimits)
	require.True(t, m.Available)
	assert.InDelta(t, 1.0, m.Integrity, 1e-12)
	assert.Greater(t, m.SNR, 0.0)
	assert.GreaterOrEqual(t, m.Score, 0.0)
	assert.LessOrEqual(t, m.Score, 100.0)
}

func TestQualityIntegrityCountsFinite(t *testing.T) {
	t.Parallel()

	v := []float64{1, 2, math.NaN(), 4, math.Inf(1), 6, 7, 8, 9, 10}
	m := EvaluateQuality(v, testLimits)
	require.True(t, m.Available)
	assert.InDelta(t, 0.8, m.Integrity, 1e-12)
	assert.False(t, m.OK, "integrity 0.8 is below the 0.9 limit")
}

func TestQualityInsufficientData(t *testing.T) {
	t.Parallel()

	tests := [][]float64{
		{},
		{1},
		{math.NaN(), math.NaN(), 5},
	}
	for _, v := range tests {
		m := EvaluateQuality(v, testLimits)
		assert.False(t, m.Available)
		assert.True(t, m.OK, "insufficient data must never stop streams")
	}
}

func TestQualityZeroDeviation(t *testing.T) {
	t.Parallel()

	m := EvaluateQuality([]float64{5, 5, 5, 5}, testLimits)
	require.True(t, m.Available)
	assert.Zero(t, m.SNR)
	assert.False(t, m.OK, "flat signal fails the SNR floor")
}

func TestQualitySNRFormula(t *testing.T) {
	t.Parallel()

	v := []float64{0, 10, 0, 10, 0, 10, 0, 10}
	m := EvaluateQuality(v, testLimits)
	require.True(t, m.Available)
	// std of a balanced 0/10 square wave is 5, range is 10
	assert.InDelta(t, 2.0, m.SNR, 1e-9)
}

func TestQualityBaselineDrift(t *testing.T) {
	t.Parallel()

	// Strong ramp: edges differ by far more than the deviation allows
	n := 100
	v := make([]float64, n)
	for i := range v {
		v[i] = float64(i)
	}
	m := EvaluateQuality(v, testLimits)
	require.True(t, m.Available)
	assert.Greater(t, m.Baseline, 3.0)
}

func TestQualityScoreWeights(t *testing.T) {
	t.Parallel()

	v := make([]float64, 200)
	for i := range v {
		v[i] = math.Sin(float64(i) / 7.0)
	}
	m := EvaluateQuality(v, testLimits)
	require.True(t, m.Available)

	expected := 0.5*clamp(m.SNR/50.0*100.0, 0, 100) +
		0.2*clamp(100.0/(1.0+m.Baseline), 0, 100) +
		0.3*clamp(m.Integrity*100.0, 0, 100)
	assert.InDelta(t, expected, m.Score, 1e-9)
}

package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelinePreservesLength(t *testing.T) {
	t.Parallel()

	v := []float64{1, 4, 2, 8, 5, 7, 3, 6, 9, 0}

	var p Pipeline
	require.NoError(t, p.Append(Stage{Tag: StageSmooth, Window: 5}))
	require.NoError(t, p.Append(Stage{Tag: StageBaseline, EdgePercent: 10}))
	require.NoError(t, p.Append(Stage{Tag: StageDerivative, Order: 2}))
	require.NoError(t, p.Append(Stage{Tag: StageNormalize}))

	out, err := p.Apply(v)
	require.NoError(t, err)
	assert.Len(t, out, len(v))
}

func TestEmptyPipelineIsNoOp(t *testing.T) {
	t.Parallel()

	var p Pipeline
	v := []float64{1, 2, 3}
	out, err := p.Apply(v)
	require.NoError(t, err)
	assert.Equal(t, v, out)
}

func TestPipelineRejectsShortInput(t *testing.T) {
	t.Parallel()

	var p Pipeline
	_, err := p.Apply([]float64{1, 2})
	assert.Error(t, err)
}

func TestAppendValidatesParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		stage Stage
	}{
		{"smooth window too small", Stage{Tag: StageSmooth, Window: 2}},
		{"baseline percent low", Stage{Tag: StageBaseline, EdgePercent: 0.5}},
		{"baseline percent high", Stage{Tag: StageBaseline, EdgePercent: 21}},
		{"derivative order 0", Stage{Tag: StageDerivative, Order: 0}},
		{"derivative order 3", Stage{Tag: StageDerivative, Order: 3}},
		{"unknown tag", Stage{Tag: StageTag("fourier")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var p Pipeline
			assert.Error(t, p.Append(tt.stage))
			assert.Equal(t, 0, p.Len())
		})
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	var p Pipeline
	require.NoError(t, p.Append(Stage{Tag: StageNormalize}))
	p.Clear()
	assert.Equal(t, 0, p.Len())
}

func TestSmoothConstantInput(t *testing.T) {
	t.Parallel()

	// N=3 with window 9: window clips to 3; constant input is unchanged
	v := []float64{2, 2, 2}
	assert.Equal(t, v, Smooth(v, 9))
}

func TestSmoothEvenWindowForcedOdd(t *testing.T) {
	t.Parallel()

	v := []float64{0, 0, 0, 10, 0, 0, 0}
	got4 := Smooth(v, 4) // forced to 5
	got5 := Smooth(v, 5)
	assert.Equal(t, got5, got4)
}

func TestSmoothCenteredAverage(t *testing.T) {
	t.Parallel()

	v := []float64{3, 6, 9}
	out := Smooth(v, 3)
	assert.InDelta(t, 4.5, out[0], 1e-12) // edge clipped: mean(3,6)
	assert.InDelta(t, 6.0, out[1], 1e-12)
	assert.InDelta(t, 7.5, out[2], 1e-12)
}

func TestBaselineRemovesLinearTrend(t *testing.T) {
	t.Parallel()

	// A pure linear ramp should be flattened to near zero
	n := 100
	v := make([]float64, n)
	for i := range v {
		v[i] = 2.0 + 0.1*float64(i)
	}
	out := BaselineCorrect(v, 5)
	for i, x := range out {
		assert.InDeltaf(t, 0, x, 0.5, "index %d", i)
	}
}

func TestDerivative(t *testing.T) {
	t.Parallel()

	v := []float64{1, 3, 6, 10}
	d1 := Derivative(v, 1)
	assert.Equal(t, []float64{0, 2, 3, 4}, d1)

	d2 := Derivative(v, 2)
	assert.Equal(t, []float64{0, 2, 1, 1}, d2)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	out := Normalize([]float64{5, 10, 15})
	assert.Equal(t, []float64{0, 0.5, 1}, out)

	constant := []float64{4, 4, 4}
	assert.Equal(t, constant, Normalize(constant))
}

func TestSNVIdempotence(t *testing.T) {
	t.Parallel()

	v := []float64{1, 5, 2, 9, 4, 7}
	once := SNV(v)
	twice := SNV(once)
	for i := range once {
		assert.InDeltaf(t, once[i], twice[i], 1e-9, "index %d", i)
	}
}

func TestSNVConstantYieldsZeros(t *testing.T) {
	t.Parallel()

	out := SNV([]float64{3, 3, 3, 3})
	for _, x := range out {
		assert.Zero(t, x)
	}
}

func TestSNVStatistics(t *testing.T) {
	t.Parallel()

	out := SNV([]float64{2, 4, 6, 8, 10})

	m := 0.0
	for _, x := range out {
		m += x
	}
	m /= float64(len(out))
	assert.InDelta(t, 0, m, 1e-12, "SNV output is mean-centered")

	variance := 0.0
	for _, x := range out {
		variance += (x - m) * (x - m)
	}
	assert.InDelta(t, 1, math.Sqrt(variance/float64(len(out))), 1e-12, "SNV output has unit deviation")
}

package spectral

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrationApply(t *testing.T) {
	t.Parallel()

	var c CalibrationPair
	c.SetDark([]float64{1, 1, 1})
	c.SetWhite([]float64{3, 5, 1})

	out, applied := c.Apply([]float64{2, 3, 1})
	require.True(t, applied)
	assert.InDelta(t, 0.5, out[0], 1e-12)
	assert.InDelta(t, 0.5, out[1], 1e-12)
	assert.Zero(t, out[2], "zero denominator yields zero")
}

func TestCalibrationSkippedWhenIncomplete(t *testing.T) {
	t.Parallel()

	raw := []float64{1, 2, 3}

	var c CalibrationPair
	out, applied := c.Apply(raw)
	assert.False(t, applied)
	assert.Equal(t, raw, out)

	c.SetDark([]float64{0, 0, 0})
	out, applied = c.Apply(raw)
	assert.False(t, applied, "dark alone is not enough")
	assert.Equal(t, raw, out)
}

func TestCalibrationSkippedOnLengthMismatch(t *testing.T) {
	t.Parallel()

	var c CalibrationPair
	c.SetDark([]float64{0, 0})
	c.SetWhite([]float64{1, 1})

	raw := []float64{1, 2, 3}
	out, applied := c.Apply(raw)
	assert.False(t, applied)
	assert.Equal(t, raw, out)
}

func TestCalibrationIdentity(t *testing.T) {
	t.Parallel()

	// dark=0, white=1 is the identity transform
	var c CalibrationPair
	c.SetDark([]float64{0, 0, 0, 0})
	c.SetWhite([]float64{1, 1, 1, 1})

	v := []float64{0.1, 0.7, 0.3, 0.9}
	out, applied := c.Apply(v)
	require.True(t, applied)
	assert.Equal(t, v, out)

	// Applying again is still the identity
	out2, applied := c.Apply(out)
	require.True(t, applied)
	assert.Equal(t, v, out2)
}

func TestCalibrationStoresCopies(t *testing.T) {
	t.Parallel()

	dark := []float64{0, 0}
	var c CalibrationPair
	c.SetDark(dark)
	dark[0] = 99

	c.SetWhite([]float64{1, 1})
	out, applied := c.Apply([]float64{0.5, 0.5})
	require.True(t, applied)
	assert.InDelta(t, 0.5, out[0], 1e-12)
}

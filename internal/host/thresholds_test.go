package host

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/nirspec-go/internal/conf"
)

func TestAlarmEdgeLifecycle(t *testing.T) {
	t.Parallel()

	e := NewThresholdEngine(map[string]conf.ThresholdBand{
		"a": {Min: 0, Max: 1},
	})

	// A=0.5: in band, no event
	_, events := e.Evaluate(map[string]float64{"A": 0.5})
	assert.Empty(t, events)

	// A=1.5: above band, AlarmRaised
	statuses, events := e.Evaluate(map[string]float64{"A": 1.5})
	require.Len(t, events, 1)
	assert.Equal(t, AlarmRaised, events[0].Kind)
	assert.Equal(t, "A", events[0].Property)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Abnormal)

	// A=1.4: still abnormal, no new event
	_, events = e.Evaluate(map[string]float64{"A": 1.4})
	assert.Empty(t, events)

	// A=0.9: back in band, AlarmCleared
	_, events = e.Evaluate(map[string]float64{"A": 0.9})
	require.Len(t, events, 1)
	assert.Equal(t, AlarmCleared, events[0].Kind)

	st := e.State("A")
	assert.Equal(t, 4, st.DetectCount)
	assert.Equal(t, 2, st.AbnormalCount)
	assert.False(t, st.CurrentlyAbnormal)
}

func TestOpenBandNeverAlarms(t *testing.T) {
	t.Parallel()

	e := NewThresholdEngine(nil)

	for _, v := range []float64{-1e18, 0, 1e18} {
		statuses, events := e.Evaluate(map[string]float64{"unbounded": v})
		assert.Empty(t, events)
		require.Len(t, statuses, 1)
		assert.False(t, statuses[0].Abnormal)
	}
	assert.Equal(t, 3, e.State("unbounded").DetectCount)
}

func TestKeysAreCaseInsensitive(t *testing.T) {
	t.Parallel()

	e := NewThresholdEngine(map[string]conf.ThresholdBand{
		"Cetane Number": {Min: 40, Max: 60},
	})

	_, events := e.Evaluate(map[string]float64{"cetane number": 70})
	require.Len(t, events, 1)
	assert.Equal(t, AlarmRaised, events[0].Kind)

	// Counters accumulate under the normalized key regardless of the
	// spelling the prediction used
	_, _ = e.Evaluate(map[string]float64{"CETANE NUMBER": 50})
	st := e.State("Cetane Number")
	assert.Equal(t, 2, st.DetectCount)
	assert.Equal(t, 1, st.AbnormalCount)
}

func TestAbnormalNeverExceedsDetect(t *testing.T) {
	t.Parallel()

	e := NewThresholdEngine(map[string]conf.ThresholdBand{
		"x": {Min: -0.5, Max: 0.5},
	})

	for i := 0; i < 500; i++ {
		_, _ = e.Evaluate(map[string]float64{"x": rand.NormFloat64()})
		st := e.State("x")
		assert.LessOrEqual(t, st.AbnormalCount, st.DetectCount)
	}
	assert.Equal(t, 500, e.State("x").DetectCount)
}

func TestStatusRowPerProperty(t *testing.T) {
	t.Parallel()

	e := NewThresholdEngine(nil)
	statuses, _ := e.Evaluate(map[string]float64{"b": 2, "a": 1, "c": 3})

	require.Len(t, statuses, 3)
	assert.Equal(t, "a", statuses[0].Property)
	assert.Equal(t, "b", statuses[1].Property)
	assert.Equal(t, "c", statuses[2].Property)
}

func TestReloadPreservesCounters(t *testing.T) {
	t.Parallel()

	e := NewThresholdEngine(map[string]conf.ThresholdBand{"a": {Min: 0, Max: 1}})
	_, _ = e.Evaluate(map[string]float64{"a": 5})
	require.Equal(t, 1, e.State("a").AbnormalCount)

	e.Reload(map[string]conf.ThresholdBand{"a": {Min: 0, Max: 10}})
	_, events := e.Evaluate(map[string]float64{"a": 5})

	// Value now in band: the standing alarm clears, counters carry on
	require.Len(t, events, 1)
	assert.Equal(t, AlarmCleared, events[0].Kind)
	assert.Equal(t, 2, e.State("a").DetectCount)
}

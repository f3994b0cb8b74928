package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/nirspec-go/internal/errors"
)

func TestFrameCounters(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewMetrics(registry)
	require.NoError(t, err)

	m.FrameTx("spectrum_data")
	m.FrameTx("spectrum_data")
	m.FrameRx("heartbeat")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.framesTx.WithLabelValues("spectrum_data")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.framesRx.WithLabelValues("heartbeat")))
}

func TestErrorHookCountsBuiltErrors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewMetrics(registry)
	require.NoError(t, err)

	m.InstallErrorHook()
	defer errors.SetReportHook(nil)

	errors.Newf("boom").Component("frame").Category(errors.CategoryAuth).Build()
	errors.Newf("boom again").Component("frame").Category(errors.CategoryAuth).Build()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.errorsTotal.WithLabelValues("frame", "auth")))
}

func TestAlarmAndPredictionCounters(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewMetrics(registry)
	require.NoError(t, err)

	m.PredictionCompleted()
	m.PredictionFailed()
	m.AlarmRaised()
	m.AlarmCleared()
	m.AlarmCleared()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.predictionsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.predictionsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.alarmsTotal.WithLabelValues("raised")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.alarmsTotal.WithLabelValues("cleared")))
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewMetrics(registry)
	require.NoError(t, err)

	_, err = NewMetrics(registry)
	assert.Error(t, err)
}

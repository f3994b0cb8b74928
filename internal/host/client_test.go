package host

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/nirspec-go/internal/conf"
	"github.com/tphakala/nirspec-go/internal/datastore"
	"github.com/tphakala/nirspec-go/internal/device"
	"github.com/tphakala/nirspec-go/internal/frame"
	"github.com/tphakala/nirspec-go/internal/predictor"
	"github.com/tphakala/nirspec-go/internal/spectral"
)

// meanBackend mimics a regression graph that outputs the mean of its
// features for every property.
type meanBackend struct {
	inputSize  int
	outputSize int
}

func (b *meanBackend) Name() string    { return "mean" }
func (b *meanBackend) InputSize() int  { return b.inputSize }
func (b *meanBackend) OutputSize() int { return b.outputSize }
func (b *meanBackend) Close() error    { return nil }

func (b *meanBackend) Infer(features []float64) ([]float64, error) {
	m := 0.0
	for _, x := range features {
		m += x
	}
	m /= float64(len(features))
	out := make([]float64, b.outputSize)
	for i := range out {
		out[i] = m
	}
	return out, nil
}

// startDevice brings up a real device server on a loopback port.
func startDevice(t *testing.T) *device.Server {
	t.Helper()

	var b strings.Builder
	for i := 0; i < 9; i++ {
		b.WriteString("meta,info\n")
	}
	b.WriteString("idx,label,1000,1002,1004,1006\n")
	b.WriteString("r1,0.10,0.90,0.30,0.70\n")
	b.WriteString("r2,0.20,0.80,0.40,0.60\n")

	seedPath := filepath.Join(t.TempDir(), "seed.csv")
	require.NoError(t, os.WriteFile(seedPath, []byte(b.String()), 0o644))
	matrix, err := spectral.LoadMatrix(seedPath)
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.Device.Listen = "127.0.0.1"
	settings.Device.Port = 0
	settings.Device.SpectrumMs = 10
	settings.Device.SensorSec = 1
	settings.Device.StatusSec = 1
	settings.Device.HeartbeatSec = 1
	settings.Device.CalibrationSec = 0

	srv, err := device.NewServer(settings, matrix, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("device did not shut down")
		}
	})

	require.Eventually(t, func() bool { return srv.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	return srv
}

func hostSettings(devicePort int) *conf.Settings {
	s := &conf.Settings{}
	s.Host.Address = "127.0.0.1"
	s.Host.Port = devicePort
	s.Host.HistorySize = 10
	s.Host.Quality.SNRMin = 0
	s.Host.Quality.BaselineMax = 1e9
	s.Host.Quality.IntegrityMin = 0
	s.Host.Quality.AnomalyLimit = 1000
	s.Host.Thresholds = map[string]conf.ThresholdBand{
		"a": {Min: -0.1, Max: 0.1},
	}
	return s
}

func newTestPredictor() *predictor.SpectrumPredictor {
	info := &predictor.ModelInfo{
		InputSize:              4,
		OutputSize:             2,
		PropertyLabels:         []string{"A", "B"},
		SelectedFeatureIndices: []int{0, 1, 2, 3},
	}
	return predictor.New(info, nil, &meanBackend{inputSize: 4, outputSize: 2}, nil)
}

func TestEndToEndPredictionAndPersistence(t *testing.T) {
	srv := startDevice(t)
	port := srv.Addr().(*net.TCPAddr).Port

	store := datastore.New(filepath.Join(t.TempDir(), "runtime.sqlite"), false)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	ctrl, err := NewController(hostSettings(port), newTestPredictor(), store, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("controller did not shut down")
		}
	})

	// Wait for the link, then subscribe to the spectrum stream
	require.Eventually(t, func() bool {
		return ctrl.Supervisor().State() == StateConnected
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, ctrl.StartSpectrumStream())

	// Predictions flow into history and the store
	require.Eventually(t, func() bool {
		count, err := store.CountSpectra()
		return err == nil && count >= 3
	}, 10*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		return ctrl.History().Len() >= 3
	}, 5*time.Second, 50*time.Millisecond)

	// Every prediction carries both configured properties
	recent := ctrl.History().Recent()
	require.NotEmpty(t, recent)
	for _, record := range recent {
		require.Len(t, record.Values, 2)
		_, hasA := record.Values["A"]
		_, hasB := record.Values["B"]
		assert.True(t, hasA)
		assert.True(t, hasB)
	}

	// SNV makes every processed frame zero-mean, so property values sit at
	// zero; the configured band around zero stays quiet
	st := ctrl.AlarmState("A")
	assert.Positive(t, st.DetectCount)
	assert.Zero(t, st.AbnormalCount)

	// K status rows per prediction landed
	rows, err := store.StatusRowsForProperty("A", 100)
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
	for _, row := range rows {
		assert.Equal(t, datastore.StatusNormal, row.Status)
	}

	require.NoError(t, ctrl.StopSpectrumStream())
}

func TestTelemetryCacheAndHeartbeat(t *testing.T) {
	srv := startDevice(t)
	port := srv.Addr().(*net.TCPAddr).Port

	ctrl, err := NewController(hostSettings(port), newTestPredictor(), nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("controller did not shut down")
		}
	})

	// The supervisor resubscribes device status and sensor streams on
	// connect; both land in the telemetry cache
	require.Eventually(t, func() bool {
		_, ok := ctrl.LatestTelemetry(frame.TypeSensorData)
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := ctrl.LatestTelemetry(frame.TypeDeviceStatus)
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	// Heartbeats keep the watchdog fed
	require.Eventually(t, func() bool {
		_, ok := ctrl.LatestTelemetry(frame.TypeHeartbeat)
		return ok
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, HeartbeatOK, ctrl.Supervisor().Heartbeat())
}

func TestCalibrationRoundTripAndState(t *testing.T) {
	srv := startDevice(t)
	port := srv.Addr().(*net.TCPAddr).Port

	ctrl, err := NewController(hostSettings(port), newTestPredictor(), nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("controller did not shut down")
		}
	})

	require.Eventually(t, func() bool {
		return ctrl.Supervisor().State() == StateConnected
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, ctrl.RequestDark())
	require.Eventually(t, func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return ctrl.calibration.HasDark()
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, ctrl.RequestWhite())
	require.Eventually(t, func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return ctrl.calibration.HasWhite() && ctrl.calibration.Ready(4)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestPipelineConfiguration(t *testing.T) {
	ctrl, err := NewController(hostSettings(1), newTestPredictor(), nil, nil, nil)
	require.NoError(t, err)
	defer ctrl.worker.Close()

	require.NoError(t, ctrl.AddStage(spectral.Stage{Tag: spectral.StageSmooth, Window: 5}))
	require.NoError(t, ctrl.AddStage(spectral.Stage{Tag: spectral.StageNormalize}))
	assert.Error(t, ctrl.AddStage(spectral.Stage{Tag: spectral.StageDerivative, Order: 7}))

	ctrl.ClearPipeline()
	ctrl.mu.Lock()
	assert.Equal(t, 0, ctrl.pipeline.Len())
	ctrl.mu.Unlock()
}

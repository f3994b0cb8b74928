package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8888, s.Device.Port)
	assert.Equal(t, 50, s.Device.SpectrumMs)
	assert.Equal(t, 10, s.Host.HistorySize)
	assert.Equal(t, "neural", s.Host.Backend)
	assert.InDelta(t, 3.0, s.Host.Quality.SNRMin, 1e-9)
	assert.False(t, s.Encryption.Enabled)
}

func TestLoadJSONConfig(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.json")
	cfg := `{
		"host": {
			"thresholds": {
				"Cetane Number": {"min": 40, "max": 60},
				"density": {"min": 0.8, "max": 0.9}
			},
			"quality": {"snr_min": 5, "baseline_max": 2, "integrity_min": 0.95, "anomaly_limit": 3}
		},
		"encryption": {"enabled": true, "password": "hunter2"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	// Threshold keys are normalized to lowercase
	band, ok := s.Host.Thresholds["cetane number"]
	require.True(t, ok)
	assert.InDelta(t, 40.0, band.Min, 1e-9)
	assert.InDelta(t, 60.0, band.Max, 1e-9)

	assert.Equal(t, 3, s.Host.Quality.AnomalyLimit)
	assert.True(t, s.Encryption.Enabled)
	assert.Equal(t, "hunter2", s.Encryption.Password)
}

func TestValidateRejectsBadValues(t *testing.T) {
	resetViper(t)

	s, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"bad port", func(s *Settings) { s.Device.Port = 0 }},
		{"bad backend", func(s *Settings) { s.Host.Backend = "tensor" }},
		{"zero anomaly limit", func(s *Settings) { s.Host.Quality.AnomalyLimit = 0 }},
		{"encryption without password", func(s *Settings) { s.Encryption.Enabled = true; s.Encryption.Password = "" }},
		{"inverted band", func(s *Settings) {
			s.Host.Thresholds = map[string]ThresholdBand{"a": {Min: 2, Max: 1}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clone := *s
			tt.mutate(&clone)
			assert.Error(t, Validate(&clone))
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cetane number", NormalizeKey("  Cetane Number "))
	assert.Equal(t, "density", NormalizeKey("DENSITY"))
}

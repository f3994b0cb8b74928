// conf/validate.go settings validation
package conf

import (
	"github.com/tphakala/nirspec-go/internal/errors"
)

// Validate checks settings for values that would make a node unable to run.
func Validate(s *Settings) error {
	if s.Device.Port < 1 || s.Device.Port > 65535 {
		return validationError("device.port must be in 1..65535, got %d", s.Device.Port)
	}
	if s.Host.Port < 1 || s.Host.Port > 65535 {
		return validationError("host.port must be in 1..65535, got %d", s.Host.Port)
	}
	if s.Device.SpectrumMs <= 0 {
		return validationError("device.spectrumms must be positive, got %d", s.Device.SpectrumMs)
	}
	if s.Device.SensorSec <= 0 || s.Device.StatusSec <= 0 || s.Device.HeartbeatSec <= 0 {
		return validationError("device stream periods must be positive")
	}
	if s.Host.HistorySize <= 0 {
		return validationError("host.historysize must be positive, got %d", s.Host.HistorySize)
	}
	if s.Host.Backend != "neural" && s.Host.Backend != "svr" {
		return validationError("host.backend must be \"neural\" or \"svr\", got %q", s.Host.Backend)
	}
	if s.Host.Quality.AnomalyLimit <= 0 {
		return validationError("host.quality.anomaly_limit must be positive, got %d", s.Host.Quality.AnomalyLimit)
	}
	if s.Encryption.Enabled && s.Encryption.Password == "" {
		return validationError("encryption.password must be set when encryption is enabled")
	}
	for key, band := range s.Host.Thresholds {
		if band.Min > band.Max {
			return validationError("threshold band for %q has min %v > max %v", key, band.Min, band.Max)
		}
	}
	return nil
}

func validationError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("conf").
		Category(errors.CategoryValidation).
		Build()
}

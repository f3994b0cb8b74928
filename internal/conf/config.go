// conf/config.go
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/tphakala/nirspec-go/internal/errors"
)

// ThresholdBand is a [min,max] acceptance band for one predicted property.
type ThresholdBand struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// LogConfig holds rotation settings for a file logger.
type LogConfig struct {
	Enabled    bool   // true to enable this log
	Path       string // path to log file
	MaxSizeMB  int    // rotate after this many megabytes
	MaxBackups int    // number of rotated files to keep
	MaxAgeDays int    // days to retain rotated files
}

type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string // name of this node, used to identify log and MQTT sources
		Log  LogConfig
	}

	Device struct {
		Listen         string // interface to bind, default 0.0.0.0
		Port           int    // TCP listening port
		DataFile       string // seed spectral dataset CSV name or path
		SpectrumMs     int    // spectrum stream period in milliseconds
		SensorSec      int    // sensor stream period in seconds
		StatusSec      int    // device status stream period in seconds
		HeartbeatSec   int    // heartbeat period in seconds
		CalibrationSec int    // delay before dark/white calibration replies
	}

	Host struct {
		Address     string // device address to connect to
		Port        int    // device port to connect to
		ModelDir    string // directory holding the model graph and JSON bundles
		Backend     string // predictor backend, "neural" or "svr"
		HistorySize int    // prediction history ring length

		Quality struct {
			SNRMin       float64 `mapstructure:"snr_min"`       // minimum acceptable SNR
			BaselineMax  float64 `mapstructure:"baseline_max"`  // maximum acceptable baseline drift
			IntegrityMin float64 `mapstructure:"integrity_min"` // minimum acceptable integrity ratio
			AnomalyLimit int     `mapstructure:"anomaly_limit"` // consecutive bad frames before the stream is stopped
		}

		Thresholds map[string]ThresholdBand // per-property acceptance bands, keys normalized lowercase
	}

	Encryption struct {
		Enabled  bool   // true to wrap frames in the authenticated envelope
		Password string // key material, derived via SHA-256
	}

	Output struct {
		SQLite struct {
			Enabled bool   // true to persist spectra and predictions
			Path    string // path to database file
		}
	}

	MQTT struct {
		Enabled  bool   // true to publish alarms and device status
		Broker   string // MQTT broker (tcp://host:port)
		Topic    string // topic prefix
		Username string // MQTT username
		Password string // MQTT password
	}

	Telemetry struct {
		Enabled bool   // true to expose a Prometheus metrics endpoint
		Listen  string // IP address and port to listen on
	}
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Setting returns the global settings instance, loading defaults on first
// use. A prior Load wins over the defaults.
func Setting() *Settings {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	if settingsInstance == nil {
		settingsInstance = &Settings{}
		setDefaults()
		if err := viper.Unmarshal(settingsInstance); err != nil {
			panic(fmt.Sprintf("unable to unmarshal default settings: %v", err))
		}
	}
	return settingsInstance
}

// Load reads the configuration file at path (JSON or YAML) into the global
// settings. An empty path loads defaults only.
func Load(path string) (*Settings, error) {
	setDefaults()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("config_path", path).
				Build()
		}
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	normalizeThresholdKeys(settings)

	if err := Validate(settings); err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// normalizeThresholdKeys lowercases and trims property keys so lookups are
// case-insensitive across the config, model labels, and database rows.
func normalizeThresholdKeys(s *Settings) {
	if len(s.Host.Thresholds) == 0 {
		return
	}
	normalized := make(map[string]ThresholdBand, len(s.Host.Thresholds))
	for k, v := range s.Host.Thresholds {
		normalized[NormalizeKey(k)] = v
	}
	s.Host.Thresholds = normalized
}

// NormalizeKey canonicalizes a property key for threshold lookups.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// ResolveDataPath probes the locations the device and host use for bundled
// data files: <exe>/../data/<name>, ./data/<name>, then name itself when
// absolute. Returns the first path that exists.
func ResolveDataPath(name string) (string, error) {
	if name == "" {
		return "", errors.Newf("empty data file name").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}

	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "..", "data", name))
	}
	candidates = append(candidates, filepath.Join(".", "data", name))
	if filepath.IsAbs(name) {
		candidates = append(candidates, name)
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	return "", errors.Newf("data file %q not found in any probed location", name).
		Component("conf").
		Category(errors.CategoryFileIO).
		Context("candidates", strings.Join(candidates, ", ")).
		Build()
}

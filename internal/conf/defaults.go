// conf/defaults.go default values for viper settings
package conf

import "github.com/spf13/viper"

// setDefaults registers the default configuration values with viper.
func setDefaults() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "nirspec")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/nirspec.log")
	viper.SetDefault("main.log.maxsizemb", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)

	viper.SetDefault("device.listen", "0.0.0.0")
	viper.SetDefault("device.port", 8888)
	viper.SetDefault("device.datafile", "diesel_spec.csv")
	viper.SetDefault("device.spectrumms", 50)
	viper.SetDefault("device.sensorsec", 5)
	viper.SetDefault("device.statussec", 5)
	viper.SetDefault("device.heartbeatsec", 3)
	viper.SetDefault("device.calibrationsec", 5)

	viper.SetDefault("host.address", "127.0.0.1")
	viper.SetDefault("host.port", 8888)
	viper.SetDefault("host.modeldir", "model")
	viper.SetDefault("host.backend", "neural")
	viper.SetDefault("host.historysize", 10)

	viper.SetDefault("host.quality.snr_min", 3.0)
	viper.SetDefault("host.quality.baseline_max", 5.0)
	viper.SetDefault("host.quality.integrity_min", 0.9)
	viper.SetDefault("host.quality.anomaly_limit", 5)

	viper.SetDefault("encryption.enabled", false)
	viper.SetDefault("encryption.password", "")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	viper.SetDefault("mqtt.topic", "nirspec")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")
}

// root.go viper root command code
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	devicecmd "github.com/tphakala/nirspec-go/cmd/device"
	hostcmd "github.com/tphakala/nirspec-go/cmd/host"
	"github.com/tphakala/nirspec-go/internal/conf"
	"github.com/tphakala/nirspec-go/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nirspec",
		Short: "NIR spectrometer telemetry and inference nodes",
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logging.Warn("flag binding failed", "flag", "debug", "error", err)
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		loaded, err := conf.Load(configPath)
		if err != nil {
			return err
		}
		*settings = *loaded
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
		return nil
	}

	rootCmd.AddCommand(
		devicecmd.Command(settings),
		hostcmd.Command(settings),
	)

	return rootCmd
}

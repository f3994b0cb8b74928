// Package devicecmd runs the lower computer node.
package devicecmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/nirspec-go/internal/conf"
	"github.com/tphakala/nirspec-go/internal/device"
	"github.com/tphakala/nirspec-go/internal/logging"
	"github.com/tphakala/nirspec-go/internal/observability"
	"github.com/tphakala/nirspec-go/internal/spectral"
)

// Command creates the device subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Run the device-side telemetry server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port, err := cmd.Flags().GetInt("listen"); err == nil && port != 0 {
				settings.Device.Port = port
			}
			return run(settings)
		},
	}
	cmd.Flags().Int("listen", 0, "TCP listening port (overrides config)")
	return cmd
}

func run(settings *conf.Settings) error {
	log := logging.ForService("device")

	if settings.Main.Log.Enabled {
		fileLog, closeLog, err := logging.NewFileLogger(settings.Main.Log.Path, "device", logging.Level(), &logging.FileLoggerOptions{
			MaxSizeMB:  settings.Main.Log.MaxSizeMB,
			MaxBackups: settings.Main.Log.MaxBackups,
			MaxAgeDays: settings.Main.Log.MaxAgeDays,
		})
		if err != nil {
			return err
		}
		defer func() { _ = closeLog() }()
		log = fileLog
	}

	dataPath, err := conf.ResolveDataPath(settings.Device.DataFile)
	if err != nil {
		return err
	}
	matrix, err := spectral.LoadMatrix(dataPath)
	if err != nil {
		return err
	}
	if log != nil {
		log.Info("spectral dataset loaded", "path", dataPath,
			"rows", matrix.RowCount(), "points", len(matrix.Wavelengths))
	}

	var metrics *observability.Metrics
	if settings.Telemetry.Enabled {
		metrics, err = observability.NewMetrics(nil)
		if err != nil {
			return err
		}
		metrics.InstallErrorHook()
	}

	server, err := device.NewServer(settings, matrix, metrics)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if metrics != nil {
		g.Go(func() error {
			return metrics.Serve(ctx, settings.Telemetry.Listen)
		})
	}
	g.Go(func() error {
		return server.Run(ctx)
	})
	return g.Wait()
}

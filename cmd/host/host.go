// Package hostcmd runs the upper computer node.
package hostcmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/nirspec-go/internal/conf"
	"github.com/tphakala/nirspec-go/internal/datastore"
	"github.com/tphakala/nirspec-go/internal/host"
	"github.com/tphakala/nirspec-go/internal/logging"
	"github.com/tphakala/nirspec-go/internal/mqttpub"
	"github.com/tphakala/nirspec-go/internal/observability"
	"github.com/tphakala/nirspec-go/internal/predictor"
)

// Command creates the host subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var stream bool

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run the host-side processing and inference node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr, err := cmd.Flags().GetString("host"); err == nil && addr != "" {
				settings.Host.Address = addr
			}
			if port, err := cmd.Flags().GetInt("port"); err == nil && port != 0 {
				settings.Host.Port = port
			}
			if dir, err := cmd.Flags().GetString("model-dir"); err == nil && dir != "" {
				settings.Host.ModelDir = dir
			}
			return run(settings, stream)
		},
	}
	cmd.Flags().String("host", "", "device address (overrides config)")
	cmd.Flags().Int("port", 0, "device port (overrides config)")
	cmd.Flags().String("model-dir", "", "model asset directory (overrides config)")
	cmd.Flags().BoolVar(&stream, "stream", true, "subscribe to the spectrum stream on connect")
	return cmd
}

func run(settings *conf.Settings, stream bool) error {
	log := logging.ForService("host")

	if settings.Main.Log.Enabled {
		fileLog, closeLog, err := logging.NewFileLogger(settings.Main.Log.Path, "host", logging.Level(), &logging.FileLoggerOptions{
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

	info, err := predictor.LoadModelInfo(settings.Host.ModelDir)
	if err != nil {
		return err
	}
	params, err := predictor.LoadPreprocessingParams(settings.Host.ModelDir, info)
	if err != nil {
		return err
	}

	var backend predictor.Backend
	switch settings.Host.Backend {
	case "svr":
		backend, err = predictor.NewSVRBackend(settings.Host.ModelDir, info)
	default:
		backend, err = predictor.NewNeuralBackend(settings.Host.ModelDir, info)
	}
	if err != nil {
		return err
	}

	pred := predictor.New(info, params, backend, logging.ForService("predictor"))
	defer func() { _ = pred.Close() }()

	var metrics *observability.Metrics
	if settings.Telemetry.Enabled {
		metrics, err = observability.NewMetrics(nil)
		if err != nil {
			return err
		}
		metrics.InstallErrorHook()
	}

	var store datastore.Interface
	if settings.Output.SQLite.Enabled {
		path := settings.Output.SQLite.Path
		if path == "" {
			path = datastore.DefaultPath()
		}
		ds := datastore.New(path, settings.Debug)
		if err := ds.Open(); err != nil {
			return err
		}
		defer func() { _ = ds.Close() }()
		store = ds
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var publisher *mqttpub.Publisher
	if settings.MQTT.Enabled {
		publisher = mqttpub.NewPublisher(settings)
		if err := publisher.Connect(ctx); err != nil {
			// Alarms still log locally; the broker session retries on its own
			if log != nil {
				log.Warn("mqtt connect failed, continuing without broker", "error", err)
			}
		} else {
			defer publisher.Disconnect()
		}
	}

	ctrl, err := host.NewController(settings, pred, store, publisher, metrics)
	if err != nil {
		return err
	}

	if stream {
		ctrl.Supervisor().OnConnected = func() {
			if err := ctrl.StartSpectrumStream(); err != nil && log != nil {
				log.Warn("spectrum stream subscribe failed", "error", err)
			}
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if metrics != nil {
		g.Go(func() error {
			return metrics.Serve(ctx, settings.Telemetry.Listen)
		})
	}
	g.Go(func() error {
		return ctrl.Run(ctx)
	})
	return g.Wait()
}

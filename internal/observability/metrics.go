// Package observability exposes Prometheus metrics for both nodes and an
// optional /metrics HTTP endpoint.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/nirspec-go/internal/errors"
	"github.com/tphakala/nirspec-go/internal/logging"
)

// Metrics holds the counters and gauges shared by the device and host.
type Metrics struct {
	registry *prometheus.Registry

	framesTx          *prometheus.CounterVec
	framesRx          *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	predictionsTotal  *prometheus.CounterVec
	alarmsTotal       *prometheus.CounterVec
	reconnectsTotal   prometheus.Counter
	heartbeatTimeouts prometheus.Counter
	connectedClients  prometheus.Gauge
	systemCPUPercent  prometheus.Gauge
	systemMemPercent  prometheus.Gauge
}

// NewMetrics creates and registers the metric set on the given registry.
// A nil registry allocates a private one.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		framesTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nirspec_frames_tx_total",
			Help: "Frames written to the wire, by frame type",
		}, []string{"type"}),
		framesRx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nirspec_frames_rx_total",
			Help: "Frames received from the wire, by frame type",
		}, []string{"type"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nirspec_errors_total",
			Help: "Errors built, by component and category",
		}, []string{"component", "category"}),
		predictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nirspec_predictions_total",
			Help: "Predictions completed, by outcome",
		}, []string{"outcome"}),
		alarmsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nirspec_alarms_total",
			Help: "Threshold alarm transitions, by event",
		}, []string{"event"}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nirspec_reconnects_total",
			Help: "Reconnect attempts made by the host supervisor",
		}),
		heartbeatTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nirspec_heartbeat_timeouts_total",
			Help: "Consecutive heartbeat timeout ticks observed",
		}),
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nirspec_connected_clients",
			Help: "Clients currently connected to the device listener",
		}),
		systemCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nirspec_system_cpu_percent",
			Help: "Host process system CPU utilization",
		}),
		systemMemPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nirspec_system_memory_percent",
			Help: "Host process system memory utilization",
		}),
	}

	collectors := []prometheus.Collector{
		m.framesTx, m.framesRx, m.errorsTotal, m.predictionsTotal,
		m.alarmsTotal, m.reconnectsTotal, m.heartbeatTimeouts,
		m.connectedClients, m.systemCPUPercent, m.systemMemPercent,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, errors.New(err).
				Component("observability").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}

	return m, nil
}

// InstallErrorHook wires the errors package reporting hook to the error
// counter so every built error is observable.
func (m *Metrics) InstallErrorHook() {
	errors.SetReportHook(func(component, category string) {
		m.errorsTotal.WithLabelValues(component, category).Inc()
	})
}

// FrameTx records one outgoing frame.
func (m *Metrics) FrameTx(frameType string) { m.framesTx.WithLabelValues(frameType).Inc() }

// FrameRx records one incoming frame.
func (m *Metrics) FrameRx(frameType string) { m.framesRx.WithLabelValues(frameType).Inc() }

// PredictionCompleted records one finished prediction.
func (m *Metrics) PredictionCompleted() { m.predictionsTotal.WithLabelValues("ok").Inc() }

// PredictionFailed records one failed prediction.
func (m *Metrics) PredictionFailed() { m.predictionsTotal.WithLabelValues("error").Inc() }

// AlarmRaised records one alarm raise transition.
func (m *Metrics) AlarmRaised() { m.alarmsTotal.WithLabelValues("raised").Inc() }

// AlarmCleared records one alarm clear transition.
func (m *Metrics) AlarmCleared() { m.alarmsTotal.WithLabelValues("cleared").Inc() }

// Reconnect records one reconnect attempt.
func (m *Metrics) Reconnect() { m.reconnectsTotal.Inc() }

// HeartbeatTimeout records one heartbeat timeout tick.
func (m *Metrics) HeartbeatTimeout() { m.heartbeatTimeouts.Inc() }

// SetConnectedClients updates the connected client gauge.
func (m *Metrics) SetConnectedClients(n int) { m.connectedClients.Set(float64(n)) }

// SetSystemUsage updates the system monitor gauges.
func (m *Metrics) SetSystemUsage(cpuPercent, memPercent float64) {
	m.systemCPUPercent.Set(cpuPercent)
	m.systemMemPercent.Set(memPercent)
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	log := logging.ForService("observability")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if log != nil {
		log.Info("metrics endpoint listening", "addr", addr)
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryNetwork).
			Context("addr", addr).
			Build()
	}
	return nil
}

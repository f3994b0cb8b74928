package host

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/nirspec-go/internal/conf"
	"github.com/tphakala/nirspec-go/internal/datastore"
	"github.com/tphakala/nirspec-go/internal/errors"
	"github.com/tphakala/nirspec-go/internal/frame"
	"github.com/tphakala/nirspec-go/internal/logging"
	"github.com/tphakala/nirspec-go/internal/mqttpub"
	"github.com/tphakala/nirspec-go/internal/observability"
	"github.com/tphakala/nirspec-go/internal/predictor"
	"github.com/tphakala/nirspec-go/internal/spectral"
)

// latestTelemetryTTL bounds how long cached sensor/status frames are
// considered current.
const latestTelemetryTTL = 30 * time.Second

// Controller is the host-side node: it owns the supervisor, the spectral
// pipeline state, the inference worker, threshold alarms, history, and
// persistence.
type Controller struct {
	settings *conf.Settings
	log      *slog.Logger
	metrics  *observability.Metrics

	sup       *Supervisor
	pred      *predictor.SpectrumPredictor
	worker    *InferenceWorker
	store     datastore.Interface
	publisher *mqttpub.Publisher

	// latest caches the most recent telemetry frame per type for status views
	latest     *gocache.Cache
	dispatcher *frame.Dispatcher

	mu             sync.Mutex
	calibration    spectral.CalibrationPair
	pipeline       spectral.Pipeline
	thresholds     *ThresholdEngine
	history        *History
	qualityStreak  int
	qualityAlarmed bool
	submittedWl    []float64
	submittedRaw   []float64
}

// NewController wires a host controller. store and publisher may be nil
// when persistence or MQTT are disabled; metrics may be nil.
func NewController(settings *conf.Settings, pred *predictor.SpectrumPredictor, store datastore.Interface, publisher *mqttpub.Publisher, metrics *observability.Metrics) (*Controller, error) {
	var env *frame.Envelope
	if settings.Encryption.Enabled {
		var err error
		env, err = frame.NewEnvelope(frame.DeriveKey(settings.Encryption.Password))
		if err != nil {
			return nil, err
		}
	}

	c := &Controller{
		settings:   settings,
		log:        logging.ForService("host"),
		metrics:    metrics,
		pred:       pred,
		store:      store,
		publisher:  publisher,
		// cleanup interval 0: entries expire lazily on read, no janitor goroutine
		latest:     gocache.New(latestTelemetryTTL, 0),
		thresholds: NewThresholdEngine(settings.Host.Thresholds),
		history:    NewHistory(settings.Host.HistorySize),
	}

	c.sup = NewSupervisor(settings.Host.Address, settings.Host.Port, env, metrics)
	c.sup.OnFrame = c.handleFrame
	c.sup.OnDisconnected = func() {
		// Calibration, pipeline, history, and alarms all survive a drop;
		// only the quality streak restarts with the stream.
		c.mu.Lock()
		c.qualityStreak = 0
		c.qualityAlarmed = false
		c.mu.Unlock()
	}

	c.worker = NewInferenceWorker(pred.Predict)
	c.dispatcher = c.newDispatcher()
	return c, nil
}

// Supervisor exposes the connection supervisor for status surfaces.
func (c *Controller) Supervisor() *Supervisor {
	return c.sup
}

// Run supervises the link and consumes inference completions until ctx is
// cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer c.worker.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.sup.Run(ctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case result := <-c.worker.Results():
				c.onInferenceResult(result)
			}
		}
	})

	g.Go(func() error {
		c.runSystemMonitor(ctx)
		return nil
	})

	return g.Wait()
}

// StartSpectrumStream subscribes to the device spectrum stream.
func (c *Controller) StartSpectrumStream() error {
	c.mu.Lock()
	c.qualityStreak = 0
	c.qualityAlarmed = false
	c.mu.Unlock()
	return c.sup.SendToken(frame.TokenGetSpectrumStream)
}

// StopSpectrumStream unsubscribes from the device spectrum stream.
func (c *Controller) StopSpectrumStream() error {
	return c.sup.SendToken(frame.TokenStopSpectrumStream)
}

// RequestDark asks the device for a dark reference.
func (c *Controller) RequestDark() error {
	return c.sup.SendJSON(map[string]string{"type": frame.TypeReqDark})
}

// RequestWhite asks the device for a white reference.
func (c *Controller) RequestWhite() error {
	return c.sup.SendJSON(map[string]string{"type": frame.TypeReqWhite})
}

// SetAcquisition sends a SET_ACQ command; the device clamps and acks.
func (c *Controller) SetAcquisition(integrationMs, average int) error {
	return c.sup.SendJSON(frame.SetAcq{
		Type:          frame.TypeSetAcq,
		IntegrationMs: integrationMs,
		Average:       average,
	})
}

// AddStage appends a preprocessing stage; parameters are validated here.
func (c *Controller) AddStage(stage spectral.Stage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipeline.Append(stage)
}

// ClearPipeline removes every preprocessing stage.
func (c *Controller) ClearPipeline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pipeline.Clear()
}

// History returns the prediction history (host-loop owned; callers read
// copies).
func (c *Controller) History() *History {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history
}

// AlarmState returns the threshold counters for one property.
func (c *Controller) AlarmState(property string) AlarmState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thresholds.State(property)
}

// LatestTelemetry returns the most recent cached frame of the given type
// (sensor_data, device_status, heartbeat).
func (c *Controller) LatestTelemetry(frameType string) (json.RawMessage, bool) {
	v, ok := c.latest.Get(frameType)
	if !ok {
		return nil, false
	}
	return v.(json.RawMessage), true
}

// ExportHistoryCSV dumps the recent prediction ring to a CSV file.
func (c *Controller) ExportHistoryCSV(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.ExportCSV(path)
}

// handleFrame demultiplexes one decoded frame body from the supervisor.
func (c *Controller) handleFrame(body []byte) {
	c.dispatcher.Dispatch(body)
}

// newDispatcher wires the host-side frame routing table.
func (c *Controller) newDispatcher() *frame.Dispatcher {
	d := frame.NewDispatcher()

	d.HandleJSON(frame.TypeSpectrumData, func(_ string, body []byte) {
		c.countRx(frame.TypeSpectrumData)
		c.handleSpectrum(body)
	})
	d.HandleJSON(frame.TypeSensorData, func(_ string, body []byte) {
		c.countRx(frame.TypeSensorData)
		c.latest.SetDefault(frame.TypeSensorData, json.RawMessage(append([]byte(nil), body...)))
	})
	d.HandleJSON(frame.TypeDeviceStatus, func(_ string, body []byte) {
		c.countRx(frame.TypeDeviceStatus)
		c.latest.SetDefault(frame.TypeDeviceStatus, json.RawMessage(append([]byte(nil), body...)))
		if c.publisher != nil {
			if err := c.publisher.PublishDeviceStatus(body); err != nil && c.log != nil {
				c.log.Warn("device status publish failed", "error", err)
			}
		}
	})
	d.HandleJSON(frame.TypeHeartbeat, func(_ string, body []byte) {
		c.countRx(frame.TypeHeartbeat)
		c.latest.SetDefault(frame.TypeHeartbeat, json.RawMessage(append([]byte(nil), body...)))
		c.sup.MarkHeartbeat()
	})
	d.HandleJSON(frame.TypeDarkData, func(_ string, body []byte) {
		c.countRx(frame.TypeDarkData)
		c.handleCalibration(body, true)
	})
	d.HandleJSON(frame.TypeWhiteData, func(_ string, body []byte) {
		c.countRx(frame.TypeWhiteData)
		c.handleCalibration(body, false)
	})
	d.HandleJSON(frame.TypeSetAcqAck, func(_ string, body []byte) {
		c.countRx(frame.TypeSetAcqAck)
		var ack frame.SetAcqAck
		if err := json.Unmarshal(body, &ack); err == nil && c.log != nil {
			c.log.Info("acquisition config acknowledged",
				"integration_ms", ack.IntegrationMs, "average", ack.Average)
		}
	})
	d.HandleJSON(frame.TypeError, func(_ string, body []byte) {
		var e frame.ErrorFrame
		if err := json.Unmarshal(body, &e); err == nil && c.log != nil {
			c.log.Warn("device reported error", "message", e.Message)
		}
	})

	d.OnUnknown = func(command string) {
		if c.log != nil {
			c.log.Warn("unhandled frame type", "type", command)
		}
	}
	d.OnText = func(line string) {
		if c.log != nil {
			c.log.Info("device text", "text", line)
		}
	}

	return d
}

// handleSpectrum runs one spectrum frame through calibration, the
// preprocessing pipeline, and quality scoring, then hands it to the
// inference worker.
func (c *Controller) handleSpectrum(body []byte) {
	var data frame.SpectrumData
	if err := json.Unmarshal(body, &data); err != nil {
		if c.log != nil {
			c.log.Warn("bad spectrum frame", "error", err)
		}
		return
	}
	if len(data.SpectrumValues) == 0 || len(data.SpectrumValues) != len(data.Wavelengths) {
		if c.log != nil {
			c.log.Warn("spectrum frame length mismatch",
				"wavelengths", len(data.Wavelengths), "values", len(data.SpectrumValues))
		}
		return
	}

	c.mu.Lock()
	corrected, _ := c.calibration.Apply(data.SpectrumValues)

	processed := corrected
	if c.pipeline.Len() > 0 {
		out, err := c.pipeline.Apply(corrected)
		if err != nil {
			c.mu.Unlock()
			if c.log != nil {
				c.log.Warn("preprocessing skipped", "error", err)
			}
			return
		}
		processed = out
	}

	limits := spectral.QualityLimits{
		SNRMin:       c.settings.Host.Quality.SNRMin,
		BaselineMax:  c.settings.Host.Quality.BaselineMax,
		IntegrityMin: c.settings.Host.Quality.IntegrityMin,
	}
	metrics := spectral.EvaluateQuality(processed, limits)

	breach := false
	if metrics.Available && !metrics.OK {
		c.qualityStreak++
		if c.qualityStreak >= c.settings.Host.Quality.AnomalyLimit && !c.qualityAlarmed {
			c.qualityAlarmed = true
			breach = true
		}
	} else if metrics.OK {
		c.qualityStreak = 0
		c.qualityAlarmed = false
	}

	c.submittedWl = append(c.submittedWl[:0], data.Wavelengths...)
	c.submittedRaw = append(c.submittedRaw[:0], data.SpectrumValues...)
	c.mu.Unlock()

	if breach {
		if c.log != nil {
			c.log.Error("quality breach, stopping spectrum stream",
				"consecutive_bad", c.settings.Host.Quality.AnomalyLimit,
				"snr", metrics.SNR, "baseline", metrics.Baseline, "integrity", metrics.Integrity)
		}
		qualityBreachError(metrics)
		if err := c.StopSpectrumStream(); err != nil && c.log != nil {
			c.log.Warn("failed to stop spectrum stream", "error", err)
		}
		return
	}

	c.worker.Submit(processed)
}

// handleCalibration stores a dark or white reference vector.
func (c *Controller) handleCalibration(body []byte, dark bool) {
	var data frame.CalibrationData
	if err := json.Unmarshal(body, &data); err != nil {
		if c.log != nil {
			c.log.Warn("bad calibration frame", "error", err)
		}
		return
	}

	c.mu.Lock()
	if dark {
		c.calibration.SetDark(data.SpectrumValues)
	} else {
		c.calibration.SetWhite(data.SpectrumValues)
	}
	ready := c.calibration.Ready(len(data.SpectrumValues))
	c.mu.Unlock()

	if c.log != nil {
		kind := "white"
		if dark {
			kind = "dark"
		}
		c.log.Info("calibration reference stored", "kind", kind,
			"points", len(data.SpectrumValues), "pair_complete", ready)
	}
}

// onInferenceResult finishes one prediction: history, thresholds, alarms,
// and the persistence commit.
func (c *Controller) onInferenceResult(result WorkerResult) {
	if result.Err != nil {
		if c.metrics != nil {
			c.metrics.PredictionFailed()
		}
		// NotReady surfaces once per state transition inside the predictor;
		// shape errors skip the frame but keep all pipeline state.
		if c.log != nil && !errors.Is(result.Err, predictor.ErrNotReady) {
			c.log.Warn("inference failed", "error", result.Err)
		}
		return
	}

	now := time.Now()

	c.mu.Lock()
	c.history.Add(PredictionRecord{Ts: now, Values: result.Values})
	statuses, events := c.thresholds.Evaluate(result.Values)
	wavelengths := append([]float64(nil), c.submittedWl...)
	raw := append([]float64(nil), c.submittedRaw...)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.PredictionCompleted()
	}

	for _, event := range events {
		c.emitAlarm(event)
	}

	if c.store != nil {
		if err := c.store.SavePredictionCommit(wavelengths, raw, result.Values, statuses); err != nil && c.log != nil {
			c.log.Error("prediction commit failed", "error", err)
		}
	}
}

// emitAlarm logs, counts, and publishes one alarm edge.
func (c *Controller) emitAlarm(event AlarmEvent) {
	if c.log != nil {
		switch event.Kind {
		case AlarmRaised:
			c.log.Warn("threshold alarm raised", "property", event.Property,
				"value", event.Value, "min", event.Min, "max", event.Max)
		case AlarmCleared:
			c.log.Info("threshold alarm cleared", "property", event.Property, "value", event.Value)
		}
	}
	if c.metrics != nil {
		switch event.Kind {
		case AlarmRaised:
			c.metrics.AlarmRaised()
		case AlarmCleared:
			c.metrics.AlarmCleared()
		}
	}
	if c.publisher != nil {
		err := c.publisher.PublishAlarm(event.ID, string(event.Kind), event.Property,
			event.Value, event.Min, event.Max, event.Ts)
		if err != nil && c.log != nil {
			c.log.Warn("alarm publish failed", "error", err)
		}
	}
}

func (c *Controller) countRx(frameType string) {
	if c.metrics != nil {
		c.metrics.FrameRx(frameType)
	}
}

// qualityBreachError builds the categorized breach error so the per-kind
// counters see it.
func qualityBreachError(metrics spectral.QualityMetrics) {
	_ = errors.Newf("quality breach: snr=%.2f baseline=%.2f integrity=%.2f",
		metrics.SNR, metrics.Baseline, metrics.Integrity).
		Component("host").
		Category(errors.CategoryQuality).
		Build()
}

package device

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tphakala/nirspec-go/internal/frame"
)

const deviceVersion = "v1.0.0"

// newDispatcher wires the command surface for one session.
func (s *Server) newDispatcher(sess *session) *frame.Dispatcher {
	d := frame.NewDispatcher()

	d.HandleToken(frame.TokenGetStatus, func(string) {
		s.mu.Lock()
		acq := s.acq
		s.mu.Unlock()
		s.sendText(sess, fmt.Sprintf("device status: running; integration_ms=%d average=%d", acq.IntegrationMs, acq.Average))
	})
	d.HandleToken(frame.TokenGetVersion, func(string) {
		s.sendText(sess, "device version: "+deviceVersion)
	})
	d.HandleToken(frame.TokenRestart, func(string) {
		s.sendText(sess, "restart command received")
	})
	d.HandleToken(frame.TokenStopData, func(string) {
		s.mu.Lock()
		s.paused = true
		s.mu.Unlock()
		s.sendText(sess, "data transmission stopped")
	})
	d.HandleToken(frame.TokenStartData, func(string) {
		s.mu.Lock()
		s.paused = false
		s.mu.Unlock()
		s.sendText(sess, "data transmission started")
	})

	d.HandleToken(frame.TokenGetSpectrum, func(string) {
		s.sendSingleSpectrum(sess)
	})
	d.HandleToken(frame.TokenGetSpectrumStream, func(string) {
		s.subscribe(sess, streamSpectrum)
	})
	d.HandleToken(frame.TokenStopSpectrumStream, func(string) {
		s.unsubscribe(sess, streamSpectrum)
	})
	d.HandleToken(frame.TokenGetSensorData, func(string) {
		s.subscribe(sess, streamSensor)
	})
	d.HandleToken(frame.TokenStopSensorStream, func(string) {
		s.unsubscribe(sess, streamSensor)
	})

	d.HandleJSON(frame.TypeSetAcq, func(_ string, body []byte) {
		s.handleSetAcq(sess, body)
	})
	d.HandleJSON(frame.TypeReqDark, func(string, []byte) {
		s.scheduleCalibration(sess, frame.TypeDarkData)
	})
	d.HandleJSON(frame.TypeReqWhite, func(string, []byte) {
		s.scheduleCalibration(sess, frame.TypeWhiteData)
	})
	d.HandleJSON(frame.TypeGetDeviceStatus, func(string, []byte) {
		s.sendJSON(sess, frame.TypeDeviceStatus, s.makeDeviceStatus())
	})
	d.HandleJSON(frame.TypeStartStatusStream, func(string, []byte) {
		s.subscribe(sess, streamStatus)
	})
	d.HandleJSON(frame.TypeStopStatusStream, func(string, []byte) {
		s.unsubscribe(sess, streamStatus)
	})

	d.OnUnknown = func(command string) {
		s.sendText(sess, "unknown command: "+command)
	}
	d.OnText = func(line string) {
		if s.log != nil {
			s.log.Info("client text", "client", sess.id, "text", line)
		}
	}

	return d
}

// handleSetAcq clamps the requested acquisition parameters into their valid
// ranges and acknowledges with the applied values.
func (s *Server) handleSetAcq(sess *session, body []byte) {
	var cmd frame.SetAcq
	if err := json.Unmarshal(body, &cmd); err != nil {
		s.sendJSON(sess, frame.TypeError, frame.ErrorFrame{
			Type:      frame.TypeError,
			Timestamp: frame.Timestamp(time.Now()),
			Message:   "invalid SET_ACQ payload",
		})
		return
	}

	integration := clampInt(cmd.IntegrationMs, integrationMsMin, integrationMsMax)
	average := clampInt(cmd.Average, averageMin, averageMax)

	s.mu.Lock()
	s.acq = acquisitionConfig{IntegrationMs: integration, Average: average}
	s.mu.Unlock()

	if s.log != nil {
		s.log.Info("acquisition config updated", "integration_ms", integration, "average", average)
	}

	s.sendJSON(sess, frame.TypeSetAcqAck, frame.SetAcqAck{
		Type:          frame.TypeSetAcqAck,
		Timestamp:     frame.Timestamp(time.Now()),
		IntegrationMs: integration,
		Average:       average,
	})
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

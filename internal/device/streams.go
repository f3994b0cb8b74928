package device

import (
	"time"

	"github.com/tphakala/nirspec-go/internal/frame"
)

// streamKind names one of the periodic publications.
type streamKind int

const (
	streamSpectrum streamKind = iota
	streamSensor
	streamStatus
	streamHeartbeat
)

func (k streamKind) String() string {
	switch k {
	case streamSpectrum:
		return "spectrum"
	case streamSensor:
		return "sensor"
	case streamStatus:
		return "device_status"
	case streamHeartbeat:
		return "heartbeat"
	}
	return "unknown"
}

// streamState tracks one stream's subscriber set and its timer goroutine.
// The timer starts when the set becomes non-empty and stops when it empties.
type streamState struct {
	subscribers map[string]*session
	stop        chan struct{}
}

// period returns the configured period for a stream.
func (s *Server) period(kind streamKind) time.Duration {
	switch kind {
	case streamSpectrum:
		return time.Duration(s.settings.Device.SpectrumMs) * time.Millisecond
	case streamSensor:
		return time.Duration(s.settings.Device.SensorSec) * time.Second
	case streamStatus:
		return time.Duration(s.settings.Device.StatusSec) * time.Second
	case streamHeartbeat:
		return time.Duration(s.settings.Device.HeartbeatSec) * time.Second
	}
	return time.Second
}

// subscribe adds a session to a stream, starting its timer if this is the
// first subscriber. Spectrum subscribers seed their private cursor from the
// device-wide cursor.
func (s *Server) subscribe(sess *session, kind streamKind) {
	if kind == streamSpectrum && !sess.subscribed(kind) {
		sess.setCursor(s.matrix.Cursor())
	}
	sess.setSubscribed(kind, true)

	s.mu.Lock()
	st := s.streams[kind]
	if st.subscribers == nil {
		st.subscribers = make(map[string]*session)
	}
	st.subscribers[sess.id] = sess
	started := st.stop != nil
	if !started {
		st.stop = make(chan struct{})
		go s.runStream(kind, st.stop)
	}
	s.mu.Unlock()

	if s.log != nil && !started {
		s.log.Info("stream timer started", "stream", kind.String(), "period", s.period(kind).String())
	}
}

// unsubscribe removes a session from a stream, stopping the timer when the
// subscriber set empties.
func (s *Server) unsubscribe(sess *session, kind streamKind) {
	sess.setSubscribed(kind, false)

	s.mu.Lock()
	st := s.streams[kind]
	delete(st.subscribers, sess.id)
	var stop chan struct{}
	if len(st.subscribers) == 0 && st.stop != nil {
		stop = st.stop
		st.stop = nil
	}
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		if s.log != nil {
			s.log.Info("stream timer stopped", "stream", kind.String())
		}
	}
}

// runStream drives one stream timer until its subscriber set empties.
func (s *Server) runStream(kind streamKind, stop chan struct{}) {
	ticker := time.NewTicker(s.period(kind))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick(kind)
		}
	}
}

// tick emits one round of frames for a stream, pruning dead peers from the
// subscriber set as it iterates.
func (s *Server) tick(kind streamKind) {
	s.mu.Lock()
	st := s.streams[kind]
	subscribers := make([]*session, 0, len(st.subscribers))
	for _, sess := range st.subscribers {
		subscribers = append(subscribers, sess)
	}
	paused := s.paused
	s.mu.Unlock()

	for _, sess := range subscribers {
		if !sess.isConnected() {
			s.unsubscribe(sess, kind)
			continue
		}
		switch kind {
		case streamSpectrum:
			if paused {
				continue
			}
			s.sendSpectrumRow(sess)
		case streamSensor:
			s.sendJSON(sess, frame.TypeSensorData, s.makeSensorData())
		case streamStatus:
			s.sendJSON(sess, frame.TypeDeviceStatus, s.makeDeviceStatus())
		case streamHeartbeat:
			s.sendJSON(sess, frame.TypeHeartbeat, frame.Heartbeat{
				Type:         frame.TypeHeartbeat,
				Timestamp:    frame.Timestamp(time.Now()),
				ServerUptime: s.uptime(),
				ClientCount:  s.clientCount(),
			})
		}
	}
}

// sendSpectrumRow emits one row to a stream subscriber using its private
// cursor, then advances the cursor with wraparound.
func (s *Server) sendSpectrumRow(sess *session) {
	index := sess.cursor()
	row := s.matrix.Row(index)
	total := s.matrix.RowCount()

	s.sendJSON(sess, frame.TypeSpectrumData, frame.SpectrumData{
		Type:           frame.TypeSpectrumData,
		Timestamp:      frame.Timestamp(time.Now()),
		Wavelengths:    s.matrix.Wavelengths,
		SpectrumValues: row,
		FileName:       s.matrix.FileName,
		DataPoints:     len(row),
		RowIndex:       &index,
		TotalRows:      &total,
	})

	sess.setCursor((index + 1) % total)
}

// sendSingleSpectrum answers GET_SPECTRUM from the device-wide cursor,
// advancing it.
func (s *Server) sendSingleSpectrum(sess *session) {
	row, index := s.matrix.NextRow()
	total := s.matrix.RowCount()

	s.sendJSON(sess, frame.TypeSpectrumData, frame.SpectrumData{
		Type:           frame.TypeSpectrumData,
		Timestamp:      frame.Timestamp(time.Now()),
		Wavelengths:    s.matrix.Wavelengths,
		SpectrumValues: row,
		FileName:       s.matrix.FileName,
		DataPoints:     len(row),
		RowIndex:       &index,
		TotalRows:      &total,
	})
}

package device

import (
	"time"

	"github.com/tphakala/nirspec-go/internal/frame"
)

// darkScale is the fraction of the current row used as the fabricated dark
// current; whiteScale scales the row maximum for the white reference.
const (
	darkScale  = 0.05
	whiteScale = 0.95
)

// scheduleCalibration answers REQ_DARK / REQ_WHITE after the configured
// delay without blocking the listener. The reply is silently dropped if the
// requester disconnected in the meantime.
func (s *Server) scheduleCalibration(sess *session, frameType string) {
	delay := time.Duration(s.settings.Device.CalibrationSec) * time.Second
	row := s.matrix.Row(s.matrix.Cursor())

	time.AfterFunc(delay, func() {
		if !sess.isConnected() {
			return
		}

		var values []float64
		switch frameType {
		case frame.TypeDarkData:
			values = make([]float64, len(row))
			for i, v := range row {
				values[i] = v * darkScale
			}
		case frame.TypeWhiteData:
			maxV := 0.0
			for _, v := range row {
				if v > maxV {
					maxV = v
				}
			}
			target := 1.0
			if maxV > 0 {
				target = maxV * whiteScale
			}
			values = make([]float64, len(row))
			for i := range values {
				values[i] = target
			}
		default:
			return
		}

		s.sendJSON(sess, frameType, frame.CalibrationData{
			Type:           frameType,
			Timestamp:      frame.Timestamp(time.Now()),
			Wavelengths:    s.matrix.Wavelengths,
			SpectrumValues: values,
		})
		if s.log != nil {
			s.log.Info("calibration reply sent", "type", frameType, "client", sess.id)
		}
	})
}

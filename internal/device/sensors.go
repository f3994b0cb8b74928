package device

import (
	"math/rand/v2"
	"time"

	"github.com/tphakala/nirspec-go/internal/frame"
)

// makeSensorData fabricates plausible environmental telemetry around
// nominal lab conditions.
func (s *Server) makeSensorData() frame.SensorData {
	return frame.SensorData{
		Type:        frame.TypeSensorData,
		Timestamp:   frame.Timestamp(time.Now()),
		Temperature: 20.0 + rand.Float64()*10.0,   // 20-30 C
		Humidity:    40.0 + rand.Float64()*40.0,   // 40-80 %
		Pressure:    1013.0 + rand.Float64()*10.0, // around standard
		Status:      "normal",
	}
}

// makeDeviceStatus fabricates instrument health telemetry. The detector and
// optics report occasional faults to exercise downstream handling.
func (s *Server) makeDeviceStatus() frame.DeviceStatus {
	detector := "ok"
	if rand.IntN(100) >= 95 {
		detector = "fault"
	}
	optics := "ok"
	if rand.IntN(100) >= 97 {
		optics = "fault"
	}

	return frame.DeviceStatus{
		Type:       frame.TypeDeviceStatus,
		Timestamp:  frame.Timestamp(time.Now()),
		DeviceTemp: 30.0 + rand.Float64()*20.0, // 30-50 C
		LampTemp:   35.0 + rand.Float64()*20.0, // 35-55 C
		Detector:   detector,
		Optics:     optics,
		UptimeSec:  s.uptime(),
	}
}

// Package frame turns a bidirectional byte stream into discrete LF-framed
// textual frames and routes them by kind. Frames are either UTF-8 JSON
// objects carrying a "type" field or plain ASCII command tokens.
package frame

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the wall-clock format carried in every JSON frame.
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp formats t in the wire timestamp layout.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// JSON frame type tags.
const (
	TypeSpectrumData      = "spectrum_data"
	TypeSensorData        = "sensor_data"
	TypeDeviceStatus      = "device_status"
	TypeHeartbeat         = "heartbeat"
	TypeDarkData          = "DARK_DATA"
	TypeWhiteData         = "WHITE_DATA"
	TypeSetAcq            = "SET_ACQ"
	TypeSetAcqAck         = "SET_ACQ_ACK"
	TypeReqDark           = "REQ_DARK"
	TypeReqWhite          = "REQ_WHITE"
	TypeGetDeviceStatus   = "GET_DEVICE_STATUS"
	TypeStartStatusStream = "START_DEVICE_STATUS_STREAM"
	TypeStopStatusStream  = "STOP_DEVICE_STATUS_STREAM"
	TypeError             = "error"
)

// Plain-text command tokens.
const (
	TokenGetStatus          = "GET_STATUS"
	TokenGetVersion         = "GET_VERSION"
	TokenRestart            = "RESTART"
	TokenStopData           = "STOP_DATA"
	TokenStartData          = "START_DATA"
	TokenGetSpectrum        = "GET_SPECTRUM"
	TokenGetSpectrumStream  = "GET_SPECTRUM_STREAM"
	TokenStopSpectrumStream = "STOP_SPECTRUM_STREAM"
	TokenGetSensorData      = "GET_SENSOR_DATA"
	TokenStopSensorStream   = "STOP_SENSOR_STREAM"
)

// SpectrumData is one row of the spectral matrix aligned with the
// wavelength axis.
type SpectrumData struct {
	Type           string    `json:"type"`
	Timestamp      string    `json:"timestamp"`
	Wavelengths    []float64 `json:"wavelengths"`
	SpectrumValues []float64 `json:"spectrum_values"`
	FileName       string    `json:"file_name"`
	DataPoints     int       `json:"data_points"`
	RowIndex       *int      `json:"row_index,omitempty"`
	TotalRows      *int      `json:"total_rows,omitempty"`
}

// SensorData carries environmental telemetry from the device.
type SensorData struct {
	Type        string  `json:"type"`
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Status      string  `json:"status"`
}

// DeviceStatus carries instrument health telemetry from the device.
type DeviceStatus struct {
	Type       string  `json:"type"`
	Timestamp  string  `json:"timestamp"`
	DeviceTemp float64 `json:"device_temp"`
	LampTemp   float64 `json:"lamp_temp"`
	Detector   string  `json:"detector"`
	Optics     string  `json:"optics"`
	UptimeSec  int64   `json:"uptime_sec"`
}

// Heartbeat is the periodic liveness frame sent to every connected client.
type Heartbeat struct {
	Type         string `json:"type"`
	Timestamp    string `json:"timestamp"`
	ServerUptime int64  `json:"server_uptime"`
	ClientCount  int    `json:"client_count"`
}

// CalibrationData is a dark or white reference vector.
type CalibrationData struct {
	Type           string    `json:"type"`
	Timestamp      string    `json:"timestamp"`
	Wavelengths    []float64 `json:"wavelengths"`
	SpectrumValues []float64 `json:"spectrum_values"`
}

// SetAcq is the acquisition configuration command.
type SetAcq struct {
	Type          string `json:"type"`
	IntegrationMs int    `json:"integration_ms"`
	Average       int    `json:"average"`
}

// SetAcqAck echoes the clamped acquisition configuration.
type SetAcqAck struct {
	Type          string `json:"type"`
	Timestamp     string `json:"timestamp"`
	IntegrationMs int    `json:"integration_ms"`
	Average       int    `json:"average"`
}

// ErrorFrame reports a protocol-level failure to the peer.
type ErrorFrame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// Marshal encodes a frame payload as compact JSON.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

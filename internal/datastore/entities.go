// entities.go contains the database row types for spectra, predictions,
// and per-property threshold status.
package datastore

// Spectrum is one raw spectrum frame as received from the device, stored
// with its wavelength axis as JSON arrays.
type Spectrum struct {
	ID              uint   `gorm:"primaryKey"`
	Ts              string `gorm:"not null"`
	WavelengthsJSON string `gorm:"column:wavelengths_json;not null"`
	RawSpectrumJSON string `gorm:"column:raw_spectrum_json;not null"`
}

// TableName overrides the default pluralization to match the schema.
func (Spectrum) TableName() string { return "spectra" }

// Prediction is one labeled prediction result stored as a JSON object of
// property → value.
type Prediction struct {
	ID          uint   `gorm:"primaryKey"`
	Ts          string `gorm:"not null"`
	ResultsJSON string `gorm:"column:results_json;not null"`
}

// PredictionStatus is one per-property threshold verdict row. Every
// prediction yields one row per property.
type PredictionStatus struct {
	ID       uint    `gorm:"primaryKey"`
	Ts       string  `gorm:"not null"`
	Property string  `gorm:"not null"`
	Value    float64 `gorm:"not null"`
	Min      float64
	Max      float64
	Status   string `gorm:"not null"`
}

// TableName overrides the default pluralization to match the schema.
func (PredictionStatus) TableName() string { return "prediction_status" }

// Threshold verdict values for PredictionStatus rows.
const (
	StatusNormal = "NORMAL"
	StatusAlarm  = "ALARM"
)

// Package datastore persists spectra, predictions, and threshold status
// rows in a relational store behind a narrow interface.
package datastore

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/nirspec-go/internal/errors"
	"github.com/tphakala/nirspec-go/internal/logging"
)

// tsLayout matches the millisecond timestamps the upper computer writes.
const tsLayout = "2006-01-02 15:04:05.000"

// StatusRow is one per-property verdict inside a prediction commit.
type StatusRow struct {
	Property string
	Value    float64
	Min      float64
	Max      float64
	Abnormal bool
}

// Interface is the persistence surface the host depends on.
type Interface interface {
	Open() error
	Close() error

	// SavePredictionCommit performs one logical prediction commit: the raw
	// spectrum, the labeled results, and one status row per property.
	SavePredictionCommit(wavelengths, rawSpectrum []float64, results map[string]float64, statuses []StatusRow) error

	LastPredictions(limit int) ([]Prediction, error)
	StatusRowsForProperty(property string, limit int) ([]PredictionStatus, error)
	CountSpectra() (int64, error)
}

// DataStore implements Interface on GORM with a SQLite dialector.
type DataStore struct {
	Path  string
	Debug bool
	DB    *gorm.DB

	log *slog.Logger
}

// New creates an unopened SQLite-backed store at path.
func New(path string, debug bool) *DataStore {
	return &DataStore{
		Path:  path,
		Debug: debug,
		log:   logging.ForService("datastore"),
	}
}

// DefaultPath resolves the default database location <exe>/../data/runtime.sqlite,
// falling back to ./data/runtime.sqlite.
func DefaultPath() string {
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), "..", "data", "runtime.sqlite")
	}
	return filepath.Join("data", "runtime.sqlite")
}

// Open initializes the SQLite database connection and migrates the schema.
func (ds *DataStore) Open() error {
	if err := os.MkdirAll(filepath.Dir(ds.Path), 0o755); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategorySystem).
			Context("directory", filepath.Dir(ds.Path)).
			Build()
	}

	logLevel := gormlogger.Warn
	if ds.Debug {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(sqlite.Open(ds.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_path", ds.Path).
			Build()
	}

	// Pragmas for steady append-only write load
	sqlDB, err := db.DB()
	if err == nil {
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA temp_store=MEMORY",
		} {
			if _, err := sqlDB.Exec(pragma); err != nil && ds.log != nil {
				ds.log.Warn("pragma failed", "pragma", pragma, "error", err)
			}
		}
	}

	if err := db.AutoMigrate(&Spectrum{}, &Prediction{}, &PredictionStatus{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Build()
	}

	ds.DB = db
	return nil
}

// Close releases the underlying connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SavePredictionCommit writes the spectrum, prediction, and status rows in
// one transaction. Atomicity is a convenience here, not a contract; readers
// only ever require a superset of committed predictions.
func (ds *DataStore) SavePredictionCommit(wavelengths, rawSpectrum []float64, results map[string]float64, statuses []StatusRow) error {
	if ds.DB == nil {
		return notOpenError()
	}

	ts := time.Now().Format(tsLayout)

	wl, err := json.Marshal(wavelengths)
	if err != nil {
		return marshalError(err, "wavelengths")
	}
	raw, err := json.Marshal(rawSpectrum)
	if err != nil {
		return marshalError(err, "raw_spectrum")
	}
	res, err := json.Marshal(results)
	if err != nil {
		return marshalError(err, "results")
	}

	statusRows := make([]PredictionStatus, 0, len(statuses))
	for _, s := range statuses {
		status := StatusNormal
		if s.Abnormal {
			status = StatusAlarm
		}
		statusRows = append(statusRows, PredictionStatus{
			Ts:       ts,
			Property: s.Property,
			Value:    s.Value,
			Min:      s.Min,
			Max:      s.Max,
			Status:   status,
		})
	}

	err = ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&Spectrum{Ts: ts, WavelengthsJSON: string(wl), RawSpectrumJSON: string(raw)}).Error; err != nil {
			return err
		}
		if err := tx.Create(&Prediction{Ts: ts, ResultsJSON: string(res)}).Error; err != nil {
			return err
		}
		if len(statusRows) > 0 {
			if err := tx.Create(&statusRows).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "prediction_commit").
			Build()
	}
	return nil
}

// LastPredictions returns up to limit predictions, newest first.
func (ds *DataStore) LastPredictions(limit int) ([]Prediction, error) {
	if ds.DB == nil {
		return nil, notOpenError()
	}
	var rows []Prediction
	if err := ds.DB.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return rows, nil
}

// StatusRowsForProperty returns up to limit status rows for one property,
// newest first.
func (ds *DataStore) StatusRowsForProperty(property string, limit int) ([]PredictionStatus, error) {
	if ds.DB == nil {
		return nil, notOpenError()
	}
	var rows []PredictionStatus
	err := ds.DB.Where("property = ?", property).Order("id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("property", property).
			Build()
	}
	return rows, nil
}

// CountSpectra returns the number of stored spectrum rows.
func (ds *DataStore) CountSpectra() (int64, error) {
	if ds.DB == nil {
		return 0, notOpenError()
	}
	var count int64
	if err := ds.DB.Model(&Spectrum{}).Count(&count).Error; err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return count, nil
}

func notOpenError() error {
	return errors.Newf("datastore is not open").
		Component("datastore").
		Category(errors.CategoryDatabase).
		Build()
}

func marshalError(err error, field string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("field", field).
		Build()
}

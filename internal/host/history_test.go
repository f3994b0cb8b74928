package host

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRingTrims(t *testing.T) {
	t.Parallel()

	h := NewHistory(10)
	for i := 0; i < 25; i++ {
		h.Add(PredictionRecord{
			Ts:     time.Now(),
			Values: map[string]float64{"a": float64(i)},
		})
	}

	recent := h.Recent()
	require.Len(t, recent, 10)
	assert.InDelta(t, 15.0, recent[0].Values["a"], 1e-12, "ring keeps the newest H records")
	assert.InDelta(t, 24.0, recent[9].Values["a"], 1e-12)
}

func TestHistorySeriesOutlivesRing(t *testing.T) {
	t.Parallel()

	h := NewHistory(10)
	for i := 0; i < 25; i++ {
		h.Add(PredictionRecord{Ts: time.Now(), Values: map[string]float64{"a": float64(i)}})
	}

	series := h.Series("a")
	require.Len(t, series, 25, "per-property series keeps the full run")
	assert.InDelta(t, 0.0, series[0], 1e-12)

	assert.Empty(t, h.Series("missing"))
}

func TestHistoryProperties(t *testing.T) {
	t.Parallel()

	h := NewHistory(5)
	h.Add(PredictionRecord{Ts: time.Now(), Values: map[string]float64{"b": 1, "a": 2}})
	assert.Equal(t, []string{"a", "b"}, h.Properties())
}

func TestHistoryExportCSV(t *testing.T) {
	t.Parallel()

	h := NewHistory(5)
	h.Add(PredictionRecord{Ts: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Values: map[string]float64{"a": 1.5, "b": -2}})
	h.Add(PredictionRecord{Ts: time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC), Values: map[string]float64{"a": 2.5, "b": 0}})

	path := filepath.Join(t.TempDir(), "history.csv")
	require.NoError(t, h.ExportCSV(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "a", "b"}, rows[0])
	assert.Equal(t, "2026-01-02 03:04:05", rows[1][0])
	assert.Equal(t, "1.5", rows[1][1])
	assert.Equal(t, "-2", rows[1][2])
}

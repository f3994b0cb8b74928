package host

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tphakala/nirspec-go/internal/errors"
	"github.com/tphakala/nirspec-go/internal/frame"
)

// propertySeriesCap bounds the per-property series kept for detail views.
const propertySeriesCap = 10000

// PredictionRecord is one completed prediction with its timestamp.
type PredictionRecord struct {
	Ts     time.Time
	Values map[string]float64
}

// History keeps the ring of recent predictions plus a longer per-property
// series for on-demand views and CSV export. Mutation happens on the host
// loop; reads may come from status surfaces, so access is locked.
type History struct {
	mu      sync.Mutex
	size    int
	records []PredictionRecord
	series  map[string][]float64
}

// NewHistory creates a history with the given recent-ring size.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 10
	}
	return &History{
		size:   size,
		series: make(map[string][]float64),
	}
}

// Add appends a prediction, trimming the recent ring and series caps.
func (h *History) Add(record PredictionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	if len(h.records) > h.size {
		h.records = h.records[len(h.records)-h.size:]
	}
	for property, value := range record.Values {
		s := append(h.series[property], value)
		if len(s) > propertySeriesCap {
			s = s[len(s)-propertySeriesCap:]
		}
		h.series[property] = s
	}
}

// Recent returns a copy of the recent prediction ring, oldest first.
func (h *History) Recent() []PredictionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]PredictionRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Series returns a copy of the full value series for one property.
func (h *History) Series(property string) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.series[property]
	out := make([]float64, len(s))
	copy(out, s)
	return out
}

// Properties returns the known property keys in sorted order.
func (h *History) Properties() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.series))
	for k := range h.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of records currently in the recent ring.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// ExportCSV writes the recent prediction ring to path with one column per
// property.
func (h *History) ExportCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.New(err).
			Component("host").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	records := h.Recent()
	properties := h.Properties()
	w := csv.NewWriter(f)

	header := append([]string{"timestamp"}, properties...)
	if err := w.Write(header); err != nil {
		return errors.New(err).
			Component("host").
			Category(errors.CategoryFileIO).
			Build()
	}

	for _, record := range records {
		row := make([]string, 0, len(header))
		row = append(row, record.Ts.Format(frame.TimestampLayout))
		for _, property := range properties {
			value, ok := record.Values[property]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(value, 'f', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return errors.New(err).
				Component("host").
				Category(errors.CategoryFileIO).
				Build()
		}
	}

	w.Flush()
	return w.Error()
}

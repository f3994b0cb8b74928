// Package spectral holds the spectral data model: the seed matrix with its
// cyclic row cursor, calibration, preprocessing stages, and quality scoring.
package spectral

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/tphakala/nirspec-go/internal/errors"
)

// wavelengthLine is the 1-indexed CSV line carrying the wavelength header.
const wavelengthLine = 10

// Matrix is the wavelength-aligned spectral dataset loaded once at device
// start. Rows all have the wavelength axis length; the cursor advances
// monotonically and wraps.
type Matrix struct {
	FileName    string
	Wavelengths []float64
	rows        [][]float64

	mu     sync.Mutex
	cursor int
}

// LoadMatrix reads the seed CSV at path.
//
// Layout: wavelengths on line 10, comma-separated, starting at column 3.
// Each later line is one spectrum row, first column a label, remaining
// columns aligned with the wavelength header. Rows with no parseable values
// are skipped. Fewer than 11 lines total is a load failure.
func LoadMatrix(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("spectral").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(err).
			Component("spectral").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	if len(lines) < wavelengthLine+1 {
		return nil, errors.Newf("spectral file too short: %d lines, need at least %d", len(lines), wavelengthLine+1).
			Component("spectral").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}

	header := strings.Split(lines[wavelengthLine-1], ",")
	if len(header) < 3 {
		return nil, errors.Newf("wavelength header on line %d has %d columns, need at least 3", wavelengthLine, len(header)).
			Component("spectral").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}

	var wavelengths []float64
	for _, field := range header[2:] {
		w, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err == nil {
			wavelengths = append(wavelengths, w)
		}
	}
	if len(wavelengths) == 0 {
		return nil, errors.Newf("no parseable wavelengths on line %d", wavelengthLine).
			Component("spectral").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}

	n := len(wavelengths)
	var rows [][]float64
	for _, line := range lines[wavelengthLine:] {
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			continue
		}
		row := make([]float64, n)
		parsed := 0
		for j := 1; j < len(fields) && j-1 < n; j++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[j]), 64)
			if err != nil {
				continue
			}
			row[j-1] = v
			parsed++
		}
		if parsed == 0 {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, errors.Newf("no spectrum rows in %s", filepath.Base(path)).
			Component("spectral").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}

	return &Matrix{
		FileName:    filepath.Base(path),
		Wavelengths: wavelengths,
		rows:        rows,
	}, nil
}

// RowCount returns the number of spectrum rows.
func (m *Matrix) RowCount() int {
	return len(m.rows)
}

// Row returns a copy of row index mod the row count.
func (m *Matrix) Row(index int) []float64 {
	row := m.rows[index%len(m.rows)]
	out := make([]float64, len(row))
	copy(out, row)
	return out
}

// Cursor returns the current device-wide cursor without advancing it.
func (m *Matrix) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// NextRow returns the row at the device-wide cursor and its index, then
// advances the cursor with wraparound.
func (m *Matrix) NextRow() (row []float64, index int) {
	m.mu.Lock()
	index = m.cursor
	m.cursor = (m.cursor + 1) % len(m.rows)
	m.mu.Unlock()
	return m.Row(index), index
}

// Package csv provides CSV-based point dataset loading.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.ngs.io/resampler/internal/domain"
)

// PointDim is the dimension name of CSV point datasets.
const PointDim = "point"

var (
	lonHeaders = []string{"lon", "longitude"}
	latHeaders = []string{"lat", "latitude"}
)

type table struct {
	swath   *domain.Swath
	columns map[string][]float64
	order   []string
}

// PointStore provides access to point datasets stored as CSV files with a
// lon/lat column pair and any number of value columns.
type PointStore struct {
	dataDir string
	cache   map[string]*table
	mu      sync.Mutex
}

// NewPointStore creates a new CSV-based point store.
func NewPointStore(dataDir string) *PointStore {
	return &PointStore{
		dataDir: dataDir,
		cache:   make(map[string]*table),
	}
}

// LoadSwath loads the point geolocation of a CSV dataset.
func (s *PointStore) LoadSwath(name string) (*domain.Swath, error) {
	t, err := s.load(name)
	if err != nil {
		return nil, err
	}
	return t.swath, nil
}

// LoadVariable loads a value column as a float64 array over the point
// dimension. Empty cells and "nan" become NaN.
func (s *PointStore) LoadVariable(name, variable string) (*domain.Array, error) {
	t, err := s.load(name)
	if err != nil {
		return nil, err
	}
	col, ok := t.columns[variable]
	if !ok {
		return nil, fmt.Errorf("column %s not found in %s (available: %v)", variable, name, t.order)
	}
	return domain.NewArray(col, []int{len(col)}, PointDim)
}

// Columns returns the value column names of a dataset in file order.
func (s *PointStore) Columns(name string) ([]string, error) {
	t, err := s.load(name)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), t.order...), nil
}

func (s *PointStore) load(name string) (*table, error) {
	if strings.Contains(name, "..") {
		return nil, fmt.Errorf("invalid dataset name %q", name)
	}
	path := filepath.Join(s.dataDir, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.cache[path]; ok {
		return t, nil
	}

	//nolint:gosec // G304: File path constructed from dataDir (config) and name (validated).
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file %s: %w", name, err)
	}
	defer func() { _ = file.Close() }()

	t, err := parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	s.cache[path] = t
	return t, nil
}

func parse(r io.Reader) (*table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	// Read header.
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	lonCol, latCol := -1, -1
	order := make([]string, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		header[i] = h
		switch {
		case contains(lonHeaders, h):
			lonCol = i
		case contains(latHeaders, h):
			latCol = i
		default:
			order = append(order, h)
		}
	}
	if lonCol < 0 || latCol < 0 {
		return nil, fmt.Errorf("invalid CSV header: expected lon and lat columns, got %v", header)
	}

	var lons, lats []float64
	columns := make(map[string][]float64, len(order))

	// Read data rows.
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		for i, cell := range record {
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s: %w", line, header[i], err)
			}
			switch i {
			case lonCol:
				lons = append(lons, v)
			case latCol:
				lats = append(lats, v)
			default:
				columns[header[i]] = append(columns[header[i]], v)
			}
		}
	}

	if len(lons) == 0 {
		return nil, fmt.Errorf("no points found in CSV")
	}

	swath, err := domain.NewSwath(lons, lats, []int{len(lons)}, domain.WithDims(PointDim))
	if err != nil {
		return nil, err
	}
	return &table{swath: swath, columns: columns, order: order}, nil
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

func contains(names []string, h string) bool {
	for _, n := range names {
		if strings.EqualFold(n, h) {
			return true
		}
	}
	return false
}

// ListDatasets returns the CSV datasets available in the data directory.
func (s *PointStore) ListDatasets() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	datasets := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasSuffix(name, ".csv") {
			datasets = append(datasets, name)
		}
	}

	return datasets, nil
}

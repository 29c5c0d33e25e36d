// Package ncfile reads geolocated swaths and data variables from NetCDF files
// and writes resampled results back to NetCDF.
package ncfile

import (
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/resampler/internal/domain"
)

// FileConfig lists the variable names tried for geolocation, in order.
type FileConfig struct {
	LonVarNames []string
	LatVarNames []string
}

// DefaultConfig returns the default variable name candidates.
func DefaultConfig() FileConfig {
	return FileConfig{
		LonVarNames: []string{"lon", "longitude", "Longitude", "nav_lon", "x"},
		LatVarNames: []string{"lat", "latitude", "Latitude", "nav_lat", "y"},
	}
}

// Store loads swaths and variables from NetCDF files under a data directory.
type Store struct {
	dataDir string
	config  FileConfig
	cache   map[string]*domain.Swath // Cache loaded swaths by path.
	mu      sync.RWMutex             // Protect cache.
}

// NewStore creates a NetCDF store rooted at dataDir.
func NewStore(dataDir string) *Store {
	return NewStoreWithConfig(dataDir, DefaultConfig())
}

// NewStoreWithConfig creates a NetCDF store with custom variable names.
func NewStoreWithConfig(dataDir string, config FileConfig) *Store {
	return &Store{
		dataDir: dataDir,
		config:  config,
		cache:   make(map[string]*domain.Swath),
	}
}

// resolve maps a dataset name to a path inside the data directory.
func (s *Store) resolve(name string) (string, error) {
	if filepath.IsAbs(name) || s.dataDir == "" {
		return filepath.Clean(name), nil
	}
	path := filepath.Join(s.dataDir, name)
	rel, err := filepath.Rel(s.dataDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("dataset %q is outside the data directory", name)
	}
	return path, nil
}

// LoadSwath reads the geolocation of a NetCDF file. Two-dimensional lon/lat
// variables are used as is; one-dimensional ones on separate axes describe
// a regular grid and are expanded to every (lat, lon) pair.
func (s *Store) LoadSwath(name string) (*domain.Swath, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	// Check cache first.
	s.mu.RLock()
	if swath, ok := s.cache[path]; ok {
		s.mu.RUnlock()
		return swath, nil
	}
	s.mu.RUnlock()

	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	lon, err := readFirst(nc, s.config.LonVarNames)
	if err != nil {
		return nil, fmt.Errorf("longitude variable not found in %s (tried: %v): %w", path, s.config.LonVarNames, err)
	}
	lat, err := readFirst(nc, s.config.LatVarNames)
	if err != nil {
		return nil, fmt.Errorf("latitude variable not found in %s (tried: %v): %w", path, s.config.LatVarNames, err)
	}

	swath, err := swathFromLonLat(lon, lat)
	if err != nil {
		return nil, fmt.Errorf("invalid geolocation in %s: %w", path, err)
	}

	// Cache the swath.
	s.mu.Lock()
	s.cache[path] = swath
	s.mu.Unlock()

	return swath, nil
}

func swathFromLonLat(lon, lat *domain.Array) (*domain.Swath, error) {
	lonShape, latShape := lon.Shape(), lat.Shape()
	lonDims, latDims := lon.Dims(), lat.Dims()

	if len(lonShape) == 1 && len(latShape) == 1 && lonDims[0] != latDims[0] {
		nLat, nLon := latShape[0], lonShape[0]
		lonVals, latVals := lon.Float64s(), lat.Float64s()
		lons := make([]float64, 0, nLat*nLon)
		lats := make([]float64, 0, nLat*nLon)
		for i := 0; i < nLat; i++ {
			for j := 0; j < nLon; j++ {
				lons = append(lons, lonVals[j])
				lats = append(lats, latVals[i])
			}
		}
		return domain.NewSwath(lons, lats, []int{nLat, nLon}, domain.WithDims(latDims[0], lonDims[0]))
	}

	if !slices.Equal(lonShape, latShape) {
		return nil, &domain.ShapeMismatchError{Subject: "lats", Want: lonShape, Got: latShape}
	}
	return domain.NewSwath(lon.Float64s(), lat.Float64s(), lonShape, domain.WithDims(lonDims...))
}

// LoadVariable reads a data variable with its dimension names. Float
// variables have their _FillValue/missing_value replaced by NaN.
func (s *Store) LoadVariable(name, variable string) (*domain.Array, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	v, err := nc.Var(variable)
	if err != nil {
		return nil, fmt.Errorf("variable %s not found in %s: %w", variable, path, err)
	}
	arr, err := readVar(v)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from %s: %w", variable, path, err)
	}
	return arr, nil
}

func readFirst(nc netcdf.Dataset, names []string) (*domain.Array, error) {
	var lastErr error
	for _, name := range names {
		v, err := nc.Var(name)
		if err != nil {
			lastErr = err
			continue
		}
		arr, err := readVar(v)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		return arr, nil
	}
	return nil, lastErr
}

// readVar reads a variable of any numeric type into an Array.
func readVar(v netcdf.Var) (*domain.Array, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("scalar variables are not supported")
	}
	shape := make([]int, len(dims))
	names := make([]string, len(dims))
	total := 1
	for i, d := range dims {
		n, err := d.Len()
		if err != nil {
			return nil, err
		}
		name, err := d.Name()
		if err != nil {
			return nil, err
		}
		shape[i] = int(n)
		names[i] = name
		total *= int(n)
	}

	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}

	switch t {
	case netcdf.DOUBLE:
		data := make([]float64, total)
		if err := v.ReadFloat64s(data); err != nil {
			return nil, err
		}
		if fv, ok := getFillValue(v); ok {
			for i := range data {
				if data[i] == fv {
					data[i] = math.NaN()
				}
			}
		}
		return domain.NewArray(data, shape, names...)
	case netcdf.FLOAT:
		data := make([]float32, total)
		if err := v.ReadFloat32s(data); err != nil {
			return nil, err
		}
		if fv, ok := getFillValue(v); ok {
			for i := range data {
				if data[i] == float32(fv) {
					data[i] = float32(math.NaN())
				}
			}
		}
		return domain.NewArray(data, shape, names...)
	case netcdf.INT64:
		data := make([]int64, total)
		if err := v.ReadInt64s(data); err != nil {
			return nil, err
		}
		return domain.NewArray(data, shape, names...)
	case netcdf.INT:
		data := make([]int32, total)
		if err := v.ReadInt32s(data); err != nil {
			return nil, err
		}
		return domain.NewArray(data, shape, names...)
	case netcdf.SHORT:
		data := make([]int16, total)
		if err := v.ReadInt16s(data); err != nil {
			return nil, err
		}
		return domain.NewArray(data, shape, names...)
	case netcdf.BYTE:
		data := make([]int8, total)
		if err := v.ReadInt8s(data); err != nil {
			return nil, err
		}
		return domain.NewArray(data, shape, names...)
	case netcdf.UBYTE:
		data := make([]uint8, total)
		if err := v.ReadUint8s(data); err != nil {
			return nil, err
		}
		return domain.NewArray(data, shape, names...)
	case netcdf.USHORT:
		data := make([]uint16, total)
		if err := v.ReadUint16s(data); err != nil {
			return nil, err
		}
		return domain.NewArray(data, shape, names...)
	case netcdf.UINT:
		data := make([]uint32, total)
		if err := v.ReadUint32s(data); err != nil {
			return nil, err
		}
		return domain.NewArray(data, shape, names...)
	case netcdf.UINT64:
		data := make([]uint64, total)
		if err := v.ReadUint64s(data); err != nil {
			return nil, err
		}
		return domain.NewArray(data, shape, names...)
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
}

// getFillValue returns the _FillValue or missing_value attribute if present as float64.
func getFillValue(v netcdf.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		a := v.Attr(name)
		if n, err := a.Len(); err != nil || n == 0 {
			continue
		}
		buf64 := make([]float64, 1)
		if err := a.ReadFloat64s(buf64); err == nil {
			return buf64[0], true
		}
		buf32 := make([]float32, 1)
		if err := a.ReadFloat32s(buf32); err == nil {
			return float64(buf32[0]), true
		}
	}
	return 0, false
}

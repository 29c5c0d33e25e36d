package ncfile

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/resampler/internal/domain"
)

var ncTypes = map[domain.DType]netcdf.Type{
	domain.Int8:    netcdf.BYTE,
	domain.Int16:   netcdf.SHORT,
	domain.Int32:   netcdf.INT,
	domain.Int64:   netcdf.INT64,
	domain.Uint8:   netcdf.UBYTE,
	domain.Uint16:  netcdf.USHORT,
	domain.Uint32:  netcdf.UINT,
	domain.Uint64:  netcdf.UINT64,
	domain.Float32: netcdf.FLOAT,
	domain.Float64: netcdf.DOUBLE,
}

// WriteResult writes arr as variable name to a new NetCDF-4 file at path,
// together with the lon/lat of the target geometry. Dimension names shared
// by arr and the geometry become shared NetCDF dimensions. fill is stored as
// _FillValue.
func WriteResult(path, name string, arr *domain.Array, target domain.Geometry, fill float64) error {
	//nolint:gosec // G301: Standard output directory permissions.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	ncType, ok := ncTypes[arr.DType()]
	if !ok {
		return fmt.Errorf("unsupported dtype %s", arr.DType())
	}

	geoDims := target.Dims()
	if len(geoDims) == 0 {
		geoDims = make([]string, len(target.Shape()))
		for i := range geoDims {
			geoDims[i] = fmt.Sprintf("target_dim_%d", i)
		}
	}
	arrDims := arr.Dims()
	if len(arrDims) == 0 {
		arrDims = make([]string, len(arr.Shape()))
		for i := range arrDims {
			arrDims[i] = fmt.Sprintf("dim_%d", i)
		}
	}

	nc, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	dims := make(map[string]netcdf.Dim)
	sizes := make(map[string]int)
	addDim := func(dimName string, size int) (netcdf.Dim, error) {
		if d, ok := dims[dimName]; ok {
			if sizes[dimName] != size {
				return d, fmt.Errorf("dimension %s has sizes %d and %d", dimName, sizes[dimName], size)
			}
			return d, nil
		}
		d, err := nc.AddDim(dimName, uint64(size))
		if err != nil {
			return d, fmt.Errorf("failed to add dimension %s: %w", dimName, err)
		}
		dims[dimName], sizes[dimName] = d, size
		return d, nil
	}

	geoShape := target.Shape()
	geoNCDims := make([]netcdf.Dim, len(geoDims))
	for i, d := range geoDims {
		if geoNCDims[i], err = addDim(d, geoShape[i]); err != nil {
			return err
		}
	}
	arrShape := arr.Shape()
	arrNCDims := make([]netcdf.Dim, len(arrDims))
	for i, d := range arrDims {
		if arrNCDims[i], err = addDim(d, arrShape[i]); err != nil {
			return err
		}
	}

	vlon, err := nc.AddVar("lon", netcdf.DOUBLE, geoNCDims)
	if err != nil {
		return fmt.Errorf("failed to add lon: %w", err)
	}
	vlat, err := nc.AddVar("lat", netcdf.DOUBLE, geoNCDims)
	if err != nil {
		return fmt.Errorf("failed to add lat: %w", err)
	}
	vdata, err := nc.AddVar(name, ncType, arrNCDims)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if err := writeFillValue(vdata, arr.DType(), fill); err != nil {
		return fmt.Errorf("failed to write _FillValue: %w", err)
	}

	if err := nc.EndDef(); err != nil {
		return fmt.Errorf("enddef: %w", err)
	}

	lons, lats, err := target.LonLats()
	if err != nil {
		return fmt.Errorf("failed to compute target lon/lat: %w", err)
	}
	if err := vlon.WriteFloat64s(lons); err != nil {
		return fmt.Errorf("failed to write lon: %w", err)
	}
	if err := vlat.WriteFloat64s(lats); err != nil {
		return fmt.Errorf("failed to write lat: %w", err)
	}
	if err := writeValues(vdata, arr); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func writeFillValue(v netcdf.Var, dt domain.DType, fill float64) error {
	a := v.Attr("_FillValue")
	switch dt {
	case domain.Float64:
		return a.WriteFloat64s([]float64{fill})
	case domain.Float32:
		return a.WriteFloat32s([]float32{float32(fill)})
	}
	if math.IsNaN(fill) {
		return nil
	}
	switch dt {
	case domain.Int8:
		return a.WriteInt8s([]int8{domain.FillAs[int8](fill)})
	case domain.Int16:
		return a.WriteInt16s([]int16{domain.FillAs[int16](fill)})
	case domain.Int32:
		return a.WriteInt32s([]int32{domain.FillAs[int32](fill)})
	case domain.Int64:
		return a.WriteInt64s([]int64{domain.FillAs[int64](fill)})
	case domain.Uint8:
		return a.WriteUint8s([]uint8{domain.FillAs[uint8](fill)})
	case domain.Uint16:
		return a.WriteUint16s([]uint16{domain.FillAs[uint16](fill)})
	case domain.Uint32:
		return a.WriteUint32s([]uint32{domain.FillAs[uint32](fill)})
	case domain.Uint64:
		return a.WriteUint64s([]uint64{domain.FillAs[uint64](fill)})
	}
	return nil
}

func writeValues(v netcdf.Var, arr *domain.Array) error {
	switch data := arr.Raw().(type) {
	case []float64:
		return v.WriteFloat64s(data)
	case []float32:
		return v.WriteFloat32s(data)
	case []int64:
		return v.WriteInt64s(data)
	case []int32:
		return v.WriteInt32s(data)
	case []int16:
		return v.WriteInt16s(data)
	case []int8:
		return v.WriteInt8s(data)
	case []uint64:
		return v.WriteUint64s(data)
	case []uint32:
		return v.WriteUint32s(data)
	case []uint16:
		return v.WriteUint16s(data)
	case []uint8:
		return v.WriteUint8s(data)
	}
	return fmt.Errorf("unsupported dtype %s", arr.DType())
}

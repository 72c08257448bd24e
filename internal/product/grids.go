package product

import (
	"context"
	"math"

	"github.com/sarstream/sarstream/internal/hdf5"
	"github.com/sarstream/sarstream/internal/sarerr"
)

// CoordinateAxis is a 1-D array of projected coordinates (meters, typically
// UTM or polar stereographic) for one grid dimension, read once and reused
// across pixel<->projected conversions for that grid.
type CoordinateAxis struct {
	Values []float64
}

// ReadAxis reads a grid's x/yCoordinates dataset in full. These axes are
// 1-D, small, and always stored contiguously (never chunked), unlike the
// polarization rasters, so this bypasses the chunked dataset reader
// entirely and decodes the object header's layout/datatype messages
// directly.
func ReadAxis(ctx context.Context, src hdf5.Source, sb *hdf5.Superblock, datasetPath string) (CoordinateAxis, error) {
	addr, err := hdf5.ResolvePath(ctx, src, sb, datasetPath)
	if err != nil {
		return CoordinateAxis{}, err
	}
	layout, datatype, length, err := hdf5.DescribeContiguousDataset(ctx, src, sb, addr)
	if err != nil {
		return CoordinateAxis{}, err
	}
	if layout.Class != hdf5.LayoutContiguous {
		return CoordinateAxis{}, sarerr.New(sarerr.UnsupportedFormat, "coordinate axis is not stored contiguously")
	}

	raw, err := src.Read(ctx, int64(layout.ContiguousAddr), int64(layout.ContiguousSize))
	if err != nil {
		return CoordinateAxis{}, sarerr.Wrap(sarerr.IOError, "reading coordinate axis", err)
	}

	values := make([]float64, length)
	switch datatype.Size {
	case 4:
		for i := range values {
			bits := leUint32(raw[i*4:])
			values[i] = float64(math.Float32frombits(bits))
		}
	case 8:
		for i := range values {
			bits := leUint64(raw[i*8:])
			values[i] = math.Float64frombits(bits)
		}
	default:
		return CoordinateAxis{}, sarerr.New(sarerr.UnsupportedFormat, "unsupported coordinate axis element size")
	}
	return CoordinateAxis{Values: values}, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

// PixelToProjected maps a (row, col) pixel coordinate to projected meters
// using the grid's coordinate axes, per spec §4.J's pixel<->projected
// mapping.
func PixelToProjected(x, y CoordinateAxis, row, col int) (easting, northing float64, err error) {
	if col < 0 || col >= len(x.Values) || row < 0 || row >= len(y.Values) {
		return 0, 0, sarerr.New(sarerr.NotFound, "pixel coordinate outside grid extent")
	}
	return x.Values[col], y.Values[row], nil
}

// ProjectedToPixel performs the inverse mapping via binary search, assuming
// each axis is monotonic (GCOV grids always are, either increasing or
// decreasing).
func ProjectedToPixel(x, y CoordinateAxis, easting, northing float64) (row, col int, err error) {
	col, err = nearestIndex(x.Values, easting)
	if err != nil {
		return 0, 0, err
	}
	row, err = nearestIndex(y.Values, northing)
	if err != nil {
		return 0, 0, err
	}
	return row, col, nil
}

func nearestIndex(axis []float64, target float64) (int, error) {
	if len(axis) == 0 {
		return 0, sarerr.New(sarerr.NotFound, "empty coordinate axis")
	}
	ascending := len(axis) > 1 && axis[1] > axis[0]
	lo, hi := 0, len(axis)-1
	for lo < hi {
		mid := (lo + hi) / 2
		v := axis[mid]
		if (ascending && v < target) || (!ascending && v > target) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// Package dataset implements region reads over a chunked HDF5 dataset
// (spec §4.E): chunk enumeration, concurrent decode, filter inversion, and
// assembly into a dense row-major float32 buffer with NaN fill for
// out-of-bounds or unwritten pixels.
package dataset

import (
	"context"
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/sarstream/sarstream/internal/btree"
	"github.com/sarstream/sarstream/internal/filter"
	"github.com/sarstream/sarstream/internal/hdf5"
	"github.com/sarstream/sarstream/internal/sarerr"
	"golang.org/x/sync/errgroup"
)

// decodeParallel matches spec §4.E's concurrent chunk decode bound.
const decodeParallel = 4

// Region is a dense, row-major float32 raster covering [Row0,Row0+Rows) x
// [Col0,Col0+Cols) of a dataset, with NaN standing in for any pixel the
// dataset does not cover.
type Region struct {
	Row0, Col0 int
	Rows, Cols int
	Data       []float32
}

func NewRegion(row0, col0, rows, cols int) *Region {
	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = float32(math.NaN())
	}
	return &Region{Row0: row0, Col0: col0, Rows: rows, Cols: cols, Data: data}
}

// At returns the index into Data for the given absolute dataset row/col.
func (r *Region) At(row, col int) int { return (row-r.Row0)*r.Cols + (col - r.Col0) }

// Dataset binds everything needed to read regions out of one HDF5 dataset:
// its element layout, chunk index, filter pipeline, and backing source.
type Dataset struct {
	Path      string
	Rows      int
	Cols      int
	ChunkRows int
	ChunkCols int
	Datatype  hdf5.Datatype
	Filters   []filter.Spec
	Index     *btree.Index
	Source    hdf5.Source
	Cache     *ChunkCache

	emptyMu     sync.Mutex
	emptyChunks *roaring64.Bitmap // chunk linear indices confirmed to have no stored chunk
}

// chunkLinearIndex gives each (chunkRow, chunkCol) pair a stable key for the
// empty-chunk bitmap, independent of dataset width so it survives a
// dataset being re-opened with the same layout.
func (d *Dataset) chunkLinearIndex(chunkRow, chunkCol int) uint64 {
	const colBits = 32
	return uint64(uint32(chunkRow))<<colBits | uint64(uint32(chunkCol))
}

// ReadRegion decodes every chunk intersecting the requested window and
// copies the covered pixels into a dense buffer, per spec §4.E read_region.
// Out-of-window portions of partially-covered boundary chunks, and any
// dataset cell outside [0,Rows)x[0,Cols), are left as NaN.
func (d *Dataset) ReadRegion(ctx context.Context, row0, col0, rows, cols int) (*Region, error) {
	region := NewRegion(row0, col0, rows, cols)

	firstChunkRow := row0 / d.ChunkRows
	lastChunkRow := (row0 + rows - 1) / d.ChunkRows
	firstChunkCol := col0 / d.ChunkCols
	lastChunkCol := (col0 + cols - 1) / d.ChunkCols

	type coord struct{ cr, cc int }
	var coords []coord
	for cr := firstChunkRow; cr <= lastChunkRow; cr++ {
		for cc := firstChunkCol; cc <= lastChunkCol; cc++ {
			coords = append(coords, coord{cr, cc})
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(decodeParallel)

	type decoded struct {
		cr, cc int
		values []float32
	}
	results := make([]decoded, len(coords))

	for i, co := range coords {
		i, co := i, co
		eg.Go(func() error {
			values, err := d.decodeChunk(egCtx, co.cr, co.cc)
			if err != nil {
				return err
			}
			results[i] = decoded{cr: co.cr, cc: co.cc, values: values}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, sarerr.New(sarerr.Cancelled, "read_region cancelled")
		}
		return nil, err
	}

	for _, res := range results {
		if res.values == nil {
			continue // sparse chunk, never written; region stays NaN there
		}
		chunkRow0 := res.cr * d.ChunkRows
		chunkCol0 := res.cc * d.ChunkCols
		for r := 0; r < d.ChunkRows; r++ {
			globalRow := chunkRow0 + r
			if globalRow < row0 || globalRow >= row0+rows || globalRow >= d.Rows {
				continue
			}
			for c := 0; c < d.ChunkCols; c++ {
				globalCol := chunkCol0 + c
				if globalCol < col0 || globalCol >= col0+cols || globalCol >= d.Cols {
					continue
				}
				region.Data[region.At(globalRow, globalCol)] = res.values[r*d.ChunkCols+c]
			}
		}
	}
	return region, nil
}

// decodeChunk fetches, filters, and converts one chunk's raw bytes into a
// row-major float32 slice sized ChunkRows*ChunkCols, consulting the
// dataset's shared LRU cache first.
func (d *Dataset) decodeChunk(ctx context.Context, chunkRow, chunkCol int) ([]float32, error) {
	key := ChunkKey{Path: d.Path, Row: chunkRow, Col: chunkCol}
	if d.Cache != nil {
		if v, ok := d.Cache.Get(key); ok {
			return v, nil
		}
	}

	linear := d.chunkLinearIndex(chunkRow, chunkCol)
	d.emptyMu.Lock()
	isEmpty := d.emptyChunks != nil && d.emptyChunks.Contains(linear)
	d.emptyMu.Unlock()
	if isEmpty {
		return nil, nil
	}

	coords := []uint64{uint64(chunkRow * d.ChunkRows), uint64(chunkCol * d.ChunkCols), 0}
	ch, found, err := d.Index.Lookup(ctx, coords)
	if err != nil {
		return nil, err
	}
	if !found {
		d.emptyMu.Lock()
		if d.emptyChunks == nil {
			d.emptyChunks = roaring64.New()
		}
		d.emptyChunks.Add(linear)
		d.emptyMu.Unlock()
		return nil, nil
	}

	raw, err := d.Source.Read(ctx, int64(ch.Address), int64(ch.Size))
	if err != nil {
		return nil, sarerr.Wrap(sarerr.IOError, "reading chunk bytes", err)
	}

	decoded, err := filter.Decode(d.Filters, d.Datatype.Size, raw)
	if err != nil {
		return nil, err
	}

	values, err := convertElements(decoded, d.Datatype)
	if err != nil {
		return nil, err
	}

	if d.Cache != nil {
		d.Cache.Put(key, values)
	}
	return values, nil
}

// convertElements interprets a decoded chunk's raw bytes according to its
// HDF5 datatype, producing one float32 per pixel. Compound (real, imag)
// elements convert to the backscatter magnitude-squared scalar NISAR GCOV
// products store power in.
func convertElements(buf []byte, dt hdf5.Datatype) ([]float32, error) {
	switch dt.Class {
	case hdf5.ClassFloatingPoint:
		switch dt.Size {
		case 4:
			n := len(buf) / 4
			out := make([]float32, n)
			for i := 0; i < n; i++ {
				bits := leUint32(buf[i*4:])
				out[i] = math.Float32frombits(bits)
			}
			return out, nil
		case 8:
			n := len(buf) / 8
			out := make([]float32, n)
			for i := 0; i < n; i++ {
				bits := leUint64(buf[i*8:])
				out[i] = float32(math.Float64frombits(bits))
			}
			return out, nil
		}
	case hdf5.ClassCompound:
		if len(dt.Compound) == 2 && dt.Compound[0].Size == 4 {
			stride := dt.Size
			n := len(buf) / stride
			out := make([]float32, n)
			for i := 0; i < n; i++ {
				base := i * stride
				re := math.Float32frombits(leUint32(buf[base:]))
				im := math.Float32frombits(leUint32(buf[base+4:]))
				out[i] = re*re + im*im
			}
			return out, nil
		}
	}
	return nil, sarerr.New(sarerr.UnsupportedFormat, "unsupported element datatype")
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

package dataset

import (
	"context"

	"github.com/sarstream/sarstream/internal/btree"
	"github.com/sarstream/sarstream/internal/filter"
	"github.com/sarstream/sarstream/internal/hdf5"
	"github.com/sarstream/sarstream/internal/sarerr"
)

// Open resolves datasetPath within the HDF5 file described by src/sb and
// builds a Dataset ready for ReadRegion, wiring its chunk B-tree index and
// filter pipeline from the object header. cache may be nil to disable
// decoded-chunk caching for that dataset.
func Open(ctx context.Context, src hdf5.Source, sb *hdf5.Superblock, datasetPath string, cache *ChunkCache) (*Dataset, error) {
	addr, err := hdf5.ResolvePath(ctx, src, sb, datasetPath)
	if err != nil {
		return nil, err
	}
	info, err := hdf5.DescribeDataset(ctx, src, sb, addr)
	if err != nil {
		return nil, err
	}
	if info.Layout.Class != hdf5.LayoutChunked {
		return nil, sarerr.New(sarerr.UnsupportedFormat, "dataset is not chunked")
	}
	if len(info.Dataspace.Dimensions) < 2 {
		return nil, sarerr.New(sarerr.UnsupportedFormat, "dataset is not a 2-D raster")
	}

	pipeline, err := hdf5.Filters(ctx, src, sb, addr)
	if err != nil {
		return nil, err
	}
	filters := make([]filter.Spec, len(pipeline.Filters))
	for i, f := range pipeline.Filters {
		filters[i] = filter.Spec{ID: f.ID, ElementSize: info.Datatype.Size}
	}

	dims := len(info.Layout.ChunkDims)
	index := btree.NewIndex(btreeSourceAdapter{src}, info.Layout.ChunkBTreeAddr, sb.OffsetSize, sb.LengthSize, dims)

	rows := int(info.Dataspace.Dimensions[0])
	cols := int(info.Dataspace.Dimensions[1])
	chunkRows := int(info.Layout.ChunkDims[0])
	chunkCols := 1
	if len(info.Layout.ChunkDims) > 1 {
		chunkCols = int(info.Layout.ChunkDims[1])
	}

	return &Dataset{
		Path:      datasetPath,
		Rows:      rows,
		Cols:      cols,
		ChunkRows: chunkRows,
		ChunkCols: chunkCols,
		Datatype:  info.Datatype,
		Filters:   filters,
		Index:     index,
		Source:    src,
		Cache:     cache,
	}, nil
}

// btreeSourceAdapter adapts hdf5.Source to btree.Source; both are
// structurally identical but kept as distinct types so neither package
// depends on the other.
type btreeSourceAdapter struct{ src hdf5.Source }

func (a btreeSourceAdapter) Read(ctx context.Context, offset, length int64) ([]byte, error) {
	return a.src.Read(ctx, offset, length)
}

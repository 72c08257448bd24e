package hdf5

import (
	"context"

	"github.com/sarstream/sarstream/internal/sarerr"
)

// DatasetInfo is the subset of an HDF5 dataset's object header fields the
// product and dataset packages need: its value type, on-disk layout, and
// logical shape.
type DatasetInfo struct {
	Dataspace Dataspace
	Datatype  Datatype
	Layout    DataLayout
}

// DescribeDataset reads and decodes a dataset's Dataspace, Datatype, and
// Data Layout messages from its object header.
func DescribeDataset(ctx context.Context, src Source, sb *Superblock, addr uint64) (DatasetInfo, error) {
	oh, err := ReadObjectHeader(ctx, src, sb, addr)
	if err != nil {
		return DatasetInfo{}, err
	}

	dsMsg, ok := oh.find(msgDataspace)
	if !ok {
		return DatasetInfo{}, sarerr.New(sarerr.UnsupportedFormat, "dataset missing dataspace message")
	}
	dataspace, err := decodeDataspace(dsMsg.body)
	if err != nil {
		return DatasetInfo{}, err
	}

	dtMsg, ok := oh.find(msgDatatype)
	if !ok {
		return DatasetInfo{}, sarerr.New(sarerr.UnsupportedFormat, "dataset missing datatype message")
	}
	datatype, err := decodeDatatype(dtMsg.body)
	if err != nil {
		return DatasetInfo{}, err
	}

	dlMsg, ok := oh.find(msgDataLayout)
	if !ok {
		return DatasetInfo{}, sarerr.New(sarerr.UnsupportedFormat, "dataset missing data layout message")
	}
	layout, err := decodeDataLayout(dlMsg.body, sb)
	if err != nil {
		return DatasetInfo{}, err
	}

	return DatasetInfo{Dataspace: dataspace, Datatype: datatype, Layout: layout}, nil
}

// Filters decodes a dataset's filter pipeline message, returning an empty
// pipeline (no error) if the dataset carries none.
func Filters(ctx context.Context, src Source, sb *Superblock, addr uint64) (FilterPipeline, error) {
	oh, err := ReadObjectHeader(ctx, src, sb, addr)
	if err != nil {
		return FilterPipeline{}, err
	}
	msg, ok := oh.find(msgFilterPipe)
	if !ok {
		return FilterPipeline{}, nil
	}
	return decodeFilterPipeline(msg.body)
}

// DescribeContiguousDataset is a convenience wrapper for 1-D contiguously
// stored datasets (coordinate axes): it returns the layout, element
// datatype, and element count in one call.
func DescribeContiguousDataset(ctx context.Context, src Source, sb *Superblock, addr uint64) (DataLayout, Datatype, int, error) {
	info, err := DescribeDataset(ctx, src, sb, addr)
	if err != nil {
		return DataLayout{}, Datatype{}, 0, err
	}
	length := 1
	for _, d := range info.Dataspace.Dimensions {
		length *= int(d)
	}
	return info.Layout, info.Datatype, length, nil
}

// ReadScalarString reads a scalar or 1-element fixed-length string dataset
// stored contiguously, as NISAR identification metadata always is (mission
// name, orbit direction, time strings, bounding polygon WKT).
func ReadScalarString(ctx context.Context, src Source, sb *Superblock, addr uint64) (string, error) {
	info, err := DescribeDataset(ctx, src, sb, addr)
	if err != nil {
		return "", err
	}
	if info.Layout.Class != LayoutContiguous {
		return "", sarerr.New(sarerr.UnsupportedFormat, "scalar dataset is not stored contiguously")
	}
	raw, err := src.Read(ctx, int64(info.Layout.ContiguousAddr), int64(info.Layout.ContiguousSize))
	if err != nil {
		return "", sarerr.Wrap(sarerr.IOError, "reading scalar dataset", err)
	}
	return cString(raw), nil
}

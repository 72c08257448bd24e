package hdf5

import (
	"github.com/sarstream/sarstream/internal/sarerr"
)

// Dataspace gives the dataset's rank and per-dimension extents. Only the
// "simple" dataspace class appears in NISAR GCOV products; scalar and null
// dataspaces decode with no dimensions, and dataset.Open rejects any
// dataspace of rank below 2.
type Dataspace struct {
	Dimensions []uint64
	MaxDims    []uint64
}

func decodeDataspace(body []byte) (Dataspace, error) {
	c := newCursor(body)
	version, err := c.u8()
	if err != nil {
		return Dataspace{}, err
	}
	rank, err := c.u8()
	if err != nil {
		return Dataspace{}, err
	}
	flags, err := c.u8()
	if err != nil {
		return Dataspace{}, err
	}
	switch version {
	case 1:
		if err := c.skip(5); err != nil { // reserved
			return Dataspace{}, err
		}
	case 2:
		if _, err := c.u8(); err != nil { // dataspace type
			return Dataspace{}, err
		}
	default:
		return Dataspace{}, sarerr.New(sarerr.UnsupportedFormat, "unsupported dataspace message version")
	}

	dims := make([]uint64, rank)
	for i := range dims {
		v, err := c.u64()
		if err != nil {
			return Dataspace{}, err
		}
		dims[i] = v
	}
	var maxDims []uint64
	if flags&0x1 != 0 {
		maxDims = make([]uint64, rank)
		for i := range maxDims {
			v, err := c.u64()
			if err != nil {
				return Dataspace{}, err
			}
			maxDims[i] = v
		}
	}
	return Dataspace{Dimensions: dims, MaxDims: maxDims}, nil
}

// DatatypeClass mirrors the subset of HDF5 datatype classes NISAR GCOV
// products use: fixed-point (class 0), floating-point (class 1), and
// compound (class 6), the latter representing the real/imaginary pair of a
// complex64 backscatter sample.
type DatatypeClass int

const (
	ClassFixedPoint DatatypeClass = iota
	ClassFloatingPoint
	ClassCompound
	ClassUnsupported
)

type Datatype struct {
	Class    DatatypeClass
	Size     int // bytes per element
	Signed   bool
	Compound []Datatype // member types, for ClassCompound (real, imag)
}

func decodeDatatype(body []byte) (Datatype, error) {
	c := newCursor(body)
	classAndVersion, err := c.u8()
	if err != nil {
		return Datatype{}, err
	}
	class := classAndVersion & 0x0F
	bits0, err := c.u8()
	if err != nil {
		return Datatype{}, err
	}
	if _, err := c.bytes(2); err != nil { // remaining class bit field
		return Datatype{}, err
	}
	size, err := c.u32()
	if err != nil {
		return Datatype{}, err
	}

	switch class {
	case 0: // fixed-point
		return Datatype{Class: ClassFixedPoint, Size: int(size), Signed: bits0&0x08 != 0}, nil
	case 1: // floating-point
		return Datatype{Class: ClassFloatingPoint, Size: int(size)}, nil
	case 6: // compound
		numMembers := int(bits0) | int(classAndVersion>>4)<<8 // not used; decodeCompound scans member records instead
		_ = numMembers
		return decodeCompound(c, int(size))
	default:
		return Datatype{Class: ClassUnsupported, Size: int(size)}, nil
	}
}

// decodeCompound reads member name/offset/type triples for a version-1/2
// compound datatype. NISAR complex backscatter grids use a two-member
// {real, imag} compound of 4-byte floats, decoded here as a pair of nested
// Datatype values so the dataset reader can compute magnitude-squared.
func decodeCompound(c *cursor, totalSize int) (Datatype, error) {
	// The declared member count is not used: members are read as
	// name/offset/type records until two have been found or the buffer runs
	// out. This is permissive by design: NISAR compounds are always exactly
	// {real, imag}.
	var members []Datatype
	for c.remaining() > 0 && len(members) < 2 {
		// null-terminated name, padded to 8 bytes
		start := c.pos
		for c.pos < len(c.buf) && c.buf[c.pos] != 0 {
			c.pos++
		}
		nameLen := c.pos - start + 1
		pad := (8 - nameLen%8) % 8
		if err := c.skip(1 + pad); err != nil { // consume the terminator + padding
			break
		}
		if _, err := c.u32(); err != nil { // byte offset of member within compound
			break
		}
		memberType, err := decodeDatatype(c.buf[c.pos:])
		if err != nil {
			break
		}
		members = append(members, memberType)
		// advance past the member's encoded type; floating point members
		// are fixed 12 bytes (class+bitfield 4, size 4, bit offset 2,
		// precision 2) in the simple case NISAR uses.
		if err := c.skip(12); err != nil {
			break
		}
	}
	return Datatype{Class: ClassCompound, Size: totalSize, Compound: members}, nil
}

// DataLayoutClass distinguishes contiguous storage from chunked storage;
// NISAR GCOV rasters are always chunked so tiling and the filter pipeline
// apply per chunk.
type DataLayoutClass int

const (
	LayoutContiguous DataLayoutClass = iota
	LayoutChunked
)

type DataLayout struct {
	Class          DataLayoutClass
	ContiguousAddr uint64
	ContiguousSize uint64
	ChunkBTreeAddr uint64
	ChunkDims      []uint32 // element counts per dimension, including the type-size trailing entry
}

func decodeDataLayout(body []byte, sb *Superblock) (DataLayout, error) {
	c := newCursor(body)
	version, err := c.u8()
	if err != nil {
		return DataLayout{}, err
	}
	if version != 3 {
		return DataLayout{}, sarerr.New(sarerr.UnsupportedFormat, "unsupported data layout message version")
	}
	class, err := c.u8()
	if err != nil {
		return DataLayout{}, err
	}
	switch class {
	case 0, 1: // compact or contiguous; GCOV rasters never use compact
		addr, err := c.sized(sb.OffsetSize)
		if err != nil {
			return DataLayout{}, err
		}
		size, err := c.sized(sb.LengthSize)
		if err != nil {
			return DataLayout{}, err
		}
		return DataLayout{Class: LayoutContiguous, ContiguousAddr: addr, ContiguousSize: size}, nil
	case 2: // chunked
		dimensionality, err := c.u8()
		if err != nil {
			return DataLayout{}, err
		}
		addr, err := c.sized(sb.OffsetSize)
		if err != nil {
			return DataLayout{}, err
		}
		dims := make([]uint32, dimensionality)
		for i := range dims {
			v, err := c.u32()
			if err != nil {
				return DataLayout{}, err
			}
			dims[i] = v
		}
		return DataLayout{Class: LayoutChunked, ChunkBTreeAddr: addr, ChunkDims: dims}, nil
	default:
		return DataLayout{}, sarerr.New(sarerr.UnsupportedFormat, "unsupported data layout class")
	}
}

// FilterPipeline lists the filters applied to each chunk, in application
// order; the dataset reader must invert them in reverse order on decode.
type FilterPipeline struct {
	Filters []FilterSpec
}

type FilterSpec struct {
	ID     uint16
	Name   string
	Client []uint32
}

const (
	FilterDeflate    = 1
	FilterShuffle    = 2
	FilterFletcher32 = 3
	FilterLZF        = 32000
)

func decodeFilterPipeline(body []byte) (FilterPipeline, error) {
	c := newCursor(body)
	version, err := c.u8()
	if err != nil {
		return FilterPipeline{}, err
	}
	numFilters, err := c.u8()
	if err != nil {
		return FilterPipeline{}, err
	}
	if version == 1 {
		if err := c.skip(6); err != nil { // reserved
			return FilterPipeline{}, err
		}
	}

	pipeline := FilterPipeline{}
	for i := uint8(0); i < numFilters; i++ {
		id, err := c.u16()
		if err != nil {
			return FilterPipeline{}, err
		}
		var nameLen uint16
		if version == 1 || id >= 256 {
			nameLen, err = c.u16()
			if err != nil {
				return FilterPipeline{}, err
			}
		}
		if _, err := c.u16(); err != nil { // flags
			return FilterPipeline{}, err
		}
		numClientValues, err := c.u16()
		if err != nil {
			return FilterPipeline{}, err
		}
		var name string
		if nameLen > 0 {
			padded := int(nameLen)
			if version == 1 {
				padded = (padded + 7) / 8 * 8
			}
			nb, err := c.bytes(padded)
			if err != nil {
				return FilterPipeline{}, err
			}
			name = cString(nb)
		}
		values := make([]uint32, numClientValues)
		for j := range values {
			v, err := c.u32()
			if err != nil {
				return FilterPipeline{}, err
			}
			values[j] = v
		}
		if version == 1 && numClientValues%2 == 1 {
			if err := c.skip(4); err != nil { // padding to 4-byte multiple
				return FilterPipeline{}, err
			}
		}
		pipeline.Filters = append(pipeline.Filters, FilterSpec{ID: id, Name: name, Client: values})
	}
	return pipeline, nil
}

func cString(b []byte) string {
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// decodeFillValue is only consulted for its presence; NISAR GCOV rasters use
// NaN fill for floating point grids, which the dataset reader applies
// directly rather than trusting a possibly-absent fill value message.
func decodeFillValue(body []byte) (bool, error) {
	if len(body) == 0 {
		return false, nil
	}
	c := newCursor(body)
	version, err := c.u8()
	if err != nil {
		return false, err
	}
	if version >= 3 {
		flags, err := c.u8()
		if err != nil {
			return false, err
		}
		return flags&0x20 != 0, nil
	}
	if err := c.skip(3); err != nil {
		return false, err
	}
	defined, err := c.u32()
	if err != nil {
		return false, err
	}
	return defined != 0, nil
}

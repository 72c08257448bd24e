// Package hdf5 implements the subset of the HDF5 1.8+ container format
// needed to resolve a NISAR GCOV grid layout over byte-range I/O (spec §4.B).
//
// It is a streaming, read-only parser: no write path, no general HDF5
// object model, only what Superblock/Group/SymbolTable/ObjectHeader/
// Dataspace/Datatype/DataLayout/FilterPipeline/Attribute/Link decoding
// requires. Grounded on the pure-Go HDF5 readers in the reference pack
// (rkm/go-hdf5's internal/binary, internal/btree, internal/layout; and
// scigolib/hdf5's internal/core), none of which wrap libhdf5 either.
package hdf5

import (
	"context"
	"encoding/binary"

	"github.com/sarstream/sarstream/internal/rangeio"
	"github.com/sarstream/sarstream/internal/sarerr"
)

// Source is anything the parser can pull bytes from at an absolute offset.
// The Fetcher in internal/rangeio satisfies a narrower interface; this one
// is intentionally byte-oriented so the parser can stay allocation-light.
type Source interface {
	Read(ctx context.Context, offset, length int64) ([]byte, error)
}

// fetcherSource adapts a *rangeio.Fetcher to Source.
type fetcherSource struct {
	f *rangeio.Fetcher
}

func (s fetcherSource) Read(ctx context.Context, offset, length int64) ([]byte, error) {
	return s.f.Read(ctx, offset, length)
}

// NewSource wraps a rangeio.Fetcher as a hdf5.Source.
func NewSource(f *rangeio.Fetcher) Source { return fetcherSource{f: f} }

// cursor is a small helper over a byte slice for sequential field decoding,
// in the spirit of rkm/go-hdf5's internal/binary.Reader.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor { return &cursor{buf: buf} }

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) bytes(n int) ([]byte, error) {
	if c.remaining() < n {
		return nil, sarerr.New(sarerr.TruncatedFile, "unexpected end of buffer")
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) skip(n int) error {
	if c.remaining() < n {
		return sarerr.New(sarerr.TruncatedFile, "unexpected end of buffer")
	}
	c.pos += n
	return nil
}

func (c *cursor) u8() (uint8, error) {
	b, err := c.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u16() (uint16, error) {
	b, err := c.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) u64() (uint64, error) {
	b, err := c.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// sized reads an unsigned little-endian integer of the given byte width, used
// for HDF5's variably-sized "offset" and "length" fields.
func (c *cursor) sized(width int) (uint64, error) {
	b, err := c.bytes(width)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := width - 1; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v, nil
}

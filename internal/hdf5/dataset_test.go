package hdf5

import (
	"context"
	"testing"

	"github.com/sarstream/sarstream/internal/sarerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildContiguousStringDataset lays out a v1 object header for a scalar
// string dataset: a 1-D dataspace of length 1, a fixed-point datatype (NISAR
// stores scene metadata as fixed-length C strings typed as unsigned bytes),
// and a contiguous data layout, followed by the string payload itself.
func buildContiguousStringDataset(value string) memSource {
	dataspaceBody := []byte{1, 1, 0} // version 1, rank 1, no max dims
	dataspaceBody = append(dataspaceBody, make([]byte, 5)...)
	dataspaceBody = appendSized(dataspaceBody, 1, 8) // one element

	datatypeBody := []byte{0, 0, 0, 0} // class 0 (fixed point), unsigned
	datatypeBody = appendSized(datatypeBody, uint64(len(value)+1), 4)

	dataAddr := uint64(0) // patched below once the header size is known
	layoutBody := []byte{3, 1} // version 3, class 1 (contiguous)
	layoutBody = appendSized(layoutBody, dataAddr, 8)
	layoutBody = appendSized(layoutBody, uint64(len(value)+1), 8)

	msgs := []struct {
		typ  uint16
		body []byte
	}{
		{msgDataspace, dataspaceBody},
		{msgDatatype, datatypeBody},
		{msgDataLayout, layoutBody},
	}

	var body []byte
	for _, m := range msgs {
		body = appendSized(body, uint64(m.typ), 2)
		body = appendSized(body, uint64(len(m.body)), 2)
		body = append(body, 0, 0, 0, 0) // flags + reserved
		body = append(body, m.body...)
		pad := (8 - (len(m.body)+8)%8) % 8
		body = append(body, make([]byte, pad)...)
	}

	var prefix []byte
	prefix = append(prefix, 1, 0)
	prefix = appendU16(prefix, uint16(len(msgs)))
	prefix = appendU32(prefix, 0)
	prefix = appendU32(prefix, uint32(len(body)))
	prefix = append(prefix, 0, 0, 0, 0)

	realDataAddr := uint64(len(prefix) + len(body))

	// patch the contiguous address embedded in the data layout message: it
	// sits at a fixed offset within the header body, right after the
	// dataspace and datatype messages.
	patched := append([]byte{}, body...)
	dataLayoutMsgOffset := 0
	for _, m := range msgs {
		msgTotal := 8 + len(m.body) + (8-(len(m.body)+8)%8)%8
		if m.typ == msgDataLayout {
			break
		}
		dataLayoutMsgOffset += msgTotal
	}
	addrFieldOffset := dataLayoutMsgOffset + 8 + 2 // skip msg header(8) + version/class(2)
	for i := 0; i < 8; i++ {
		patched[addrFieldOffset+i] = byte(realDataAddr >> (8 * i))
	}

	buf := append([]byte{}, prefix...)
	buf = append(buf, patched...)
	buf = append(buf, []byte(value)...)
	buf = append(buf, 0) // NUL terminator

	return memSource{buf: buf}
}

func TestDescribeDatasetDecodesAllThreeMessages(t *testing.T) {
	src := buildContiguousStringDataset("hello")
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}

	info, err := DescribeDataset(context.Background(), src, sb, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, info.Dataspace.Dimensions)
	assert.Equal(t, ClassFixedPoint, info.Datatype.Class)
	assert.Equal(t, LayoutContiguous, info.Layout.Class)
}

func TestReadScalarStringReadsContiguousPayload(t *testing.T) {
	src := buildContiguousStringDataset("2026-01-01T00:00:00Z")
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}

	s, err := ReadScalarString(context.Background(), src, sb, 0)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01T00:00:00Z", s)
}

func TestDescribeContiguousDatasetComputesElementCount(t *testing.T) {
	src := buildContiguousStringDataset("x")
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}

	_, _, length, err := DescribeContiguousDataset(context.Background(), src, sb, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, length)
}

func TestFiltersReturnsEmptyPipelineWhenAbsent(t *testing.T) {
	src := buildContiguousStringDataset("x")
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}

	fp, err := Filters(context.Background(), src, sb, 0)
	require.NoError(t, err)
	assert.Empty(t, fp.Filters)
}

// buildObjectHeaderWithoutDataspace lays out a v1 header carrying only a
// datatype message, so DescribeDataset must fail looking for the dataspace
// message it requires.
func buildObjectHeaderWithoutDataspace() memSource {
	datatypeBody := []byte{1, 0, 0, 0, 4, 0, 0, 0}

	var body []byte
	body = appendSized(body, uint64(msgDatatype), 2)
	body = appendSized(body, uint64(len(datatypeBody)), 2)
	body = append(body, 0, 0, 0, 0)
	body = append(body, datatypeBody...)

	var prefix []byte
	prefix = append(prefix, 1, 0)
	prefix = appendU16(prefix, 1)
	prefix = appendU32(prefix, 0)
	prefix = appendU32(prefix, uint32(len(body)))
	prefix = append(prefix, 0, 0, 0, 0)

	return memSource{buf: append(prefix, body...)}
}

func TestDescribeDatasetRejectsMissingDataspace(t *testing.T) {
	src := buildObjectHeaderWithoutDataspace()
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}

	_, err := DescribeDataset(context.Background(), src, sb, 0)
	require.Error(t, err)
	assert.True(t, sarerr.Is(err, sarerr.UnsupportedFormat))
}

package hdf5

import (
	"context"
	"testing"

	"github.com/sarstream/sarstream/internal/sarerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildHardLinkMessage(name string, addr uint64) []byte {
	var buf []byte
	buf = append(buf, 1, 0)     // version, flags (no link type/creation order/charset bits)
	buf = append(buf, byte(len(name)))
	buf = append(buf, []byte(name)...)
	buf = appendSized(buf, addr, 8)
	return buf
}

func TestDecodeLinkMessageParsesHardLink(t *testing.T) {
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}
	link, err := decodeLinkMessage(buildHardLinkMessage("frequencyA", 4096), sb)
	require.NoError(t, err)
	assert.Equal(t, "frequencyA", link.Name)
	assert.EqualValues(t, 4096, link.ObjectAddress)
}

func TestChildrenOfUsesLinkMessagesWhenSymbolTableAbsent(t *testing.T) {
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}
	oh := &ObjectHeader{Messages: []rawMessage{
		{msgType: msgLink, body: buildHardLinkMessage("HH", 10)},
		{msgType: msgLink, body: buildHardLinkMessage("HV", 20)},
	}}

	links, err := ChildrenOf(context.Background(), memSource{}, sb, oh)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "HH", links[0].Name)
	assert.Equal(t, "HV", links[1].Name)
}

func TestChildrenOfPrefersSymbolTableMessage(t *testing.T) {
	src, btreeAddr, heapAddr := buildSymbolTableGroup([]testLink{{name: "grids", addr: 500}})
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}

	stBody := appendSized(appendSized(nil, btreeAddr, 8), heapAddr, 8)
	oh := &ObjectHeader{Messages: []rawMessage{{msgType: msgSymbolTable, body: stBody}}}

	links, err := ChildrenOf(context.Background(), src, sb, oh)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "grids", links[0].Name)
	assert.EqualValues(t, 500, links[0].ObjectAddress)
}

func TestChildrenOfRejectsDenseLinkStorage(t *testing.T) {
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}
	oh := &ObjectHeader{}
	_, err := ChildrenOf(context.Background(), memSource{}, sb, oh)
	require.Error(t, err)
	assert.True(t, sarerr.Is(err, sarerr.UnsupportedFormat))
}

func TestResolvePathReturnsRootForEmptyPath(t *testing.T) {
	sb := &Superblock{OffsetSize: 8, LengthSize: 8, RootGroupAddress: 999}
	addr, err := ResolvePath(context.Background(), memSource{}, sb, "/")
	require.NoError(t, err)
	assert.EqualValues(t, 999, addr)
}

func TestResolvePathWalksOneSegmentViaSymbolTable(t *testing.T) {
	src, btreeAddr, heapAddr := buildSymbolTableGroup([]testLink{
		{name: "identification", addr: 7000},
		{name: "grids", addr: 8000},
	})

	// place the root object header (v1, single symbol-table message) right
	// after the group fixture's backing bytes.
	rootAddr := uint64(len(src.buf))
	stBody := appendSized(appendSized(nil, btreeAddr, 8), heapAddr, 8)

	var prefix []byte
	prefix = append(prefix, 1, 0)
	prefix = appendU16(prefix, 1)
	prefix = appendU32(prefix, 0)
	prefix = appendU32(prefix, uint32(8+len(stBody)))
	prefix = append(prefix, 0, 0, 0, 0)

	var body []byte
	body = appendU16(body, msgSymbolTable)
	body = appendU16(body, uint16(len(stBody)))
	body = append(body, 0, 0, 0, 0)
	body = append(body, stBody...)

	buf := append(append([]byte{}, src.buf...), prefix...)
	buf = append(buf, body...)

	full := memSource{buf: buf}
	sb := &Superblock{OffsetSize: 8, LengthSize: 8, RootGroupAddress: rootAddr}

	addr, err := ResolvePath(context.Background(), full, sb, "grids")
	require.NoError(t, err)
	assert.EqualValues(t, 8000, addr)
}

func TestResolvePathReturnsNotFoundForMissingSegment(t *testing.T) {
	src, btreeAddr, heapAddr := buildSymbolTableGroup([]testLink{{name: "identification", addr: 7000}})
	rootAddr := uint64(len(src.buf))
	stBody := appendSized(appendSized(nil, btreeAddr, 8), heapAddr, 8)

	var prefix []byte
	prefix = append(prefix, 1, 0)
	prefix = appendU16(prefix, 1)
	prefix = appendU32(prefix, 0)
	prefix = appendU32(prefix, uint32(8+len(stBody)))
	prefix = append(prefix, 0, 0, 0, 0)

	var body []byte
	body = appendU16(body, msgSymbolTable)
	body = appendU16(body, uint16(len(stBody)))
	body = append(body, 0, 0, 0, 0)
	body = append(body, stBody...)

	buf := append(append([]byte{}, src.buf...), prefix...)
	buf = append(buf, body...)

	full := memSource{buf: buf}
	sb := &Superblock{OffsetSize: 8, LengthSize: 8, RootGroupAddress: rootAddr}

	_, err := ResolvePath(context.Background(), full, sb, "grids")
	require.Error(t, err)
	assert.True(t, sarerr.Is(err, sarerr.NotFound))
}

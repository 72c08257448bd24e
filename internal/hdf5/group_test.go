package hdf5

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLink struct {
	name string
	addr uint64
}

// buildSymbolTableGroup lays out a minimal v0/v1 group: a single-level group
// B-tree pointing at one symbol table node, backed by a local heap holding
// the entries' names. Returns the backing source plus the B-tree and heap
// addresses ListGroupV01 needs.
func buildSymbolTableGroup(entries []testLink) (memSource, uint64, uint64) {
	const offsetSize, lengthSize = 8, 8
	const entrySize = 2*offsetSize + 4 + 4 + 16

	btreeHeaderSize := 4 + 1 + 1 + 2 + 2*offsetSize
	btreeBodySize := lengthSize + 1*(offsetSize+lengthSize)
	snodAddr := uint64(btreeHeaderSize + btreeBodySize)
	snodSize := 8 + len(entries)*entrySize
	heapHeaderAddr := snodAddr + uint64(snodSize)
	heapHeaderSize := 4 + 4 + lengthSize + lengthSize + offsetSize
	heapDataAddr := heapHeaderAddr + uint64(heapHeaderSize)

	var heapData []byte
	nameOffsets := make([]uint64, len(entries))
	for i, e := range entries {
		nameOffsets[i] = uint64(len(heapData))
		heapData = append(heapData, []byte(e.name)...)
		heapData = append(heapData, 0)
	}

	var buf []byte
	// group B-tree node at address 0, level 0, one child (the SNOD).
	buf = append(buf, []byte("TREE")...)
	buf = append(buf, 0, 0) // node type 0 (group), level 0
	buf = appendU16(buf, 1) // entries used
	buf = appendSized(buf, 0xFFFFFFFFFFFFFFFF, offsetSize) // left sibling
	buf = appendSized(buf, 0xFFFFFFFFFFFFFFFF, offsetSize) // right sibling
	buf = appendSized(buf, 0, lengthSize)                  // first key, unused
	buf = appendSized(buf, snodAddr, offsetSize)           // child address
	buf = appendSized(buf, 0, lengthSize)                  // key, unused

	// symbol table node at snodAddr.
	buf = append(buf, []byte("SNOD")...)
	buf = append(buf, 1, 0) // version, reserved
	buf = appendU16(buf, uint16(len(entries)))
	for i, e := range entries {
		buf = appendSized(buf, nameOffsets[i], offsetSize)
		buf = appendSized(buf, e.addr, offsetSize)
		buf = append(buf, make([]byte, 4+4+16)...) // cache type, reserved, scratch-pad
	}

	// local heap header at heapHeaderAddr.
	buf = append(buf, []byte("HEAP")...)
	buf = append(buf, 0, 0, 0, 0) // version + reserved
	buf = appendSized(buf, uint64(len(heapData)), lengthSize)
	buf = appendSized(buf, 0xFFFFFFFFFFFFFFFF, lengthSize) // free list head, unused
	buf = appendSized(buf, heapDataAddr, offsetSize)

	// local heap data segment at heapDataAddr.
	buf = append(buf, heapData...)

	return memSource{buf: buf}, 0, heapHeaderAddr
}

func TestListGroupV01ResolvesChildren(t *testing.T) {
	src, btreeAddr, heapAddr := buildSymbolTableGroup([]testLink{
		{name: "alpha", addr: 1000},
		{name: "beta", addr: 2000},
	})
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}

	links, err := ListGroupV01(context.Background(), src, sb, btreeAddr, heapAddr)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "alpha", links[0].Name)
	assert.EqualValues(t, 1000, links[0].ObjectAddress)
	assert.Equal(t, "beta", links[1].Name)
	assert.EqualValues(t, 2000, links[1].ObjectAddress)
}

func TestListGroupV01RejectsMalformedInput(t *testing.T) {
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}
	src := memSource{buf: make([]byte, 64)}
	_, err := ListGroupV01(context.Background(), src, sb, 0, 0)
	require.Error(t, err)
}

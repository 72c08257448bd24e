package hdf5

import (
	"bytes"
	"context"

	"github.com/sarstream/sarstream/internal/sarerr"
)

// Link is a named child of a group, resolved to an object header address.
type Link struct {
	Name          string
	ObjectAddress uint64
}

// symbolTableEntry is one entry of a v1 group B-tree leaf / local heap pair.
type symbolTableEntry struct {
	linkNameOffset uint64
	objectAddress  uint64
}

// ListGroupV01 resolves the children of a group addressed by a v0/v1 style
// symbol table (B-tree + local heap), as used by the root group entry in
// superblock versions 0 and 1.
func ListGroupV01(ctx context.Context, src Source, sb *Superblock, btreeAddr, heapAddr uint64) ([]Link, error) {
	heap, err := readLocalHeap(ctx, src, sb, heapAddr)
	if err != nil {
		return nil, err
	}
	var entries []symbolTableEntry
	if err := walkGroupBTree(ctx, src, sb, btreeAddr, &entries); err != nil {
		return nil, err
	}
	links := make([]Link, 0, len(entries))
	for _, e := range entries {
		name, err := heapString(heap, e.linkNameOffset)
		if err != nil {
			return nil, err
		}
		links = append(links, Link{Name: name, ObjectAddress: e.objectAddress})
	}
	return links, nil
}

func readLocalHeap(ctx context.Context, src Source, sb *Superblock, addr uint64) ([]byte, error) {
	// Local heap header: "HEAP" signature, version, 3 reserved bytes, data
	// segment size, free list head offset, data segment address.
	headerSize := int64(8 + 2*sb.LengthSize + sb.OffsetSize)
	buf, err := src.Read(ctx, int64(addr), headerSize)
	if err != nil {
		return nil, sarerr.Wrap(sarerr.IOError, "reading local heap header", err)
	}
	c := newCursor(buf)
	sig, err := c.bytes(4)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(sig, []byte("HEAP")) {
		return nil, sarerr.New(sarerr.UnsupportedFormat, "invalid local heap signature")
	}
	if err := c.skip(4); err != nil { // version + reserved
		return nil, err
	}
	dataSegSize, err := c.sized(sb.LengthSize)
	if err != nil {
		return nil, err
	}
	if _, err := c.sized(sb.LengthSize); err != nil { // free list head
		return nil, err
	}
	dataAddr, err := c.sized(sb.OffsetSize)
	if err != nil {
		return nil, err
	}
	data, err := src.Read(ctx, int64(dataAddr), int64(dataSegSize))
	if err != nil {
		return nil, sarerr.Wrap(sarerr.IOError, "reading local heap data", err)
	}
	return data, nil
}

func heapString(heap []byte, offset uint64) (string, error) {
	if offset >= uint64(len(heap)) {
		return "", sarerr.New(sarerr.TruncatedFile, "heap string offset out of range")
	}
	end := offset
	for end < uint64(len(heap)) && heap[end] != 0 {
		end++
	}
	return string(heap[offset:end]), nil
}

func walkGroupBTree(ctx context.Context, src Source, sb *Superblock, addr uint64, out *[]symbolTableEntry) error {
	headerSize := int64(8 + 2*sb.OffsetSize)
	buf, err := src.Read(ctx, int64(addr), headerSize)
	if err != nil {
		return sarerr.Wrap(sarerr.IOError, "reading group btree node header", err)
	}
	c := newCursor(buf)
	sig, err := c.bytes(4)
	if err != nil {
		return err
	}
	if !bytes.Equal(sig, []byte("TREE")) {
		return sarerr.New(sarerr.UnsupportedFormat, "invalid group B-tree signature")
	}
	nodeType, err := c.u8()
	if err != nil {
		return err
	}
	if nodeType != 0 {
		return sarerr.New(sarerr.UnsupportedFormat, "expected group (type 0) B-tree node")
	}
	level, err := c.u8()
	if err != nil {
		return err
	}
	entriesUsed, err := c.u16()
	if err != nil {
		return err
	}
	if err := c.skip(2 * sb.OffsetSize); err != nil { // sibling addresses
		return err
	}

	// Remaining body: (key, child)* entriesUsed+1 keys, entriesUsed children.
	// Keys are local-heap offsets (length-sized); children are addresses.
	bodySize := int64(sb.LengthSize) + int64(entriesUsed)*(int64(sb.OffsetSize)+int64(sb.LengthSize))
	body, err := src.Read(ctx, int64(addr)+headerSize, bodySize)
	if err != nil {
		return sarerr.Wrap(sarerr.IOError, "reading group btree node body", err)
	}
	bc := newCursor(body)
	if _, err := bc.sized(sb.LengthSize); err != nil { // first key, unused
		return err
	}
	for i := uint16(0); i < entriesUsed; i++ {
		childAddr, err := bc.sized(sb.OffsetSize)
		if err != nil {
			return err
		}
		if _, err := bc.sized(sb.LengthSize); err != nil { // key
			return err
		}
		if level == 0 {
			if err := readSymbolTableNode(ctx, src, sb, childAddr, out); err != nil {
				return err
			}
		} else {
			if err := walkGroupBTree(ctx, src, sb, childAddr, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func readSymbolTableNode(ctx context.Context, src Source, sb *Superblock, addr uint64, out *[]symbolTableEntry) error {
	buf, err := src.Read(ctx, int64(addr), 8)
	if err != nil {
		return sarerr.Wrap(sarerr.IOError, "reading symbol table node header", err)
	}
	c := newCursor(buf)
	sig, err := c.bytes(4)
	if err != nil {
		return err
	}
	if !bytes.Equal(sig, []byte("SNOD")) {
		return sarerr.New(sarerr.UnsupportedFormat, "invalid symbol table node signature")
	}
	if err := c.skip(1); err != nil { // version
		return err
	}
	if err := c.skip(1); err != nil { // reserved
		return err
	}
	numSymbols, err := c.u16()
	if err != nil {
		return err
	}

	entrySize := int64(2*sb.OffsetSize + 4 + 4 + 16) // link name offset, obj header, cache type, reserved, scratch
	body, err := src.Read(ctx, int64(addr)+8, int64(numSymbols)*entrySize)
	if err != nil {
		return sarerr.Wrap(sarerr.IOError, "reading symbol table entries", err)
	}
	bc := newCursor(body)
	for i := uint16(0); i < numSymbols; i++ {
		nameOffset, err := bc.sized(sb.OffsetSize)
		if err != nil {
			return err
		}
		objAddr, err := bc.sized(sb.OffsetSize)
		if err != nil {
			return err
		}
		if err := bc.skip(4 + 4 + 16); err != nil { // cache type, reserved, scratch-pad
			return err
		}
		*out = append(*out, symbolTableEntry{linkNameOffset: nameOffset, objectAddress: objAddr})
	}
	return nil
}

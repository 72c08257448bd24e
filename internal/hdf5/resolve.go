package hdf5

import (
	"context"
	"strings"

	"github.com/sarstream/sarstream/internal/sarerr"
)

// ChildrenOf resolves a group's named children regardless of whether it uses
// the old-style symbol table (a msgSymbolTable message carrying a B-tree +
// local heap pair, present on the root group and any v1 subgroup) or the
// new-style compact link message list (one msgLink message per child,
// typical of small v2 groups). Dense link storage (a fractal heap + v2
// B-tree, used only once a group holds many thousands of children) is out
// of scope: NISAR GCOV groups never approach that fan-out.
func ChildrenOf(ctx context.Context, src Source, sb *Superblock, oh *ObjectHeader) ([]Link, error) {
	if stMsg, ok := oh.find(msgSymbolTable); ok {
		c := newCursor(stMsg.body)
		btreeAddr, err := c.sized(sb.OffsetSize)
		if err != nil {
			return nil, err
		}
		heapAddr, err := c.sized(sb.OffsetSize)
		if err != nil {
			return nil, err
		}
		return ListGroupV01(ctx, src, sb, btreeAddr, heapAddr)
	}

	linkMsgs := oh.findAll(msgLink)
	if len(linkMsgs) > 0 {
		links := make([]Link, 0, len(linkMsgs))
		for _, m := range linkMsgs {
			link, err := decodeLinkMessage(m.body, sb)
			if err != nil {
				return nil, err
			}
			links = append(links, link)
		}
		return links, nil
	}

	return nil, sarerr.New(sarerr.UnsupportedFormat, "group uses dense link storage, which is not supported")
}

// decodeLinkMessage parses a version-1 hard link message: version, flags,
// optional link type, optional creation order, optional charset, a
// length-prefixed name, and a hard link's target object header address.
func decodeLinkMessage(body []byte, sb *Superblock) (Link, error) {
	c := newCursor(body)
	if _, err := c.u8(); err != nil { // version
		return Link{}, err
	}
	flags, err := c.u8()
	if err != nil {
		return Link{}, err
	}
	linkType := uint8(0)
	if flags&0x08 != 0 {
		linkType, err = c.u8()
		if err != nil {
			return Link{}, err
		}
	}
	if flags&0x04 != 0 {
		if err := c.skip(8); err != nil { // creation order
			return Link{}, err
		}
	}
	if flags&0x10 != 0 {
		if err := c.skip(1); err != nil { // charset
			return Link{}, err
		}
	}
	nameLenSize := 1 << (flags & 0x03)
	nameLen, err := c.sized(nameLenSize)
	if err != nil {
		return Link{}, err
	}
	nameBytes, err := c.bytes(int(nameLen))
	if err != nil {
		return Link{}, err
	}
	name := string(nameBytes)

	if linkType != 0 {
		// soft links, external links: not used within a NISAR GCOV tree.
		return Link{Name: name}, nil
	}
	addr, err := c.sized(sb.OffsetSize)
	if err != nil {
		return Link{}, err
	}
	return Link{Name: name, ObjectAddress: addr}, nil
}

// ResolvePath walks a slash-separated absolute path from the root group to
// the target object header address, using ChildrenOf at each level.
func ResolvePath(ctx context.Context, src Source, sb *Superblock, path string) (uint64, error) {
	addr := sb.RootGroupAddress
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 1 && segments[0] == "" {
		return addr, nil
	}
	for _, seg := range segments {
		oh, err := ReadObjectHeader(ctx, src, sb, addr)
		if err != nil {
			return 0, err
		}
		children, err := ChildrenOf(ctx, src, sb, oh)
		if err != nil {
			return 0, err
		}
		found := false
		for _, link := range children {
			if link.Name == seg {
				addr = link.ObjectAddress
				found = true
				break
			}
		}
		if !found {
			return 0, sarerr.New(sarerr.NotFound, "path segment not found: "+seg)
		}
	}
	return addr, nil
}

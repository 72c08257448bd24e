package hdf5

import (
	"bytes"
	"context"

	"github.com/sarstream/sarstream/internal/sarerr"
)

// rawMessage is one undecoded header message: its type code and body bytes.
// messages.go decodes the bodies that the dataset/group resolvers need.
type rawMessage struct {
	msgType uint16
	flags   uint8
	body    []byte
}

// ObjectHeader is the flattened message list for one HDF5 object (group or
// dataset), read via either the v1 (prefix-size) or v2 (OHDR-signature)
// layout, including continuation blocks.
type ObjectHeader struct {
	Version  int
	Messages []rawMessage
}

const (
	msgNIL           = 0x0000
	msgDataspace     = 0x0001
	msgLinkInfo      = 0x0002
	msgDatatype      = 0x0003
	msgFillValueOld  = 0x0004
	msgFillValue     = 0x0005
	msgLink          = 0x0006
	msgDataLayout    = 0x0008
	msgFilterPipe    = 0x000B
	msgAttribute     = 0x000C
	msgObjHeaderCont = 0x0010
	msgSymbolTable   = 0x0011
)

// ReadObjectHeader dispatches on the first bytes at addr to the v1 (no
// signature, starts with a version byte in {1}) or v2 ("OHDR" signature)
// layout.
func ReadObjectHeader(ctx context.Context, src Source, sb *Superblock, addr uint64) (*ObjectHeader, error) {
	probe, err := src.Read(ctx, int64(addr), 4)
	if err != nil {
		return nil, sarerr.Wrap(sarerr.IOError, "reading object header probe", err)
	}
	if bytes.Equal(probe, []byte("OHDR")) {
		return readObjectHeaderV2(ctx, src, sb, addr)
	}
	return readObjectHeaderV1(ctx, src, sb, addr)
}

// readObjectHeaderV1 parses the version-1 object header prefix: version,
// reserved, total number of header messages, reference count, header size,
// followed by the message stream (padded to 8-byte alignment), chasing
// continuation messages as they appear.
func readObjectHeaderV1(ctx context.Context, src Source, sb *Superblock, addr uint64) (*ObjectHeader, error) {
	prefix, err := src.Read(ctx, int64(addr), 16)
	if err != nil {
		return nil, sarerr.Wrap(sarerr.IOError, "reading v1 object header prefix", err)
	}
	c := newCursor(prefix)
	version, err := c.u8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, sarerr.New(sarerr.UnsupportedFormat, "unexpected object header version")
	}
	if err := c.skip(1); err != nil { // reserved
		return nil, err
	}
	totalMessages, err := c.u16()
	if err != nil {
		return nil, err
	}
	if _, err := c.u32(); err != nil { // reference count
		return nil, err
	}
	headerSize, err := c.u32()
	if err != nil {
		return nil, err
	}

	oh := &ObjectHeader{Version: 1}
	body, err := src.Read(ctx, int64(addr)+16, int64(headerSize))
	if err != nil {
		return nil, sarerr.Wrap(sarerr.IOError, "reading v1 object header body", err)
	}
	if err := decodeV1Messages(ctx, src, sb, body, int(totalMessages), oh); err != nil {
		return nil, err
	}
	return oh, nil
}

func decodeV1Messages(ctx context.Context, src Source, sb *Superblock, body []byte, remaining int, oh *ObjectHeader) error {
	c := newCursor(body)
	for remaining > 0 && c.remaining() >= 8 {
		msgType, err := c.u16()
		if err != nil {
			return err
		}
		size, err := c.u16()
		if err != nil {
			return err
		}
		flags, err := c.u8()
		if err != nil {
			return err
		}
		if err := c.skip(3); err != nil { // reserved
			return err
		}
		payload, err := c.bytes(int(size))
		if err != nil {
			return err
		}
		remaining--

		if msgType == msgObjHeaderCont {
			pc := newCursor(payload)
			contAddr, err := pc.sized(sb.OffsetSize)
			if err != nil {
				return err
			}
			contLen, err := pc.sized(sb.LengthSize)
			if err != nil {
				return err
			}
			contBody, err := src.Read(ctx, int64(contAddr), int64(contLen))
			if err != nil {
				return sarerr.Wrap(sarerr.IOError, "reading object header continuation", err)
			}
			if err := decodeV1Messages(ctx, src, sb, contBody, remaining, oh); err != nil {
				return err
			}
			return nil
		}

		oh.Messages = append(oh.Messages, rawMessage{msgType: msgType, flags: flags, body: payload})

		// messages are padded so the next one starts on an 8-byte boundary
		// within this block.
		pad := (8 - (int(size)+8)%8) % 8
		if pad > 0 {
			if err := c.skip(pad); err != nil {
				break
			}
		}
	}
	return nil
}

// readObjectHeaderV2 parses the version-2 "OHDR" layout: signature, version,
// flags byte controlling optional fields, then size-of-chunk-0 (1/2/4/8
// bytes per flags bits 0-1), followed by messages with a 4-byte checksum
// trailer per chunk.
func readObjectHeaderV2(ctx context.Context, src Source, sb *Superblock, addr uint64) (*ObjectHeader, error) {
	head, err := src.Read(ctx, int64(addr), 6)
	if err != nil {
		return nil, sarerr.Wrap(sarerr.IOError, "reading v2 object header head", err)
	}
	c := newCursor(head)
	if _, err := c.bytes(4); err != nil { // "OHDR"
		return nil, err
	}
	version, err := c.u8()
	if err != nil {
		return nil, err
	}
	if version != 2 {
		return nil, sarerr.New(sarerr.UnsupportedFormat, "unexpected v2 object header version")
	}
	flags, err := c.u8()
	if err != nil {
		return nil, err
	}

	pos := int64(addr) + 6
	if flags&0x20 != 0 { // times present
		pos += 16
	}
	if flags&0x10 != 0 { // max compact/dense attr phase change present
		pos += 4
	}
	chunkSizeWidth := 1 << (flags & 0x3)
	csBuf, err := src.Read(ctx, pos, int64(chunkSizeWidth))
	if err != nil {
		return nil, sarerr.Wrap(sarerr.IOError, "reading v2 chunk0 size", err)
	}
	cs := newCursor(csBuf)
	chunk0Size, err := cs.sized(chunkSizeWidth)
	if err != nil {
		return nil, err
	}
	pos += int64(chunkSizeWidth)

	oh := &ObjectHeader{Version: 2}
	body, err := src.Read(ctx, pos, int64(chunk0Size))
	if err != nil {
		return nil, sarerr.Wrap(sarerr.IOError, "reading v2 object header chunk", err)
	}
	if err := decodeV2Messages(ctx, src, sb, body, oh); err != nil {
		return nil, err
	}
	return oh, nil
}

func decodeV2Messages(ctx context.Context, src Source, sb *Superblock, body []byte, oh *ObjectHeader) error {
	// last 4 bytes of every v2 chunk are a checksum, not message data.
	if len(body) < 4 {
		return sarerr.New(sarerr.TruncatedFile, "v2 object header chunk too short")
	}
	c := newCursor(body[:len(body)-4])
	for c.remaining() >= 4 {
		msgType, err := c.u8()
		if err != nil {
			return err
		}
		size, err := c.u16()
		if err != nil {
			return err
		}
		flags, err := c.u8()
		if err != nil {
			return err
		}
		payload, err := c.bytes(int(size))
		if err != nil {
			return err
		}
		mt := uint16(msgType)
		if mt == msgObjHeaderCont {
			pc := newCursor(payload)
			contAddr, err := pc.sized(sb.OffsetSize)
			if err != nil {
				return err
			}
			contLen, err := pc.sized(sb.LengthSize)
			if err != nil {
				return err
			}
			contBody, err := src.Read(ctx, int64(contAddr), int64(contLen))
			if err != nil {
				return sarerr.Wrap(sarerr.IOError, "reading v2 header continuation", err)
			}
			// v2 continuation blocks are prefixed with an "OCHK" signature
			// and carry their own trailing checksum.
			if len(contBody) >= 4 && bytes.Equal(contBody[:4], []byte("OCHK")) {
				contBody = contBody[4:]
			}
			if err := decodeV2Messages(ctx, src, sb, contBody, oh); err != nil {
				return err
			}
			continue
		}
		oh.Messages = append(oh.Messages, rawMessage{msgType: mt, flags: flags, body: payload})
	}
	return nil
}

func (oh *ObjectHeader) find(msgType uint16) (rawMessage, bool) {
	for _, m := range oh.Messages {
		if m.msgType == msgType {
			return m, true
		}
	}
	return rawMessage{}, false
}

func (oh *ObjectHeader) findAll(msgType uint16) []rawMessage {
	var out []rawMessage
	for _, m := range oh.Messages {
		if m.msgType == msgType {
			out = append(out, m)
		}
	}
	return out
}

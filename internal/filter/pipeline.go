// Package filter applies the HDF5 filter pipeline (spec §4.D) to a raw
// chunk buffer, undoing filters in reverse application order as the format
// requires.
package filter

import (
	"github.com/sarstream/sarstream/internal/sarerr"
)

const (
	IDDeflate    = 1
	IDShuffle    = 2
	IDFletcher32 = 3
	IDLZF        = 32000
)

// Spec is the decoded filter pipeline entry the hdf5 package produces.
type Spec struct {
	ID         uint16
	ElementSize int // element size recorded for the shuffle filter; Decode takes the stride from its elementSize argument
}

// Decode reverses every filter in spec, in last-applied-first order, as
// HDF5 mandates: a chunk's filters are applied in the order stored and must
// be undone in reverse.
func Decode(filters []Spec, elementSize int, buf []byte) ([]byte, error) {
	out := buf
	var err error
	for i := len(filters) - 1; i >= 0; i-- {
		f := filters[i]
		switch f.ID {
		case IDDeflate:
			out, err = inflate(out)
		case IDShuffle:
			out, err = unshuffle(out, elementSize)
		case IDFletcher32:
			out, err = verifyFletcher32(out)
		case IDLZF:
			return nil, sarerr.New(sarerr.UnsupportedFilter, "LZF filter is not supported")
		default:
			return nil, sarerr.New(sarerr.UnsupportedFilter, "unknown filter id")
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

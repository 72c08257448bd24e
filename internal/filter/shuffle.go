package filter

import "github.com/sarstream/sarstream/internal/sarerr"

// unshuffle reverses the HDF5 shuffle filter, which de-interleaves each
// element's bytes across the buffer to improve the downstream compressor's
// hit rate. Undoing it walks the same interleaving backwards.
func unshuffle(buf []byte, elementSize int) ([]byte, error) {
	if elementSize <= 1 {
		return buf, nil
	}
	if len(buf)%elementSize != 0 {
		return nil, sarerr.New(sarerr.DecodeError, "shuffled buffer not a multiple of element size")
	}
	count := len(buf) / elementSize
	out := make([]byte, len(buf))
	for b := 0; b < elementSize; b++ {
		plane := buf[b*count : (b+1)*count]
		for i := 0; i < count; i++ {
			out[i*elementSize+b] = plane[i]
		}
	}
	return out, nil
}

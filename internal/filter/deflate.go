package filter

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/sarstream/sarstream/internal/sarerr"
)

// inflate reverses HDF5's deflate filter, which wraps the compressed chunk
// in a standard zlib stream (RFC 1950), not a raw DEFLATE stream.
func inflate(buf []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, sarerr.Wrap(sarerr.DecodeError, "opening zlib stream", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, sarerr.Wrap(sarerr.DecodeError, "inflating chunk", err)
	}
	return out, nil
}

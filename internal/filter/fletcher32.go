package filter

import "github.com/sarstream/sarstream/internal/sarerr"

// verifyFletcher32 checks and strips the trailing 4-byte Fletcher32
// checksum HDF5 appends to a chunk, returning InvalidChecksum on mismatch
// (spec §4.D / §7 error taxonomy).
func verifyFletcher32(buf []byte) ([]byte, error) {
	if len(buf) < 4 {
		return nil, sarerr.New(sarerr.TruncatedFile, "chunk too short for fletcher32 trailer")
	}
	data := buf[:len(buf)-4]
	want := uint32(buf[len(buf)-4]) | uint32(buf[len(buf)-3])<<8 | uint32(buf[len(buf)-2])<<16 | uint32(buf[len(buf)-1])<<24

	var sum1, sum2 uint32
	for _, b := range data {
		sum1 = (sum1 + uint32(b)) % 65535
		sum2 = (sum2 + sum1) % 65535
	}
	got := (sum2 << 16) | sum1

	if got != want {
		return nil, sarerr.New(sarerr.InvalidChecksum, "fletcher32 checksum mismatch")
	}
	return data, nil
}

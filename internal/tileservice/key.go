package tileservice

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Key identifies one rendered tile: a dataset path, an LOD stride, and a
// tile grid coordinate, per spec §4.G.
type Key struct {
	DatasetPath string
	Stride      int
	Row, Col    int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", k.DatasetPath, k.Stride, k.Row, k.Col)
}

// Hash returns an xxhash of the key's String form. The tile cache and the
// in-flight table key their maps by Key directly and do not call it.
func (k Key) Hash() uint64 {
	return xxhash.Sum64String(k.String())
}

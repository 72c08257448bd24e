package composite

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarstream/sarstream/internal/btree"
	"github.com/sarstream/sarstream/internal/dataset"
	"github.com/sarstream/sarstream/internal/hdf5"
	"github.com/sarstream/sarstream/internal/tileservice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource struct{ buf []byte }

func (m memSource) Read(_ context.Context, offset, length int64) ([]byte, error) {
	return m.buf[offset : offset+length], nil
}

// newPartialDataset builds a TileSize x TileSize dataset split into a 2x2
// chunk grid where only the top-left chunk is actually stored; the rest of
// the tile reads back as NaN, letting tests exercise the composite mask law.
func newPartialDataset(t *testing.T, path string, value float32) *dataset.Dataset {
	t.Helper()
	chunkDim := tileservice.TileSize / 2
	values := make([]float32, chunkDim*chunkDim)
	for i := range values {
		values[i] = value
	}
	payload := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
	}

	dims := 3
	offsetSize := 8
	buildNode := func(addr uint64) []byte {
		var node []byte
		node = append(node, []byte("TREE")...)
		node = append(node, 1, 0)
		node = append(node, 1, 0)
		node = appendSized(node, 0, offsetSize)
		node = appendSized(node, 0, offsetSize)
		node = append(node, byte(len(payload)), byte(len(payload)>>8), byte(len(payload)>>16), byte(len(payload)>>24))
		node = append(node, 0, 0, 0, 0)
		for d := 0; d < dims; d++ {
			node = appendSized(node, 0, 8)
		}
		node = appendSized(node, addr, offsetSize)
		node = append(node, 0, 0, 0, 0, 0, 0, 0, 0)
		for d := 0; d < dims; d++ {
			node = appendSized(node, 0xFFFFFFFFFFFFFFFF, 8)
		}
		return node
	}
	nodeLen := len(buildNode(0))
	node := buildNode(uint64(nodeLen))

	buf := append([]byte{}, node...)
	buf = append(buf, payload...)

	src := memSource{buf: buf}
	idx := btree.NewIndex(src, 0, offsetSize, offsetSize, dims)

	return &dataset.Dataset{
		Path:      path,
		Rows:      tileservice.TileSize,
		Cols:      tileservice.TileSize,
		ChunkRows: chunkDim,
		ChunkCols: chunkDim,
		Datatype:  hdf5.Datatype{Class: hdf5.ClassFloatingPoint, Size: 4},
		Index:     idx,
		Source:    src,
	}
}

func appendSized(buf []byte, v uint64, width int) []byte {
	for i := 0; i < width; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}

func newTestEngine(t *testing.T, datasets map[string]*dataset.Dataset) *Engine {
	t.Helper()
	svc := tileservice.NewService(func(ctx context.Context, path string) (*dataset.Dataset, error) {
		return datasets[path], nil
	}, 8, tileservice.NewMetrics(prometheus.NewRegistry()), nil)
	return NewEngine(svc)
}

func TestGetCompositeTileAppliesPresetFormulas(t *testing.T) {
	hh := newPartialDataset(t, "p#HH", 2)
	vv := newPartialDataset(t, "p#VV", 3)
	hv := newPartialDataset(t, "p#HV", 1)

	engine := newTestEngine(t, map[string]*dataset.Dataset{
		"p#HH": hh, "p#VV": vv, "p#HV": hv,
	})

	preset := Catalogue[0] // hh-hv-vv: direct R=HH, G=HV, B=VV
	tile, err := engine.GetCompositeTile(context.Background(), map[string]string{
		"HH": "p#HH", "HV": "p#HV", "VV": "p#VV",
	}, preset, 1, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, float32(2), tile.R[0])
	assert.Equal(t, float32(1), tile.G[0])
	assert.Equal(t, float32(3), tile.B[0])
	assert.True(t, tile.Mask[0], "pixel within the written chunk for all channels should be unmasked")
}

func TestGetCompositeTileMasksPixelsWithAnyMissingChannel(t *testing.T) {
	hh := newPartialDataset(t, "p#HH", 2)
	vv := newPartialDataset(t, "p#VV", 3)
	hv := newPartialDataset(t, "p#HV", 1)

	engine := newTestEngine(t, map[string]*dataset.Dataset{
		"p#HH": hh, "p#VV": vv, "p#HV": hv,
	})

	preset := Catalogue[0]
	tile, err := engine.GetCompositeTile(context.Background(), map[string]string{
		"HH": "p#HH", "HV": "p#HV", "VV": "p#VV",
	}, preset, 1, 0, 0)
	require.NoError(t, err)

	// index into the bottom-right quadrant of the tile, which is outside the
	// only written chunk in every channel and so must read back as NaN.
	lastIdx := tileservice.TileSize*tileservice.TileSize - 1
	assert.False(t, tile.Mask[lastIdx])
}

func TestGetCompositeTileMasksPixelsWithAZeroChannel(t *testing.T) {
	hh := newPartialDataset(t, "p#HH", 0) // zero is the no-data sentinel, not a valid power value
	vv := newPartialDataset(t, "p#VV", 3)
	hv := newPartialDataset(t, "p#HV", 1)

	engine := newTestEngine(t, map[string]*dataset.Dataset{
		"p#HH": hh, "p#VV": vv, "p#HV": hv,
	})

	preset := Catalogue[0]
	tile, err := engine.GetCompositeTile(context.Background(), map[string]string{
		"HH": "p#HH", "HV": "p#HV", "VV": "p#VV",
	}, preset, 1, 0, 0)
	require.NoError(t, err)

	// HH reads back as exactly 0 everywhere within its written chunk, so even
	// pixels covered by every channel must be masked out.
	assert.False(t, tile.Mask[0], "a zero-valued source channel should mask the pixel")
}

func TestGetCompositeTileErrorsOnMissingRequiredChannel(t *testing.T) {
	hh := newPartialDataset(t, "p#HH", 2)
	engine := newTestEngine(t, map[string]*dataset.Dataset{"p#HH": hh})

	preset := Catalogue[0]
	_, err := engine.GetCompositeTile(context.Background(), map[string]string{
		"HH": "p#HH",
	}, preset, 1, 0, 0)
	require.Error(t, err)
}

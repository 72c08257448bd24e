// Package composite implements get_composite_tile (spec §4.H): assembling
// an R/G/B raster from a preset formula applied across a product's
// polarization channels.
package composite

import (
	"context"
	"math"
	"sync"

	"github.com/sarstream/sarstream/internal/sarerr"
	"github.com/sarstream/sarstream/internal/tileservice"
	"golang.org/x/sync/errgroup"
)

// RGBTile is one rendered composite tile.
type RGBTile struct {
	R, G, B []float32 // tileservice.TileSize*tileservice.TileSize each
	Mask    []bool    // true where every contributing channel is finite and non-zero
}

// Engine fetches the per-channel tiles a Preset needs, in parallel, and
// combines them per-pixel.
type Engine struct {
	tiles *tileservice.Service
}

func NewEngine(tiles *tileservice.Service) *Engine {
	return &Engine{tiles: tiles}
}

// GetCompositeTile renders preset for the given dataset paths keyed by
// channel name, at the given stride/row/col tile coordinate. Any channel
// fetch failure propagates and aborts the whole composite (spec §4.H
// failure propagation: a composite is only as good as its weakest channel).
func (e *Engine) GetCompositeTile(ctx context.Context, channelPaths map[string]string, preset Preset, stride, row, col int) (*RGBTile, error) {
	needed := uniqueChannels(preset)
	fetched := make(map[string][]float32, len(needed))

	eg, egCtx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for _, ch := range needed {
		ch := ch
		path, ok := channelPaths[ch]
		if !ok {
			return nil, sarerr.New(sarerr.NotFound, "composite preset requires missing channel: "+ch)
		}
		eg.Go(func() error {
			tile, err := e.tiles.GetTile(egCtx, tileservice.Key{DatasetPath: path, Stride: stride, Row: row, Col: col})
			if err != nil {
				return err
			}
			mu.Lock()
			fetched[ch] = tile.Data
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	n := tileSizeSquared()
	out := &RGBTile{R: make([]float32, n), G: make([]float32, n), B: make([]float32, n), Mask: make([]bool, n)}
	for i := 0; i < n; i++ {
		values := map[string]float32{}
		ok := true
		for ch, data := range fetched {
			v := data[i]
			if v != v || v == 0 || math.IsInf(float64(v), 0) { // NaN, no-data zero, or +/-Inf
				ok = false
			}
			values[ch] = v
		}
		out.Mask[i] = ok
		out.R[i] = preset.R.Apply(values)
		out.G[i] = preset.G.Apply(values)
		out.B[i] = preset.B.Apply(values)
	}
	return out, nil
}

func uniqueChannels(p Preset) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range []Formula{p.R, p.G, p.B} {
		for _, ch := range []string{f.A, f.B} {
			if ch == "" || seen[ch] {
				continue
			}
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

func tileSizeSquared() int { return tileservice.TileSize * tileservice.TileSize }

// Package tileservice implements get_tile (spec §4.G): LOD-aware region
// reads assembled into fixed-size tiles, with a rendered-tile LRU cache and
// in-flight request coalescing.
package tileservice

import (
	"context"
	"log"
	"strings"

	"github.com/sarstream/sarstream/internal/dataset"
	"github.com/sarstream/sarstream/internal/lod"
)

// TileSize is the fixed output tile dimension, matching the teacher's
// fixed-size vector/raster tile convention.
const TileSize = 256

// Tile is a rendered, fixed-size single-band raster, ready for composite
// assembly or direct serving.
type Tile struct {
	Key    Key
	Stride int
	Data   []float32 // TileSize*TileSize, row-major
}

// Resolver loads the Dataset backing a path so the service never has to
// know about Product/session wiring directly.
type Resolver func(ctx context.Context, path string) (*dataset.Dataset, error)

// Service implements get_tile with caching and coalescing.
type Service struct {
	resolve  Resolver
	cache    *tileLRU
	inflight *inflightTable
	metrics  *Metrics
	logger   *log.Logger
}

// NewService constructs a Service backed by resolve, with the given
// rendered-tile cache capacity (0 uses the default).
func NewService(resolve Resolver, cacheCapacity int, metrics *Metrics, logger *log.Logger) *Service {
	return &Service{
		resolve:  resolve,
		cache:    newTileLRU(cacheCapacity),
		inflight: newInflightTable(),
		metrics:  metrics,
		logger:   logger,
	}
}

// GetTile returns the rendered tile for key, serving from cache when
// present, otherwise coalescing with any identical in-flight render and
// decoding the underlying region on a cache miss.
func (s *Service) GetTile(ctx context.Context, key Key) (*Tile, error) {
	if tile, ok := s.cache.get(key); ok {
		if s.metrics != nil {
			s.metrics.CacheHits.Inc()
		}
		return tile, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	tile, err := s.inflight.join(ctx, key, func(renderCtx context.Context) (*Tile, error) {
		if s.metrics != nil {
			s.metrics.RendersStarted.Inc()
		}
		t, err := s.render(renderCtx, key)
		if err != nil && s.metrics != nil {
			s.metrics.RenderErrors.Inc()
		}
		return t, err
	})
	if err != nil {
		return nil, err
	}

	// A render completed successfully on behalf of this call or a peer; only
	// the caller whose context is still live gets to populate the cache so
	// a cancelled waiter never poisons it with a partial result.
	if ctx.Err() == nil {
		s.cache.put(key, tile)
	}
	return tile, nil
}

func (s *Service) render(ctx context.Context, key Key) (*Tile, error) {
	ds, err := s.resolve(ctx, key.DatasetPath)
	if err != nil {
		return nil, err
	}

	stride := key.Stride
	if stride <= 0 {
		stride = lod.Select(TileSize, TileSize)
	}

	row0 := key.Row * TileSize * stride
	col0 := key.Col * TileSize * stride
	span := TileSize * stride

	region, err := ds.ReadRegion(ctx, row0, col0, span, span)
	if err != nil {
		return nil, err
	}

	data := make([]float32, TileSize*TileSize)
	for r := 0; r < TileSize; r++ {
		srcRow := r * stride
		for c := 0; c < TileSize; c++ {
			srcCol := c * stride
			data[r*TileSize+c] = region.Data[region.At(row0+srcRow, col0+srcCol)]
		}
	}

	if s.logger != nil {
		s.logger.Printf("rendered tile %s", key.String())
	}
	return &Tile{Key: key, Stride: stride, Data: data}, nil
}

// Invalidate evicts every cached tile whose DatasetPath starts with
// datasetPath; Session.Refresh calls it with a product URL.
func (s *Service) Invalidate(datasetPath string) {
	s.cache.invalidate(func(k Key) bool {
		return strings.HasPrefix(k.DatasetPath, datasetPath)
	})
}

// CacheLen reports the current rendered-tile cache size, for tests.
func (s *Service) CacheLen() int { return s.cache.len() }

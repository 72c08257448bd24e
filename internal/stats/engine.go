package stats

import (
	"context"
	"math"
	"sync"

	"github.com/sarstream/sarstream/internal/dataset"
	"github.com/sarstream/sarstream/internal/tileservice"
	"golang.org/x/sync/errgroup"
)

// sampleGrid is the viewport sampling grid size spec §4.I's
// viewport_stats uses: a 3x3 grid of tiles spanning the visible area,
// rather than reading every pixel in view.
const sampleGrid = 3

// ChannelStats summarizes one channel's value distribution. When the
// originating call used Options.UseDB, Min/Max/P2/P98 are all in decibels.
type ChannelStats struct {
	Min, Max   float64
	P2, P98    float64
	Histogram  Histogram
	SampleSize int
}

// Options controls histogram construction, per spec §4.I's
// {bins, use_db, stride} sampling options. Bins <= 0 falls back to
// defaultBinCount; Stride is only consulted by ViewportStats, which uses it
// to pick the tile zoom level to sample at.
type Options struct {
	Bins   int
	UseDB  bool
	Stride int
}

// SampleChannelStats builds a histogram from a full region read of one
// dataset channel, per spec §4.I sample_channel_stats.
func SampleChannelStats(ctx context.Context, ds *dataset.Dataset, row0, col0, rows, cols int, opts Options) (ChannelStats, error) {
	region, err := ds.ReadRegion(ctx, row0, col0, rows, cols)
	if err != nil {
		return ChannelStats{}, err
	}
	h := BuildHistogram(region.Data, opts.Bins, opts.UseDB)
	return ChannelStats{
		Min:        h.Min,
		Max:        h.Max,
		P2:         h.Percentile(2),
		P98:        h.Percentile(98),
		Histogram:  h,
		SampleSize: len(region.Data),
	}, nil
}

// AutoContrast derives a [lo, hi] stretch range from a channel's 2nd/98th
// percentiles, per spec §4.I auto_contrast. s must already have been built
// with the desired Options.UseDB setting; the returned range is in whatever
// unit s's percentiles are in.
func AutoContrast(s ChannelStats) (lo, hi float64) {
	if s.P98 <= s.P2 {
		return s.Min, s.Max
	}
	return s.P2, s.P98
}

// ViewportStats samples a sampleGrid x sampleGrid lattice of tiles spanning
// the given tile coordinate range, returning partial results (and the
// first error encountered, if any) rather than failing the whole request
// when the viewport is only partly cancelled. On a partial result,
// SampleSize reports the number of tiles that were actually scanned, per
// spec §4.I, not the pixel count those tiles contributed.
func ViewportStats(ctx context.Context, tiles *tileservice.Service, path string, opts Options, row0, col0, rows, cols int) (ChannelStats, error) {
	rowStep := rows / sampleGrid
	colStep := cols / sampleGrid
	if rowStep == 0 {
		rowStep = 1
	}
	if colStep == 0 {
		colStep = 1
	}

	eg, egCtx := errgroup.WithContext(ctx)
	results := make([][]float32, 0, sampleGrid*sampleGrid)
	var mu sync.Mutex

	for r := 0; r < sampleGrid; r++ {
		for c := 0; c < sampleGrid; c++ {
			r, c := r, c
			eg.Go(func() error {
				key := tileservice.Key{DatasetPath: path, Stride: opts.Stride, Row: row0 + r*rowStep, Col: col0 + c*colStep}
				tile, err := tiles.GetTile(egCtx, key)
				if err != nil {
					return err
				}
				mu.Lock()
				results = append(results, tile.Data)
				mu.Unlock()
				return nil
			})
		}
	}

	waitErr := eg.Wait()
	scanned := len(results)

	var all []float32
	for _, r := range results {
		all = append(all, r...)
	}
	if len(all) == 0 {
		return ChannelStats{Min: math.NaN(), Max: math.NaN(), SampleSize: scanned}, waitErr
	}
	h := BuildHistogram(all, opts.Bins, opts.UseDB)
	stats := ChannelStats{Min: h.Min, Max: h.Max, P2: h.Percentile(2), P98: h.Percentile(98), Histogram: h, SampleSize: scanned}
	return stats, waitErr
}

// Package lod selects the dataset stride used to satisfy a tile request at a
// given zoom level (spec §4.F).
package lod

import "math"

// overviewFactor is how many source pixels per output pixel Select accepts
// before doubling the stride, and the ratio between successive strides
// Levels returns.
const overviewFactor = 1.5

// Select returns the smallest power-of-two stride (in source pixels per
// output pixel) at which requestedCols/stride is at most tileSize times
// overviewFactor, so the subsampled footprint is never wider than
// overviewFactor tiles.
//
// requestedCols is the number of source columns the tile's bounding box
// spans at native resolution; tileSize is the output tile's pixel
// dimension.
func Select(requestedCols, tileSize int) int {
	if tileSize <= 0 {
		return 1
	}
	ratio := float64(requestedCols) / float64(tileSize)
	if ratio <= 1 {
		return 1
	}
	stride := 1
	for float64(requestedCols)/float64(stride) > float64(tileSize)*overviewFactor {
		stride *= 2
	}
	return stride
}

// Levels returns the sequence of strides a product's overview pyramid
// exposes, given the dataset's native size and its minimum useful tile
// footprint, for clients that want to enumerate available zooms up front.
func Levels(nativeCols, minFootprint int) []int {
	if minFootprint <= 0 || nativeCols <= 0 {
		return []int{1}
	}
	var levels []int
	stride := 1
	for {
		levels = append(levels, stride)
		if nativeCols/stride <= minFootprint {
			break
		}
		stride = int(math.Ceil(float64(stride) * overviewFactor))
		if stride <= levels[len(levels)-1] {
			stride = levels[len(levels)-1] + 1
		}
	}
	return levels
}

// Package stats implements the channel statistics and auto-contrast
// operations (spec §4.I): histogram construction, percentile lookup, and
// viewport sampling.
package stats

import (
	"math"
	"sort"
)

// Histogram is a fixed-bin-count frequency table over a [Min,Max] value
// range, built with the two-pass algorithm spec §4.I requires: one pass to
// establish the range, one to bin.
type Histogram struct {
	Min, Max float64
	Counts   []uint64
	Total    uint64
}

const defaultBinCount = 256

// noDataFloor is the clamp applied before the decibel transform, matching
// spec §4.I's v <- 10*log10(max(v, 1e-10)).
const noDataFloor = 1e-10

// BuildHistogram runs the two-pass algorithm over values. SAR power samples
// are strictly positive; zero and negative values are the product's no-data
// sentinel and, like NaN, are skipped in both passes rather than folded into
// the range or bins. When useDB is set, surviving values are converted to
// decibels (10*log10(max(v, 1e-10))) before they're accumulated, so Min/Max
// and the bin edges come out in dB.
func BuildHistogram(values []float32, binCount int, useDB bool) Histogram {
	if binCount <= 0 {
		binCount = defaultBinCount
	}
	h := Histogram{Counts: make([]uint64, binCount)}

	transform := func(f float64) float64 {
		if useDB {
			return 10 * math.Log10(math.Max(f, noDataFloor))
		}
		return f
	}

	first := true
	for _, v := range values {
		if v != v || v <= 0 {
			continue
		}
		f := transform(float64(v))
		if first {
			h.Min, h.Max = f, f
			first = false
			continue
		}
		if f < h.Min {
			h.Min = f
		}
		if f > h.Max {
			h.Max = f
		}
	}
	if first {
		return h // no valid samples
	}
	span := h.Max - h.Min
	for _, v := range values {
		if v != v || v <= 0 {
			continue
		}
		f := transform(float64(v))
		var bin int
		if span > 0 {
			bin = int((f - h.Min) / span * float64(binCount))
			if bin >= binCount {
				bin = binCount - 1
			}
		}
		h.Counts[bin]++
		h.Total++
	}
	return h
}

// Percentile returns the value below which p percent (0-100) of the
// histogram's mass falls, via linear interpolation within the owning bin.
func (h Histogram) Percentile(p float64) float64 {
	if h.Total == 0 {
		return h.Min
	}
	target := uint64(p / 100 * float64(h.Total))
	var cum uint64
	binWidth := (h.Max - h.Min) / float64(len(h.Counts))
	for i, c := range h.Counts {
		if cum+c >= target {
			if c == 0 {
				return h.Min + float64(i)*binWidth
			}
			frac := float64(target-cum) / float64(c)
			return h.Min + (float64(i)+frac)*binWidth
		}
		cum += c
	}
	return h.Max
}

// PercentileFromSamples computes an exact percentile by sorting, used by
// tests to validate Histogram.Percentile's approximation stays within the
// tolerance spec §8's percentile-law property allows.
func PercentileFromSamples(values []float32, p float64) float64 {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if v == v {
			clean = append(clean, float64(v))
		}
	}
	if len(clean) == 0 {
		return 0
	}
	sort.Float64s(clean)
	idx := int(p / 100 * float64(len(clean)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(clean) {
		idx = len(clean) - 1
	}
	return clean[idx]
}

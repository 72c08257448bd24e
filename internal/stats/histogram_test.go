package stats

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildHistogramIgnoresNaN(t *testing.T) {
	values := []float32{1, 2, float32(math.NaN()), 3, 4}
	h := BuildHistogram(values, 4, false)
	assert.EqualValues(t, 4, h.Total)
	assert.Equal(t, float64(1), h.Min)
	assert.Equal(t, float64(4), h.Max)
}

func TestBuildHistogramAllNaNYieldsEmptyHistogram(t *testing.T) {
	values := []float32{float32(math.NaN()), float32(math.NaN())}
	h := BuildHistogram(values, 4, false)
	assert.EqualValues(t, 0, h.Total)
}

func TestBuildHistogramSkipsZeroAndNegativeAsNoData(t *testing.T) {
	values := []float32{0, -5, 1, 2, 3}
	h := BuildHistogram(values, 4, false)
	assert.EqualValues(t, 3, h.Total)
	assert.Equal(t, float64(1), h.Min)
	assert.Equal(t, float64(3), h.Max)
}

func TestBuildHistogramAllZeroYieldsEmptyHistogram(t *testing.T) {
	values := []float32{0, 0, 0}
	h := BuildHistogram(values, 4, false)
	assert.EqualValues(t, 0, h.Total)
}

func TestBuildHistogramDefaultsBinCount(t *testing.T) {
	h := BuildHistogram([]float32{1, 2, 3}, 0, false)
	assert.Len(t, h.Counts, defaultBinCount)
}

func TestBuildHistogramUseDBAppliesDecibelTransform(t *testing.T) {
	values := []float32{1, 10, 100}
	h := BuildHistogram(values, 4, true)
	assert.InDelta(t, 0, h.Min, 1e-9)
	assert.InDelta(t, 20, h.Max, 1e-9)
}

func TestPercentileApproximatesExactSampledPercentile(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	values := make([]float32, 10000)
	for i := range values {
		values[i] = float32(r.NormFloat64()*10 + 50)
	}

	h := BuildHistogram(values, 256, false)
	for _, p := range []float64{2, 25, 50, 75, 98} {
		approx := h.Percentile(p)
		exact := PercentileFromSamples(values, p)
		assert.InDelta(t, exact, approx, 1.0, "percentile %v should be within tolerance of the exact value", p)
	}
}

func TestPercentileOnConstantValuesReturnsThatValue(t *testing.T) {
	values := make([]float32, 100)
	for i := range values {
		values[i] = 42
	}
	h := BuildHistogram(values, 16, false)
	assert.Equal(t, float64(42), h.Percentile(50))
}

func TestPercentileOfEmptyHistogramReturnsMin(t *testing.T) {
	var h Histogram
	assert.Equal(t, h.Min, h.Percentile(50))
}

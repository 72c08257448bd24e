package session

import (
	"context"
	"testing"

	"github.com/sarstream/sarstream/internal/sarerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitDatasetPathSplitsOnFirstHash(t *testing.T) {
	productURL, hdf5Path, err := splitDatasetPath("https://example.com/a.h5#/science/LSAR/GCOV/grids/frequencyA/HH")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.h5", productURL)
	assert.Equal(t, "/science/LSAR/GCOV/grids/frequencyA/HH", hdf5Path)
}

func TestSplitDatasetPathRejectsMissingSeparator(t *testing.T) {
	_, _, err := splitDatasetPath("no-separator-here")
	require.Error(t, err)
	assert.True(t, sarerr.Is(err, sarerr.DecodeError))
}

func TestSplitDatasetPathKeepsOnlyFirstSeparator(t *testing.T) {
	// an HDF5 path can never itself contain '#', but resolveDataset only
	// needs the first split point to exist unambiguously.
	productURL, hdf5Path, err := splitDatasetPath("a#b#c")
	require.NoError(t, err)
	assert.Equal(t, "a", productURL)
	assert.Equal(t, "b#c", hdf5Path)
}

func TestResolveDatasetFailsForUnopenedProduct(t *testing.T) {
	s := New(DefaultConfig(), nil)
	_, err := s.resolveDataset(context.Background(), "https://example.com/a.h5#/x")
	require.Error(t, err)
	assert.True(t, sarerr.Is(err, sarerr.NotFound))
}

func TestResolveDatasetRejectsMalformedKey(t *testing.T) {
	s := New(DefaultConfig(), nil)
	_, err := s.resolveDataset(context.Background(), "no-separator")
	require.Error(t, err)
	assert.True(t, sarerr.Is(err, sarerr.DecodeError))
}

func TestRefreshFailsForUnopenedProduct(t *testing.T) {
	s := New(DefaultConfig(), nil)
	err := s.Refresh(context.Background(), "https://example.com/does-not-exist.h5")
	require.Error(t, err)
	assert.True(t, sarerr.Is(err, sarerr.NotFound))
}

func TestOpenProductFailsForMissingLocalFile(t *testing.T) {
	s := New(DefaultConfig(), nil)
	_, err := s.OpenProduct(context.Background(), "/tmp/does-not-exist-sarstream-fixture.h5")
	require.Error(t, err)
}

func TestMetricsExposesADedicatedRegistryPerSession(t *testing.T) {
	a := New(DefaultConfig(), nil)
	b := New(DefaultConfig(), nil)
	assert.NotSame(t, a.Metrics(), b.Metrics())
}

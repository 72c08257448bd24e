package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkCacheGetMiss(t *testing.T) {
	c := NewChunkCache(1 << 20)
	_, ok := c.Get(ChunkKey{Path: "p", Row: 0, Col: 0})
	assert.False(t, ok)
}

func TestChunkCachePutGetRoundTrip(t *testing.T) {
	c := NewChunkCache(1 << 20)
	values := []float32{1, 2, 3, 4}
	c.Put(ChunkKey{Path: "p", Row: 0, Col: 0}, values)

	got, ok := c.Get(ChunkKey{Path: "p", Row: 0, Col: 0})
	assert.True(t, ok)
	assert.Equal(t, values, got)
	assert.Equal(t, 1, c.Len())
}

func TestChunkCacheEvictsByByteSizeNotEntryCount(t *testing.T) {
	// capacity holds exactly two 4-float32 (16-byte) chunks.
	c := NewChunkCache(32)
	c.Put(ChunkKey{Row: 0}, []float32{1, 2, 3, 4})
	c.Put(ChunkKey{Row: 1}, []float32{5, 6, 7, 8})
	assert.Equal(t, 2, c.Len())

	// a third chunk pushes used bytes over capacity, evicting the oldest.
	c.Put(ChunkKey{Row: 2}, []float32{9, 10, 11, 12})
	assert.Equal(t, 2, c.Len())

	_, ok := c.Get(ChunkKey{Row: 0})
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get(ChunkKey{Row: 2})
	assert.True(t, ok)
}

func TestChunkCacheDefaultsCapacityWhenNonPositive(t *testing.T) {
	c := NewChunkCache(0)
	assert.Equal(t, int64(defaultChunkCacheBytes), c.capacity)
}

func TestChunkCacheOverwriteUpdatesUsedBytes(t *testing.T) {
	c := NewChunkCache(1 << 20)
	c.Put(ChunkKey{Row: 0}, []float32{1, 2})
	c.Put(ChunkKey{Row: 0}, []float32{1, 2, 3, 4, 5, 6})

	got, ok := c.Get(ChunkKey{Row: 0})
	assert.True(t, ok)
	assert.Len(t, got, 6)
	assert.EqualValues(t, 6*4, c.used)
}

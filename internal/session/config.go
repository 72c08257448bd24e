package session

import "time"

// Config collects every tunable the session layer exposes. There are
// deliberately no environment-variable overrides (spec §6): callers build a
// Config explicitly, from CLI flags or test fixtures, so behavior never
// depends on ambient process state.
type Config struct {
	// ChunkCacheBytes bounds the decoded-chunk LRU shared across datasets
	// opened by one Session. Zero uses the package default.
	ChunkCacheBytes int64

	// TileCacheEntries bounds the rendered-tile LRU per tile service.
	// Zero uses the package default.
	TileCacheEntries int

	// FetchParallelism bounds concurrent byte-range requests per Fetcher.
	// Zero uses the package default.
	FetchParallelism int

	// HTTPTimeout is carried in the configuration only: OpenProduct does
	// not pass it to the bucket or the fetcher, so range requests are not
	// bounded by it.
	HTTPTimeout time.Duration
}

// DefaultConfig returns the tunables a bare `sarstream serve` invocation
// uses absent explicit flags.
func DefaultConfig() Config {
	return Config{
		ChunkCacheBytes:  128 << 20,
		TileCacheEntries: 256,
		FetchParallelism: 4,
		HTTPTimeout:      30 * time.Second,
	}
}

package tileservice

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors the counter/gauge shape of the teacher's
// pmtiles/server_metrics.go, scoped to tile service cache and coalescing
// behavior.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	Coalesced      prometheus.Counter
	RendersStarted prometheus.Counter
	RenderErrors   prometheus.Counter
}

// NewMetrics registers tile service metrics against reg. Pass a dedicated
// *prometheus.Registry per Session so repeated test construction doesn't
// collide with the global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sarstream_tile_cache_hits_total",
			Help: "Tile requests served from the rendered-tile cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sarstream_tile_cache_misses_total",
			Help: "Tile requests that required a render.",
		}),
		Coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sarstream_tile_coalesced_total",
			Help: "Tile requests that joined an in-flight render instead of starting a new one.",
		}),
		RendersStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sarstream_tile_renders_started_total",
			Help: "New tile renders started.",
		}),
		RenderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sarstream_tile_render_errors_total",
			Help: "Tile renders that failed.",
		}),
	}
	reg.MustRegister(m.CacheHits, m.CacheMisses, m.Coalesced, m.RendersStarted, m.RenderErrors)
	return m
}

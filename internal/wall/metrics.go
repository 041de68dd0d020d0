package wall

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapwall_events_applied_total",
		Help: "Channel events merged into the wall set, by type.",
	}, []string{"type"})
	staleEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapwall_events_stale_total",
		Help: "Events ignored because their sequence was older than the stored record.",
	})
	photosOnWall = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapwall_photos_on_wall",
		Help: "Photos currently in the canonical wall set.",
	})
	hydrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapwall_hydrations_total",
		Help: "Snapshot hydrations performed (startup and post-reconnect).",
	})
	imageCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapwall_image_cache_hits_total",
		Help: "Display image fetches served from the LRU cache.",
	})
	imageCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapwall_image_cache_misses_total",
		Help: "Display image fetches that went to the network.",
	})
)

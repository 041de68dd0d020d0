package channel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapwall_channel_reconnects_total",
		Help: "Transport drops that sent the channel into reconnecting.",
	})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapwall_channel_events_dropped_total",
		Help: "Duplicate or stale photo events discarded by the reorder buffer.",
	})
	channelErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapwall_channel_errors_total",
		Help: "Channel errors surfaced to subscribers, by kind.",
	}, []string{"kind"})
)

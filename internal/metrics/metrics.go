package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TicksTotal counts normalized ticks applied to the state store.
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "coinportal_ticks_total", Help: "Count of market ticks applied"},
		[]string{"symbol"},
	)
	// TicksDroppedTotal counts ticks rejected before application.
	TicksDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "coinportal_ticks_dropped_total", Help: "Count of ticks dropped by reason"},
		[]string{"reason"},
	)
	// BroadcastBatchesTotal counts coalesced delta batches flushed.
	BroadcastBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "coinportal_broadcast_batches_total", Help: "Count of coalesced delta batches flushed"},
	)
	// CoalescedUpdatesTotal counts updates merged away inside a coalescing window.
	CoalescedUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "coinportal_coalesced_updates_total", Help: "Count of updates merged into a newer state within one window"},
	)
	// SignalsTotal counts alert/signal events emitted.
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "coinportal_signals_total", Help: "Count of signal events emitted"},
		[]string{"action"},
	)
	// SubscribersActive tracks currently registered subscriber connections.
	SubscribersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "coinportal_subscribers_active", Help: "Currently registered subscriber connections"},
	)
	// SubscriberEvictionsTotal counts forced disconnects of slow subscribers.
	SubscriberEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "coinportal_subscriber_evictions_total", Help: "Forced disconnects of slow subscribers"},
	)
	// FeedReconnectsTotal counts upstream feed reconnect attempts.
	FeedReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "coinportal_feed_reconnects_total", Help: "Upstream feed reconnect attempts"},
	)
)

// Drop reasons for TicksDroppedTotal.
const (
	ReasonMalformed = "malformed"
	ReasonStale     = "stale"
	ReasonInvalid   = "invalid"
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		TicksDroppedTotal,
		BroadcastBatchesTotal,
		CoalescedUpdatesTotal,
		SignalsTotal,
		SubscribersActive,
		SubscriberEvictionsTotal,
		FeedReconnectsTotal,
	)
}

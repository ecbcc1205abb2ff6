package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for MarginCore.
type Metrics struct {
	// --- Tick processing ---
	TicksProcessed  *prometheus.CounterVec
	TickDuration    *prometheus.HistogramVec
	TicksDiscarded  prometheus.Counter
	MonitorEvents   *prometheus.CounterVec
	PositionsActive prometheus.Gauge
	PositionsLocked prometheus.Gauge
	WalletsTracked  prometheus.Gauge

	// --- Risk actions ---
	MarginCalls        *prometheus.CounterVec
	PositionsClosed    *prometheus.CounterVec
	TopUpLocks         prometheus.Counter
	TopUpsCanceled     prometheus.Counter
	PositionsActivated prometheus.Counter

	// --- Ingestion ---
	TicksReceived   *prometheus.CounterVec
	ParseErrors     *prometheus.CounterVec
	FeedReconnects  prometheus.Counter
	PublishErrors   prometheus.Counter
	PublishedEvents *prometheus.CounterVec

	// --- Persistence ---
	PersistWrites   prometheus.Counter
	PersistErrors   prometheus.Counter
	PersistBatchDur prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	tickBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		TicksProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_ticks_processed_total",
			Help: "Price ticks applied to the positions monitor",
		}, []string{"instrument"}),

		TickDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "margin_tick_duration_seconds",
			Help:    "Time to apply one tick to all subscribed positions",
			Buckets: tickBuckets,
		}, []string{"instrument"}),

		TicksDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_ticks_discarded_total",
			Help: "Ticks for instruments with no subscribed positions",
		}),

		MonitorEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_monitor_events_total",
			Help: "Monitoring events emitted, by type",
		}, []string{"event_type"}),

		PositionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "margin_positions",
			Help: "Positions currently in the monitor cache",
		}),

		PositionsLocked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "margin_positions_locked",
			Help: "Positions awaiting an external decision",
		}),

		WalletsTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "margin_wallets",
			Help: "Wallets currently tracked by the monitor",
		}),

		MarginCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_margin_calls_total",
			Help: "Margin-call events, by level (position or wallet)",
		}, []string{"level"}),

		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_positions_closed_total",
			Help: "Positions closed by the monitor, by reason",
		}, []string{"reason"}),

		TopUpLocks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_top_up_locks_total",
			Help: "Positions locked pending a top-up decision",
		}),

		TopUpsCanceled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_top_ups_canceled_total",
			Help: "Top-ups canceled after price recovery",
		}),

		PositionsActivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_positions_activated_total",
			Help: "Pending positions activated by price trigger",
		}),

		TicksReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_ticks_received_total",
			Help: "Raw ticks received, by source",
		}, []string{"source"}),

		ParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_tick_parse_errors_total",
			Help: "Tick payloads that failed to parse, by source",
		}, []string{"source"}),

		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_feed_reconnects_total",
			Help: "WebSocket feed reconnect attempts",
		}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_publish_errors_total",
			Help: "Failures publishing monitor events to NATS",
		}),

		PublishedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_published_events_total",
			Help: "Monitor events published to NATS, by type",
		}, []string{"event_type"}),

		PersistWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_persist_writes_total",
			Help: "Closed positions written to Postgres",
		}),

		PersistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_persist_errors_total",
			Help: "Postgres write failures",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "margin_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a replay run.
type Metrics struct {
	// --- Event source ---
	QuotesLoaded  *prometheus.CounterVec
	QuotesDropped prometheus.Counter
	LoadDuration  *prometheus.HistogramVec

	// --- Core processing ---
	CoreEventsApplied *prometheus.CounterVec
	CoreEventDuration prometheus.Histogram
	CoreJournals      *prometheus.CounterVec
	CoreSequence      prometheus.Gauge
	CoreReplayTime    prometheus.Gauge
	IntentsApplied    *prometheus.CounterVec
	IntentsRejected   *prometheus.CounterVec
	UnsizedFills      *prometheus.CounterVec
	StrategyDecideDur prometheus.Histogram

	// --- Funding ---
	FundingSettled *prometheus.CounterVec
	FundingSkipped *prometheus.CounterVec

	// --- Output ---
	OutputChannelSize prometheus.Gauge
	PersistBatchDur   prometheus.Histogram
	PersistRetries    prometheus.Counter
	PublishFailures   prometheus.Counter
}

// NewMetrics registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics with reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QuotesLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_quotes_loaded_total",
			Help: "Quote records loaded from historical logs",
		}, []string{"venue"}),
		QuotesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "replay_quotes_dropped_total",
			Help: "Quote records dropped by changes-only filtering",
		}),
		LoadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "replay_load_duration_seconds",
			Help:    "Time to load one historical log file",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"source"}),

		CoreEventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_core_events_applied_total",
			Help: "Events emitted by the engine",
		}, []string{"event_type"}),
		CoreEventDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_core_event_duration_seconds",
			Help:    "Time to process one quote end to end",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12),
		}),
		CoreJournals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_core_journals_total",
			Help: "Journal entries applied by type",
		}, []string{"journal_type"}),
		CoreSequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "replay_core_sequence",
			Help: "Last processed quote sequence",
		}),
		CoreReplayTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "replay_core_replay_timestamp_seconds",
			Help: "Replay clock in seconds since epoch",
		}),
		IntentsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_intents_applied_total",
			Help: "Trade intents applied to the ledger",
		}, []string{"venue", "side"}),
		IntentsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_intents_rejected_total",
			Help: "Trade intents rejected by reason",
		}, []string{"reason"}),
		UnsizedFills: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_intents_unsized_fills_total",
			Help: "Trade intents filled against a price with no size",
		}, []string{"venue"}),
		StrategyDecideDur: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_strategy_decide_duration_seconds",
			Help:    "Time spent inside the strategy per quote",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12),
		}),

		FundingSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_funding_settled_total",
			Help: "Positions settled at funding boundaries",
		}, []string{"venue"}),
		FundingSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_funding_skipped_total",
			Help: "Positions skipped at funding boundaries by reason",
		}, []string{"reason"}),

		OutputChannelSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "replay_output_channel_size",
			Help: "Envelopes buffered for output sinks",
		}),
		PersistBatchDur: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_persist_batch_duration_seconds",
			Help:    "Time to write one batch of envelopes",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		PersistRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "replay_persist_retries_total",
			Help: "Retried persistence batches",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "replay_publish_failures_total",
			Help: "Envelopes that failed to publish",
		}),
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store metrics
	storeQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletcore_store_queries_total",
			Help: "Total number of upstream store queries",
		},
		[]string{"query"},
	)

	storeQueryTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletcore_store_query_duration_seconds",
			Help:    "Duration of upstream store queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// Indexing metrics
	lastProcessedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "walletcore_last_processed_block",
			Help: "The last block number each indexer applied",
		},
		[]string{"indexer"},
	)

	batchesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletcore_batches_processed_total",
			Help: "Total number of block batches applied per indexer",
		},
		[]string{"indexer"},
	)

	staleBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletcore_stale_batches_total",
			Help: "Batches skipped because the indexer already processed the range",
		},
		[]string{"indexer"},
	)

	batchLoadTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletcore_batch_load_duration_seconds",
			Help:    "Time taken by one indexer to load a block batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"indexer"},
	)

	// Watcher metrics
	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletcore_watcher_ticks_total",
			Help: "Watcher ticks by outcome (ok, noop, skipped, error)",
		},
		[]string{"outcome"},
	)

	lastGoodTick = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletcore_watcher_last_good_tick_timestamp_seconds",
			Help: "Unix time of the last fully successful watcher tick",
		},
	)

	// Transaction submission metrics
	txSubmitAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletcore_tx_submit_attempts_total",
			Help: "Transaction submission attempts by result (ok, retry, fatal)",
		},
		[]string{"result"},
	)

	txSubmitTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "walletcore_tx_submit_duration_seconds",
			Help:    "End-to-end duration of one logical transaction submission",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	// Bundler metrics
	bundlerCacheRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletcore_bundler_gas_cache_refreshes_total",
			Help: "Lazy refreshes of the bundler gas-price cache",
		},
	)
)

// ObserveStoreQuery records one store query; call the returned func when done.
func ObserveStoreQuery(query string) func() {
	storeQueries.WithLabelValues(query).Inc()
	start := time.Now()
	return func() {
		storeQueryTime.WithLabelValues(query).Observe(time.Since(start).Seconds())
	}
}

// BatchApplied records a successfully applied batch for an indexer.
func BatchApplied(indexer string, toBlock uint64, elapsed time.Duration) {
	batchesProcessed.WithLabelValues(indexer).Inc()
	lastProcessedBlock.WithLabelValues(indexer).Set(float64(toBlock))
	batchLoadTime.WithLabelValues(indexer).Observe(elapsed.Seconds())
}

// StaleBatchInc records a skipped stale batch.
func StaleBatchInc(indexer string) {
	staleBatches.WithLabelValues(indexer).Inc()
}

// TickOutcome records one watcher tick by outcome.
func TickOutcome(outcome string) {
	ticksTotal.WithLabelValues(outcome).Inc()
}

// GoodTick records the timestamp of a fully successful tick.
func GoodTick(at time.Time) {
	lastGoodTick.Set(float64(at.Unix()))
}

// TxSubmitAttempt records one submission attempt by result.
func TxSubmitAttempt(result string) {
	txSubmitAttempts.WithLabelValues(result).Inc()
}

// TxSubmitDone records the duration of one logical submission.
func TxSubmitDone(elapsed time.Duration) {
	txSubmitTime.Observe(elapsed.Seconds())
}

// BundlerCacheRefresh records one lazy gas-price cache refresh.
func BundlerCacheRefresh() {
	bundlerCacheRefreshes.Inc()
}

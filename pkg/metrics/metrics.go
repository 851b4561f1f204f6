// Package metrics exposes Prometheus instrumentation for the document
// store: shard I/O, cache behavior, task queue depth, and root hash
// recomputation latency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CollectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardkeep_collections_total",
			Help: "Total number of collections, cached or on disk",
		},
	)

	RecordsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardkeep_records_total",
			Help: "Total number of records by collection",
		},
		[]string{"collection"},
	)

	ShardsLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardkeep_shards_loaded",
			Help: "Number of shards currently resident in the LRU cache, by collection",
		},
		[]string{"collection"},
	)

	ShardCacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardkeep_shard_cache_evictions_total",
			Help: "Total number of shard cache evictions by collection",
		},
		[]string{"collection"},
	)

	ShardFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shardkeep_shard_flush_duration_seconds",
			Help:    "Time taken to serialize and write a shard to storage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	ShardLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shardkeep_shard_load_duration_seconds",
			Help:    "Time taken to read and decode a shard from storage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	ShardCorruptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardkeep_shard_corruptions_total",
			Help: "Total number of corrupt shards detected, by collection",
		},
		[]string{"collection"},
	)

	RootHashDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shardkeep_root_hash_duration_seconds",
			Help:    "Time taken to recompute a Merkle root hash, by tree level",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"level"}, // shard, collection, database
	)

	RecordOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shardkeep_record_op_duration_seconds",
			Help:    "Time taken for a record-level operation, by op and collection",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "collection"}, // insert, update, get, delete
	)

	TaskQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardkeep_task_queue_depth",
			Help: "Number of tasks currently queued or running",
		},
	)

	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardkeep_tasks_completed_total",
			Help: "Total number of tasks completed, by status",
		},
		[]string{"status"}, // success, error, timeout
	)

	TaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardkeep_task_duration_seconds",
			Help:    "Time taken to run a queued task",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shardkeep_storage_op_duration_seconds",
			Help:    "Time taken for a storage backend operation, by op and backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "backend"},
	)

	EncryptionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardkeep_encryption_failures_total",
			Help: "Total number of encryption or decryption failures",
		},
	)
)

func init() {
	prometheus.MustRegister(CollectionsTotal)
	prometheus.MustRegister(RecordsTotal)
	prometheus.MustRegister(ShardsLoaded)
	prometheus.MustRegister(ShardCacheEvictionsTotal)
	prometheus.MustRegister(ShardFlushDuration)
	prometheus.MustRegister(ShardLoadDuration)
	prometheus.MustRegister(ShardCorruptionsTotal)
	prometheus.MustRegister(RootHashDuration)
	prometheus.MustRegister(RecordOpDuration)
	prometheus.MustRegister(TaskQueueDepth)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(StorageOpDuration)
	prometheus.MustRegister(EncryptionFailuresTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

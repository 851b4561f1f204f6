/*
Package metrics provides Prometheus metrics collection and exposition for the
document store.

Metrics are defined and registered at package init using the Prometheus client
library, giving observability into shard I/O, cache behavior, record operation
latency, task queue depth, and encryption failures. Metrics are exposed via an
HTTP endpoint for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Collection: records, shards loaded         │          │
	│  │  Shard I/O: flush/load duration, corrupt    │          │
	│  │  Merkle: root hash recompute duration       │          │
	│  │  Task queue: depth, completions, duration   │          │
	│  │  Storage: op duration by backend            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

	import "github.com/shardkeep/shardkeep/pkg/metrics"

	timer := metrics.NewTimer()
	// ... flush a shard ...
	timer.ObserveDurationVec(metrics.ShardFlushDuration, collectionName)

	metrics.TaskQueueDepth.Set(float64(pending))
	metrics.TasksCompletedTotal.WithLabelValues("success").Inc()

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/collection: Records shard load/flush duration and corruption counts
  - pkg/taskqueue: Records queue depth, completions, and task duration
  - pkg/scheduler: Records database root hash recomputation duration
  - pkg/database: Supplies collection and record counts to Collector

RecordOpDuration, ShardCacheEvictionsTotal, ShardsLoaded,
StorageOpDuration and EncryptionFailuresTotal are registered, but no
package updates them.

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics

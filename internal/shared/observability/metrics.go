package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ChangesStagedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapgraph_changes_staged_total",
		Help: "Total number of changes staged on change sets, by change kind.",
	}, []string{"kind"})

	ChangesResetTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapgraph_changes_reset_total",
		Help: "Total number of staged changes discarded by element resets.",
	}, []string{"element"})

	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapgraph_builds_total",
		Help: "Total number of snapshot builds, by result.",
	}, []string{"result"})

	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapgraph_build_seconds",
		Help:    "Time spent applying a change log to a base snapshot.",
		Buckets: prometheus.DefBuckets,
	})

	PolicyOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapgraph_policy_outcomes_total",
		Help: "Total number of policy-governed conflicts resolved during builds.",
	}, []string{"policy_kind", "outcome"})

	SnapshotVertices = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "snapgraph_snapshot_vertices",
		Help: "Number of vertices in the latest snapshot of each graph.",
	}, []string{"graph"})

	SnapshotEdges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "snapgraph_snapshot_edges",
		Help: "Number of edges in the latest snapshot of each graph.",
	}, []string{"graph"})

	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapgraph_store_operation_seconds",
		Help:    "Latency of snapshot store operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	StoreCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapgraph_store_cache_hits_total",
		Help: "Total number of snapshot loads served from the in-memory cache.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapgraph_watcher_events_total",
		Help: "Total number of file system events received by the script watcher.",
	})

	BuildAdmissionWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapgraph_build_admission_wait_seconds",
		Help:    "Time a build waited on the per-graph rate limiter.",
		Buckets: prometheus.DefBuckets,
	})

	ApplyQueueEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapgraph_apply_queue_enqueued_total",
		Help: "Change script paths offered to the apply queue, by enqueue result.",
	}, []string{"result"})

	ApplyQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapgraph_apply_queue_depth",
		Help: "Change scripts waiting in the apply queue.",
	})

	ScriptsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapgraph_scripts_applied_total",
		Help: "Change scripts applied by the apply worker, by result.",
	}, []string{"result"})

	ApplyBatchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapgraph_apply_batch_seconds",
		Help:    "Time the apply worker spent on one batch of change scripts.",
		Buckets: prometheus.DefBuckets,
	})
)

package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations by kind and reconciliation signal",
	}, []string{"kind", "signal"})

	CartSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_sync_total",
		Help: "Snapshot sync attempts by backend and state; pending counts attempts started",
	}, []string{"backend", "state"})

	CartSyncLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_sync_latency_seconds",
		Help:    "Latency of snapshot commits",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})

	SnapshotWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_snapshot_writes_total",
		Help: "Total number of durable snapshot writes",
	}, []string{"result"})

	SnapshotCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_snapshot_cache_total",
		Help: "Snapshot cache lookups by result",
	}, []string{"result"})

	SnapshotWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_snapshot_write_latency_seconds",
		Help:    "Latency of replace-all snapshot writes",
		Buckets: prometheus.DefBuckets,
	})

	SummaryUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profile_summary_updates_total",
		Help: "Total number of profile summary recomputations",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// Package metrics exposes the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shareloom",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Cache reads answered from Redis.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shareloom",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Cache reads that fell through to the authoritative store (including backend errors).",
	})
	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shareloom",
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Keys removed by write-path invalidation.",
	})

	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shareloom",
		Subsystem: "jobs",
		Name:      "enqueued_total",
		Help:      "Jobs accepted into the queue.",
	}, []string{"type"})
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shareloom",
		Subsystem: "jobs",
		Name:      "completed_total",
		Help:      "Jobs finished successfully.",
	}, []string{"type"})
	JobsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shareloom",
		Subsystem: "jobs",
		Name:      "retried_total",
		Help:      "Job attempts requeued after a retryable failure.",
	}, []string{"type"})
	JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shareloom",
		Subsystem: "jobs",
		Name:      "failed_total",
		Help:      "Jobs that reached a terminal failure.",
	}, []string{"type"})

	InteractionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shareloom",
		Subsystem: "interactions",
		Name:      "recorded_total",
		Help:      "Accepted like/view events.",
	}, []string{"kind"})
	InteractionsThrottled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shareloom",
		Subsystem: "interactions",
		Name:      "throttled_total",
		Help:      "Like/view events rejected by the rate window.",
	}, []string{"kind"})
)

// Package metrics holds the prometheus collectors shared by the upload engine,
// the backends and the catalog cache.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "syftblob"

var (
	UploadsInitiated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "initiated_total",
		Help:      "Number of initiate requests, by outcome (session or dedup).",
	}, []string{"result"})

	ChunksAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "chunks_accepted_total",
		Help:      "Number of chunks written to staging.",
	})

	ChunkBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "chunk_bytes_total",
		Help:      "Uncompressed bytes received as chunks.",
	})

	Finalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "finalized_total",
		Help:      "Number of finalize attempts, by result.",
	}, []string{"result"})

	FinalizeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "finalize_seconds",
		Help:      "Time spent assembling and promoting a session.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})

	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "sessions_expired_total",
		Help:      "Number of sessions removed by the sweeper.",
	})

	ObjectsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "unconfirmed_reaped_total",
		Help:      "Unconfirmed objects removed after the unconfirmed TTL.",
	})

	BackendOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "ops_total",
		Help:      "Backend operations, by backend, operation and result.",
	}, []string{"backend", "op", "result"})

	BackendSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "op_seconds",
		Help:      "Backend operation latency, by backend and operation.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"backend", "op"})

	CatalogCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "dedup_cache_total",
		Help:      "Digest lookups served by the catalog cache, by result (hit or miss).",
	}, []string{"result"})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

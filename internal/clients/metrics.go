package clients

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var xrpcCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bluewave_xrpc_calls_total",
	Help: "The total number of XRPC calls made to the service, by method and status",
}, []string{"method", "status"})

var xrpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "bluewave_xrpc_call_duration_seconds",
	Help:    "Duration of XRPC calls",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
}, []string{"method"})

var relationshipCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bluewave_relationship_cache_hits_total",
	Help: "Relationship lookups answered from the local cache",
})

package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var batchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bluewave_batch_items_total",
	Help: "Batch items processed, by action and outcome",
}, []string{"action", "outcome"})

var pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bluewave_pages_fetched_total",
	Help: "Listing pages requested, by list kind",
}, []string{"kind"})

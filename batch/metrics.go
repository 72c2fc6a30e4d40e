package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: op (insert, update, delete, upsert), collection
	batchItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ops",
		Subsystem: "batch",
		Name:      "items_processed_total",
		Help:      "Items written successfully by bulk operations",
	}, []string{"op", "collection"})

	// Labels: op, collection, class (chunk, item)
	batchItemsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ops",
		Subsystem: "batch",
		Name:      "items_failed_total",
		Help:      "Items that failed in bulk operations by failure class",
	}, []string{"op", "collection", "class"})
)

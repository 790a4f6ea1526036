package bulk_operation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ItemsProcessedTotal counts terminal item outcomes.
var ItemsProcessedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bulkops_items_processed_total",
		Help: "Total items that reached a terminal status",
	},
	[]string{"operation_type", "status"},
)

// ItemRetriesTotal counts items requeued for another attempt.
var ItemRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bulkops_item_retries_total",
		Help: "Total item retry attempts scheduled",
	},
	[]string{"operation_type"},
)

// ItemDuration observes executor wall time per attempt.
var ItemDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "bulkops_item_duration_seconds",
		Help:    "Item executor duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation_type"},
)

// OperationsFinishedTotal counts operations by terminal status.
var OperationsFinishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bulkops_operations_finished_total",
		Help: "Total operations that reached a terminal status",
	},
	[]string{"operation_type", "status"},
)

// ActiveWorkers tracks workers currently executing an item.
var ActiveWorkers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "bulkops_active_workers",
		Help: "Workers currently executing an item",
	},
)

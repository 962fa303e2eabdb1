package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TargetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geolink_targets_total",
		Help: "Targets matched, by terminal status",
	}, []string{"status"})
	TargetsSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geolink_targets_skipped_total",
		Help: "Targets not dispatched because the run was cancelled",
	})
	TargetsResumedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geolink_targets_resumed_total",
		Help: "Targets skipped because a checkpoint already held their result",
	})
	MatchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geolink_match_duration_ms",
		Help:    "Per-target match duration in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 20, 50, 100, 500},
	})
	ResultBatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geolink_result_batches_total",
		Help: "Result batches persisted, by outcome",
	}, []string{"outcome"})
	PartitionDropped = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "geolink_partition_dropped",
		Help: "Items dropped by the last partition, by kind",
	}, []string{"kind"})
	PartitionBlocks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geolink_partition_blocks",
		Help: "Blocks produced by the last partition",
	})
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geolink_api_requests_total",
		Help: "Review API requests, by route",
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(TargetsTotal)
	prometheus.MustRegister(TargetsSkippedTotal)
	prometheus.MustRegister(TargetsResumedTotal)
	prometheus.MustRegister(MatchDurationMs)
	prometheus.MustRegister(ResultBatchesTotal)
	prometheus.MustRegister(PartitionDropped)
	prometheus.MustRegister(PartitionBlocks)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler exposes the registered metrics for scraping
func Handler() http.Handler { return promhttp.Handler() }

package metrics

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// PipelineRunsTotal counts upload pipeline runs by terminal result (done, failed, invalid).
	PipelineRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Total number of upload pipeline runs, labeled by terminal result.",
	}, []string{"result"})

	// StageDurationSeconds is the time spent in each pipeline stage.
	StageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Time spent in each pipeline stage.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	}, []string{"stage"})

	// ExtractionTotal counts per-image extraction outcomes ("ok" or the degrade reason).
	ExtractionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "pipeline",
		Name:      "extraction_total",
		Help:      "Per-image extraction outcomes.",
	}, []string{"outcome"})

	PriceLookupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "pipeline",
		Name:      "price_lookup_total",
		Help:      "Price enrichment outcomes.",
	}, []string{"outcome"})

	StorageFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "pipeline",
		Name:      "storage_failures_total",
		Help:      "Images dropped from a batch because they could not be stored.",
	}, []string{"reason"})

	EventPublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "events",
		Name:      "publish_errors_total",
		Help:      "Total number of product events that could not be published.",
	})
)

// Register registers catalog metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			PipelineRunsTotal,
			StageDurationSeconds,
			ExtractionTotal,
			PriceLookupTotal,
			StorageFailuresTotal,
			EventPublishErrorsTotal,
		)
	})
}

// Handler exposes the default registry for the gin router.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

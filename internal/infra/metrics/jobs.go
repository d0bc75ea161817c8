package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobsSubmittedTotal, jobsProcessedTotal, synthesisActive, queueDepth, synthesisDuration)
}

var jobsSubmittedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "tts_jobs_submitted_total",
		Help: "Total number of synthesis jobs accepted.",
	},
)

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tts_jobs_processed_total",
		Help: "Total number of synthesis jobs finished, labeled by terminal status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var synthesisActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "tts_synthesis_active",
		Help: "Admission slots currently held by running syntheses.",
	},
)

var queueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "tts_queue_depth",
		Help: "Jobs currently waiting in the pending queue.",
	},
)

var synthesisDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "tts_synthesis_duration_seconds",
		Help:    "Wall time of successful synthesis runs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s .. ~17min
	},
)

func IncJobSubmitted() { jobsSubmittedTotal.Inc() }

func IncJobProcessed(status string) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func SetActiveSynthesis(n int) { synthesisActive.Set(float64(n)) }

func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

func ObserveSynthesisDuration(d time.Duration) {
	synthesisDuration.Observe(d.Seconds())
}

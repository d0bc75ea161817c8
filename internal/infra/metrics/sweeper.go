package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sweeperDeletedTotal) }

var sweeperDeletedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "tts_retention_deleted_total",
		Help: "Jobs removed by the retention sweeper.",
	},
)

func IncSweeperDeleted(n int) {
	if n > 0 {
		sweeperDeletedTotal.Add(float64(n))
	}
}

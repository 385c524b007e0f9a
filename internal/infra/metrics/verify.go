package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(verifyResultsTotal, verifyPollAttempts) }

var verifyResultsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "verify_results_total",
		Help: "Final verification outcomes, labeled by step (success, error) and timeout flag.",
	},
	[]string{"step", "timed_out"},
)

var verifyPollAttempts = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "verify_poll_attempts",
		Help:    "Check-status attempts needed per pending verification.",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60},
	},
)

func IncVerifyResult(step string, timedOut bool) {
	label := "false"
	if timedOut {
		label = "true"
	}
	verifyResultsTotal.WithLabelValues(step, label).Inc()
}

func ObservePollAttempts(n int) { verifyPollAttempts.Observe(float64(n)) }

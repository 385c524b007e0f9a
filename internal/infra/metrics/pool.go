package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(instrumentsConsumedTotal, poolExhaustedTotal) }

var instrumentsConsumedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pool_instruments_consumed_total",
		Help: "Instruments consumed by successful pipeline stages, labeled by kind (card, proxy).",
	},
	[]string{"kind"},
)

var poolExhaustedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pool_exhausted_total",
		Help: "Times a batch ran out of available instruments mid-run.",
	},
)

func IncInstrumentConsumed(kind string) {
	instrumentsConsumedTotal.WithLabelValues(kind).Inc()
}

func IncPoolExhausted() { poolExhaustedTotal.Inc() }

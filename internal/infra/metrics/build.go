package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata exposed as constant labels.",
	},
	[]string{"version"},
)

func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// File: internal/infra/metrics/register.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Each metrics file queues its collectors from init(). MustRegister flushes
// the queue into the default registry once, at process startup, so tests can
// import the package without tripping duplicate-registration panics.
var (
	pending    []prometheus.Collector
	registered sync.Once
)

func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

func MustRegister() {
	registered.Do(func() {
		prometheus.MustRegister(pending...)
		pending = nil
	})
}

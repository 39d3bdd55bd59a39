package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SandboxCollector the metrics for isolated execution
type SandboxCollector struct {
	callDuration     *prometheus.HistogramVec
	resourceExceeded *prometheus.CounterVec
}

var _ SandboxMetrics = (*SandboxCollector)(nil)

func NewSandboxCollector(reg prometheus.Registerer) *SandboxCollector {
	factory := promauto.With(reg)
	return &SandboxCollector{
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespaceDrive,
			Subsystem: subsystemSandbox,
			Name:      "call_duration_seconds",
			Help:      "duration of isolated protocol engine calls",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{LabelMethod}),
		resourceExceeded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceDrive,
			Subsystem: subsystemSandbox,
			Name:      "resource_exceeded_total",
			Help:      "number of isolated calls aborted by a resource limit",
		}, []string{LabelCause}),
	}
}

func (sc *SandboxCollector) SandboxCallFinished(method string, duration time.Duration) {
	sc.callDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (sc *SandboxCollector) SandboxResourceExceeded(cause string) {
	sc.resourceExceeded.WithLabelValues(cause).Inc()
}

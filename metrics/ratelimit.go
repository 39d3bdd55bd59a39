package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RateLimiterCollector the metrics for submitter quotas and bans
type RateLimiterCollector struct {
	rejected *prometheus.CounterVec
	banned   prometheus.Counter
}

var _ RateLimiterMetrics = (*RateLimiterCollector)(nil)

func NewRateLimiterCollector(reg prometheus.Registerer) *RateLimiterCollector {
	factory := promauto.With(reg)
	return &RateLimiterCollector{
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceDrive,
			Subsystem: subsystemRateLimiter,
			Name:      "rejected_total",
			Help:      "number of transactions refused by the rate limiter",
		}, []string{LabelReason}),
		banned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceDrive,
			Subsystem: subsystemRateLimiter,
			Name:      "bans_total",
			Help:      "number of submitter bans triggered",
		}),
	}
}

func (rc *RateLimiterCollector) RateLimitRejected(reason string) {
	rc.rejected.WithLabelValues(reason).Inc()
}

func (rc *RateLimiterCollector) SubmitterBanned() {
	rc.banned.Inc()
}

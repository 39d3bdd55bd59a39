package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ExecutionCollector the metrics for transaction admission and block execution
type ExecutionCollector struct {
	checkDuration prometheus.Histogram
	checked       *prometheus.CounterVec
	delivered     *prometheus.CounterVec
	blockDuration prometheus.Histogram
	blockTxs      prometheus.Histogram
	lastHeight    prometheus.Gauge
}

var _ ExecutionMetrics = (*ExecutionCollector)(nil)

func NewExecutionCollector(reg prometheus.Registerer) *ExecutionCollector {
	factory := promauto.With(reg)
	return &ExecutionCollector{
		checkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceDrive,
			Subsystem: subsystemExecution,
			Name:      "check_tx_duration_seconds",
			Help:      "duration of mempool admission checks",
			Buckets:   prometheus.DefBuckets,
		}),
		checked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceDrive,
			Subsystem: subsystemExecution,
			Name:      "check_tx_total",
			Help:      "number of admission checks by response code",
		}, []string{LabelCode}),
		delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceDrive,
			Subsystem: subsystemExecution,
			Name:      "deliver_tx_total",
			Help:      "number of executed transactions by response code",
		}, []string{LabelCode}),
		blockDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceDrive,
			Subsystem: subsystemExecution,
			Name:      "block_duration_seconds",
			Help:      "duration of block execution",
			Buckets:   prometheus.DefBuckets,
		}),
		blockTxs: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceDrive,
			Subsystem: subsystemExecution,
			Name:      "block_transactions",
			Help:      "number of transactions per executed block",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		lastHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceDrive,
			Subsystem: subsystemExecution,
			Name:      "last_executed_height",
			Help:      "height of the last executed block",
		}),
	}
}

func (ec *ExecutionCollector) TransactionChecked(code uint32, duration time.Duration) {
	ec.checkDuration.Observe(duration.Seconds())
	ec.checked.WithLabelValues(strconv.FormatUint(uint64(code), 10)).Inc()
}

func (ec *ExecutionCollector) TransactionDelivered(code uint32) {
	ec.delivered.WithLabelValues(strconv.FormatUint(uint64(code), 10)).Inc()
}

func (ec *ExecutionCollector) BlockExecuted(height uint64, txs int, duration time.Duration) {
	ec.blockDuration.Observe(duration.Seconds())
	ec.blockTxs.Observe(float64(txs))
	ec.lastHeight.Set(float64(height))
}

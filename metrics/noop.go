package metrics

import "time"

type NoopCollector struct{}

func NewNoopCollector() *NoopCollector {
	nc := &NoopCollector{}
	return nc
}

func (nc *NoopCollector) SandboxCallFinished(method string, duration time.Duration)    {}
func (nc *NoopCollector) SandboxResourceExceeded(cause string)                         {}
func (nc *NoopCollector) RateLimitRejected(reason string)                              {}
func (nc *NoopCollector) SubmitterBanned()                                             {}
func (nc *NoopCollector) TransactionChecked(code uint32, duration time.Duration)       {}
func (nc *NoopCollector) TransactionDelivered(code uint32)                             {}
func (nc *NoopCollector) BlockExecuted(height uint64, txs int, duration time.Duration) {}

// Package metrics defines the metrics the node reports and their
// prometheus collectors.
package metrics

import "time"

// SandboxMetrics reports isolated execution.
type SandboxMetrics interface {
	// SandboxCallFinished records a completed isolated call.
	SandboxCallFinished(method string, duration time.Duration)
	// SandboxResourceExceeded records a call aborted by a limit.
	SandboxResourceExceeded(cause string)
}

// RateLimiterMetrics reports abuse control decisions.
type RateLimiterMetrics interface {
	// RateLimitRejected records a transaction refused for reason
	// ("quota" or "banned").
	RateLimitRejected(reason string)
	// SubmitterBanned records a newly triggered ban.
	SubmitterBanned()
}

// ExecutionMetrics reports admission and block execution.
type ExecutionMetrics interface {
	// TransactionChecked records a CheckTx verdict.
	TransactionChecked(code uint32, duration time.Duration)
	// TransactionDelivered records the outcome of an executed transaction.
	TransactionDelivered(code uint32)
	// BlockExecuted records an executed block.
	BlockExecuted(height uint64, txs int, duration time.Duration)
}

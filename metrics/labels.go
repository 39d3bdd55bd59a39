package metrics

const (
	namespaceDrive = "drive"
)

const (
	subsystemSandbox     = "sandbox"
	subsystemRateLimiter = "rate_limiter"
	subsystemExecution   = "execution"
)

const (
	LabelMethod = "method"
	LabelCause  = "cause"
	LabelReason = "reason"
	LabelCode   = "code"
)

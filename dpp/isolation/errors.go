package isolation

import (
	"errors"
	"fmt"
	"time"
)

// Cause names the limit an isolated call exceeded.
type Cause uint8

const (
	CauseMemory Cause = iota + 1
	CauseTimeout
)

func (c Cause) String() string {
	switch c {
	case CauseMemory:
		return "memory"
	case CauseTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("Cause(%d)", uint8(c))
	}
}

// ResourceExceededError is returned when an isolated call is aborted
// because it used too much memory or ran for too long.
type ResourceExceededError struct {
	Cause       Cause
	MemoryLimit uint64
	Timeout     time.Duration
}

func (e *ResourceExceededError) Error() string {
	if e.Cause == CauseMemory {
		return fmt.Sprintf("isolated execution exceeded memory limit of %d bytes", e.MemoryLimit)
	}
	return fmt.Sprintf("isolated execution timed out after %s", e.Timeout)
}

// IsResourceExceeded checks whether err is a ResourceExceededError and
// returns it.
func IsResourceExceeded(err error) (*ResourceExceededError, bool) {
	var r *ResourceExceededError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// ExecutionError reports an isolated call that failed for a reason other
// than validation, such as a panic inside the engine.
type ExecutionError struct {
	Method  string
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("isolated %s failed: %s", e.Method, e.Message)
}

// errSessionClosed is returned inside an isolate whose host stopped
// serving it.
var errSessionClosed = errors.New("isolated session closed")

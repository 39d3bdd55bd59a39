package drive

import (
	"errors"
	"fmt"
)

// Response codes carried by rejected transactions.
const (
	CodeOK                     uint32 = 0
	CodeInvalidArgument        uint32 = 1
	CodeRateLimiterQuotaExceed uint32 = 2
	CodeRateLimiterBanned      uint32 = 3
	CodeExecutionTimedOut      uint32 = 4
)

// AbciError is a rejection that is reported to the consensus engine as
// a response code rather than as a failure of the node.
type AbciError struct {
	Code    uint32
	Message string
	Data    map[string]any
	Tags    map[string]string
}

func (e *AbciError) Error() string {
	return e.Message
}

// GetCode returns the response code.
func (e *AbciError) GetCode() uint32 { return e.Code }

// GetData returns the structured rejection data.
func (e *AbciError) GetData() map[string]any { return e.Data }

// GetTags returns the bookkeeping tags attached to the rejection.
func (e *AbciError) GetTags() map[string]string { return e.Tags }

func (e *AbciError) abci() *AbciError { return e }

// InvalidArgumentError rejects a transaction that is absent, malformed
// or not accepted by the protocol.
type InvalidArgumentError struct {
	AbciError
}

// NewInvalidArgumentError creates an InvalidArgumentError. The message
// is prefixed with "Invalid argument: ".
func NewInvalidArgumentError(message string, data map[string]any) *InvalidArgumentError {
	return &InvalidArgumentError{AbciError{
		Code:    CodeInvalidArgument,
		Message: "Invalid argument: " + message,
		Data:    data,
	}}
}

// RateLimiterQuotaExceededError rejects a transaction whose submitter
// ran out of quota in the current window.
type RateLimiterQuotaExceededError struct {
	AbciError
	UserID string
}

// NewRateLimiterQuotaExceededError creates the error and records a ban
// under both bannedKey and "bannedUserIds".
func NewRateLimiterQuotaExceededError(userID, bannedKey string) *RateLimiterQuotaExceededError {
	return &RateLimiterQuotaExceededError{
		AbciError: AbciError{
			Code:    CodeRateLimiterQuotaExceed,
			Message: fmt.Sprintf("Rate limit exceeded for user %s", userID),
			Data:    map[string]any{"userId": userID},
			Tags: map[string]string{
				bannedKey:       userID,
				"bannedUserIds": userID,
			},
		},
		UserID: userID,
	}
}

// RateLimiterBannedError rejects a transaction whose submitter is
// currently banned.
type RateLimiterBannedError struct {
	AbciError
	UserID string
}

// NewRateLimiterBannedError creates a RateLimiterBannedError.
func NewRateLimiterBannedError(userID string) *RateLimiterBannedError {
	return &RateLimiterBannedError{
		AbciError: AbciError{
			Code:    CodeRateLimiterBanned,
			Message: fmt.Sprintf("User %s is banned", userID),
			Data:    map[string]any{"userId": userID},
		},
		UserID: userID,
	}
}

type abciCarrier interface {
	error
	abci() *AbciError
}

// AsAbciError reports whether err is, or wraps, one of the rejection
// errors and returns its common part.
func AsAbciError(err error) (*AbciError, bool) {
	var c abciCarrier
	if errors.As(err, &c) {
		return c.abci(), true
	}
	return nil, false
}

// HaltError signals that the application detected an irrecoverable
// inconsistency and requests an immediate chain halt.
//
// When the engine receives a HaltError from ExecuteBlock, it must
// stop consensus, log the error, and not proceed to Commit.
type HaltError struct {
	Reason string
	Height uint64
	Err    error
}

func (e *HaltError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HALT at height %d: %s: %v", e.Height, e.Reason, e.Err)
	}
	return fmt.Sprintf("HALT at height %d: %s", e.Height, e.Reason)
}

func (e *HaltError) Unwrap() error { return e.Err }

// NewHaltError creates a new HaltError.
func NewHaltError(height uint64, reason string) *HaltError {
	return &HaltError{Height: height, Reason: reason}
}

// WrapHalt creates a HaltError caused by err.
func WrapHalt(height uint64, reason string, err error) *HaltError {
	return &HaltError{Height: height, Reason: reason, Err: err}
}

// IsHalt checks whether an error is a HaltError and returns it.
func IsHalt(err error) (*HaltError, bool) {
	var h *HaltError
	if errors.As(err, &h) {
		return h, true
	}
	return nil, false
}

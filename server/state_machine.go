// Package server wraps the drive application with the lifecycle state
// machine the consensus engine must follow.
package server

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// lifecycleState represents a state in the lifecycle state machine.
type lifecycleState uint32

const (
	// stateInit: waiting for Handshake. No other calls allowed.
	stateInit lifecycleState = iota
	// stateReady: Handshake complete. CheckTx and Query may run
	// concurrently; ExecuteBlock is the only valid sequential call.
	stateReady
	// stateExecuting: ExecuteBlock is running.
	stateExecuting
	// stateExecuted: ExecuteBlock returned. Commit is the only valid
	// next sequential call.
	stateExecuted
	// stateCommitting: Commit is running.
	stateCommitting
	// stateHalted: block execution failed non-deterministically. Only
	// CheckTx and Query are served until the node restarts.
	stateHalted
)

func (s lifecycleState) String() string {
	switch s {
	case stateInit:
		return "Init"
	case stateReady:
		return "Ready"
	case stateExecuting:
		return "Executing"
	case stateExecuted:
		return "Executed"
	case stateCommitting:
		return "Committing"
	case stateHalted:
		return "Halted"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ErrHalted is returned for sequential calls after a halt.
var ErrHalted = errors.New("drive: application halted")

// OrderError reports a call made in a state that does not allow it.
type OrderError struct {
	Call     string
	State    string
	Expected string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("drive: %s called in state %s (expected %s)", e.Call, e.State, e.Expected)
}

// LifecycleGuard enforces the lifecycle state machine.
type LifecycleGuard struct {
	state atomic.Uint32
	// Serializes ExecuteBlock and Commit.
	seqMu         sync.Mutex
	handshakeDone atomic.Bool
}

// NewLifecycleGuard creates a guard in the Init state.
func NewLifecycleGuard() *LifecycleGuard {
	g := &LifecycleGuard{}
	g.state.Store(uint32(stateInit))
	return g
}

// State returns the current lifecycle state.
func (g *LifecycleGuard) State() string {
	return g.current().String()
}

func (g *LifecycleGuard) current() lifecycleState {
	return lifecycleState(g.state.Load())
}

// AcquireHandshake transitions Init → Ready.
func (g *LifecycleGuard) AcquireHandshake() error {
	if !g.state.CompareAndSwap(uint32(stateInit), uint32(stateReady)) {
		return &OrderError{Call: "Handshake", State: g.State(), Expected: stateInit.String()}
	}
	return nil
}

// CompleteHandshake marks handshake as done, enabling concurrent calls.
func (g *LifecycleGuard) CompleteHandshake() {
	g.handshakeDone.Store(true)
}

// FailHandshake rolls back state to Init if handshake fails.
func (g *LifecycleGuard) FailHandshake() {
	g.state.Store(uint32(stateInit))
}

// AcquireExecute transitions Ready → Executing. It blocks while another
// sequential call is in progress.
func (g *LifecycleGuard) AcquireExecute() error {
	return g.acquire("ExecuteBlock", stateReady, stateExecuting)
}

// CompleteExecute transitions Executing → Executed.
func (g *LifecycleGuard) CompleteExecute() {
	g.state.Store(uint32(stateExecuted))
	g.seqMu.Unlock()
}

// FailExecute transitions Executing → Ready on error, allowing retry.
func (g *LifecycleGuard) FailExecute() {
	g.state.Store(uint32(stateReady))
	g.seqMu.Unlock()
}

// HaltExecute transitions Executing → Halted.
func (g *LifecycleGuard) HaltExecute() {
	g.state.Store(uint32(stateHalted))
	g.seqMu.Unlock()
}

// AcquireCommit transitions Executed → Committing.
func (g *LifecycleGuard) AcquireCommit() error {
	return g.acquire("Commit", stateExecuted, stateCommitting)
}

// CompleteCommit transitions Committing → Ready.
func (g *LifecycleGuard) CompleteCommit() {
	g.state.Store(uint32(stateReady))
	g.seqMu.Unlock()
}

func (g *LifecycleGuard) acquire(call string, from, to lifecycleState) error {
	g.seqMu.Lock()
	state := g.current()
	if state == stateHalted {
		g.seqMu.Unlock()
		return ErrHalted
	}
	if state != from {
		g.seqMu.Unlock()
		return &OrderError{Call: call, State: state.String(), Expected: from.String()}
	}
	g.state.Store(uint32(to))
	return nil
}

// CheckConcurrent verifies that concurrent calls are allowed (any state
// after Handshake).
func (g *LifecycleGuard) CheckConcurrent(call string) error {
	if !g.handshakeDone.Load() {
		return &OrderError{Call: call, State: g.State(), Expected: "any state after Handshake"}
	}
	return nil
}

// IsReady returns true if the guard is in the Ready state.
func (g *LifecycleGuard) IsReady() bool {
	return g.current() == stateReady
}

// IsHalted returns true once block execution halted.
func (g *LifecycleGuard) IsHalted() bool {
	return g.current() == stateHalted
}

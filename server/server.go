package server

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/blockberries/drive"
	"github.com/blockberries/drive/types"
)

// Compile-time interface check.
var _ drive.Connection = (*Server)(nil)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger lifecycle violations and halts are reported
// to.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// Server wraps a drive application with lifecycle enforcement. The
// consensus engine interacts with the application exclusively through
// this server.
type Server struct {
	app   drive.Lifecycle
	guard *LifecycleGuard
	log   zerolog.Logger

	// Last block outcome (held between ExecuteBlock and Commit).
	mu             sync.Mutex
	lastOutcome    *types.BlockOutcome
	lastExecHeight uint64
}

// New creates a new Server wrapping the given application.
func New(app drive.Lifecycle, opts ...Option) *Server {
	s := &Server{
		app:   app,
		guard: NewLifecycleGuard(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "lifecycle").Logger()
	return s
}

// Handshake performs the startup handshake and transitions the state
// machine to Ready.
func (s *Server) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	if err := s.guard.AcquireHandshake(); err != nil {
		s.log.Warn().Err(err).Msg("rejected out of order call")
		return types.HandshakeResponse{}, err
	}

	resp, err := s.app.Handshake(ctx, req)
	if err != nil {
		s.guard.FailHandshake()
		return resp, err
	}

	s.guard.CompleteHandshake()
	return resp, nil
}

// CheckTx gate-checks a transaction for mempool admission.
// Safe for concurrent use.
func (s *Server) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	if err := s.guard.CheckConcurrent("CheckTx"); err != nil {
		return types.GateVerdict{}, err
	}
	return s.app.CheckTx(ctx, tx, mctx)
}

// ExecuteBlock executes a finalized block. A halt error from the
// application moves the server to the Halted state.
func (s *Server) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	if err := s.guard.AcquireExecute(); err != nil {
		s.log.Warn().Err(err).Uint64("height", block.Height).Msg("rejected out of order call")
		return types.BlockOutcome{}, err
	}

	outcome, err := s.app.ExecuteBlock(ctx, block)
	if err != nil {
		if halt, ok := drive.IsHalt(err); ok {
			s.log.Error().Err(halt).Uint64("height", halt.Height).Msg("application halted")
			s.guard.HaltExecute()
			return outcome, err
		}
		s.guard.FailExecute()
		return outcome, err
	}

	s.mu.Lock()
	s.lastOutcome = &outcome
	s.lastExecHeight = block.Height
	s.mu.Unlock()

	s.guard.CompleteExecute()
	return outcome, nil
}

// Commit persists state changes from the last ExecuteBlock.
func (s *Server) Commit(ctx context.Context) (types.CommitResult, error) {
	if err := s.guard.AcquireCommit(); err != nil {
		s.log.Warn().Err(err).Msg("rejected out of order call")
		return types.CommitResult{}, err
	}

	result, err := s.app.Commit(ctx)

	s.mu.Lock()
	s.lastOutcome = nil
	s.mu.Unlock()

	s.guard.CompleteCommit()
	return result, err
}

// Query reads application state. Safe for concurrent use.
func (s *Server) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	if err := s.guard.CheckConcurrent("Query"); err != nil {
		return types.StateQueryResult{}, err
	}
	return s.app.Query(ctx, req)
}

// LastOutcome returns the most recent BlockOutcome (between ExecuteBlock
// and Commit). Returns nil if no outcome is pending.
func (s *Server) LastOutcome() *types.BlockOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutcome
}

// LastExecutedHeight returns the height of the last executed block.
func (s *Server) LastExecutedHeight() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastExecHeight
}

// State returns the lifecycle state.
func (s *Server) State() string {
	return s.guard.State()
}

// Close is a no-op for the server wrapper.
func (s *Server) Close() error { return nil }

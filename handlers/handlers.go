// Package handlers turns serialized state transitions into mempool
// verdicts and executed transaction outcomes.
package handlers

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog"

	"github.com/blockberries/drive"
	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/types"
	"github.com/blockberries/drive/updatestate"
)

// Request carries one serialized state transition.
type Request struct {
	Tx []byte
}

// RateLimiter decides whether a submitter may send more transactions.
type RateLimiter interface {
	Window(height uint64) uint64
	IsBannedUser(userID string, window uint64) bool
	IsQuotaExceeded(userID string, window uint64) bool
	GetBannedKey() string
	CreateUserTag(userID string) types.Tag
}

// RemoteStateClient applies document and data contract transitions.
type RemoteStateClient interface {
	ApplyStateTransition(ctx context.Context, req *updatestate.ApplyStateTransitionRequest) (*updatestate.ApplyStateTransitionResponse, error)
}

// ChainStateReader exposes the chain height a handler works at: the last
// committed block for CheckTx, the block being executed for DeliverTx.
type ChainStateReader interface {
	LastBlockHeight() uint64
}

// IdentityRepository persists identities within a block transaction.
type IdentityRepository interface {
	Store(ctx context.Context, identity *dpp.Identity, txn *badger.Txn) error
	Fetch(ctx context.Context, id string, txn *badger.Txn) (*dpp.Identity, error)
}

// DBTransactionRegistry hands out the transaction of the block being
// executed.
type DBTransactionRegistry interface {
	GetIdentityTransaction() (*badger.Txn, error)
}

// Option configures a handler.
type Option func(*options)

type options struct {
	log zerolog.Logger
}

// WithLogger sets the logger rejections are reported to.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func newOptions(component string, opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.With().Str("component", component).Logger()
	return o
}

// decodeStateTransition restores the transition carried by tx.
func decodeStateTransition(ctx context.Context, engine dpp.Protocol, tx []byte) (dpp.StateTransition, error) {
	if len(tx) == 0 {
		return nil, drive.NewInvalidArgumentError("State Transition is not specified", nil)
	}

	st, err := engine.StateTransition().CreateFromSerialized(ctx, tx)
	if err != nil {
		var invalid *dpp.InvalidStateTransitionError
		if errors.As(err, &invalid) {
			return nil, drive.NewInvalidArgumentError("State Transition is invalid", map[string]any{
				"errors": invalid.Errors,
			})
		}
		return nil, err
	}
	return st, nil
}

// checkRateLimit rejects userID when banned or over quota in the window of
// height.
func checkRateLimit(limiter RateLimiter, userID string, height uint64) error {
	window := limiter.Window(height)
	if limiter.IsBannedUser(userID, window) {
		return drive.NewRateLimiterBannedError(userID)
	}
	if limiter.IsQuotaExceeded(userID, window) {
		return drive.NewRateLimiterQuotaExceededError(userID, limiter.GetBannedKey())
	}
	return nil
}

// logRejection reports err at debug level when it is a client error and
// at error level otherwise.
func logRejection(log zerolog.Logger, err error, msg string) {
	if abciErr, ok := drive.AsAbciError(err); ok {
		log.Debug().Uint32("code", abciErr.Code).Str("reason", abciErr.Message).Msg(msg)
		return
	}
	log.Error().Err(err).Msg(msg)
}
